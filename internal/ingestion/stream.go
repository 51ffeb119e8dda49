package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/observability"
)

// StreamConfig configures KlineStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Subscription is one (symbol, timeframe) kline feed.
type Subscription struct {
	Symbol    string
	Timeframe string
}

// ErrNoSubscriptions is returned when a stream is created without feeds.
var ErrNoSubscriptions = errors.New("no subscriptions")

// KlineStream emits closed bars from the exchange websocket. Each bar is
// emitted at most once per (symbol, timeframe), in open-time order,
// across reconnects.
type KlineStream struct {
	endpoint string
	config   StreamConfig
	streams  []string
	symbols  map[string]string // exchange symbol -> configured symbol
	logger   *zap.Logger
	metrics  *observability.Metrics

	requestID atomic.Uint64
	lastOpen  map[string]int64 // stream name -> last emitted open time
}

// NewKlineStream creates a stream for subs. A nil config uses the defaults.
func NewKlineStream(endpoint string, subs []Subscription, config *StreamConfig, logger *zap.Logger) (*KlineStream, error) {
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}

	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &KlineStream{
		endpoint: endpoint,
		config:   cfg,
		symbols:  make(map[string]string),
		logger:   logger,
		metrics:  observability.DefaultMetrics,
		lastOpen: make(map[string]int64),
	}
	seen := make(map[string]struct{})
	for _, sub := range subs {
		if _, err := market.ParseTimeframe(sub.Timeframe); err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.Symbol, err)
		}
		name := streamName(sub.Symbol, sub.Timeframe)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		s.streams = append(s.streams, name)
		s.symbols[ExchangeSymbol(sub.Symbol)] = sub.Symbol
	}
	return s, nil
}

// WithMetrics records stream metrics on m instead of the default set.
func (s *KlineStream) WithMetrics(m *observability.Metrics) *KlineStream {
	s.metrics = m
	return s
}

// Streams returns the subscribed stream names.
func (s *KlineStream) Streams() []string {
	return append([]string(nil), s.streams...)
}

// Run connects, subscribes and sends closed bars to out until ctx is
// cancelled. Connection failures are retried with exponential backoff.
// It always returns ctx.Err().
func (s *KlineStream) Run(ctx context.Context, out chan<- domain.Bar) error {
	delay := s.config.ReconnectDelay

	for {
		received, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Reset delay after a session that delivered data
		if received {
			delay = s.config.ReconnectDelay
		}

		s.metrics.StreamReconnects.Inc()
		s.logger.Warn("kline stream disconnected",
			zap.Error(err),
			zap.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (s *KlineStream) session(ctx context.Context, out chan<- domain.Bar) (bool, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if err := s.subscribe(conn); err != nil {
		return false, err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ctx, conn, done)

	received := false
	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read: %w", err)
		}
		received = true

		bar, ok := s.handleMessage(message)
		if !ok {
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}

func (s *KlineStream) subscribe(conn *websocket.Conn) error {
	req := wsRequest{
		Method: "SUBSCRIBE",
		Params: s.streams,
		ID:     s.requestID.Add(1),
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	s.logger.Info("kline stream subscribed", zap.Strings("streams", s.streams))
	return nil
}

// pingLoop sends periodic ping frames and closes conn when ctx ends so
// the blocked read returns.
func (s *KlineStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.config.WriteTimeout))
			conn.Close()
			return
		case <-ticker.C:
			// Write errors surface as read errors in session
			conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
		}
	}
}

// handleMessage decodes a stream message and returns a closed, not yet
// emitted bar.
func (s *KlineStream) handleMessage(message []byte) (domain.Bar, bool) {
	// Combined streams wrap the event in {"stream": ..., "data": ...}
	var wrapped wsCombined
	if err := json.Unmarshal(message, &wrapped); err == nil && len(wrapped.Data) > 0 {
		message = wrapped.Data
	}

	var ev wsKlineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.metrics.RecordIngestionError("decode")
		s.logger.Debug("undecodable stream message", zap.Error(err))
		return domain.Bar{}, false
	}

	if ev.EventType != "kline" {
		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err == nil && resp.Error != nil {
			s.metrics.RecordIngestionError("subscribe")
			s.logger.Error("stream error response",
				zap.Int("code", resp.Error.Code),
				zap.String("msg", resp.Error.Msg),
			)
		}
		return domain.Bar{}, false
	}

	if ev.EventTime > 0 {
		lag := time.Since(time.UnixMilli(ev.EventTime)).Seconds()
		if lag >= 0 {
			s.metrics.WSMessageLatency.Observe(lag)
		}
	}

	if !ev.Kline.Closed {
		return domain.Bar{}, false
	}

	symbol, ok := s.symbols[strings.ToUpper(ev.Kline.Symbol)]
	if !ok {
		return domain.Bar{}, false
	}

	key := streamName(symbol, ev.Kline.Interval)
	if last, seen := s.lastOpen[key]; seen && ev.Kline.OpenTime <= last {
		return domain.Bar{}, false
	}

	bar, err := ev.Kline.bar(symbol)
	if err != nil {
		s.metrics.RecordIngestionError("decode")
		s.logger.Warn("malformed kline", zap.String("stream", key), zap.Error(err))
		return domain.Bar{}, false
	}

	s.lastOpen[key] = ev.Kline.OpenTime
	s.metrics.RecordBarsReceived(bar.Timeframe, 1)
	return bar, true
}

// WebSocket message types

type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

type wsResponse struct {
	ID    uint64 `json:"id"`
	Error *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

type wsCombined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}
