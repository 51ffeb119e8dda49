package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func klineEvent(symbol, interval string, open int64, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"%s","k":{"t":%d,"T":%d,"s":"%s","i":"%s","o":"1","c":"2","h":"3","l":"0.5","v":"7","x":%t}}`,
		open+hourMs, symbol, open, open+hourMs-1, symbol, interval, closed)
}

func testStreamConfig() *StreamConfig {
	return &StreamConfig{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		PingInterval:      time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func newTestStream(t *testing.T, url string) *KlineStream {
	t.Helper()
	subs := []Subscription{{Symbol: "BTC/USDT", Timeframe: "1h"}, {Symbol: "BTC/USDT", Timeframe: "1h"}}
	s, err := NewKlineStream(url, subs, testStreamConfig(), nil)
	if err != nil {
		t.Fatalf("NewKlineStream: %v", err)
	}
	return s.WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), "test"))
}

func TestKlineStream_EmitsClosedBarsOnce(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != "btcusdt@kline_1h" {
			t.Errorf("unexpected subscribe request %+v", req)
		}
		c.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"result":null,"id":%d}`, req.ID)))

		if conns.Add(1) == 1 {
			c.WriteMessage(websocket.TextMessage, []byte(klineEvent("BTCUSDT", "1h", 0, false)))
			c.WriteMessage(websocket.TextMessage, []byte(klineEvent("BTCUSDT", "1h", 0, true)))
			c.WriteMessage(websocket.TextMessage, []byte(klineEvent("BTCUSDT", "1h", 0, true)))
			c.WriteMessage(websocket.TextMessage, []byte(klineEvent("ETHUSDT", "1h", 0, true)))
			c.WriteMessage(websocket.TextMessage, []byte(klineEvent("BTCUSDT", "1h", hourMs, true)))
			// Drop the connection to force a reconnect
			return
		}

		// Replayed bar after reconnect, then a new one wrapped as a combined stream
		c.WriteMessage(websocket.TextMessage, []byte(klineEvent("BTCUSDT", "1h", hourMs, true)))
		c.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_1h","data":`+klineEvent("BTCUSDT", "1h", 2*hourMs, true)+`}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := newTestStream(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan domain.Bar, 16)
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, out) }()

	var got []domain.Bar
	for len(got) < 3 {
		select {
		case bar := <-out:
			got = append(got, bar)
		case <-ctx.Done():
			t.Fatalf("timed out with %d bars", len(got))
		}
	}
	cancel()

	if err := <-done; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	for i, want := range []int64{0, hourMs, 2 * hourMs} {
		if got[i].Timestamp != want {
			t.Errorf("bar %d: expected open %d, got %d", i, want, got[i].Timestamp)
		}
		if got[i].Symbol != "BTC/USDT" || got[i].Timeframe != "1h" {
			t.Errorf("bar %d: unexpected identity %s/%s", i, got[i].Symbol, got[i].Timeframe)
		}
	}
	if got[0].High != 3 || got[0].Low != 0.5 || got[0].Volume != 7 {
		t.Errorf("unexpected bar values %+v", got[0])
	}
	if conns.Load() < 2 {
		t.Errorf("expected a reconnect, got %d connections", conns.Load())
	}

	select {
	case extra := <-out:
		t.Errorf("unexpected extra bar %+v", extra)
	default:
	}
}

func TestKlineStream_RetriesDialFailures(t *testing.T) {
	stream := newTestStream(t, "ws://127.0.0.1:1/ws")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := stream.Run(ctx, make(chan domain.Bar))
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNewKlineStream_Validation(t *testing.T) {
	if _, err := NewKlineStream("ws://x", nil, nil, nil); err != ErrNoSubscriptions {
		t.Errorf("expected ErrNoSubscriptions, got %v", err)
	}
	if _, err := NewKlineStream("ws://x", []Subscription{{Symbol: "BTCUSDT", Timeframe: "2h"}}, nil, nil); err == nil {
		t.Error("expected error for unknown timeframe")
	}

	s, err := NewKlineStream("ws://x", []Subscription{
		{Symbol: "BTC/USDT", Timeframe: "1h"},
		{Symbol: "BTC/USDT", Timeframe: "1h"},
		{Symbol: "ETH/USDT", Timeframe: "4h"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewKlineStream: %v", err)
	}
	if got := s.Streams(); len(got) != 2 {
		t.Errorf("expected 2 unique streams, got %v", got)
	}
}
