// Package ingestion loads exchange klines into the OHLCV store: REST
// backfill for history and a websocket stream for closed live bars.
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rabbit-quant/internal/domain"
)

// ErrMalformedKline is returned when a kline payload cannot be decoded.
var ErrMalformedKline = errors.New("malformed kline")

// ExchangeSymbol converts a configured symbol ("BTC/USDT") to the
// exchange form ("BTCUSDT").
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(symbol))
}

// streamName returns the kline stream name for a symbol and interval.
func streamName(symbol, interval string) string {
	return strings.ToLower(ExchangeSymbol(symbol)) + "@kline_" + interval
}

// parseRESTKline decodes one REST kline row:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseRESTKline(raw []json.RawMessage, symbol, timeframe string) (domain.Bar, int64, error) {
	if len(raw) < 7 {
		return domain.Bar{}, 0, fmt.Errorf("%w: %d fields", ErrMalformedKline, len(raw))
	}

	var openTime, closeTime int64
	if err := json.Unmarshal(raw[0], &openTime); err != nil {
		return domain.Bar{}, 0, fmt.Errorf("%w: open time: %v", ErrMalformedKline, err)
	}
	if err := json.Unmarshal(raw[6], &closeTime); err != nil {
		return domain.Bar{}, 0, fmt.Errorf("%w: close time: %v", ErrMalformedKline, err)
	}

	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(raw[i+1], &s); err != nil {
			return domain.Bar{}, 0, fmt.Errorf("%w: field %d: %v", ErrMalformedKline, i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, 0, fmt.Errorf("%w: field %d: %v", ErrMalformedKline, i+1, err)
		}
		vals[i] = v
	}

	bar := domain.Bar{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: openTime,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	return bar, closeTime, nil
}

// wsKlineEvent is a kline push from the exchange stream.
type wsKlineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsKline struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

func (k *wsKline) bar(symbol string) (domain.Bar, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%w: %v", ErrMalformedKline, err)
		}
		vals[i] = v
	}
	return domain.Bar{
		Symbol:    symbol,
		Timeframe: k.Interval,
		Timestamp: k.OpenTime,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
