package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const hourMs = int64(time.Hour / time.Millisecond)

func klineRow(open int64, price float64) string {
	return fmt.Sprintf(`[%d,"%g","%g","%g","%g","10.5",%d,"0",1,"0","0","0"]`,
		open, price, price+1, price-1, price+0.5, open+hourMs-1)
}

func TestRESTClient_Klines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" {
			t.Errorf("expected symbol BTCUSDT, got %s", q.Get("symbol"))
		}
		if q.Get("interval") != "1h" {
			t.Errorf("expected interval 1h, got %s", q.Get("interval"))
		}
		if q.Get("limit") != "2" {
			t.Errorf("expected limit 2, got %s", q.Get("limit"))
		}
		fmt.Fprintf(w, "[%s,%s,%s]", klineRow(0, 100), klineRow(hourMs, 101), klineRow(2*hourMs, 102))
	}))
	defer server.Close()

	// The third kline closes after "now" and is dropped
	now := time.UnixMilli(2*hourMs + 10)
	client := NewRESTClient(server.URL, WithClock(func() time.Time { return now }))

	bars, err := client.Klines(context.Background(), "BTC/USDT", "1h", 0, 0, 2)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 closed bars, got %d", len(bars))
	}
	if bars[0].Symbol != "BTC/USDT" || bars[0].Timeframe != "1h" {
		t.Errorf("unexpected bar identity %s/%s", bars[0].Symbol, bars[0].Timeframe)
	}
	if bars[1].Timestamp != hourMs || bars[1].Open != 101 || bars[1].High != 102 || bars[1].Close != 101.5 {
		t.Errorf("unexpected bar %+v", bars[1])
	}
	if bars[1].Volume != 10.5 {
		t.Errorf("expected volume 10.5, got %v", bars[1].Volume)
	}
}

func TestRESTClient_RetryOn429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, WithRetryDelay(time.Millisecond))
	bars, err := client.Klines(context.Background(), "ETHUSDT", "1h", 0, 0, 10)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRESTClient_MaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	_, err := client.Klines(context.Background(), "ETHUSDT", "1h", 0, 0, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRESTClient_APIErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.Klines(context.Background(), "NOPE", "1h", 0, 0, 10)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != -1121 || apiErr.Status != http.StatusBadRequest {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRESTClient_UnknownTimeframe(t *testing.T) {
	client := NewRESTClient("http://unused")
	if _, err := client.Klines(context.Background(), "BTCUSDT", "7h", 0, 0, 10); err == nil {
		t.Error("expected error for unknown timeframe")
	}
}

func TestExchangeSymbol(t *testing.T) {
	tests := map[string]string{
		"BTC/USDT": "BTCUSDT",
		"eth-usdt": "ETHUSDT",
		"SOLUSDT":  "SOLUSDT",
	}
	for in, want := range tests {
		if got := ExchangeSymbol(in); got != want {
			t.Errorf("ExchangeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
	if got := streamName("BTC/USDT", "1h"); got != "btcusdt@kline_1h" {
		t.Errorf("streamName = %q", got)
	}
}
