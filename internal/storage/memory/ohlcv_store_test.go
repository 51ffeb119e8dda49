package memory

import (
	"context"
	"errors"
	"testing"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

func bar(symbol, tf string, ts int64, close float64) *domain.Bar {
	return &domain.Bar{Symbol: symbol, Timeframe: tf, Timestamp: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

func TestOHLCVStore_InsertBulkAndGet(t *testing.T) {
	store := NewOHLCVStore()
	ctx := context.Background()

	bars := []*domain.Bar{
		bar("BTCUSDT", "1h", 7200000, 102),
		bar("BTCUSDT", "1h", 0, 100),
		bar("BTCUSDT", "1h", 3600000, 101),
		bar("BTCUSDT", "4h", 0, 100),
	}
	if err := store.InsertBulk(ctx, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	series, err := store.GetOHLCV(ctx, "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("GetOHLCV failed: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 bars, got %d", series.Len())
	}
	for i, want := range []float64{100, 101, 102} {
		if series.Bars[i].Close != want {
			t.Errorf("bar %d: expected close %v, got %v", i, want, series.Bars[i].Close)
		}
	}

	latest, err := store.LatestTimestamp(ctx, "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("LatestTimestamp failed: %v", err)
	}
	if latest != 7200000 {
		t.Errorf("expected latest 7200000, got %d", latest)
	}

	ranged, err := store.GetByTimeRange(ctx, "BTCUSDT", "1h", 0, 3600000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("expected 2 bars in range, got %d", len(ranged))
	}
}

func TestOHLCVStore_NotFound(t *testing.T) {
	store := NewOHLCVStore()
	ctx := context.Background()

	if _, err := store.GetOHLCV(ctx, "NONE", "1h"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.LatestTimestamp(ctx, "NONE", "1h"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOHLCVStore_DuplicateRejectsBatch(t *testing.T) {
	store := NewOHLCVStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Bar{bar("ETHUSDT", "1h", 0, 10)}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Bar{bar("ETHUSDT", "1h", 3600000, 11), bar("ETHUSDT", "1h", 0, 10)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	series, _ := store.GetOHLCV(ctx, "ETHUSDT", "1h")
	if series.Len() != 1 {
		t.Errorf("expected batch to be rejected entirely, got %d bars", series.Len())
	}

	err = store.InsertBulk(ctx, []*domain.Bar{bar("ETHUSDT", "1h", 7200000, 1), bar("ETHUSDT", "1h", 7200000, 1)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestOHLCVStore_InvalidInput(t *testing.T) {
	store := NewOHLCVStore()
	err := store.InsertBulk(context.Background(), []*domain.Bar{{Timeframe: "1h"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOHLCVStore_Symbols(t *testing.T) {
	store := NewOHLCVStore()
	ctx := context.Background()
	_ = store.InsertBulk(ctx, []*domain.Bar{
		bar("SOLUSDT", "1h", 0, 1),
		bar("BTCUSDT", "1h", 0, 1),
		bar("ETHUSDT", "4h", 0, 1),
	})

	symbols, err := store.Symbols(ctx, "1h")
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "SOLUSDT" {
		t.Errorf("unexpected symbols: %v", symbols)
	}
}
