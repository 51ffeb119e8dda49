package memory

import (
	"context"
	"errors"
	"testing"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

func TestSignalStore_GetLatest(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	records := []*domain.SignalRecord{
		{Symbol: "BTCUSDT", Timeframe: "1h", Timestamp: 1000, Signal: domain.DirectionNeutral},
		{Symbol: "BTCUSDT", Timeframe: "1h", Timestamp: 2000, Signal: domain.DirectionLong, Projection: []float64{1, 2}},
		{Symbol: "BTCUSDT", Timeframe: "4h", Timestamp: 1500, Signal: domain.DirectionShort},
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	latest, err := store.GetLatest(ctx, "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.Timestamp != 2000 || latest.Signal != domain.DirectionLong {
		t.Errorf("unexpected latest record: %+v", latest)
	}

	// Returned records are copies.
	latest.Projection[0] = 99
	again, _ := store.GetLatest(ctx, "BTCUSDT", "1h")
	if again.Projection[0] != 1 {
		t.Errorf("store was mutated through returned record")
	}

	all, err := store.GetBySymbol(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(all) != 3 || all[0].Timestamp != 1000 || all[1].Timeframe != "4h" {
		t.Errorf("unexpected ordering: %+v", all)
	}
}

func TestSignalStore_Errors(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "X", "1h"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	rec := &domain.SignalRecord{Symbol: "X", Timeframe: "1h", Timestamp: 1}
	if err := store.InsertBulk(ctx, []*domain.SignalRecord{rec}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.SignalRecord{rec}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.SignalRecord{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
