package memory

import (
	"context"
	"errors"
	"testing"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

func TestTradeRecordStore_InsertBulkAndGetByRunID(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		{TradeID: "t2", RunID: "run1", Symbol: "A", EntryTime: 2000, PnL: -1},
		{TradeID: "t1", RunID: "run1", Symbol: "B", EntryTime: 1000, PnL: 5},
		{TradeID: "t3", RunID: "run2", Symbol: "A", EntryTime: 500},
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[0].TradeID != "t1" || got[1].TradeID != "t2" {
		t.Errorf("unexpected trades: %+v", got)
	}
}

func TestTradeRecordStore_DuplicateRejectsBatch(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	_ = store.InsertBulk(ctx, []*domain.TradeRecord{{TradeID: "t1", RunID: "r"}})
	err := store.InsertBulk(ctx, []*domain.TradeRecord{{TradeID: "t2", RunID: "r"}, {TradeID: "t1", RunID: "r"}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "r")
	if len(got) != 1 {
		t.Errorf("expected batch to be rejected entirely, got %d trades", len(got))
	}
}
