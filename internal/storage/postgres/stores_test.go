package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

func TestBacktestRunStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRunStore(pool)
	ctx := context.Background()

	run := &domain.BacktestRun{
		RunID:     "run-1",
		Timeframe: "1h",
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Params: domain.StrategyParams{
			HurstThreshold: 0.6, ChopThreshold: 38.2, PhaseLong: 4.712, PhaseShort: 1.571,
			PhaseTolerance: 0.785, TrailingMultiplier: 3, BreakevenThreshold: 2,
			MaxConcurrent: 3, RiskPerTrade: 0.02, VetoThreshold: 3, MacroFilter: domain.MacroFilterBoth,
		},
		Metrics:        domain.Metrics{TotalReturnPct: 12.5, SharpeRatio: 1.1, MaxDrawdownPct: 4, WinRatePct: 55, TotalTrades: 20, ProfitFactor: 1.8},
		InitialCapital: 100000,
		Commission:     0.001,
		Bars:           500,
		StartTime:      1000,
		EndTime:        2000,
		CreatedAt:      3000,
	}
	require.NoError(t, store.Insert(ctx, run))
	require.NoError(t, store.Insert(ctx, &domain.BacktestRun{RunID: "run-2", Timeframe: "4h", Metrics: domain.Metrics{SharpeRatio: 2}}))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	err = store.Insert(ctx, run)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	_, err = store.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-2", all[0].RunID)
	assert.Empty(t, all[0].Symbols)
}

func TestTradeRecordStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeRecordStore(pool)
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		{TradeID: "b", RunID: "r", Symbol: "ETHUSDT", Direction: domain.DirectionShort, EntryTime: 2000, ExitTime: 3000, Size: 2, EntryPrice: 50, EntryValue: 100, ExitPrice: 45, PnL: 9.8, ReturnPct: 9.8, Fees: 0.2},
		{TradeID: "a", RunID: "r", Symbol: "BTCUSDT", Direction: domain.DirectionLong, EntryTime: 1000, ExitTime: 4000, Size: 1, EntryPrice: 100, EntryValue: 100, ExitPrice: 110, PnL: 9.79, ReturnPct: 9.79, Fees: 0.21},
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByRunID(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, trades[1], got[0])
	assert.Equal(t, trades[0], got[1])

	// A duplicate anywhere rejects the whole batch.
	err = store.InsertBulk(ctx, []*domain.TradeRecord{
		{TradeID: "c", RunID: "r", Direction: domain.DirectionLong},
		{TradeID: "a", RunID: "r", Direction: domain.DirectionLong},
	})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	got, err = store.GetByRunID(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSweepResultStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSweepResultStore(pool)
	ctx := context.Background()

	rows := []*domain.SweepRow{
		{SweepID: "s", ComboIndex: 0, HurstThreshold: 0.5, ChopThreshold: 50, MacroFilter: domain.MacroFilterChop},
		{SweepID: "s", ComboIndex: 1, HurstThreshold: 0.6, MacroFilter: domain.MacroFilterHurst, Metrics: domain.Metrics{TotalTrades: 4, SharpeRatio: 0.9}},
		{SweepID: "s", ComboIndex: 2, HurstThreshold: 0.7, MacroFilter: domain.MacroFilterBoth, Metrics: domain.Metrics{TotalTrades: 2, SharpeRatio: 1.4}},
		{SweepID: "s", ComboIndex: 3, MacroFilter: domain.MacroFilterBoth, Failed: true},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	all, err := store.GetBySweepID(ctx, "s")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, rows[0], all[0])
	assert.True(t, all[3].Failed)

	top, err := store.GetTop(ctx, "s", 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 2, top[0].ComboIndex)
	assert.Equal(t, 1, top[1].ComboIndex)

	err = store.InsertBulk(ctx, []*domain.SweepRow{{SweepID: "s", ComboIndex: 1, MacroFilter: domain.MacroFilterChop}})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}
