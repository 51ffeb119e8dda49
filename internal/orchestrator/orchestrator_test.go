package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/config"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
	"rabbit-quant/internal/storage/memory"
	"rabbit-quant/internal/strategy"
	"rabbit-quant/internal/sweep"
)

type testStores struct {
	ohlcv  *memory.OHLCVStore
	runs   *memory.BacktestRunStore
	trades *memory.TradeRecordStore
	sweeps *memory.SweepResultStore
	sigs   *memory.SignalStore
}

var testSymbols = []string{"AAA", "BBB", "CCC"}

func setup(t *testing.T, timeframes ...string) (*Orchestrator, *testStores, string) {
	t.Helper()

	stores := &testStores{
		ohlcv:  memory.NewOHLCVStore(),
		runs:   memory.NewBacktestRunStore(),
		trades: memory.NewTradeRecordStore(),
		sweeps: memory.NewSweepResultStore(),
		sigs:   memory.NewSignalStore(),
	}
	require.NoError(t, market.LoadFixtures(context.Background(), stores.ohlcv, testSymbols, timeframes, 0))

	cfg := config.DefaultStrategy()
	cfg.Backtest.HurstRange = []float64{0.5, 0.6}
	cfg.Backtest.PhaseLongRange = []float64{4.712}
	cfg.Backtest.PhaseShortRange = []float64{1.571}
	cfg.Backtest.TrailingMultiplierRange = []float64{2.0}
	cfg.Backtest.MacroFilterRange = []string{"chop", "hurst"}
	bundle, err := strategy.FromConfig(cfg)
	require.NoError(t, err)

	n := 0
	dir := t.TempDir()
	orch := New(Options{
		Provider:    stores.ohlcv,
		RunStore:    stores.runs,
		TradeStore:  stores.trades,
		SweepStore:  stores.sweeps,
		SignalStore: stores.sigs,
		Bundle:      bundle,
		Symbols:     testSymbols,
		OutputDir:   dir,
		Metrics:     observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
		NewRunID: func() string {
			n++
			return fmt.Sprintf("run-%03d", n)
		},
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	return orch, stores, dir
}

func TestOrchestrator_LoadSeries(t *testing.T) {
	orch, _, _ := setup(t, "1h")
	ctx := context.Background()

	series, missing, err := orch.LoadSeries(ctx, "1h")
	require.NoError(t, err)
	assert.Len(t, series, 3)
	assert.Empty(t, missing)

	_, missing, err = orch.LoadSeries(ctx, "4h")
	assert.ErrorIs(t, err, ErrNoSeries)
	assert.Len(t, missing, 3)
}

func TestOrchestrator_RunBulk(t *testing.T) {
	orch, stores, dir := setup(t, "1h", "4h")
	ctx := context.Background()

	result, err := orch.RunBulk(ctx, []string{"1h", "4h", "1d"})
	require.NoError(t, err)

	require.Len(t, result.Timeframes, 2)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "1d:"))

	require.Len(t, result.Leaderboard, 2)
	assert.GreaterOrEqual(t, result.Leaderboard[0].SharpeRatio, result.Leaderboard[1].SharpeRatio)

	runs, err := stores.runs.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	for _, tr := range result.Timeframes {
		assert.Equal(t, testSymbols, tr.Run.Symbols)
		assert.Equal(t, market.DefaultFixtureBars, tr.Run.Bars)
		assert.Equal(t, tr.Run.Metrics.TotalTrades, len(tr.Trades))

		stored, err := stores.trades.GetByRunID(ctx, tr.Run.RunID)
		require.NoError(t, err)
		assert.Len(t, stored, len(tr.Trades))

		assert.Equal(t, filepath.Join(dir, TradeLogFile(tr.Run.Timeframe)), tr.TradeLog)
		data, err := os.ReadFile(tr.TradeLog)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, len(tr.Trades)+1)
	}

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, filepath.Join(dir, SummaryFile), result.SummaryPath)
}

func TestOrchestrator_RunBulk_Cancelled(t *testing.T) {
	orch, _, _ := setup(t, "1h")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.RunBulk(ctx, []string{"1h"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_RunSweep(t *testing.T) {
	orch, stores, dir := setup(t, "1h")
	ctx := context.Background()

	total := 0
	out, err := orch.RunSweep(ctx, "1h", 3, func(n int) { total = n })
	require.NoError(t, err)

	assert.Equal(t, 4, total)
	assert.Equal(t, 4, out.Result.Total)
	assert.Len(t, out.Result.Rows, 4)
	assert.LessOrEqual(t, len(out.Best), 3)
	assert.Equal(t, filepath.Join(dir, SweepFile("1h")), out.CSVPath)

	rows, err := stores.sweeps.GetBySweepID(ctx, out.Result.SweepID)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	// Dependent chop threshold follows the persistence threshold
	for _, r := range rows {
		assert.InDelta(t, sweep.ChopThreshold(r.HurstThreshold), r.ChopThreshold, 1e-9)
	}

	if out.Recommendation != nil {
		require.NotEmpty(t, out.Best)
		assert.Equal(t, out.Best[0].SharpeRatio, out.Recommendation.SharpeRatio)
	}
}

func TestOrchestrator_Scan(t *testing.T) {
	orch, stores, _ := setup(t, "1h")
	ctx := context.Background()

	res, err := orch.Scan(ctx, []string{"1h", "4h"})
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	assert.Len(t, res.Failed, 3, "4h has no data for any symbol")
	for _, rec := range res.Records {
		assert.Equal(t, "1h", rec.Timeframe)
		assert.Contains(t, []domain.Direction{domain.DirectionLong, domain.DirectionShort, domain.DirectionNeutral}, rec.Signal)
	}

	latest, err := stores.sigs.GetLatest(ctx, "AAA", "1h")
	require.NoError(t, err)
	assert.Equal(t, res.Records[0].Timestamp, latest.Timestamp)

	// A rescan over unchanged history stores nothing new and does not fail
	_, err = orch.Scan(ctx, []string{"1h"})
	require.NoError(t, err)
	all, err := stores.sigs.GetBySymbol(ctx, "AAA")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOrchestrator_RefreshFunc(t *testing.T) {
	orch, _, _ := setup(t, "1h")
	recs, err := orch.RefreshFunc([]string{"1h"})(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestOrchestrator_OptionalStores(t *testing.T) {
	ohlcv := memory.NewOHLCVStore()
	require.NoError(t, market.LoadFixtures(context.Background(), ohlcv, testSymbols, []string{"1h"}, 0))
	bundle, err := strategy.FromConfig(config.DefaultStrategy())
	require.NoError(t, err)

	orch := New(Options{
		Provider: ohlcv,
		Bundle:   bundle,
		Symbols:  testSymbols,
		Metrics:  observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	})
	result, err := orch.RunBulk(context.Background(), []string{"1h"})
	require.NoError(t, err)
	require.Len(t, result.Timeframes, 1)
	assert.Empty(t, result.Timeframes[0].TradeLog)
	assert.Empty(t, result.SummaryPath)
}

var _ storage.PriceSeriesProvider = (*memory.OHLCVStore)(nil)
