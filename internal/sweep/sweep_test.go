package sweep

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/backtest"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/simulation"
)

func baseParams() domain.StrategyParams {
	return domain.StrategyParams{
		HurstThreshold:     0.5,
		ChopThreshold:      50,
		PhaseLong:          4.712,
		PhaseShort:         1.571,
		PhaseTolerance:     0.785,
		TrailingMultiplier: 3,
		BreakevenThreshold: 2,
		MaxConcurrent:      3,
		RiskPerTrade:       0.02,
		VetoThreshold:      3,
		MacroFilter:        domain.MacroFilterBoth,
	}
}

func smallGrid() Grid {
	return Grid{
		HurstThresholds:     []float64{0.45, 0.55},
		PhaseLong:           []float64{4.0, 4.7},
		PhaseShort:          []float64{1.5},
		TrailingMultipliers: []float64{2, 3, 4},
		MacroFilters:        []domain.MacroFilter{domain.MacroFilterChop, domain.MacroFilterHurst},
	}
}

func flatInputs(rows, cols int) simulation.Inputs {
	flat := func(v float64) simulation.Grid {
		g := simulation.NewGrid(rows, cols)
		for k := range g.Data {
			g.Data[k] = v
		}
		return g
	}
	return simulation.Inputs{
		Close: flat(100), High: flat(100), Low: flat(100), ATR: flat(0),
		Phase: flat(0), Chop: flat(50), HTF: flat(0), VolZ: flat(0),
		Momentum: flat(0), Hurst: flat(0.5),
	}
}

func TestGrid_Combinations(t *testing.T) {
	g := smallGrid()
	combos := g.Combinations(baseParams())
	require.Len(t, combos, 24)
	assert.Equal(t, 24, g.Count())

	type key struct {
		h, pl, ps, tm float64
		mf            domain.MacroFilter
	}
	seen := make(map[key]bool)
	for _, c := range combos {
		k := key{c.HurstThreshold, c.PhaseLong, c.PhaseShort, c.TrailingMultiplier, c.MacroFilter}
		assert.False(t, seen[k], "duplicate combination %+v", k)
		seen[k] = true
		assert.Equal(t, 3, c.MaxConcurrent)
		assert.Equal(t, 0.785, c.PhaseTolerance)
	}

	// Innermost parameter varies fastest.
	assert.Equal(t, domain.MacroFilterChop, combos[0].MacroFilter)
	assert.Equal(t, domain.MacroFilterHurst, combos[1].MacroFilter)
	assert.Equal(t, 0.45, combos[0].HurstThreshold)
	assert.Equal(t, 0.55, combos[23].HurstThreshold)
}

func TestGrid_EmptyAxis(t *testing.T) {
	g := smallGrid()
	g.PhaseShort = nil
	assert.Zero(t, g.Count())
	assert.Empty(t, g.Combinations(baseParams()))
}

func TestChopThreshold(t *testing.T) {
	tests := []struct {
		hurst float64
		want  float64
	}{
		{0.5, 50},
		{0.6, 38.2},
		{0.4, 61.8},
	}
	for _, tt := range tests {
		got := ChopThreshold(tt.hurst)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ChopThreshold(%v) = %v, want %v", tt.hurst, got, tt.want)
		}
	}
}

func TestDriver_RowsInComboOrder(t *testing.T) {
	m := observability.NewMetricsWith(prometheus.NewRegistry(), "sweep_test")
	d := &Driver{Workers: 4, Metrics: m}

	res, err := d.Run(context.Background(), "s1", flatInputs(300, 2), baseParams(), smallGrid(), backtest.Options{Timeframe: "1h"})
	require.NoError(t, err)
	assert.Equal(t, 24, res.Total)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Rows, 24)
	for i, r := range res.Rows {
		assert.Equal(t, i, r.ComboIndex)
		assert.Equal(t, "s1", r.SweepID)
		assert.False(t, r.Failed)
		assert.Zero(t, r.TotalTrades)
	}
	assert.Equal(t, 24.0, testutil.ToFloat64(m.SweepCombinations.WithLabelValues("success")))
}

func TestDriver_FailedCombinationsFlagged(t *testing.T) {
	d := &Driver{Workers: 2}
	res, err := d.Run(context.Background(), "s2", flatInputs(50, 1), baseParams(), smallGrid(), backtest.Options{Timeframe: "7h"})
	require.NoError(t, err)
	assert.Equal(t, 24, res.Failed)
	require.Len(t, res.Rows, 24)
	for _, r := range res.Rows {
		assert.True(t, r.Failed)
		assert.Equal(t, domain.Metrics{}, r.Metrics)
	}
}

func TestDriver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Driver{Workers: 2}
	res, err := d.Run(ctx, "s3", flatInputs(50, 1), baseParams(), smallGrid(), backtest.Options{Timeframe: "1h"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 24, res.Total)
	assert.Empty(t, res.Rows)
}

func row(idx, trades int, sharpe, ret float64) *domain.SweepRow {
	return &domain.SweepRow{
		ComboIndex:     idx,
		HurstThreshold: 0.5 + float64(idx)/100,
		Metrics:        domain.Metrics{TotalTrades: trades, SharpeRatio: sharpe, TotalReturnPct: ret},
	}
}

func TestFindBest(t *testing.T) {
	rows := []*domain.SweepRow{
		row(0, 0, 9, 50),
		row(1, 4, 1.2, 10),
		row(2, 3, 2.5, 5),
		row(3, 5, 2.5, 8),
		row(4, 2, -0.5, -3),
	}

	best := FindBest(rows, 3)
	require.Len(t, best, 3)
	assert.Equal(t, 3, best[0].ComboIndex)
	assert.Equal(t, 2, best[1].ComboIndex)
	assert.Equal(t, 1, best[2].ComboIndex)

	assert.Len(t, FindBest(rows, 10), 4)
	assert.Nil(t, FindBest(rows, 0))
}

func TestFindBest_NothingTraded(t *testing.T) {
	rows := []*domain.SweepRow{row(0, 0, 0, 0), row(1, 0, 0, 0)}
	best := FindBest(rows, 5)
	require.Len(t, best, 2)
	assert.Equal(t, 0, best[0].ComboIndex)
}

func TestRecommend(t *testing.T) {
	rows := []*domain.SweepRow{row(0, 1, 0.3, 1), row(1, 2, 1.1, 4)}
	rec, ok := Recommend(rows)
	require.True(t, ok)
	assert.Equal(t, 0.51, rec.HurstThreshold)
	assert.Equal(t, 1.1, rec.SharpeRatio)

	_, ok = Recommend([]*domain.SweepRow{row(0, 0, 3, 3)})
	assert.False(t, ok)

	_, ok = Recommend(nil)
	assert.False(t, ok)
}
