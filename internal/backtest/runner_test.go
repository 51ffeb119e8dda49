package backtest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/simulation"
)

func defaultParams() domain.StrategyParams {
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
		MacroFilter:        domain.MacroFilterHurst,
	}
}

func TestRun_SineEndToEnd(t *testing.T) {
	sine := market.SineSeries(market.SeriesSpec{Symbol: "SINE", Timeframe: "1h", Bars: 500}, 50, 10, 100)

	m, err := BuildMatrices(context.Background(), []domain.PriceSeries{sine}, DefaultMatrixOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"SINE"}, m.Symbols)

	period := m.Periods["SINE"]
	assert.GreaterOrEqual(t, period, 45)
	assert.LessOrEqual(t, period, 55)

	// Persistence forced above the threshold.
	for k := range m.Inputs.Hurst.Data {
		m.Inputs.Hurst.Data[k] = 0.7
	}

	res, err := Run(context.Background(), m.Inputs, defaultParams(), Options{
		InitialCapital: 100_000,
		Commission:     0.001,
		Timeframe:      m.Timeframe,
		Timestamps:     m.Timestamps,
		Symbols:        m.Symbols,
		RunID:          "e2e",
	})
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Greater(t, res.TotalTrades, 0)
	assert.Len(t, res.EquityCurve, len(m.Timestamps))
	assert.Len(t, res.Trades, res.TotalTrades)
	assert.False(t, math.IsNaN(res.SharpeRatio))
	for _, tr := range res.Trades {
		assert.Equal(t, "SINE", tr.Symbol)
		assert.LessOrEqual(t, tr.EntryTime, tr.ExitTime)
	}
}

func TestRun_HurstBelowThresholdTradesNothing(t *testing.T) {
	sine := market.SineSeries(market.SeriesSpec{Symbol: "SINE", Timeframe: "1h", Bars: 500}, 50, 10, 100)
	m, err := BuildMatrices(context.Background(), []domain.PriceSeries{sine}, DefaultMatrixOptions())
	require.NoError(t, err)
	for k := range m.Inputs.Hurst.Data {
		m.Inputs.Hurst.Data[k] = 0.3
	}

	res, err := Run(context.Background(), m.Inputs, defaultParams(), Options{Timeframe: "1h"})
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Zero(t, res.TotalTrades)
	assert.Zero(t, res.TotalReturnPct)
}

func TestRun_ConstantSeriesIsSilent(t *testing.T) {
	flat := func(v float64) simulation.Grid {
		g := simulation.NewGrid(500, 1)
		for k := range g.Data {
			g.Data[k] = v
		}
		return g
	}
	// Degenerate cycle: zero phase; neutral Hurst.
	in := simulation.Inputs{
		Close: flat(100), High: flat(100), Low: flat(100), ATR: flat(0),
		Phase: flat(0), Chop: flat(50), HTF: flat(0), VolZ: flat(0),
		Momentum: flat(0), Hurst: flat(0.5),
	}

	res, err := Run(context.Background(), in, defaultParams(), Options{Timeframe: "1d"})
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Zero(t, res.TotalTrades)
	assert.Equal(t, domain.Metrics{}, res.Metrics)
}

func TestRun_FailureIsFlagged(t *testing.T) {
	res, err := Run(context.Background(), simulation.Inputs{}, defaultParams(), Options{Timeframe: "1h"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.True(t, res.Failed)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, domain.Metrics{}, res.Metrics)
}

func TestRun_UnknownTimeframe(t *testing.T) {
	res, err := Run(context.Background(), simulation.Inputs{}, defaultParams(), Options{Timeframe: "7h"})
	assert.ErrorIs(t, err, market.ErrUnknownTimeframe)
	assert.True(t, res.Failed)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, simulation.Inputs{}, defaultParams(), Options{Timeframe: "1h"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Failed)
}
