package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/signal"
)

func spec(symbol string, bars int) market.SeriesSpec {
	return market.SeriesSpec{Symbol: symbol, Timeframe: "1h", Bars: bars}
}

func TestBuildMatrices_SortsAndAligns(t *testing.T) {
	eth := market.SineSeries(spec("ETH", 400), 40, 5, 100)
	late := spec("BTC", 390)
	late.Start = market.SyntheticStart.Add(10 * time.Hour)
	btc := market.SineSeries(late, 50, 8, 200)

	m, err := BuildMatrices(context.Background(), []domain.PriceSeries{eth, btc}, DefaultMatrixOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH"}, m.Symbols)
	assert.Equal(t, "1h", m.Timeframe)
	assert.Len(t, m.Timestamps, 390)
	assert.Equal(t, 390, m.Inputs.Close.Rows)
	assert.Equal(t, 2, m.Inputs.Close.Cols)
	assert.Equal(t, btc.Bars[0].Timestamp, m.Timestamps[0])

	// Column 1 is ETH starting at its 11th bar.
	assert.Equal(t, eth.Bars[10].Close, m.Inputs.Close.At(0, 1))
	assert.Equal(t, btc.Bars[0].Close, m.Inputs.Close.At(0, 0))

	_, _, ok := m.Inputs.Shape()
	assert.True(t, ok)
	assert.Empty(t, m.Skipped)
}

func TestBuildMatrices_SkipsBadAssets(t *testing.T) {
	good := market.SineSeries(spec("GOOD", 300), 30, 5, 100)
	short := market.SineSeries(spec("SHORT", 100), 30, 5, 100)
	flat := market.ConstantSeries(spec("FLAT", 300), 10)

	m, err := BuildMatrices(context.Background(), []domain.PriceSeries{good, short, flat}, DefaultMatrixOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"GOOD"}, m.Symbols)
	require.Len(t, m.Skipped, 2)
	assert.True(t, errors.Is(m.Skipped["SHORT"], signal.ErrInsufficientData))
	assert.True(t, errors.Is(m.Skipped["FLAT"], signal.ErrDegenerate))
}

func TestBuildMatrices_NothingUsable(t *testing.T) {
	short := market.SineSeries(spec("SHORT", 100), 30, 5, 100)
	_, err := BuildMatrices(context.Background(), []domain.PriceSeries{short}, DefaultMatrixOptions())
	assert.ErrorIs(t, err, signal.ErrInsufficientData)
}

func TestBuildMatrices_RollingHurst(t *testing.T) {
	opts := DefaultMatrixOptions()
	opts.HurstWindow = 64
	s := market.RandomWalkSeries(spec("RW", 300), 100, 1, 3)

	m, err := BuildMatrices(context.Background(), []domain.PriceSeries{s}, opts)
	if err != nil {
		t.Skipf("random walk has no cycle in band: %v", err)
	}
	assert.Equal(t, signal.NeutralHurst, m.Inputs.Hurst.At(0, 0))
	for i := 0; i < m.Inputs.Hurst.Rows; i++ {
		h := m.Inputs.Hurst.At(i, 0)
		assert.GreaterOrEqual(t, h, 0.0)
		assert.LessOrEqual(t, h, 1.0)
	}
}

func TestBuildMatrices_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := market.SineSeries(spec("A", 300), 30, 5, 100)
	_, err := BuildMatrices(ctx, []domain.PriceSeries{s}, DefaultMatrixOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
