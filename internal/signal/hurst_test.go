package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHurst_ShortSeries(t *testing.T) {
	h, err := Hurst(randomWalk(19, 1))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if h != NeutralHurst {
		t.Errorf("expected 0.5, got %f", h)
	}
}

func TestHurst_ConstantSeries(t *testing.T) {
	h, err := Hurst(constant(500, 42))
	assert.ErrorIs(t, err, ErrDegenerate)
	assert.Equal(t, NeutralHurst, h)
}

func TestHurst_TrendingSeries(t *testing.T) {
	prices := make([]float64, 512)
	for i := range prices {
		prices[i] = 100 + 0.5*float64(i)
	}
	h, err := Hurst(prices)
	require.NoError(t, err)
	assert.Greater(t, h, 0.7)
}

func TestHurst_RangeAndIdempotence(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		prices := randomWalk(600, seed)
		h1, _ := Hurst(prices)
		h2, _ := Hurst(prices)
		if h1 != h2 {
			t.Fatalf("seed %d: not idempotent: %f vs %f", seed, h1, h2)
		}
		if h1 < 0 || h1 > 1 {
			t.Fatalf("seed %d: hurst %f out of [0,1]", seed, h1)
		}
	}
}

func TestHurst_DoesNotMutateInput(t *testing.T) {
	prices := randomWalk(300, 7)
	snapshot := append([]float64(nil), prices...)
	_, _ = Hurst(prices)
	assert.Equal(t, snapshot, prices)
}

func TestRollingHurst(t *testing.T) {
	prices := randomWalk(200, 3)
	out := RollingHurst(prices, 64)
	require.Len(t, out, len(prices))

	for i := 0; i < 63; i++ {
		if out[i] != NeutralHurst {
			t.Fatalf("bar %d: expected warm-up 0.5, got %f", i, out[i])
		}
	}
	for i := 63; i < len(out); i++ {
		want, _ := Hurst(prices[i-63 : i+1])
		assert.InDelta(t, want, out[i], 1e-12, "bar %d", i)
	}
}

func TestRollingHurst_ShortInput(t *testing.T) {
	out := RollingHurst(randomWalk(30, 1), 64)
	for _, v := range out {
		assert.Equal(t, NeutralHurst, v)
	}
}

func TestHurst_TenThousandBars(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}
	prices := randomWalk(10_000, 7)

	start := time.Now()
	h, err := Hurst(prices)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, h >= 0 && h <= 1, "hurst %f out of range", h)
	if elapsed >= 50*time.Millisecond {
		t.Errorf("Hurst on 10000 bars took %v, want < 50ms", elapsed)
	}
}

func BenchmarkHurst10k(b *testing.B) {
	prices := randomWalk(10_000, 7)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Hurst(prices)
	}
}
