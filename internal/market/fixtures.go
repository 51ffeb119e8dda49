package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

// DefaultFixtureBars is the length of each fixture series.
const DefaultFixtureBars = 600

// CyclicSeries generates a drifting sine with Gaussian noise, reproducible
// from seed.
func CyclicSeries(spec SeriesSpec, period, amp, mean, drift, noise float64, seed int64) domain.PriceSeries {
	rng := rand.New(rand.NewSource(seed))
	path := make([]float64, max(spec.Bars, 0))
	for i := range path {
		x := float64(i)
		path[i] = mean + drift*x + amp*math.Sin(2*math.Pi*x/period) + rng.NormFloat64()*noise
		if path[i] < amp/10 {
			path[i] = amp / 10
		}
	}
	return spec.build(func(i int) float64 { return path[i] }, 0.05*amp)
}

// FixtureSeries returns the deterministic fixture series for a symbol.
// Period, level and noise are derived from the symbol name.
func FixtureSeries(symbol, timeframe string, bars int) domain.PriceSeries {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	sum := h.Sum64()

	period := float64(24 + sum%64)
	mean := float64(50 + (sum>>8)%950)
	amp := mean * 0.05
	drift := mean * 0.0002 * (float64((sum>>16)%5) - 2)

	spec := SeriesSpec{Symbol: symbol, Timeframe: timeframe, Bars: bars}
	return CyclicSeries(spec, period, amp, mean, drift, amp*0.05, int64(sum>>1))
}

// LoadFixtures populates store with fixture series for every
// (symbol, timeframe) pair. Pairs already present are left untouched.
func LoadFixtures(ctx context.Context, store storage.OHLCVStore, symbols, timeframes []string, bars int) error {
	if bars <= 0 {
		bars = DefaultFixtureBars
	}

	for _, tf := range timeframes {
		if _, err := ParseTimeframe(tf); err != nil {
			return err
		}
		for _, sym := range symbols {
			if _, err := store.LatestTimestamp(ctx, sym, tf); err == nil {
				continue
			}

			series := FixtureSeries(sym, tf, bars)
			batch := make([]*domain.Bar, len(series.Bars))
			for i := range series.Bars {
				batch[i] = &series.Bars[i]
			}
			if err := store.InsertBulk(ctx, batch); err != nil {
				return fmt.Errorf("load fixtures %s/%s: %w", sym, tf, err)
			}
		}
	}
	return nil
}
