package market

import (
	"math"
	"math/rand"
	"time"

	"rabbit-quant/internal/domain"
)

// SyntheticStart is the default first bar time of generated series
// (2024-01-01T00:00:00Z).
var SyntheticStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SeriesSpec describes a generated bar series.
type SeriesSpec struct {
	Symbol    string
	Timeframe string
	Bars      int
	Start     time.Time
}

func (s SeriesSpec) build(closeAt func(i int) float64, spread float64) domain.PriceSeries {
	d, err := ParseTimeframe(s.Timeframe)
	if err != nil {
		d = time.Hour
	}
	start := s.Start
	if start.IsZero() {
		start = SyntheticStart
	}

	out := domain.PriceSeries{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: make([]domain.Bar, max(s.Bars, 0))}
	if s.Bars <= 0 {
		return out
	}
	prev := closeAt(0)
	for i := 0; i < s.Bars; i++ {
		c := closeAt(i)
		out.Bars[i] = domain.Bar{
			Symbol:    s.Symbol,
			Timeframe: s.Timeframe,
			Timestamp: start.Add(time.Duration(i) * d).UnixMilli(),
			Open:      prev,
			High:      math.Max(prev, c) + spread,
			Low:       math.Min(prev, c) - spread,
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return out
}

// SineSeries generates mean + amp*sin(2πi/period).
func SineSeries(spec SeriesSpec, period, amp, mean float64) domain.PriceSeries {
	return spec.build(func(i int) float64 {
		return mean + amp*math.Sin(2*math.Pi*float64(i)/period)
	}, 0.02*amp)
}

// TrendSeries generates a linear drift with a small superimposed oscillation.
func TrendSeries(spec SeriesSpec, start, slope float64) domain.PriceSeries {
	return spec.build(func(i int) float64 {
		return start + slope*float64(i) + 0.1*math.Abs(slope)*math.Sin(float64(i))
	}, math.Abs(slope))
}

// ConstantSeries generates a flat, zero-variance series.
func ConstantSeries(spec SeriesSpec, price float64) domain.PriceSeries {
	return spec.build(func(int) float64 { return price }, 0)
}

// RandomWalkSeries generates a Gaussian random walk reproducible from seed.
func RandomWalkSeries(spec SeriesSpec, start, sigma float64, seed int64) domain.PriceSeries {
	rng := rand.New(rand.NewSource(seed))
	path := make([]float64, spec.Bars)
	p := start
	for i := range path {
		if i > 0 {
			p += rng.NormFloat64() * sigma
			if p < sigma {
				p = sigma
			}
		}
		path[i] = p
	}
	return spec.build(func(i int) float64 { return path[i] }, sigma/2)
}
