package signal

import (
	"math"
	"math/rand"

	"rabbit-quant/internal/domain"
)

func sineWave(n int, period, amp, mean float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + amp*math.Sin(2*math.Pi*float64(i)/period)
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p += rng.NormFloat64()
		out[i] = p
	}
	return out
}

func seriesFrom(symbol string, closes []float64) domain.PriceSeries {
	s := domain.PriceSeries{Symbol: symbol, Timeframe: "1h", Bars: make([]domain.Bar, len(closes))}
	for i, c := range closes {
		s.Bars[i] = domain.Bar{
			Symbol:    symbol,
			Timeframe: "1h",
			Timestamp: int64(i) * 3_600_000,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1,
		}
	}
	return s
}
