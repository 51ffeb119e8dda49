package signal

import "math"

// CHOP regime bands.
const (
	ChopRanging  = 61.8
	ChopTrending = 38.2
	ChopNeutral  = 50.0
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// Bar 0 has no previous close and uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	n := minLen(high, low, close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := high[i] - low[i]
		if i > 0 {
			r = math.Max(r, math.Abs(high[i]-close[i-1]))
			r = math.Max(r, math.Abs(low[i]-close[i-1]))
		}
		tr[i] = r
	}
	return tr
}

// ATR is the simple rolling mean of true range over period bars.
// Warm-up bars are back-filled with the first defined value.
func ATR(high, low, close []float64, period int) []float64 {
	tr := TrueRange(high, low, close)
	return backfill(rollingMean(tr, period))
}

// Chop is the Choppiness Index:
//
//	100 * log10(sum(TR, p) / (max(high, p) - min(low, p))) / log10(p)
//
// Bars where the index is undefined (warm-up, flat range) are 50.
func Chop(high, low, close []float64, period int) []float64 {
	n := minLen(high, low, close)
	out := make([]float64, n)
	for i := range out {
		out[i] = ChopNeutral
	}
	if period < 2 || n < period {
		return out
	}

	tr := TrueRange(high, low, close)
	logP := math.Log10(float64(period))
	for i := period - 1; i < n; i++ {
		sum := 0.0
		hi, lo := math.Inf(-1), math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			sum += tr[j]
			hi = math.Max(hi, high[j])
			lo = math.Min(lo, low[j])
		}
		rng := hi - lo
		if rng <= 0 || sum <= 0 {
			continue
		}
		v := 100 * math.Log10(sum/rng) / logP
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}

// IsRanging reports a choppy, sideways regime.
func IsRanging(chop float64) bool { return chop > ChopRanging }

// IsTrending reports a directional regime.
func IsTrending(chop float64) bool { return chop < ChopTrending }

// ATRZScore is the rolling z-score of atr over window bars, using the
// sample standard deviation. Undefined bars are 0.
func ATRZScore(atr []float64, window int) []float64 {
	n := len(atr)
	out := make([]float64, n)
	if window < 2 {
		return out
	}
	for i := window - 1; i < n; i++ {
		w := atr[i-window+1 : i+1]
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(window)
		ss := 0.0
		for _, v := range w {
			ss += (v - mean) * (v - mean)
		}
		std := math.Sqrt(ss / float64(window-1))
		if std == 0 || math.IsNaN(std) {
			continue
		}
		out[i] = (atr[i] - mean) / std
	}
	return out
}

// HTFTrend is sign(close - SMA(close, maPeriod)) shifted by one bar, so
// bar i only sees information up to bar i-1. Warm-up bars are 0.
func HTFTrend(close []float64, maPeriod int) []float64 {
	n := len(close)
	out := make([]float64, n)
	if maPeriod < 1 {
		return out
	}
	sma := rollingMean(close, maPeriod)
	for i := 1; i < n; i++ {
		prev := sma[i-1]
		if math.IsNaN(prev) {
			continue
		}
		switch d := close[i-1] - prev; {
		case d > 0:
			out[i] = 1
		case d < 0:
			out[i] = -1
		}
	}
	return out
}

// Momentum is the ATR-normalised price change over lookback bars.
// Undefined or non-finite values are 0.
func Momentum(close, atr []float64, lookback int) []float64 {
	n := len(close)
	if len(atr) < n {
		n = len(atr)
	}
	out := make([]float64, n)
	if lookback < 1 {
		return out
	}
	for i := lookback; i < n; i++ {
		v := (close[i] - close[i-lookback]) / atr[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = v
	}
	return out
}

// rollingMean returns NaN for the first period-1 bars.
func rollingMean(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 {
		return out
	}
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= period {
			sum -= x[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// backfill replaces leading NaNs with the first defined value. A series
// that is NaN throughout becomes zeros.
func backfill(x []float64) []float64 {
	first := -1
	for i, v := range x {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first < 0 {
		for i := range x {
			x[i] = 0
		}
		return x
	}
	for i := 0; i < first; i++ {
		x[i] = x[first]
	}
	return x
}

func minLen(xs ...[]float64) int {
	n := -1
	for _, x := range xs {
		if n < 0 || len(x) < n {
			n = len(x)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}
