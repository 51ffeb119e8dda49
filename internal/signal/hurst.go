package signal

import "math"

const (
	// NeutralHurst is returned when no persistence can be measured.
	NeutralHurst = 0.5

	// MinHurstBars is the minimum series length for R/S analysis.
	MinHurstBars = 20

	minSizeExp = 2 // smallest sub-series is 2^2 = 4 bars
	maxSizes   = 64
)

// Hurst estimates the Hurst exponent of prices by rescaled-range analysis.
//
// The result is always in [0, 1]. On insufficient or degenerate input the
// neutral value 0.5 is returned together with ErrInsufficientData or
// ErrDegenerate, so callers can tell a measured 0.5 from "no signal".
func Hurst(prices []float64) (float64, error) {
	if len(prices) < MinHurstBars {
		return NeutralHurst, ErrInsufficientData
	}
	h, ok := hurstRS(prices)
	if !ok {
		return NeutralHurst, ErrDegenerate
	}
	return h, nil
}

// RollingHurst applies Hurst to every trailing window of the given length.
// The first window-1 values (or all values when the series is shorter than
// the window) are 0.5.
func RollingHurst(prices []float64, window int) []float64 {
	out := make([]float64, len(prices))
	for i := range out {
		out[i] = NeutralHurst
	}
	if window < MinHurstBars || len(prices) < window {
		return out
	}
	for i := window - 1; i < len(prices); i++ {
		if h, ok := hurstRS(prices[i-window+1 : i+1]); ok {
			out[i] = h
		}
	}
	return out
}

// hurstRS is the allocation-free R/S core. It reports false when fewer than
// two sub-series sizes produce a usable regression point.
func hurstRS(prices []float64) (float64, bool) {
	n := len(prices)
	if n < MinHurstBars {
		return NeutralHurst, false
	}

	maxExp := int(math.Floor(math.Log2(float64(n))))
	if maxExp <= minSizeExp {
		return NeutralHurst, false
	}

	numSizes := maxExp - minSizeExp + 1
	if numSizes > maxSizes {
		numSizes = maxSizes
	}

	var logSizes, logRS [maxSizes]float64

	for i := 0; i < numSizes; i++ {
		size := 1 << (i + minSizeExp)
		logSizes[i] = math.Log(float64(size))

		count := n / size
		rsSum := 0.0
		valid := 0

		for j := 0; j < count; j++ {
			sub := prices[j*size : (j+1)*size]
			if rs, ok := rescaledRange(sub); ok {
				rsSum += rs
				valid++
			}
		}

		if valid > 0 {
			logRS[i] = math.Log(rsSum / float64(valid))
		}
	}

	// OLS of log(R/S) on log(size) over points with log(R/S) > 0.
	count := 0
	sumX, sumY := 0.0, 0.0
	for i := 0; i < numSizes; i++ {
		if logRS[i] > 0 {
			sumX += logSizes[i]
			sumY += logRS[i]
			count++
		}
	}
	if count < 2 {
		return NeutralHurst, false
	}

	meanX := sumX / float64(count)
	meanY := sumY / float64(count)
	num, den := 0.0, 0.0
	for i := 0; i < numSizes; i++ {
		if logRS[i] > 0 {
			dx := logSizes[i] - meanX
			num += dx * (logRS[i] - meanY)
			den += dx * dx
		}
	}
	if den == 0 {
		return NeutralHurst, false
	}

	h := num / den
	if math.IsNaN(h) {
		return NeutralHurst, false
	}
	return math.Max(0, math.Min(1, h)), true
}

// rescaledRange returns (max(cumdev) - min(cumdev)) / std for one sub-series,
// using the population standard deviation. Zero-variance sub-series are skipped.
func rescaledRange(sub []float64) (float64, bool) {
	size := float64(len(sub))

	mean := 0.0
	for _, v := range sub {
		mean += v
	}
	mean /= size

	sq := 0.0
	cum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range sub {
		d := v - mean
		sq += d * d
		cum += d
		if cum < lo {
			lo = cum
		}
		if cum > hi {
			hi = cum
		}
	}

	std := math.Sqrt(sq / size)
	if std == 0 || math.IsNaN(std) {
		return 0, false
	}
	return (hi - lo) / std, true
}
