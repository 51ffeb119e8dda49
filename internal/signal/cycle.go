package signal

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MinCycleBars is the minimum series length for spectral cycle detection.
const MinCycleBars = 256

// CycleOptions configures DetectCycle.
type CycleOptions struct {
	MinPeriod      int     // shortest admissible period in bars
	MaxPeriod      int     // longest admissible period in bars
	ProjectionBars int     // bars projected past the end of the series
	LowpassCutoff  float64 // fraction of Nyquist, used when Filtered is set
	Filtered       bool
}

// DefaultCycleOptions returns the stock detector settings.
func DefaultCycleOptions() CycleOptions {
	return CycleOptions{
		MinPeriod:      10,
		MaxPeriod:      200,
		ProjectionBars: 20,
		LowpassCutoff:  0.1,
		Filtered:       true,
	}
}

// CycleResult describes the dominant cycle of a price series.
type CycleResult struct {
	DominantPeriod int     // bars; 0 when no cycle was found in band
	CurrentPhase   float64 // radians in [0, 2π) at the last bar
	Amplitude      float64
	PhaseAngle     float64 // phase of the dominant Fourier bin

	// Phase is the instantaneous cycle phase per bar, in [0, 2π).
	Phase []float64
	// Wave is the reconstructed sine wave over the input bars.
	Wave []float64
	// Projection continues Wave for ProjectionBars bars past the end.
	Projection []float64
}

// Degenerate reports whether no cycle was found inside the period band.
func (r *CycleResult) Degenerate() bool {
	return r == nil || r.DominantPeriod == 0
}

// DetectCycle finds the dominant cycle of prices inside
// [opts.MinPeriod, opts.MaxPeriod] using a real FFT of the detrended
// (and optionally low-pass filtered) series.
//
// Series shorter than MinCycleBars return nil and ErrInsufficientData.
// A series with no spectral energy inside the band yields a degenerate
// result: zero period, amplitude and phase with zero-filled arrays.
func DetectCycle(prices []float64, opts CycleOptions) (*CycleResult, error) {
	n := len(prices)
	if n < MinCycleBars {
		return nil, ErrInsufficientData
	}
	if opts.ProjectionBars < 0 {
		opts.ProjectionBars = 0
	}

	data := prices
	if opts.Filtered {
		data = Lowpass(prices, opts.LowpassCutoff)
	}
	detrended := detrend(data)

	if flat(detrended, prices) {
		return degenerateCycle(n, opts.ProjectionBars), nil
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, detrended)

	minFreq := 1.0 / float64(opts.MaxPeriod)
	maxFreq := 1.0 / float64(opts.MinPeriod)

	best := -1
	bestPower := 0.0
	for k, c := range coeffs {
		f := fft.Freq(k)
		if f <= minFreq || f > maxFreq {
			continue
		}
		power := real(c)*real(c) + imag(c)*imag(c)
		if power > bestPower {
			best, bestPower = k, power
		}
	}
	if best < 0 {
		return degenerateCycle(n, opts.ProjectionBars), nil
	}

	freq := fft.Freq(best)
	amp := 2 * cmplx.Abs(coeffs[best]) / float64(n)
	angle := cmplx.Phase(coeffs[best])
	omega := 2 * math.Pi * freq

	res := &CycleResult{
		DominantPeriod: int(math.RoundToEven(1 / freq)),
		Amplitude:      amp,
		PhaseAngle:     angle,
		CurrentPhase:   wrapPhase(omega*float64(n-1) + angle),
		Phase:          make([]float64, n),
		Wave:           make([]float64, n),
		Projection:     make([]float64, opts.ProjectionBars),
	}
	for i := 0; i < n; i++ {
		theta := omega*float64(i) + angle
		res.Phase[i] = wrapPhase(theta)
		res.Wave[i] = amp * math.Sin(theta)
	}
	for i := range res.Projection {
		res.Projection[i] = amp * math.Sin(omega*float64(n+i)+angle)
	}
	return res, nil
}

func degenerateCycle(n, projection int) *CycleResult {
	return &CycleResult{
		Phase:      make([]float64, n),
		Wave:       make([]float64, n),
		Projection: make([]float64, projection),
	}
}

// detrend subtracts the straight line through the first and last samples.
func detrend(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	slope := 0.0
	if n > 1 {
		slope = (x[n-1] - x[0]) / float64(n-1)
	}
	for i, v := range x {
		out[i] = v - (x[0] + slope*float64(i))
	}
	return out
}

// flat reports whether the detrended series is numerically zero relative
// to the price scale. Filtering a constant series leaves rounding residue
// that must not be mistaken for a cycle.
func flat(detrended, prices []float64) bool {
	scale := 1.0
	for _, p := range prices {
		scale = math.Max(scale, math.Abs(p))
	}
	for _, d := range detrended {
		if math.Abs(d) > 1e-9*scale {
			return false
		}
	}
	return true
}

// wrapPhase maps an angle into [0, 2π).
func wrapPhase(theta float64) float64 {
	const twoPi = 2 * math.Pi
	p := math.Mod(theta, twoPi)
	if p < 0 {
		p += twoPi
	}
	if p >= twoPi {
		p = 0
	}
	return p
}
