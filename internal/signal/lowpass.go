package signal

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

const (
	lowpassOrder     = 3
	minLowpassCutoff = 0.01
	maxLowpassCutoff = 0.99
)

// Lowpass smooths prices with a third-order Butterworth low-pass filter applied
// forward and backward, so the output has no phase lag. cutoff is a fraction of
// the Nyquist frequency and is clamped to [0.01, 0.99].
//
// Series too short to pad are returned as an unfiltered copy.
func Lowpass(prices []float64, cutoff float64) []float64 {
	cutoff = math.Max(minLowpassCutoff, math.Min(cutoff, maxLowpassCutoff))
	b, a := butterworth(lowpassOrder, cutoff)
	return filtfilt(b, a, prices)
}

// butterworth designs a digital low-pass filter from the analog prototype
// through the bilinear transform (sample rate 2, cutoff pre-warped).
// Returns numerator b and denominator a with a[0] == 1.
func butterworth(order int, wn float64) (b, a []float64) {
	const fs2 = 4.0 // 2 * fs with fs = 2 (normalised to Nyquist)
	warped := fs2 * math.Tan(math.Pi*wn/2)

	// Analog prototype poles on the left half of the unit circle.
	poles := make([]complex128, order)
	for i := 0; i < order; i++ {
		m := float64(-order + 1 + 2*i)
		poles[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	gain := math.Pow(warped, float64(order))
	den := complex(1, 0)
	zPoles := make([]complex128, order)
	for i, p := range poles {
		p *= complex(warped, 0)
		zPoles[i] = (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
		den *= complex(fs2, 0) - p
	}
	gain = real(complex(gain, 0) / den)

	zeros := make([]complex128, order)
	for i := range zeros {
		zeros[i] = -1
	}

	bc := polyFromRoots(zeros)
	ac := polyFromRoots(zPoles)

	b = make([]float64, order+1)
	a = make([]float64, order+1)
	for i := range b {
		b[i] = gain * real(bc[i])
		a[i] = real(ac[i])
	}
	return b, a
}

// polyFromRoots expands prod(x - r) into coefficients, highest power first.
func polyFromRoots(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}

// filtfilt runs the filter forward then backward over an odd extension of x.
func filtfilt(b, a, x []float64) []float64 {
	out := make([]float64, len(x))
	padlen := 3 * max(len(a), len(b))
	if len(x) <= padlen {
		copy(out, x)
		return out
	}

	ext := oddExtend(x, padlen)
	zi := lfilterZi(b, a)

	state := make([]float64, len(zi))
	for i := range zi {
		state[i] = zi[i] * ext[0]
	}
	y := lfilter(b, a, ext, state)

	reverse(y)
	for i := range zi {
		state[i] = zi[i] * y[0]
	}
	y = lfilter(b, a, y, state)
	reverse(y)

	copy(out, y[padlen:len(y)-padlen])
	return out
}

// oddExtend reflects x about its end points by padlen samples on each side.
func oddExtend(x []float64, padlen int) []float64 {
	n := len(x)
	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}
	return ext
}

// lfilterZi returns the steady-state initial conditions for a unit step,
// solving (I - A) zi = B for the transposed companion matrix A.
func lfilterZi(b, a []float64) []float64 {
	k := len(a) - 1
	m := mat.NewDense(k, k, nil)
	rhs := make([]float64, k)
	for i := 0; i < k; i++ {
		m.Set(i, i, 1)
		m.Set(i, 0, m.At(i, 0)+a[i+1])
		if i+1 < k {
			m.Set(i, i+1, -1)
		}
		rhs[i] = b[i+1] - a[i+1]*b[0]
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, mat.NewVecDense(k, rhs)); err != nil {
		return make([]float64, k)
	}
	out := make([]float64, k)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out
}

// lfilter is a direct form II transposed IIR filter. state is updated in place.
func lfilter(b, a, x, state []float64) []float64 {
	k := len(state)
	y := make([]float64, len(x))
	for n, xn := range x {
		yn := b[0]*xn + state[0]
		for j := 1; j < k; j++ {
			state[j-1] = b[j]*xn + state[j] - a[j]*yn
		}
		state[k-1] = b[k]*xn - a[k]*yn
		y[n] = yn
	}
	return y
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
