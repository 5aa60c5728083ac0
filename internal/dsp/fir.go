package dsp

import (
	"fmt"
	"math"
)

// Window functions are symmetric (filter-design) windows of length m.

// Hann returns a symmetric Hann window.
func Hann(m int) []float64 {
	return cosineWindow(m, 0.5, 0.5)
}

// Hamming returns a symmetric Hamming window.
func Hamming(m int) []float64 {
	return cosineWindow(m, 0.54, 0.46)
}

func cosineWindow(m int, a0, a1 float64) []float64 {
	if m <= 0 {
		return nil
	}
	w := make([]float64, m)
	if m == 1 {
		w[0] = 1
		return w
	}
	for n := range m {
		w[n] = a0 - a1*math.Cos(2*math.Pi*float64(n)/float64(m-1))
	}
	return w
}

// Kaiser returns a symmetric Kaiser window with shape parameter beta.
func Kaiser(m int, beta float64) []float64 {
	if m <= 0 {
		return nil
	}
	w := make([]float64, m)
	if m == 1 {
		w[0] = 1
		return w
	}
	denom := besselI0(beta)
	for n := range m {
		r := 2*float64(n)/float64(m-1) - 1
		w[n] = besselI0(beta*math.Sqrt(math.Max(0, 1-r*r))) / denom
	}
	return w
}

// besselI0 evaluates the modified Bessel function of the first kind, order 0,
// by its power series.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 500; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// FirwinLowpass designs a linear-phase lowpass with cutoff normalized to the
// Nyquist rate, tapered by window and scaled to unit gain at DC.
func FirwinLowpass(numtaps int, cutoff float64, window []float64) ([]float64, error) {
	if numtaps < 1 || len(window) != numtaps {
		return nil, fmt.Errorf("firwin: window length %d does not match %d taps", len(window), numtaps)
	}
	if cutoff <= 0 || cutoff >= 1 {
		return nil, fmt.Errorf("firwin: cutoff %g outside (0, 1)", cutoff)
	}
	alpha := float64(numtaps-1) / 2
	h := make([]float64, numtaps)
	var sum float64
	for n := range numtaps {
		m := float64(n) - alpha
		h[n] = cutoff * sinc(cutoff*m) * window[n]
		sum += h[n]
	}
	for n := range h {
		h[n] /= sum
	}
	return h, nil
}

// FirwinBandpass designs a Hamming-windowed linear-phase bandpass with band
// edges normalized to the Nyquist rate, scaled to unit gain at the band
// centre.
func FirwinBandpass(numtaps int, low, high float64) ([]float64, error) {
	if numtaps < 3 || numtaps%2 == 0 {
		return nil, fmt.Errorf("firwin: bandpass needs an odd number of taps, got %d", numtaps)
	}
	if low <= 0 || high >= 1 || low >= high {
		return nil, fmt.Errorf("firwin: band [%g, %g] outside (0, 1)", low, high)
	}
	window := Hamming(numtaps)
	alpha := float64(numtaps-1) / 2
	h := make([]float64, numtaps)
	for n := range numtaps {
		m := float64(n) - alpha
		h[n] = (high*sinc(high*m) - low*sinc(low*m)) * window[n]
	}
	centre := (low + high) / 2
	var s float64
	for n := range numtaps {
		s += h[n] * math.Cos(math.Pi*(float64(n)-alpha)*centre)
	}
	for n := range h {
		h[n] /= s
	}
	return h, nil
}
