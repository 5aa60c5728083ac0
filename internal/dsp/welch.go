package dsp

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// WelchConfig describes a Welch estimate in samples.
type WelchConfig struct {
	Window  []float64
	Overlap int
	NFFT    int
}

// WelchSeconds builds the Hann-windowed configuration used throughout the
// analysis from durations in seconds.
func WelchSeconds(fs, window, overlap, nfft float64) WelchConfig {
	w := int(window * fs)
	return WelchConfig{
		Window:  Hann(w),
		Overlap: int(overlap * fs),
		NFFT:    int(nfft * fs),
	}
}

// Welch estimates the one-sided power spectral density of x (density
// scaling). Segments are not detrended; callers remove the signal mean
// once beforehand. Signals shorter than the window use a single Hann-windowed segment spanning the
// whole signal.
func Welch(x []float64, fs float64, cfg WelchConfig) (freqs, psd []float64, err error) {
	if fs <= 0 {
		return nil, nil, fmt.Errorf("welch: sampling rate must be positive")
	}
	if len(x) < 2 {
		return nil, nil, fmt.Errorf("welch: need at least two samples, got %d", len(x))
	}
	win := cfg.Window
	overlap := cfg.Overlap
	nfft := cfg.NFFT
	if len(win) == 0 {
		return nil, nil, fmt.Errorf("welch: empty window")
	}
	if len(win) > len(x) {
		win = Hann(len(x))
		overlap = 0
	}
	if overlap >= len(win) {
		return nil, nil, fmt.Errorf("welch: overlap %d must be shorter than the window %d", overlap, len(win))
	}
	if nfft < len(win) {
		nfft = len(win)
	}

	step := len(win) - overlap
	segments := (len(x) - overlap) / step
	if segments < 1 {
		segments = 1
	}

	scale := 1 / (fs * floats.Dot(win, win))
	bins := nfft/2 + 1
	psd = make([]float64, bins)
	fft := fourier.NewFFT(nfft)
	buf := make([]float64, nfft)
	coeffs := make([]complex128, bins)

	for s := range segments {
		seg := x[s*step : s*step+len(win)]
		for i := range buf {
			buf[i] = 0
		}
		for i, v := range seg {
			buf[i] = v * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			p := cmplx.Abs(c)
			p *= p * scale
			if k != 0 && !(nfft%2 == 0 && k == bins-1) {
				p *= 2
			}
			psd[k] += p
		}
	}
	for k := range psd {
		psd[k] /= float64(segments)
	}

	freqs = make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nfft)
	}
	return freqs, psd, nil
}
