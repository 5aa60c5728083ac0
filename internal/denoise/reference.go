package denoise

import (
	"fmt"
	"math"

	"nica/internal/config"
	"nica/internal/dsp"
	"nica/internal/services"
)

// Status texts for correction modes that lack their peripheral channel.
const (
	MissingRespiration = "No Respiration Data found! Artefact Correction is not possible!"
	MissingHeartRate   = "No Heart Rate Data found! Artefact Correction is not possible!"
)

// Reference is a physiological signal prepared for the transfer-function
// model: resampled to the analysis rate, band-limited around its dominant
// frequency, mean-free and exactly as long as the optical signal.
type Reference struct {
	Signal []float64
	// Peak is the dominant frequency found in the search band.
	Peak float64
	// Window is the pass band of the reference filter.
	Window [2]float64
}

// PrepareReference resamples ref from refFs to fs, locates its spectral peak
// inside band and applies a zero-phase FIR bandpass of ±band.HalfWide around
// it, clamped to the band. The result is zero-padded or truncated to n.
func PrepareReference(ref []float64, refFs, fs float64, n int, band config.Band, t config.Tuning) (Reference, error) {
	fail := func(kind error, op, msg string, err error) (Reference, error) {
		return Reference{}, services.Wrap(kind, "reference", op, msg, err)
	}
	up, down, err := dsp.RationalRatio(fs, refFs)
	if err != nil {
		return fail(services.ErrValidation, "resample", "invalid sampling rates", err)
	}
	x, err := dsp.ResamplePoly(ref, up, down)
	if err != nil {
		return fail(services.ErrNumerical, "resample", "resampling failed", err)
	}

	freqs, psd, err := dsp.Welch(dsp.RemoveMean(x), fs, dsp.WelchSeconds(fs, t.WelchWindowSeconds, t.WelchOverlapSeconds, t.WelchFFTSeconds))
	if err != nil {
		return fail(services.ErrNumerical, "spectrum", "reference spectrum failed", err)
	}
	first := -1
	var inBand []float64
	for i, f := range freqs {
		if f >= band.Lower && f <= band.Upper {
			if first < 0 {
				first = i
			}
			inBand = append(inBand, psd[i])
		}
	}
	if first < 0 {
		return fail(services.ErrConfiguration, "peak", fmt.Sprintf("no spectral bins between %g and %g Hz", band.Lower, band.Upper), nil)
	}
	peak := freqs[first+FindPeak(inBand)]

	centre := math.Round(peak*100) / 100
	lo := math.Max(centre-band.HalfWide, band.Lower)
	hi := math.Min(centre+band.HalfWide, band.Upper)
	nyq := fs / 2
	h, err := dsp.FirwinBandpass(t.ReferenceTaps, lo/nyq, hi/nyq)
	if err != nil {
		return fail(services.ErrConfiguration, "design", fmt.Sprintf("reference band %.2f-%.2f Hz", lo, hi), err)
	}
	y, err := dsp.FiltFilt(h, []float64{1}, x, -1)
	if err != nil {
		return fail(services.ErrNumerical, "filter", "reference filter failed", err)
	}

	if len(y) < n {
		y = append(y, make([]float64, n-len(y))...)
	}
	y = dsp.RemoveMean(y)[:n]
	return Reference{Signal: y, Peak: peak, Window: [2]float64{lo, hi}}, nil
}

// FindPeak returns the index of the strongest local extremum of p with a
// non-positive second difference. Without a candidate it falls back to 1.
func FindPeak(p []float64) int {
	if len(p) < 3 {
		return min(1, len(p)-1)
	}
	d1 := make([]float64, len(p)-1)
	for i := range d1 {
		d1[i] = p[i+1] - p[i]
	}
	d2 := make([]float64, len(d1)-1)
	for i := range d2 {
		d2[i] = d1[i+1] - d1[i]
	}

	var candidates []int
	for i := 1; i < len(d1)-1; i++ {
		turn := (d1[i-1] <= 0 && d1[i+1] >= 0) || (d1[i-1] >= 0 && d1[i+1] <= 0)
		if turn && d2[i] <= 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 1
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if p[c] >= p[best] {
			best = c
		}
	}
	return best
}
