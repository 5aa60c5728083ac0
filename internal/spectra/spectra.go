// Package spectra summarizes concentration signals by their Welch power
// spectra, per channel and averaged over the usable channels.
package spectra

import (
	"fmt"
	"math"
	"slices"

	"nica/internal/dsp"
	"nica/internal/services"
)

// Summary holds the spectra of one processing state (raw or cleaned).
type Summary struct {
	Freqs []float64
	// Oxy and Deoxy are [included channel][frequency].
	Oxy   [][]float64
	Deoxy [][]float64
	// MeanOxy and MeanDeoxy average the included channels.
	MeanOxy   []float64
	MeanDeoxy []float64
	// Included lists the 1-based channels that entered the summary.
	Included []int
}

// Summarize estimates the spectrum of every channel that is not refused
// (1-based) and whose oxy and deoxy samples are all finite.
func Summarize(oxy, deoxy [][]float64, fs float64, refused []int, cfg dsp.WelchConfig) (Summary, error) {
	if len(oxy) != len(deoxy) {
		return Summary{}, services.Wrap(services.ErrValidation, "spectra", "summarize",
			fmt.Sprintf("channel counts differ: %d oxy, %d deoxy", len(oxy), len(deoxy)), nil)
	}
	var s Summary
	for ch := range oxy {
		if slices.Contains(refused, ch+1) || !finite(oxy[ch]) || !finite(deoxy[ch]) {
			continue
		}
		f, po, err := dsp.Welch(dsp.RemoveMean(oxy[ch]), fs, cfg)
		if err != nil {
			return Summary{}, services.Wrap(services.ErrNumerical, "spectra", fmt.Sprintf("channel %d", ch+1), "oxy spectrum failed", err)
		}
		_, pd, err := dsp.Welch(dsp.RemoveMean(deoxy[ch]), fs, cfg)
		if err != nil {
			return Summary{}, services.Wrap(services.ErrNumerical, "spectra", fmt.Sprintf("channel %d", ch+1), "deoxy spectrum failed", err)
		}
		s.Freqs = f
		s.Oxy = append(s.Oxy, po)
		s.Deoxy = append(s.Deoxy, pd)
		s.Included = append(s.Included, ch+1)
	}
	if len(s.Included) == 0 {
		return Summary{}, services.Wrap(services.ErrNumerical, "spectra", "summarize", "no usable channel", nil)
	}
	s.MeanOxy = meanRows(s.Oxy)
	s.MeanDeoxy = meanRows(s.Deoxy)
	return s, nil
}

// Band returns the indices of Freqs inside [lo, hi].
func (s Summary) Band(lo, hi float64) []int {
	var out []int
	for i, f := range s.Freqs {
		if f >= lo && f <= hi {
			out = append(out, i)
		}
	}
	return out
}

// BandPower integrates the channel-mean oxy and deoxy spectra over [lo, hi]
// with the rectangle rule.
func (s Summary) BandPower(lo, hi float64) (oxy, deoxy float64) {
	if len(s.Freqs) < 2 {
		return 0, 0
	}
	df := s.Freqs[1] - s.Freqs[0]
	for _, i := range s.Band(lo, hi) {
		oxy += s.MeanOxy[i]
		deoxy += s.MeanDeoxy[i]
	}
	return oxy * df, deoxy * df
}

func meanRows(rows [][]float64) []float64 {
	out := make([]float64, len(rows[0]))
	for _, row := range rows {
		for i, v := range row {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(rows))
	}
	return out
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
