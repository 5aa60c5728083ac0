// Package heartrate derives a continuous heart-rate signal from an ECG trace.
package heartrate

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"nica/internal/dsp"
	"nica/internal/services"
)

// Extractor detects R peaks with a moving-average threshold and converts the
// beat intervals into beats per minute, one value per ECG sample.
type Extractor struct {
	// WindowSeconds is the length of the moving average the threshold rides on.
	WindowSeconds float64
	// Percentages are the threshold lifts tried, in percent of the mean
	// moving average. The lift giving the steadiest plausible rhythm wins.
	Percentages []float64
	MinBPM      float64
	MaxBPM      float64
}

// New returns an Extractor with the default detector settings.
func New() *Extractor {
	return &Extractor{
		WindowSeconds: 0.75,
		Percentages:   []float64{5, 10, 15, 20, 25, 30, 40, 50, 60, 70, 80, 90, 100, 150, 200, 300},
		MinBPM:        40,
		MaxBPM:        180,
	}
}

// Extract returns the heart rate in bpm for every sample of ecg.
func (e *Extractor) Extract(ecg []float64, fs float64) ([]float64, error) {
	beats, err := e.Beats(ecg, fs)
	if err != nil {
		return nil, err
	}
	beats = DeleteFalseBeats(beats)
	if len(beats) < 2 {
		return nil, numerical(fmt.Sprintf("%d usable heart beats after correction", len(beats)))
	}
	return Interpolate(beats, len(ecg), fs), nil
}

// Beats returns the sample indices of the detected R peaks in ascending order.
func (e *Extractor) Beats(ecg []float64, fs float64) ([]int, error) {
	if fs <= 0 {
		return nil, services.Wrap(services.ErrValidation, "heart rate", "detect", fmt.Sprintf("invalid sampling rate %g", fs), nil)
	}
	if len(ecg) < 2 {
		return nil, numerical("ECG signal too short")
	}
	x := scale(normalizePolarity(ecg))
	roll := rollingMean(x, max(1, int(math.Round(e.WindowSeconds*fs))))
	base := stat.Mean(roll, nil)

	var (
		best      []int
		bestSD    = math.Inf(1)
		fallback  []int
		plausible bool
	)
	for _, perc := range e.Percentages {
		peaks := detect(x, roll, base*perc/100)
		if len(peaks) > len(fallback) {
			fallback = peaks
		}
		if len(peaks) < 2 {
			continue
		}
		rr := intervals(peaks)
		bpm := 60 * fs / stat.Mean(rr, nil)
		if bpm < e.MinBPM || bpm > e.MaxBPM {
			continue
		}
		sd := stat.StdDev(rr, nil)
		if len(rr) < 2 {
			sd = 0
		}
		if !plausible || sd < bestSD {
			best, bestSD, plausible = peaks, sd, true
		}
	}
	if !plausible {
		best = fallback
	}
	if len(best) < 2 {
		return nil, numerical(fmt.Sprintf("%d heart beats detected", len(best)))
	}
	return best, nil
}

// DeleteFalseBeats removes beats that open an interval shorter than half the
// mean interval. Of the two candidate beats, the one next to the longer
// neighbouring interval goes; a missing neighbour counts as zero.
func DeleteFalseBeats(beats []int) []int {
	if len(beats) < 3 {
		return beats
	}
	rate := intervals(beats)
	limit := stat.Mean(rate, nil) / 2
	drop := map[int]bool{}
	for i, r := range rate {
		if r >= limit {
			continue
		}
		var prev, next float64
		if i > 0 {
			prev = rate[i-1]
		}
		if i+1 < len(rate) {
			next = rate[i+1]
		}
		if prev > next {
			drop[i+1] = true
		} else {
			drop[i] = true
		}
	}
	out := make([]int, 0, len(beats)-len(drop))
	for i, b := range beats {
		if !drop[i] {
			out = append(out, b)
		}
	}
	return out
}

// Interpolate converts beat positions into a bpm trace of n samples. Each
// beat-to-beat rate is clamped to its predecessor when it more than doubles or
// halves; the trace is linear between beats and constant before the first
// and after the last beat.
func Interpolate(beats []int, n int, fs float64) []float64 {
	bpm := make([]float64, len(beats))
	for i := 0; i < len(beats)-1; i++ {
		bpm[i] = 60 / (float64(beats[i+1]-beats[i]) / fs)
	}
	for i := 1; i < len(beats)-1; i++ {
		if bpm[i] > 2*bpm[i-1] || bpm[i] < bpm[i-1]/2 {
			bpm[i] = bpm[i-1]
		}
	}
	bpm[len(bpm)-1] = bpm[len(bpm)-2]

	xp := make([]float64, len(beats))
	for i, b := range beats {
		xp[i] = float64(b)
	}
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i)
	}
	// Interp holds the end values outside [first beat, last beat].
	return dsp.Interp(axis, xp, bpm)
}

func numerical(msg string) error {
	return services.Wrap(services.ErrNumerical, "heart rate", "detect", msg, nil)
}

// normalizePolarity flips the trace when its deepest excursion from the
// median is negative, so R peaks point upwards.
func normalizePolarity(x []float64) []float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	out := slices.Clone(x)
	if math.Abs(floats.Min(x)-median) > math.Abs(floats.Max(x)-median) {
		floats.Scale(-1, out)
	}
	return out
}

// scale maps the trace onto [0, 1024].
func scale(x []float64) []float64 {
	lo, hi := floats.Min(x), floats.Max(x)
	out := make([]float64, len(x))
	if hi == lo {
		return out
	}
	for i, v := range x {
		out[i] = (v - lo) / (hi - lo) * 1024
	}
	return out
}

// rollingMean is a centred moving average; the edges use the nearest full
// window value.
func rollingMean(x []float64, w int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if w >= n {
		m := stat.Mean(x, nil)
		for i := range out {
			out[i] = m
		}
		return out
	}
	var acc float64
	for i := 0; i < w; i++ {
		acc += x[i]
	}
	half := w / 2
	for i := 0; i+w <= n; i++ {
		if i > 0 {
			acc += x[i+w-1] - x[i-1]
		}
		out[i+half] = acc / float64(w)
	}
	for i := 0; i < half; i++ {
		out[i] = out[half]
	}
	last := n - w + half
	for i := last + 1; i < n; i++ {
		out[i] = out[last]
	}
	return out
}

// detect returns the argmax of every contiguous region above the lifted
// moving average.
func detect(x, roll []float64, lift float64) []int {
	var peaks []int
	start := -1
	for i := 0; i <= len(x); i++ {
		above := i < len(x) && x[i] > roll[i]+lift
		switch {
		case above && start < 0:
			start = i
		case !above && start >= 0:
			peaks = append(peaks, start+floats.MaxIdx(x[start:i]))
			start = -1
		}
	}
	return peaks
}

func intervals(beats []int) []float64 {
	out := make([]float64, len(beats)-1)
	for i := range out {
		out[i] = float64(beats[i+1] - beats[i])
	}
	return out
}
