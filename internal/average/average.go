// Package average builds trigger-locked trial averages of oxy- and
// deoxy-haemoglobin channels.
package average

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"nica/internal/config"
	"nica/internal/dsp"
	"nica/internal/epoch"
	"nica/internal/services"
)

// Options controls averaging.
type Options struct {
	Window epoch.Window
	// Steps is the number of step means per trial in the continuous average.
	Steps      int
	SmoothSpan int
	// Excluded channels are 1-based and zeroed in the averages.
	Excluded []int
	Failures []config.OptodeFailure
}

// Result holds the averaged responses. Matrices named after the head layout
// are [sample][channel]; per-trial data is [channel][trial][sample].
type Result struct {
	Oxy      [][]float64
	Deoxy    [][]float64
	OxyStd   [][]float64
	DeoxyStd [][]float64

	TrialsOxy   [][][]float64
	TrialsDeoxy [][][]float64

	// Continuous averages are [point][channel].
	ContinuousOxy   [][]float64
	ContinuousDeoxy [][]float64

	// Used lists the trial numbers that entered the averages.
	Used     []int
	Warnings []string
}

// Compute averages every channel over the complete epochs around triggers.
// Incomplete epochs are skipped with a warning.
func Compute(oxy, deoxy [][]float64, triggers []int, opts Options) (Result, error) {
	if len(oxy) != len(deoxy) {
		return Result{}, services.Wrap(services.ErrValidation, "average", "compute",
			fmt.Sprintf("channel counts differ: %d oxy, %d deoxy", len(oxy), len(deoxy)), nil)
	}
	if opts.Window.Pre > 0 || opts.Window.Post < 0 {
		return Result{}, services.Wrap(services.ErrConfiguration, "average", "compute",
			fmt.Sprintf("invalid window [%d, %d]", opts.Window.Pre, opts.Window.Post), nil)
	}

	oxyEpochs := epoch.Build(oxy, triggers, opts.Window)
	deoxyEpochs := epoch.Build(deoxy, triggers, opts.Window)

	var res Result
	var keepOxy, keepDeoxy []epoch.Epoch
	for k := range oxyEpochs {
		if !oxyEpochs[k].Complete || !deoxyEpochs[k].Complete {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Could not process Trigger Nr. %d", k))
			continue
		}
		res.Used = append(res.Used, k)
		keepOxy = append(keepOxy, oxyEpochs[k])
		keepDeoxy = append(keepDeoxy, deoxyEpochs[k])
	}
	if len(res.Used) == 0 {
		return Result{}, services.Wrap(services.ErrNumerical, "average", "compute", "no complete trial to average", nil)
	}

	channels := len(oxy)
	oxyMean, oxyErr := make([][]float64, channels), make([][]float64, channels)
	deoxyMean, deoxyErr := make([][]float64, channels), make([][]float64, channels)
	res.TrialsOxy = make([][][]float64, channels)
	res.TrialsDeoxy = make([][][]float64, channels)
	contOxy, contDeoxy := make([][]float64, channels), make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		oxyMean[ch], oxyErr[ch] = MeanStdErr(keepOxy, ch)
		deoxyMean[ch], deoxyErr[ch] = MeanStdErr(keepDeoxy, ch)
		res.TrialsOxy[ch] = Trials(keepOxy, ch)
		res.TrialsDeoxy[ch] = Trials(keepDeoxy, ch)
		contOxy[ch] = Continuous(res.TrialsOxy[ch], opts.Steps, opts.SmoothSpan)
		contDeoxy[ch] = Continuous(res.TrialsDeoxy[ch], opts.Steps, opts.SmoothSpan)
	}

	for _, f := range opts.Failures {
		for _, m := range [][][]float64{oxyMean, oxyErr, deoxyMean, deoxyErr} {
			Substitute(m, f)
		}
	}
	for _, excl := range opts.Excluded {
		if excl < 1 || excl > channels {
			continue
		}
		for _, m := range [][][]float64{oxyMean, oxyErr, deoxyMean, deoxyErr} {
			clear(m[excl-1])
		}
	}

	res.Oxy = Transpose(oxyMean)
	res.Deoxy = Transpose(deoxyMean)
	res.OxyStd = Transpose(oxyErr)
	res.DeoxyStd = Transpose(deoxyErr)
	res.ContinuousOxy = Transpose(contOxy)
	res.ContinuousDeoxy = Transpose(contDeoxy)
	return res, nil
}

// MeanStdErr returns the mean over epochs of one channel, re-referenced to
// its baseline interval, and the standard error of the mean (sample standard
// deviation over the square root of the trial count; zero for one trial).
func MeanStdErr(epochs []epoch.Epoch, ch int) ([]float64, []float64) {
	if len(epochs) == 0 {
		return nil, nil
	}
	w := epochs[0].Window
	n := w.Len()
	mean := make([]float64, n)
	stderr := make([]float64, n)
	column := make([]float64, len(epochs))
	for s := 0; s < n; s++ {
		for k, ep := range epochs {
			column[k] = ep.Samples[ch][s]
		}
		if len(column) < 2 {
			mean[s] = column[0]
			continue
		}
		m, sd := stat.MeanStdDev(column, nil)
		mean[s] = m
		stderr[s] = sd / math.Sqrt(float64(len(column)))
	}
	ref := stat.Mean(mean[:min(w.BaselineLen(), n)], nil)
	for s := range mean {
		mean[s] -= ref
	}
	return mean, stderr
}

// Trials returns every epoch of one channel minus its own baseline.
func Trials(epochs []epoch.Epoch, ch int) [][]float64 {
	out := make([][]float64, len(epochs))
	for k, ep := range epochs {
		row := make([]float64, len(ep.Samples[ch]))
		for s, v := range ep.Samples[ch] {
			row[s] = v - ep.Baseline[ch]
		}
		out[k] = row
	}
	return out
}

// Continuous reduces each trial to steps block means, concatenates them in
// trial order and smooths the result with a moving average of span points.
func Continuous(trials [][]float64, steps, span int) []float64 {
	if steps <= 0 || len(trials) == 0 {
		return nil
	}
	size := len(trials[0]) / steps
	if size == 0 {
		size, steps = 1, len(trials[0])
	}
	out := make([]float64, 0, steps*len(trials))
	for _, trial := range trials {
		for k := 0; k < steps; k++ {
			out = append(out, stat.Mean(trial[k*size:(k+1)*size], nil))
		}
	}
	if span > 1 {
		out = dsp.Smooth(out, span)
	}
	return out
}

// Substitute replaces the failed channel of a [channel][sample] matrix with
// the mean of its replacement channels. Out-of-range channels are ignored.
func Substitute(m [][]float64, f config.OptodeFailure) {
	if f.Channel < 1 || f.Channel > len(m) {
		return
	}
	var reps [][]float64
	for _, r := range f.Replacements {
		if r >= 1 && r <= len(m) {
			reps = append(reps, append([]float64(nil), m[r-1]...))
		}
	}
	if len(reps) == 0 {
		return
	}
	target := m[f.Channel-1]
	for s := range target {
		var sum float64
		for _, rep := range reps {
			sum += rep[s]
		}
		target[s] = sum / float64(len(reps))
	}
}

// Transpose swaps the axes of a rectangular matrix.
func Transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for i := range out {
		out[i] = make([]float64, len(m))
		for j := range m {
			out[i][j] = m[j][i]
		}
	}
	return out
}
