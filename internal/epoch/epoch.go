// Package epoch cuts trigger-locked windows out of continuous channels.
package epoch

import (
	"fmt"
	"math"
	"sort"

	"nica/internal/services"
)

// Unlocated marks a trigger whose time could not be mapped onto the sample
// axis. Its epoch is always incomplete.
const Unlocated = math.MinInt32

// Window is the inclusive sample span [Pre, Post] around a trigger. Pre is
// zero or negative.
type Window struct {
	Pre  int
	Post int
}

// WindowFor converts the pre-task, task and post-task lengths in seconds into
// a window at sampling rate fs.
func WindowFor(fs, preTask, task, postTask float64) Window {
	return Window{
		Pre:  -int(math.Round(preTask * fs)),
		Post: int(math.Round((task + postTask) * fs)),
	}
}

// Len is the number of samples in the window.
func (w Window) Len() int {
	return w.Post - w.Pre + 1
}

// BaselineLen is the number of samples from the window start up to and
// including the trigger.
func (w Window) BaselineLen() int {
	return -w.Pre + 1
}

// Epoch is one trial cut from every channel.
type Epoch struct {
	Trial   int
	Trigger int
	Window  Window
	// Samples is [channel][window]; samples outside the recording are NaN.
	Samples [][]float64
	// Baseline is the per-channel mean of the first BaselineLen samples.
	Baseline []float64
	Complete bool
}

// Locate returns the index of the axis sample nearest to t. A time more than
// one sample period before the first or after the last sample cannot be
// located.
func Locate(axis []float64, t, fs float64) (int, error) {
	if len(axis) == 0 {
		return 0, services.Wrap(services.ErrValidation, "epoch", "locate", "empty time axis", nil)
	}
	period := 1 / fs
	if t < axis[0]-period || t > axis[len(axis)-1]+period || math.IsNaN(t) {
		return 0, services.Wrap(services.ErrValidation, "epoch", "locate",
			fmt.Sprintf("trigger at %.3fs outside recording [%.3fs, %.3fs]", t, axis[0], axis[len(axis)-1]), nil)
	}
	i := sort.SearchFloat64s(axis, t)
	switch {
	case i == 0:
		return 0, nil
	case i == len(axis):
		return len(axis) - 1, nil
	case t-axis[i-1] <= axis[i]-t:
		return i - 1, nil
	default:
		return i, nil
	}
}

// LocateAll maps trigger times to sample indices, shifting each by offset
// samples. Triggers that cannot be located become Unlocated and are reported
// in the returned warnings.
func LocateAll(axis, times []float64, fs float64, offset int) ([]int, []string) {
	out := make([]int, len(times))
	var warnings []string
	for k, t := range times {
		idx, err := Locate(axis, t, fs)
		if err != nil {
			out[k] = Unlocated
			warnings = append(warnings, fmt.Sprintf("Could not process Trigger Nr. %d: %v", k, err))
			continue
		}
		out[k] = idx + offset
	}
	return out, warnings
}

// MarkerOffset is the sample shift between the recording start and the first
// marker, round((recordingStart - firstMarker) * fs).
func MarkerOffset(recordingStart, firstMarker, fs float64) int {
	return int(math.Round((recordingStart - firstMarker) * fs))
}

// Extract returns a [channel][window][trial] matrix of the samples around
// each trigger, NaN where the window runs outside the channel.
func Extract(channels [][]float64, triggers []int, pre, post int) [][][]float64 {
	w := Window{Pre: pre, Post: post}
	out := make([][][]float64, len(channels))
	for ch, data := range channels {
		out[ch] = make([][]float64, w.Len())
		for s := range out[ch] {
			row := make([]float64, len(triggers))
			for k, trig := range triggers {
				row[k] = sample(data, trig, pre+s)
			}
			out[ch][s] = row
		}
	}
	return out
}

// Build cuts one Epoch per trigger from the Extract matrix.
func Build(channels [][]float64, triggers []int, w Window) []Epoch {
	cube := Extract(channels, triggers, w.Pre, w.Post)
	out := make([]Epoch, len(triggers))
	for k, trig := range triggers {
		ep := Epoch{
			Trial:    k,
			Trigger:  trig,
			Window:   w,
			Samples:  make([][]float64, len(channels)),
			Baseline: make([]float64, len(channels)),
			Complete: trig != Unlocated && len(channels) > 0,
		}
		for ch, data := range channels {
			row := make([]float64, w.Len())
			for s := range row {
				row[s] = cube[ch][s][k]
			}
			ep.Samples[ch] = row
			if trig == Unlocated || trig+w.Pre < 0 || trig+w.Post >= len(data) {
				ep.Complete = false
			}
			ep.Baseline[ch] = mean(row[:min(w.BaselineLen(), len(row))])
		}
		out[k] = ep
	}
	return out
}

func sample(data []float64, trig, shift int) float64 {
	if trig == Unlocated {
		return math.NaN()
	}
	i := trig + shift
	if i < 0 || i >= len(data) {
		return math.NaN()
	}
	return data[i]
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}
