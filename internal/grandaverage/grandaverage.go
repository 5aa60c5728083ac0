// Package grandaverage aggregates per-run result bundles into a group
// average and the per-subject region-of-interest report.
package grandaverage

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"nica/internal/bundle"
	"nica/internal/services"
)

// DirName is the directory below the analysis root that holds every
// grand-average batch, one subdirectory per condition.
const DirName = "Grand Average"

// Windows is the number of report time windows.
const Windows = 5

// Options configures the report.
type Options struct {
	PreTask  float64
	Task     float64
	PostTask float64
	// ROIs are lists of 1-based channels. Empty means one region with
	// every channel.
	ROIs     [][]int
	Excluded []int
	Marker   int
}

// Report is the per-subject region summary. Rows follow the bundle order;
// columns are region-major, window-minor.
type Report struct {
	Headers []string
	Oxy     [][]float64
	Deoxy   [][]float64
}

// Average computes the per-channel mean of every averaged matrix across
// bundles and the mean sampling rate. Raw concentration traces are not
// aggregated because their lengths differ between runs.
func Average(bundles []*bundle.Bundle) (*bundle.Bundle, error) {
	if len(bundles) < 2 {
		return nil, fmt.Errorf("%w: grand average needs at least 2 bundles, got %d", services.ErrValidation, len(bundles))
	}
	out := &bundle.Bundle{}
	rates := make([]float64, len(bundles))
	for i, b := range bundles {
		rates[i] = b.SamplingRate
	}
	out.SamplingRate = floats.Sum(rates) / float64(len(rates))

	pick := []struct {
		dst  *bundle.Matrix
		get  func(*bundle.Bundle) bundle.Matrix
		name string
	}{
		{&out.HeadOxy, func(b *bundle.Bundle) bundle.Matrix { return b.HeadOxy }, "head_oxy"},
		{&out.HeadDeoxy, func(b *bundle.Bundle) bundle.Matrix { return b.HeadDeoxy }, "head_deoxy"},
		{&out.HeadOxyStd, func(b *bundle.Bundle) bundle.Matrix { return b.HeadOxyStd }, "head_oxy_std"},
		{&out.HeadDeoxyStd, func(b *bundle.Bundle) bundle.Matrix { return b.HeadDeoxyStd }, "head_deoxy_std"},
		{&out.HeadOxyCon, func(b *bundle.Bundle) bundle.Matrix { return b.HeadOxyCon }, "head_oxy_con"},
		{&out.HeadDeoxyCon, func(b *bundle.Bundle) bundle.Matrix { return b.HeadDeoxyCon }, "head_deoxy_con"},
	}
	for _, p := range pick {
		ms := make([]bundle.Matrix, len(bundles))
		for i, b := range bundles {
			ms[i] = p.get(b)
		}
		m, err := meanMatrix(ms)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", services.ErrValidation, p.name, err)
		}
		*p.dst = m
	}
	return out, nil
}

func meanMatrix(ms []bundle.Matrix) (bundle.Matrix, error) {
	rows, cols := len(ms[0]), ms[0].Channels()
	for i, m := range ms[1:] {
		if len(m) != rows || m.Channels() != cols {
			return nil, fmt.Errorf("bundle %d is %dx%d, bundle 1 is %dx%d", i+2, len(m), m.Channels(), rows, cols)
		}
	}
	out := make(bundle.Matrix, rows)
	for r := range out {
		out[r] = make([]float64, cols)
		for _, m := range ms {
			floats.Add(out[r], m[r])
		}
		floats.Scale(1/float64(len(ms)), out[r])
	}
	return out, nil
}

// Bounds returns the report windows in seconds: the pre-task interval and
// the task plus post-task span cut into quarters.
func Bounds(pre, task, post float64) [Windows][2]float64 {
	lo := -math.Trunc(pre)
	hi := math.Trunc(task) + math.Trunc(post)
	s := math.RoundToEven(hi / 4)
	return [Windows][2]float64{{lo, 0}, {0, s}, {s, 2 * s}, {2 * s, 3 * s}, {3 * s, hi}}
}

// Summarize builds the region report of every bundle. fs is the common
// sampling rate of the time axis.
func Summarize(bundles []*bundle.Bundle, fs float64, opts Options) (Report, error) {
	if len(bundles) == 0 {
		return Report{}, errors.New("no bundles")
	}
	channels := bundles[0].HeadOxy.Channels()
	rois := opts.ROIs
	if len(rois) == 0 {
		all := make([]int, channels)
		for i := range all {
			all[i] = i + 1
		}
		rois = [][]int{all}
	}
	for r, roi := range rois {
		if len(roi) == 0 {
			return Report{}, fmt.Errorf("%w: region %d has no channels", services.ErrConfiguration, r+1)
		}
		for _, ch := range roi {
			if ch < 1 || ch > channels {
				return Report{}, fmt.Errorf("%w: region %d: channel %d outside 1..%d", services.ErrConfiguration, r+1, ch, channels)
			}
		}
	}
	bounds := Bounds(opts.PreTask, opts.Task, opts.PostTask)

	rep := Report{Headers: headers(len(rois), opts.Marker)}
	for subject, b := range bundles {
		if b.HeadOxy.Channels() != channels {
			return Report{}, fmt.Errorf("%w: bundle %d has %d channels, expected %d", services.ErrValidation, subject+1, b.HeadOxy.Channels(), channels)
		}
		t := timeAxis(bounds[0][0], bounds[Windows-1][1], fs, len(b.HeadOxy))
		oxyWin := make([][]float64, Windows)
		deoxyWin := make([][]float64, Windows)
		for k, w := range bounds {
			idx, err := windowIndices(t, w[0], w[1])
			if err != nil {
				return Report{}, fmt.Errorf("%w: bundle %d window %d: %v", services.ErrNumerical, subject+1, k+1, err)
			}
			oxyWin[k] = windowMeans(b.HeadOxy, idx, opts.Excluded)
			deoxyWin[k] = windowMeans(b.HeadDeoxy, idx, opts.Excluded)
		}
		rep.Oxy = append(rep.Oxy, regionRow(rois, oxyWin))
		rep.Deoxy = append(rep.Deoxy, regionRow(rois, deoxyWin))
	}
	return rep, nil
}

func headers(rois, marker int) []string {
	out := make([]string, 0, rois*Windows)
	for r := 1; r <= rois; r++ {
		for k := 1; k <= Windows; k++ {
			out = append(out, fmt.Sprintf("ROI%d_C%d_t%d", r, marker, k))
		}
	}
	return out
}

// timeAxis is start, start+1/fs, ... strictly below stop, truncated to n.
func timeAxis(start, stop, fs float64, n int) []float64 {
	var t []float64
	for i := 0; i < n; i++ {
		v := start + float64(i)/fs
		if v >= stop {
			break
		}
		t = append(t, v)
	}
	return t
}

// windowIndices selects lo < t < hi as one contiguous index range.
func windowIndices(t []float64, lo, hi float64) ([]int, error) {
	first, last := -1, -1
	for i, v := range t {
		if v > lo && first < 0 {
			first = i
		}
		if v < hi {
			last = i
		}
	}
	if first < 0 || last < first {
		return nil, fmt.Errorf("no samples in (%g, %g)", lo, hi)
	}
	idx := make([]int, 0, last-first+1)
	for i := first; i <= last; i++ {
		idx = append(idx, i)
	}
	return idx, nil
}

func windowMeans(m bundle.Matrix, idx []int, excluded []int) []float64 {
	out := make([]float64, m.Channels())
	for ch := range out {
		var sum float64
		for _, i := range idx {
			sum += m[i][ch]
		}
		out[ch] = sum / float64(len(idx))
	}
	for _, ch := range excluded {
		if ch >= 1 && ch <= len(out) {
			out[ch-1] = 0
		}
	}
	return out
}

func regionRow(rois [][]int, windows [][]float64) []float64 {
	row := make([]float64, 0, len(rois)*Windows)
	for _, roi := range rois {
		for _, w := range windows {
			var sum float64
			for _, ch := range roi {
				sum += w[ch-1]
			}
			row = append(row, sum/float64(len(roi)))
		}
	}
	return row
}

// Files names the outputs of one batch.
type Files struct {
	Dir    string
	Marker int
}

// NewFiles returns the batch layout under root for condition.
func NewFiles(root, condition string, marker int) Files {
	return Files{Dir: filepath.Join(root, DirName, condition), Marker: marker}
}

func (f Files) name(prefix, ext string) string {
	return filepath.Join(f.Dir, prefix+"C_"+strconv.Itoa(f.Marker)+ext)
}

// Oxy is the oxy-Hb region report.
func (f Files) Oxy() string { return f.name("Grand_Average_oxy", ".csv") }

// Deoxy is the deoxy-Hb region report.
func (f Files) Deoxy() string { return f.name("Grand_Average_deoxy", ".csv") }

// Bundle is the aggregate bundle.
func (f Files) Bundle() string { return f.name("Grand_Average_", "_for_GA.json") }

// Settings is the settings record of the batch.
func (f Files) Settings() string { return f.name("Grand_Average_", "_Settings.json") }

// Create makes the batch directory. An existing directory is an error.
func (f Files) Create() error {
	if _, err := os.Stat(f.Dir); err == nil {
		return services.Wrap(services.ErrValidation, "grand average", "create directory", "Grand Average Path already exists.", nil)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "grand average", "create directory", f.Dir, err)
	}
	return nil
}

// Remove deletes the batch directory and everything written into it.
func (f Files) Remove() error {
	return os.RemoveAll(f.Dir)
}

// Write stores both region reports.
func (r Report) Write(f Files) error {
	if err := writeReport(f.Oxy(), r.Headers, r.Oxy); err != nil {
		return err
	}
	return writeReport(f.Deoxy(), r.Headers, r.Deoxy)
}

func writeReport(path string, headers []string, data [][]float64) error {
	cols := append([]string{""}, headers...)
	rows := make([][]string, len(data))
	for i, values := range data {
		row := make([]string, 0, len(values)+1)
		row = append(row, "VP"+strconv.Itoa(i+1))
		for _, v := range values {
			row = append(row, bundle.FormatValue(v))
		}
		rows[i] = row
	}
	return bundle.WriteTableCSV(path, cols, rows)
}
