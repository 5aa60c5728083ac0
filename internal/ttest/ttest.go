// Package ttest checks every channel of a result bundle for a response
// with a one-sample Student t-test of the absolute averaged signal.
package ttest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"nica/internal/bundle"
	"nica/internal/fileutil"
	"nica/internal/services"
)

// Alpha is the rejection threshold.
const Alpha = 0.05

// Channel is the outcome for one channel. Untested channels carry NaN.
type Channel struct {
	Number int
	T      float64
	P      float64
}

// Rejected reports whether the null hypothesis is rejected.
func (c Channel) Rejected() bool { return c.P < Alpha }

// Kept reports whether the null hypothesis stands.
func (c Channel) Kept() bool { return c.P >= Alpha }

// Result holds both chromophores.
type Result struct {
	Oxy      []Channel
	Deoxy    []Channel
	Excluded []int
}

// OneSample returns the t statistic and the two-sided p-value of the
// hypothesis mean(x) == mu.
func OneSample(x []float64, mu float64) (float64, float64) {
	n := float64(len(x))
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	mean, sd := stat.MeanStdDev(x, nil)
	t := (mean - mu) / (sd / math.Sqrt(n))
	if math.IsNaN(t) {
		return t, math.NaN()
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
	return t, 2 * dist.CDF(-math.Abs(t))
}

// Test runs the per-channel test on the averaged responses of b.
// Excluded channels are 1-based and left untested.
func Test(b *bundle.Bundle, excluded []int) Result {
	res := Result{Excluded: slices.Clone(excluded)}
	res.Oxy = testMatrix(b.HeadOxy, excluded)
	res.Deoxy = testMatrix(b.HeadDeoxy, excluded)
	return res
}

func testMatrix(m bundle.Matrix, excluded []int) []Channel {
	out := make([]Channel, m.Channels())
	for ch := range out {
		out[ch] = Channel{Number: ch + 1, T: math.NaN(), P: math.NaN()}
		if slices.Contains(excluded, ch+1) {
			continue
		}
		x := m.Column(ch)
		for i := range x {
			x[i] = math.Abs(x[i])
		}
		out[ch].T, out[ch].P = OneSample(x, 0)
	}
	return out
}

func numbers(chs []Channel, keep func(Channel) bool) []int {
	var out []int
	for _, c := range chs {
		if keep(c) {
			out = append(out, c.Number)
		}
	}
	return out
}

func channelList(chs []int) string {
	var b strings.Builder
	for _, ch := range chs {
		b.WriteString(strconv.Itoa(ch))
		b.WriteString(" ,")
	}
	return b.String()
}

func valueList(chs []Channel, value func(Channel) float64) string {
	parts := make([]string, len(chs))
	for i, c := range chs {
		parts[i] = strconv.FormatFloat(value(c), 'g', 8, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Lines is the human-readable summary, one entry per line.
func (r Result) Lines() []string {
	lines := []string{
		"T-test: Null hypothesis: mean of each channel = 0",
		"Reject Null hypothesis if p < 0.05 ",
	}
	if len(r.Excluded) > 0 {
		lines = append(lines, "Excluded channels:", channelList(r.Excluded), "T-test for excluded channels is not possible.")
	}
	okOxy, notOxy := numbers(r.Oxy, Channel.Rejected), numbers(r.Oxy, Channel.Kept)
	okDeoxy, notDeoxy := numbers(r.Deoxy, Channel.Rejected), numbers(r.Deoxy, Channel.Kept)
	if slices.Equal(okOxy, okDeoxy) && slices.Equal(notOxy, notDeoxy) {
		lines = append(lines, "All included channels are ok!", "Null Hypothesis can be rejected for both, oxy-Hb and deoxy-Hb.")
	} else {
		lines = append(lines, "Check channels oxy-Hb or channels deoxy-Hb again.")
	}
	for _, group := range []struct {
		label string
		chs   []int
	}{
		{"Channels of oxy-Hb for which the Null hypothesis is rejected: ", okOxy},
		{"Channels of oxy-Hb for which the Null hypothesis is not rejected: ", notOxy},
		{"Channels of deoxy-Hb for which the Null hypothesis is rejected: ", okDeoxy},
		{"Channels of deoxy-Hb for which the Null hypothesis is not rejected: ", notDeoxy},
	} {
		if len(group.chs) > 0 {
			lines = append(lines, group.label, channelList(group.chs))
		}
	}
	return lines
}

// WriteReport writes the summary followed by the raw statistics.
func (r Result) WriteReport(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, line := range r.Lines() {
		fmt.Fprintln(bw, line)
	}
	tOf := func(c Channel) float64 { return c.T }
	pOf := func(c Channel) float64 { return c.P }
	fmt.Fprintf(bw, "t-statistics oxy-Hb: \n%s\n", valueList(r.Oxy, tOf))
	fmt.Fprintf(bw, "p-value oxy-Hb: \n%s\n", valueList(r.Oxy, pOf))
	fmt.Fprintf(bw, "t-statistics deoxy-Hb: \n%s\n", valueList(r.Deoxy, tOf))
	fmt.Fprintf(bw, "p-value deoxy-Hb: \n%s\n", valueList(r.Deoxy, pOf))
	return bw.Flush()
}

// ReportPath is the report written next to a bundle.
func ReportPath(bundlePath string) string {
	return strings.TrimSuffix(bundlePath, ".json") + "_T-Test_Output_File.txt"
}

// Run tests the bundle at path, taking the excluded channels from its
// settings record when one exists, and writes the report.
func Run(path string) (Result, string, error) {
	b, err := bundle.Read(path)
	if err != nil {
		return Result{}, "", err
	}
	var excluded []int
	settings, err := bundle.ReadSettings(bundle.SettingsFor(path))
	switch {
	case err == nil:
		excluded = settings.ExcludedChannels
	case !errors.Is(err, services.ErrNotFound):
		return Result{}, "", err
	}

	res := Test(b, excluded)
	out := ReportPath(path)
	var buf bytes.Buffer
	if err := res.WriteReport(&buf); err != nil {
		return Result{}, "", services.Wrap(services.ErrIO, "t-test", "format report", out, err)
	}
	if err := fileutil.WriteFileAtomic(out, buf.Bytes(), 0o644); err != nil {
		return Result{}, "", services.Wrap(services.ErrIO, "t-test", "write report", out, err)
	}
	return res, out, nil
}
