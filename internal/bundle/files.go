package bundle

import (
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"nica/internal/fileutil"
	"nica/internal/services"
)

const (
	bundleSuffix   = "_for_GA.json"
	settingsSuffix = "_Settings.json"
)

// Files names the outputs of one run: <Dir>/<Stem>_<suffix>.
type Files struct {
	Dir  string
	Stem string
}

func (f Files) path(suffix string) string {
	return filepath.Join(f.Dir, f.Stem+suffix)
}

// Bundle is the grand-average input bundle.
func (f Files) Bundle() string { return f.path(bundleSuffix) }

// Settings is the settings record.
func (f Files) Settings() string { return f.path(settingsSuffix) }

// SignalOxy is the oxy-Hb signal export.
func (f Files) SignalOxy() string { return f.path("_signal_oxy.csv") }

// SignalDeoxy is the deoxy-Hb signal export.
func (f Files) SignalDeoxy() string { return f.path("_signal_deoxy.csv") }

// WriteSignalCSV exports [channel][sample] signals with one row per channel
// (Ch1, Ch2, ...) and one column per sample number.
func WriteSignalCSV(path string, channels [][]float64) error {
	tw := table.NewWriter()
	samples := 0
	if len(channels) > 0 {
		samples = len(channels[0])
	}
	header := make(table.Row, 0, samples+1)
	header = append(header, "time (s)")
	for i := 1; i <= samples; i++ {
		header = append(header, strconv.Itoa(i))
	}
	tw.AppendHeader(header)
	for ch, data := range channels {
		row := make(table.Row, 0, len(data)+1)
		row = append(row, "Ch"+strconv.Itoa(ch+1))
		for _, v := range data {
			row = append(row, FormatValue(v))
		}
		tw.AppendRow(row)
	}
	return writeCSV(path, tw)
}

func writeCSV(path string, tw table.Writer) error {
	if err := fileutil.WriteFileAtomic(path, []byte(tw.RenderCSV()+"\n"), 0o644); err != nil {
		return services.Wrap(services.ErrIO, "bundle", "write csv", path, err)
	}
	return nil
}

// WriteTableCSV writes a header and string rows as CSV.
func WriteTableCSV(path string, headers []string, rows [][]string) error {
	tw := table.NewWriter()
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		tw.AppendRow(row)
	}
	return writeCSV(path, tw)
}

// FormatValue renders a number the way the CSV exports do.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
