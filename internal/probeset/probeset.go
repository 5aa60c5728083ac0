// Package probeset describes the optode layouts supported by the analysis and
// reduces recordings to the channels a layout actually uses.
package probeset

import (
	"slices"
)

// Layout is the topology of one probe set.
type Layout struct {
	Name      string
	Channels  int
	Sources   int
	Detectors int
	Value     int
}

var layouts = []Layout{
	{Name: "12", Channels: 12, Sources: 5, Detectors: 4, Value: 1},
	{Name: "24", Channels: 24, Sources: 9, Detectors: 24, Value: 2},
	{Name: "38", Channels: 38, Sources: 9, Detectors: 24, Value: 3},
	{Name: "47", Channels: 47, Sources: 16, Detectors: 15, Value: 4},
	{Name: "50", Channels: 50, Sources: 16, Detectors: 15, Value: 5},
	{Name: "Laboratory new", Channels: 24, Sources: 5, Detectors: 4, Value: 6},
	{Name: "NIRx Sports old", Channels: 42, Sources: 14, Detectors: 13, Value: 7},
	{Name: "NIRx Sports new", Channels: 61, Sources: 16, Detectors: 22, Value: 8},
}

// Lookup returns the layout registered under name.
func Lookup(name string) (Layout, bool) {
	for _, layout := range layouts {
		if layout.Name == name {
			return layout, true
		}
	}
	return Layout{}, false
}

// Names lists the known probe-set identifiers in registration order.
func Names() []string {
	names := make([]string, len(layouts))
	for i, layout := range layouts {
		names[i] = layout.Name
	}
	return names
}

// FilterChannels drops 1-based channel numbers beyond the layout's channel
// count and returns the remaining ones sorted.
func (l Layout) FilterChannels(channels []int) []int {
	out := make([]int, 0, len(channels))
	for _, ch := range channels {
		if ch >= 1 && ch <= l.Channels {
			out = append(out, ch)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TruncateRows keeps the first Channels rows of a [channel][sample] matrix.
func (l Layout) TruncateRows(rows [][]float64) [][]float64 {
	if len(rows) <= l.Channels {
		return rows
	}
	return rows[:l.Channels]
}

// TruncateGrid keeps the Sources×Detectors corner of a hardware descriptor
// such as the gains matrix or the source-detector mask.
func (l Layout) TruncateGrid(grid [][]int) [][]int {
	if grid == nil {
		return nil
	}
	rows := min(len(grid), l.Sources)
	out := make([][]int, rows)
	for i := range rows {
		cols := min(len(grid[i]), l.Detectors)
		out[i] = append([]int(nil), grid[i][:cols]...)
	}
	return out
}
