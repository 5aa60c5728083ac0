// Package recording holds the raw multi-stream measurement of one session:
// two-wavelength optical intensities, paradigm markers, and optional ECG and
// respiration channels sampled on their own clock.
package recording

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"nica/internal/services"
)

// Marker is one paradigm trigger.
type Marker struct {
	Time  float64 `json:"time"`
	Class int     `json:"class"`
}

// Header carries the optical hardware description.
type Header struct {
	Sources      int       `json:"sources"`
	Detectors    int       `json:"detectors"`
	Gains        [][]int   `json:"gains,omitempty"`
	SDMask       [][]int   `json:"sd_mask,omitempty"`
	SamplingRate float64   `json:"sampling_rate"`
	Start        time.Time `json:"start_time"`
}

// Biosignals are the peripheral channels recorded by the amplifier.
type Biosignals struct {
	SamplingRate float64   `json:"sampling_rate"`
	Time         []float64 `json:"time"`
	ECG          []float64 `json:"ecg"`
	Respiration  []float64 `json:"respiration"`
}

// Recording is the raw measurement. Optical matrices are [channel][sample].
type Recording struct {
	Name    string      `json:"name"`
	Path    string      `json:"-"`
	Header  Header      `json:"header"`
	Time    []float64   `json:"time"`
	WL760   [][]float64 `json:"wl760"`
	WL850   [][]float64 `json:"wl850"`
	Markers []Marker    `json:"markers"`
	Bio     *Biosignals `json:"bio,omitempty"`
}

// Channels is the number of optical channels.
func (r *Recording) Channels() int {
	return len(r.WL760)
}

// Samples is the number of optical samples per channel.
func (r *Recording) Samples() int {
	if len(r.WL760) == 0 {
		return 0
	}
	return len(r.WL760[0])
}

// Stem is the file name without its extension.
func (r *Recording) Stem() string {
	if r.Path == "" {
		return r.Name
	}
	base := filepath.Base(r.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Directory is the base name of the directory holding the recording.
func (r *Recording) Directory() string {
	if r.Path == "" {
		return "recordings"
	}
	return filepath.Base(filepath.Dir(r.Path))
}

// HasRespiration reports whether a usable respiration channel is present.
func (r *Recording) HasRespiration() bool {
	return r.Bio != nil && len(r.Bio.Respiration) > 1
}

// HasECG reports whether a usable ECG channel is present.
func (r *Recording) HasECG() bool {
	return r.Bio != nil && len(r.Bio.ECG) > 1
}

// Validate checks stream shapes and rates. The returned error carries
// services.ErrValidation.
func (r *Recording) Validate() error {
	fail := func(format string, args ...any) error {
		return services.Wrap(services.ErrValidation, "recording", "validate", fmt.Sprintf(format, args...), nil)
	}
	if r.Header.SamplingRate <= 0 || math.IsNaN(r.Header.SamplingRate) {
		return fail("optical sampling rate must be positive, got %g", r.Header.SamplingRate)
	}
	if len(r.WL760) == 0 {
		return fail("no optical channels found")
	}
	if len(r.WL760) != len(r.WL850) {
		return fail("wavelength channel counts differ: %d at 760 nm, %d at 850 nm", len(r.WL760), len(r.WL850))
	}
	n := len(r.WL760[0])
	if n < 2 {
		return fail("optical stream has %d samples", n)
	}
	for ch := range r.WL760 {
		if len(r.WL760[ch]) != n || len(r.WL850[ch]) != n {
			return fail("optical channel %d has a different length", ch+1)
		}
	}
	if len(r.Time) != n {
		return fail("optical time axis has %d samples, expected %d", len(r.Time), n)
	}
	if len(r.Markers) == 0 {
		return fail("no paradigm markers found")
	}
	if r.Bio != nil {
		if r.Bio.SamplingRate <= 0 {
			return fail("biosignal sampling rate must be positive, got %g", r.Bio.SamplingRate)
		}
		m := len(r.Bio.Time)
		if len(r.Bio.ECG) != m || len(r.Bio.Respiration) != m {
			return fail("biosignal streams differ in length: time %d, ecg %d, respiration %d", m, len(r.Bio.ECG), len(r.Bio.Respiration))
		}
	}
	return nil
}

// FillTimeAxes generates missing time axes from the sampling rates, starting
// at zero.
func (r *Recording) FillTimeAxes() {
	if len(r.Time) == 0 && r.Header.SamplingRate > 0 {
		r.Time = TimeAxis(0, r.Header.SamplingRate, r.Samples())
	}
	if r.Bio != nil && len(r.Bio.Time) == 0 && r.Bio.SamplingRate > 0 {
		r.Bio.Time = TimeAxis(0, r.Bio.SamplingRate, len(r.Bio.ECG))
	}
}

// TimeAxis returns n timestamps t0 + i/fs.
func TimeAxis(t0, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = t0 + float64(i)/fs
	}
	return out
}

// CropToMarkers keeps the optical and biosignal samples stamped between the
// first and the last marker, inclusive. The receiver is not modified.
func (r *Recording) CropToMarkers() (*Recording, error) {
	if len(r.Markers) == 0 {
		return nil, services.Wrap(services.ErrValidation, "recording", "crop", "no paradigm markers found", nil)
	}
	start, stop := r.Markers[0].Time, r.Markers[0].Time
	for _, m := range r.Markers {
		start = math.Min(start, m.Time)
		stop = math.Max(stop, m.Time)
	}

	out := *r
	lo, hi := span(r.Time, start, stop)
	if hi-lo < 2 {
		return nil, services.Wrap(services.ErrValidation, "recording", "crop", "fewer than two optical samples between the first and last marker", nil)
	}
	out.Time = append([]float64(nil), r.Time[lo:hi]...)
	out.WL760 = cropRows(r.WL760, lo, hi)
	out.WL850 = cropRows(r.WL850, lo, hi)
	out.Markers = append([]Marker(nil), r.Markers...)

	if r.Bio != nil {
		blo, bhi := span(r.Bio.Time, start, stop)
		out.Bio = &Biosignals{
			SamplingRate: r.Bio.SamplingRate,
			Time:         append([]float64(nil), r.Bio.Time[blo:bhi]...),
			ECG:          append([]float64(nil), r.Bio.ECG[blo:bhi]...),
			Respiration:  append([]float64(nil), r.Bio.Respiration[blo:bhi]...),
		}
	}
	return &out, nil
}

func span(axis []float64, start, stop float64) (int, int) {
	lo, hi := len(axis), 0
	for i, t := range axis {
		if t >= start && t <= stop {
			lo = min(lo, i)
			hi = max(hi, i+1)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

func cropRows(rows [][]float64, lo, hi int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row[lo:hi]...)
	}
	return out
}
