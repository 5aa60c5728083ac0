package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nica/internal/recording"
)

// RecordingSpec shapes a synthetic recording.
type RecordingSpec struct {
	Name     string
	Channels int
	Seconds  float64
	Fs       float64
	BioFs    float64
	// TrialStarts are the onsets of class TrialMarker. A run-start marker
	// (class 8) at 10 s and a run-end marker (class 9) at Seconds-20 frame
	// the paradigm.
	TrialStarts []float64
	TrialMarker int
	NoBio       bool
}

// DefaultRecordingSpec describes a 12-channel, 200 s recording at 10 Hz with
// three trials of class 1.
func DefaultRecordingSpec() RecordingSpec {
	return RecordingSpec{
		Name:        "subject01",
		Channels:    12,
		Seconds:     200,
		Fs:          10,
		BioFs:       100,
		TrialStarts: []float64{20, 60, 100},
		TrialMarker: 1,
	}
}

// NewRecording builds a deterministic recording with a task response on
// every channel, 0.1 Hz Mayer waves and 0.25 Hz respiration.
func NewRecording(spec RecordingSpec) *recording.Recording {
	n := int(spec.Seconds * spec.Fs)
	rec := &recording.Recording{
		Name: spec.Name,
		Header: recording.Header{
			Sources:      8,
			Detectors:    8,
			SamplingRate: spec.Fs,
			Start:        time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		Time: recording.TimeAxis(0, spec.Fs, n),
	}
	for ch := 0; ch < spec.Channels; ch++ {
		a, b := make([]float64, n), make([]float64, n)
		phase := float64(ch) / float64(spec.Channels)
		for i := range a {
			tt := float64(i) / spec.Fs
			resp := 0.01 * math.Sin(2*math.Pi*(0.1*tt+phase))
			resp += 0.005 * math.Sin(2*math.Pi*0.25*tt)
			task := response(tt, spec.TrialStarts)
			a[i] = 1.5 + resp - 0.02*task
			b[i] = 2.0 + resp + 0.04*task
		}
		rec.WL760 = append(rec.WL760, a)
		rec.WL850 = append(rec.WL850, b)
	}

	rec.Markers = append(rec.Markers, recording.Marker{Time: 10, Class: 8})
	for _, onset := range spec.TrialStarts {
		rec.Markers = append(rec.Markers, recording.Marker{Time: onset, Class: spec.TrialMarker})
	}
	rec.Markers = append(rec.Markers, recording.Marker{Time: spec.Seconds - 20, Class: 9})

	if !spec.NoBio {
		m := int(spec.Seconds * spec.BioFs)
		bio := &recording.Biosignals{
			SamplingRate: spec.BioFs,
			Time:         recording.TimeAxis(0, spec.BioFs, m),
			ECG:          make([]float64, m),
			Respiration:  make([]float64, m),
		}
		period := spec.BioFs / 1.2
		for i := range bio.ECG {
			tt := float64(i) / spec.BioFs
			bio.Respiration[i] = -math.Sin(2 * math.Pi * 0.25 * tt)
			bio.ECG[i] = 0.05 * math.Sin(2*math.Pi*0.3*tt)
		}
		for c := period / 2; c < float64(m); c += period {
			for i := int(c) - 10; i <= int(c)+10; i++ {
				if i >= 0 && i < m {
					d := float64(i) - c
					bio.ECG[i] += math.Exp(-d * d / 4)
				}
			}
		}
		rec.Bio = bio
	}
	return rec
}

// response is a smooth 20 s task response after each onset.
func response(t float64, onsets []float64) float64 {
	var out float64
	for _, onset := range onsets {
		d := t - onset
		if d > 0 && d < 20 {
			out += math.Sin(math.Pi * d / 20)
		}
	}
	return out
}

// WriteRecording stores rec as JSON in a fresh temp directory and returns
// the file path.
func WriteRecording(t testing.TB, rec *recording.Recording) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "measurements")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, rec.Name+".json")
	if err := recording.WriteJSONFile(path, rec); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}
