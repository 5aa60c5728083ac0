package pipeline

import (
	"nica/internal/average"
	"nica/internal/biosignal"
	"nica/internal/bundle"
	"nica/internal/config"
	"nica/internal/denoise"
	"nica/internal/hemo"
	"nica/internal/probeset"
	"nica/internal/recording"
	"nica/internal/spectra"
	"nica/internal/stage"
	"nica/internal/workspace"
)

// Session is the context of one analysis run. Fields are filled stage by
// stage; a field is nil or zero until the stage producing it has succeeded.
type Session struct {
	RunID         string
	RecordingPath string
	// Analysis is the run's settings snapshot. The probe-set stage narrows
	// its channel lists to the layout.
	Analysis config.Analysis
	Tuning   config.Tuning
	Layout   workspace.Layout

	// Source is the recording as loaded; Recording is the copy cropped to
	// the paradigm and reduced to the probe set.
	Source    *recording.Recording
	Recording *recording.Recording
	Probe     probeset.Layout

	TriggerTimes  []float64
	Bio           *biosignal.Prepared
	Concentration hemo.Concentration

	// Fs and Time describe the analysis-rate signals below.
	Fs   float64
	Time []float64
	// Raw is the resampled concentration, Filtered has the baseline removed
	// and the optional low-pass applied, Clean is Filtered after the
	// physiological correction.
	Raw      hemo.Concentration
	Filtered hemo.Concentration
	Clean    hemo.Concentration

	RawSpectra   spectra.Summary
	CleanSpectra spectra.Summary
	Comparison   []BandComparison

	RespirationReference *denoise.Reference
	MayerReference       *denoise.Reference
	HeartRate            []float64

	Triggers  []int
	Average   average.Result
	Bundle    *bundle.Bundle
	Artifacts []string

	Warnings []string
	Results  []stage.Result
}

// BandComparison reports the mean spectral power of one band before and
// after the physiological correction.
type BandComparison struct {
	Band       string
	Lower      float64
	Upper      float64
	RawOxy     float64
	CleanOxy   float64
	RawDeoxy   float64
	CleanDeoxy float64
}

// Failed returns the result of the failed stage, if any.
func (s *Session) Failed() (stage.Result, bool) {
	for _, res := range s.Results {
		if !res.OK {
			return res, true
		}
	}
	return stage.Result{}, false
}
