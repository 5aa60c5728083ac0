package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"nica/internal/average"
	"nica/internal/biosignal"
	"nica/internal/bundle"
	"nica/internal/dsp"
	"nica/internal/epoch"
	"nica/internal/fileutil"
	"nica/internal/hemo"
	"nica/internal/logging"
	"nica/internal/probeset"
	"nica/internal/recording"
	"nica/internal/services"
	"nica/internal/spectra"
	"nica/internal/stage"
	"nica/internal/workspace"
)

// Stage names, in execution order.
const (
	StageEvaluationPath = "evaluation_path"
	StageLoad           = "load_recording"
	StageProbeSet       = "probe_set"
	StageBiosignals     = "biosignals"
	StageBaseline       = "baseline"
	StageRawSpectra     = "raw_spectra"
	StagePhysio         = "physio_removal"
	StageCleanSpectra   = "cleaned_spectra"
	StageCompare        = "compare_spectra"
	StageOutput         = "write_output"
)

// AnalysisStages lists the stages of an analysis run with their status texts.
var AnalysisStages = []stage.Spec{
	{Name: StageEvaluationPath, Status: "Create Evaluation Path ...", Failure: "Could not create Analysis Path"},
	{Name: StageLoad, Status: "Loading Recording ...", Failure: "Error while loading Recording"},
	{Name: StageProbeSet, Status: "Checking Probeset ...", Failure: "Probeset not ok."},
	{Name: StageBiosignals, Status: "Generating Biosignals and Concentration Change Signals...", Failure: "Error while generating Biosignals and Conc. Change Signals"},
	{Name: StageBaseline, Status: "Removing Baseline and Filtering ...", Failure: "Error while removing Baseline and Filtering"},
	{Name: StageRawSpectra, Status: "Generating RAW Spectra ...", Failure: "Error while generating RAW Spectra"},
	{Name: StagePhysio, Status: "Removing Physiological Artefacts ...", Failure: "Error while removing Physiological Artefacts"},
	{Name: StageCleanSpectra, Status: "Generating Cleaned Spectra ...", Failure: "Error while generating Cleaned Spectra"},
	{Name: StageCompare, Status: "Comparing Spectra ...", Failure: "Error while generating Compared Spectra"},
	{Name: StageOutput, Status: "Write Output Files ...", Failure: "Could not write Output Files!"},
}

// analysis holds the stage handlers of one run.
type analysis struct {
	p *Pipeline
	s *Session
	r *run
}

func analysisSteps(p *Pipeline, s *Session, r *run) []step {
	a := &analysis{p: p, s: s, r: r}
	fns := map[string]func(context.Context) error{
		StageEvaluationPath: a.evaluationPath,
		StageLoad:           a.load,
		StageProbeSet:       a.probeSet,
		StageBiosignals:     a.biosignals,
		StageBaseline:       a.baseline,
		StageRawSpectra:     a.rawSpectra,
		StagePhysio:         a.physio,
		StageCleanSpectra:   a.cleanSpectra,
		StageCompare:        a.compare,
		StageOutput:         a.writeOutput,
	}
	steps := make([]step, len(AnalysisStages))
	for i, spec := range AnalysisStages {
		steps[i] = step{spec: spec, fn: fns[spec.Name]}
	}
	return steps
}

func (a *analysis) evaluationPath(context.Context) error {
	layout := workspace.Plan(a.p.cfg.Paths.AnalysisRoot, a.s.RecordingPath, a.s.Analysis)
	if err := layout.Create(); err != nil {
		return err
	}
	a.s.Layout = layout
	a.r.output("Evaluation Path: %s", layout.Dir)
	return nil
}

func (a *analysis) load(context.Context) error {
	rec, err := recording.Open(a.s.RecordingPath)
	if err != nil {
		return err
	}
	cropped, err := rec.CropToMarkers()
	if err != nil {
		return err
	}
	a.s.Source = rec
	a.s.Recording = cropped
	a.r.output("Recording: %s", rec.Name)
	a.r.output("Channels: %d, Samples: %d at %g Hz", cropped.Channels(), cropped.Samples(), cropped.Header.SamplingRate)
	a.r.output("Markers: %d", len(cropped.Markers))
	if cropped.Bio == nil {
		a.r.warn("No biosignal data available.")
	}
	return nil
}

func (a *analysis) probeSet(context.Context) error {
	layout, ok := probeset.Lookup(a.s.Analysis.ProbeSet)
	if !ok {
		return services.Wrap(services.ErrConfiguration, "probe set", "lookup",
			fmt.Sprintf("unknown probe set %q", a.s.Analysis.ProbeSet), nil)
	}
	src := a.s.Recording
	if src.Channels() < layout.Channels {
		a.r.warn(fmt.Sprintf("Recording has %d channels, probe set %s expects %d.", src.Channels(), layout.Name, layout.Channels))
	}

	set := &a.s.Analysis
	set.ExcludedChannels = layout.FilterChannels(set.ExcludedChannels)
	set.DisplayedChannels = layout.FilterChannels(set.DisplayedChannels)
	failures := set.OptodeFailures[:0]
	for _, f := range set.OptodeFailures {
		if f.Channel > layout.Channels {
			continue
		}
		f.Replacements = layout.FilterChannels(f.Replacements)
		if len(f.Replacements) == 0 {
			continue
		}
		failures = append(failures, f)
	}
	set.OptodeFailures = failures

	rec := *src
	rec.WL760 = layout.TruncateRows(src.WL760)
	rec.WL850 = layout.TruncateRows(src.WL850)
	rec.Header.Sources = layout.Sources
	rec.Header.Detectors = layout.Detectors
	rec.Header.Gains = layout.TruncateGrid(src.Header.Gains)
	rec.Header.SDMask = layout.TruncateGrid(src.Header.SDMask)
	a.s.Recording = &rec
	a.s.Probe = layout
	failed := make([]int, 0, len(failures))
	for _, f := range failures {
		failed = append(failed, f.Channel)
	}
	a.r.logger.Debug("probe set applied",
		logging.String("probe_set", layout.Name),
		logging.Channels("excluded", set.ExcludedChannels),
		logging.Channels("optode_failures", failed),
	)
	a.r.output("Probeset: %s (%d channels, %d sources, %d detectors)", layout.Name, layout.Channels, layout.Sources, layout.Detectors)
	return nil
}

func (a *analysis) biosignals(context.Context) error {
	a.r.output("Generate Biosignals start")
	rec := a.s.Recording
	triggers, err := biosignal.SelectTriggers(rec.Markers, a.s.Analysis)
	if err != nil {
		return err
	}
	bio, err := biosignal.Prepare(rec.Bio, a.s.Analysis.Notch, a.s.Tuning)
	if err != nil {
		return err
	}
	if bio != nil {
		a.r.warnAll(bio.Warnings)
	}
	conc, err := hemo.Convert(rec.WL760, rec.WL850)
	if err != nil {
		return err
	}
	a.s.TriggerTimes = triggers
	a.s.Bio = bio
	a.s.Concentration = conc
	a.r.output("Generate Biosignals finished")
	return nil
}

func (a *analysis) baseline(context.Context) error {
	fs := a.s.Tuning.AnalysisRate
	up, down, err := dsp.RationalRatio(fs, a.s.Recording.Header.SamplingRate)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "baseline", "resample", "unsupported sampling rate ratio", err)
	}
	if len(a.s.Concentration.Oxy) == 0 {
		return services.Wrap(services.ErrValidation, "baseline", "resample", "no concentration channels", nil)
	}
	raw, err := resampleConcentration(a.s.Concentration, up, down)
	if err != nil {
		return err
	}

	nyq := fs / 2
	var filters []dsp.SOS
	if a.s.Analysis.LowPass {
		cut := a.s.Analysis.CutOffFrequency
		sos, err := design(cut/nyq, (cut+0.2)/nyq)
		if err != nil {
			return services.Wrap(services.ErrNumerical, "baseline", "design low-pass", fmt.Sprintf("cut-off %g Hz", cut), err)
		}
		filters = append(filters, sos)
	}
	if a.s.Analysis.Baseline {
		sos, err := design(0.01/nyq, 0.005/nyq)
		if err != nil {
			return services.Wrap(services.ErrNumerical, "baseline", "design high-pass", "baseline filter", err)
		}
		filters = append(filters, sos)
	}
	filtered := raw
	for _, sos := range filters {
		if filtered, err = filterConcentration(filtered, sos); err != nil {
			return err
		}
	}

	a.s.Fs = fs
	a.s.Raw = raw
	a.s.Filtered = filtered
	a.s.Time = recording.TimeAxis(a.s.Recording.Time[0], fs, len(raw.Oxy[0]))
	a.r.output("Baseline removal and TP filtering done")
	return nil
}

// design returns the minimum-order Butterworth filter with at most 3 dB
// ripple in the pass band and 30 dB attenuation in the stop band.
func design(wp, ws float64) (dsp.SOS, error) {
	order, wn, band, err := dsp.Buttord(wp, ws, 3, 30)
	if err != nil {
		return dsp.SOS{}, err
	}
	return dsp.Butter(order, band, wn)
}

func resampleConcentration(c hemo.Concentration, up, down int) (hemo.Concentration, error) {
	apply := func(x []float64) ([]float64, error) { return dsp.ResamplePoly(x, up, down) }
	return mapConcentration(c, apply, "resample")
}

func filterConcentration(c hemo.Concentration, sos dsp.SOS) (hemo.Concentration, error) {
	apply := func(x []float64) ([]float64, error) { return dsp.SosFiltFilt(sos, x, sos.PadLen()) }
	return mapConcentration(c, apply, "filter")
}

func mapConcentration(c hemo.Concentration, fn func([]float64) ([]float64, error), op string) (hemo.Concentration, error) {
	out := hemo.Concentration{Oxy: make([][]float64, len(c.Oxy)), Deoxy: make([][]float64, len(c.Deoxy))}
	for ch := range c.Oxy {
		var err error
		if out.Oxy[ch], err = fn(c.Oxy[ch]); err != nil {
			return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "baseline", op, fmt.Sprintf("oxy channel %d", ch+1), err)
		}
		if out.Deoxy[ch], err = fn(c.Deoxy[ch]); err != nil {
			return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "baseline", op, fmt.Sprintf("deoxy channel %d", ch+1), err)
		}
	}
	return out, nil
}

func (a *analysis) welch() dsp.WelchConfig {
	t := a.s.Tuning
	return dsp.WelchSeconds(a.s.Fs, t.WelchWindowSeconds, t.WelchOverlapSeconds, t.WelchFFTSeconds)
}

func (a *analysis) rawSpectra(context.Context) error {
	a.r.output("RAW Spectra start")
	sum, err := spectra.Summarize(a.s.Raw.Oxy, a.s.Raw.Deoxy, a.s.Fs, a.s.Analysis.Refused(), a.welch())
	if err != nil {
		return err
	}
	a.s.RawSpectra = sum
	a.r.output("RAW spectra finished")
	return nil
}

func (a *analysis) cleanSpectra(context.Context) error {
	a.r.output("Cleaned spectra start")
	sum, err := spectra.Summarize(a.s.Clean.Oxy, a.s.Clean.Deoxy, a.s.Fs, a.s.Analysis.Refused(), a.welch())
	if err != nil {
		return err
	}
	a.s.CleanSpectra = sum
	a.r.output("Cleaned spectra finished")
	return nil
}

func (a *analysis) compare(context.Context) error {
	a.r.output("Spectra compare start")
	set := a.s.Analysis
	a.s.Comparison = compareBands(a.s.RawSpectra, a.s.CleanSpectra, map[string][2]float64{
		"Mayer waves": {set.MayerLower, set.MayerUpper},
		"Respiration": {set.RespLower, set.RespUpper},
	})
	for _, c := range a.s.Comparison {
		a.r.output("%s %.3g-%.3g Hz: oxy-Hb power %.4g -> %.4g, deoxy-Hb power %.4g -> %.4g",
			c.Band, c.Lower, c.Upper, c.RawOxy, c.CleanOxy, c.RawDeoxy, c.CleanDeoxy)
	}

	offset := 0
	if set.MarkerOffset && len(a.s.Recording.Markers) > 0 {
		offset = epoch.MarkerOffset(a.s.Time[0], a.s.Recording.Markers[0].Time, a.s.Fs)
	}
	triggers, warnings := epoch.LocateAll(a.s.Time, a.s.TriggerTimes, a.s.Fs, offset)
	a.r.warnAll(warnings)

	for _, f := range set.OptodeFailures {
		a.r.output("Optode Failure activated: ch %d", f.Channel)
	}
	res, err := average.Compute(a.s.Clean.Oxy, a.s.Clean.Deoxy, triggers, average.Options{
		Window:     epoch.WindowFor(a.s.Fs, set.PreTaskLength, set.TaskLength, set.PostTaskLength),
		Steps:      a.s.Tuning.ContinuousSteps,
		SmoothSpan: a.s.Tuning.SmoothSpan,
		Excluded:   set.ExcludedChannels,
		Failures:   set.OptodeFailures,
	})
	if err != nil {
		return err
	}
	a.r.warnAll(res.Warnings)
	a.s.Triggers = triggers
	a.s.Average = res
	a.r.output("Averaged %d of %d trials", len(res.Used), len(triggers))
	a.r.output("Spectra compare finished")
	return nil
}

// compareBands reports the bands in name order.
func compareBands(raw, clean spectra.Summary, bands map[string][2]float64) []BandComparison {
	out := make([]BandComparison, 0, len(bands))
	for _, name := range slices.Sorted(maps.Keys(bands)) {
		b := bands[name]
		c := BandComparison{Band: name, Lower: b[0], Upper: b[1]}
		c.RawOxy, c.RawDeoxy = raw.BandPower(b[0], b[1])
		c.CleanOxy, c.CleanDeoxy = clean.BandPower(b[0], b[1])
		out = append(out, c)
	}
	return out
}

func (a *analysis) writeOutput(context.Context) error {
	a.r.output("Write Output Files start")
	files := a.s.Layout.Files
	b := bundle.FromAverage(a.s.Average, a.s.Clean.Oxy, a.s.Clean.Deoxy, a.s.Fs)
	if err := bundle.Write(files.Bundle(), b); err != nil {
		return err
	}
	if err := bundle.WriteSettings(files.Settings(), a.s.Analysis); err != nil {
		return err
	}
	sum, err := fileutil.Checksum(files.Bundle())
	if err != nil {
		return services.Wrap(services.ErrIO, "output", "checksum", files.Bundle(), err)
	}
	a.r.output("Bundle SHA256: %s", sum)
	artifacts := []string{files.Bundle(), files.Settings()}
	if a.p.cfg.Output.ExportSignals {
		if err := bundle.WriteSignalCSV(files.SignalOxy(), a.s.Clean.Oxy); err != nil {
			return err
		}
		if err := bundle.WriteSignalCSV(files.SignalDeoxy(), a.s.Clean.Deoxy); err != nil {
			return err
		}
		artifacts = append(artifacts, files.SignalOxy(), files.SignalDeoxy())
	}
	a.s.Bundle = b
	a.s.Artifacts = artifacts
	a.r.output("Write Output Files successful")
	return nil
}
