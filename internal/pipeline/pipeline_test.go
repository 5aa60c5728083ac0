package pipeline_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"nica/internal/bundle"
	"nica/internal/config"
	"nica/internal/denoise"
	"nica/internal/grandaverage"
	"nica/internal/pipeline"
	"nica/internal/services"
	"nica/internal/testsupport"
)

// countingHeartRate returns a steady 70 bpm trace modulated at 0.1 Hz.
type countingHeartRate struct {
	calls int
	panic bool
}

func (h *countingHeartRate) Extract(ecg []float64, fs float64) ([]float64, error) {
	h.calls++
	if h.panic {
		panic("heart rate detector exploded")
	}
	out := make([]float64, len(ecg))
	for i := range out {
		out[i] = 70 + 5*math.Sin(2*math.Pi*0.1*float64(i)/fs)
	}
	return out, nil
}

// recordingRemover subtracts half of the noise and remembers the noises.
type recordingRemover struct {
	noises [][]float64
}

func (r *recordingRemover) Remove(signal, noise []float64, _ float64) ([]float64, error) {
	r.noises = append(r.noises, noise)
	out := make([]float64, len(signal))
	for i := range signal {
		out[i] = signal[i] - 0.5*noise[i]
	}
	return out, nil
}

func newConfig(t *testing.T, edit func(*config.Analysis)) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, testsupport.WithAnalysis(func(a *config.Analysis) {
		a.Conditions = []config.Condition{{Name: "Tapping", Marker: 1}, {Name: "Rest", Marker: 2}}
		a.ChosenCondition = "Tapping"
		if edit != nil {
			edit(a)
		}
	}))
}

func writeRecording(t *testing.T, name string, edit func(*testsupport.RecordingSpec)) string {
	t.Helper()
	spec := testsupport.DefaultRecordingSpec()
	spec.Name = name
	if edit != nil {
		edit(&spec)
	}
	return testsupport.WriteRecording(t, testsupport.NewRecording(spec))
}

func stageStatuses() []string {
	out := make([]string, 0, len(pipeline.AnalysisStages)+1)
	for _, spec := range pipeline.AnalysisStages {
		out = append(out, spec.Status)
	}
	return out
}

func TestRunUncorrectedWritesBundle(t *testing.T) {
	cfg := newConfig(t, nil)
	hr := &countingHeartRate{}
	p := pipeline.New(cfg, pipeline.Options{HeartRate: hr})
	path := writeRecording(t, "subject01", nil)

	var events pipeline.Collector
	s, err := p.Run(context.Background(), path, &events)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := append(stageStatuses(), pipeline.StatusFinished)
	if diff := cmp.Diff(want, events.Messages(pipeline.EventStatus)); diff != "" {
		t.Fatalf("status sequence mismatch (-want +got):\n%s", diff)
	}
	last := events.Events[len(events.Events)-1]
	if last.Kind != pipeline.EventFinished || !last.OK {
		t.Fatalf("expected successful finished event last, got %#v", last)
	}
	if hr.calls != 0 {
		t.Fatalf("uncorrected run must not extract heart rate, got %d calls", hr.calls)
	}
	outputs := events.Messages(pipeline.EventOutput)
	for _, line := range []string{
		"Generate Biosignals finished",
		"Baseline removal and TP filtering done",
		"RAW spectra finished",
		"Physiological Artefacts Removal successful",
		"Cleaned spectra finished",
		"Write Output Files successful",
	} {
		if !slices.Contains(outputs, line) {
			t.Fatalf("missing output %q in %v", line, outputs)
		}
	}

	if s.Fs != 4 || len(s.Triggers) != 3 {
		t.Fatalf("unexpected session: fs %g, triggers %v", s.Fs, s.Triggers)
	}
	if s.Triggers[0] != 40 || s.Triggers[2] != 360 {
		t.Fatalf("triggers not located on the 4 Hz axis: %v", s.Triggers)
	}
	b, err := bundle.Read(s.Layout.Files.Bundle())
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if len(b.HeadOxy) != 141 || b.HeadOxy.Channels() != 12 {
		t.Fatalf("unexpected averaged shape %dx%d", len(b.HeadOxy), b.HeadOxy.Channels())
	}
	settings, err := bundle.ReadSettings(s.Layout.Files.Settings())
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if settings.TaskName != "Tapping" || settings.ChosenCondition != "Tapping" {
		t.Fatalf("unexpected settings %#v", settings)
	}
	if !strings.HasSuffix(s.Layout.Files.Bundle(), filepath.Join("Analysis", "measurements", "subject01", "Tapping", "subject01_Tapping_Tapping_for_GA.json")) {
		t.Fatalf("unexpected bundle path %s", s.Layout.Files.Bundle())
	}
}

func TestRunIsDeterministic(t *testing.T) {
	path := writeRecording(t, "subject01", nil)
	run := func() *pipeline.Session {
		p := pipeline.New(newConfig(t, nil), pipeline.Options{})
		s, err := p.Run(context.Background(), path, nil)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return s
	}
	first, second := run(), run()
	if diff := cmp.Diff(first.Bundle, second.Bundle, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("bundles differ between runs:\n%s", diff)
	}
}

func TestRunAppliesRespirationThenMayerCorrection(t *testing.T) {
	cfg := newConfig(t, func(a *config.Analysis) {
		a.CorrectionMode = config.ModeMayerAndRespiration
	})
	hr := &countingHeartRate{}
	remover := &recordingRemover{}
	p := pipeline.New(cfg, pipeline.Options{HeartRate: hr, Remover: remover})

	var events pipeline.Collector
	s, err := p.Run(context.Background(), writeRecording(t, "subject01", nil), &events)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if hr.calls != 1 {
		t.Fatalf("expected one heart rate extraction, got %d", hr.calls)
	}
	if s.RespirationReference == nil || s.MayerReference == nil {
		t.Fatalf("references not stored on the session")
	}
	if math.Abs(s.RespirationReference.Peak-0.25) > 0.03 {
		t.Fatalf("respiration peak %g, expected 0.25 Hz", s.RespirationReference.Peak)
	}
	if len(remover.noises) != 2*2*12 {
		t.Fatalf("expected 48 corrections, got %d", len(remover.noises))
	}
	if !slices.Equal(remover.noises[0], s.RespirationReference.Signal) || !slices.Equal(remover.noises[1], s.MayerReference.Signal) {
		t.Fatalf("respiration correction must precede the Mayer-wave correction")
	}
	outputs := events.Messages(pipeline.EventOutput)
	if !slices.Contains(outputs, "Respiration and Mayer Waves Correction done") {
		t.Fatalf("missing correction output in %v", outputs)
	}
	if slices.Equal(s.Clean.Oxy[0], s.Filtered.Oxy[0]) {
		t.Fatalf("cleaned signal equals the filtered signal")
	}
}

func TestRunMissingRespirationStopsAtPhysio(t *testing.T) {
	cfg := newConfig(t, func(a *config.Analysis) {
		a.CorrectionMode = config.ModeRespiration
	})
	p := pipeline.New(cfg, pipeline.Options{})
	path := writeRecording(t, "subject01", func(s *testsupport.RecordingSpec) { s.NoBio = true })

	var events pipeline.Collector
	s, err := p.Run(context.Background(), path, &events)
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected stage error, got %v", err)
	}
	if stageErr.Result.Stage != pipeline.StagePhysio {
		t.Fatalf("failed in %s, expected physio", stageErr.Result.Stage)
	}
	if !errors.Is(err, services.ErrMissingData) {
		t.Fatalf("expected missing data marker, got %v", err)
	}

	statuses := events.Messages(pipeline.EventStatus)
	if statuses[len(statuses)-1] != "Error while removing Physiological Artefacts" {
		t.Fatalf("unexpected last status %q", statuses[len(statuses)-1])
	}
	errs := events.Messages(pipeline.EventError)
	if len(errs) != 1 || !strings.Contains(errs[0], denoise.MissingRespiration) {
		t.Fatalf("expected one error event with the missing-data text, got %v", errs)
	}
	var finished int
	for _, e := range events.Events {
		if e.Kind == pipeline.EventFinished {
			finished++
			if e.OK {
				t.Fatalf("failed run reported success")
			}
		}
	}
	if finished != 1 {
		t.Fatalf("expected one finished event, got %d", finished)
	}
	if s.Clean.Oxy != nil || s.Bundle != nil {
		t.Fatalf("stages after the failure must not run")
	}
	if res, ok := s.Failed(); !ok || res.Stage != pipeline.StagePhysio {
		t.Fatalf("session does not report the failed stage: %#v", res)
	}
}

func TestRunRecoversPanickingStage(t *testing.T) {
	cfg := newConfig(t, func(a *config.Analysis) {
		a.CorrectionMode = config.ModeMayer
	})
	p := pipeline.New(cfg, pipeline.Options{HeartRate: &countingHeartRate{panic: true}})

	var events pipeline.Collector
	_, err := p.Run(context.Background(), writeRecording(t, "subject01", nil), &events)
	if err == nil {
		t.Fatal("expected failure")
	}
	errs := events.Messages(pipeline.EventError)
	if len(errs) != 1 || !strings.Contains(errs[0], "heart rate detector exploded") {
		t.Fatalf("expected panic trace in the error event, got %v", errs)
	}
}

func TestRunRefusesExistingEvaluationPath(t *testing.T) {
	cfg := newConfig(t, nil)
	path := writeRecording(t, "subject01", nil)
	if _, err := pipeline.New(cfg, pipeline.Options{}).Run(context.Background(), path, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var events pipeline.Collector
	_, err := pipeline.New(cfg, pipeline.Options{}).Run(context.Background(), path, &events)
	if err == nil {
		t.Fatal("expected the second run to fail")
	}
	want := []string{"Create Evaluation Path ...", "Could not create Analysis Path"}
	if diff := cmp.Diff(want, events.Messages(pipeline.EventStatus)); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	if errs := events.Messages(pipeline.EventError); len(errs) != 1 || !strings.Contains(errs[0], "Analysis Path already exists.") {
		t.Fatalf("unexpected error events %v", errs)
	}
}

func TestRunRejectsTrialMismatch(t *testing.T) {
	cfg := newConfig(t, func(a *config.Analysis) { a.Trials = 4 })
	var events pipeline.Collector
	_, err := pipeline.New(cfg, pipeline.Options{}).Run(context.Background(), writeRecording(t, "subject01", nil), &events)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	statuses := events.Messages(pipeline.EventStatus)
	if statuses[len(statuses)-1] != "Error while generating Biosignals and Conc. Change Signals" {
		t.Fatalf("unexpected last status %q", statuses[len(statuses)-1])
	}
}

func TestRunRequiresLiveContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := pipeline.New(newConfig(t, nil), pipeline.Options{}).Run(ctx, "unused.json", nil)
	if !errors.Is(err, context.Canceled) || s != nil {
		t.Fatalf("expected cancellation before any stage, got %v", err)
	}
}

func TestStartStreamsEvents(t *testing.T) {
	p := pipeline.New(newConfig(t, nil), pipeline.Options{})
	events, done := p.Start(context.Background(), writeRecording(t, "subject01", nil))

	var got []pipeline.Event
	for e := range events {
		got = append(got, e)
	}
	outcome := <-done
	if outcome.Err != nil {
		t.Fatalf("run: %v", outcome.Err)
	}
	if len(got) == 0 || got[len(got)-1].Kind != pipeline.EventFinished {
		t.Fatalf("stream must end with a finished event")
	}
	if got[0].Message != "Create Evaluation Path ..." || got[0].RunID != outcome.Session.RunID {
		t.Fatalf("unexpected first event %#v", got[0])
	}
}

func TestRunGrandAverage(t *testing.T) {
	cfg := newConfig(t, nil)
	var paths []string
	for i, name := range []string{"subject01", "subject02"} {
		path := writeRecording(t, name, func(s *testsupport.RecordingSpec) {
			s.TrialStarts = []float64{20 + float64(i), 60, 100}
		})
		s, err := pipeline.New(cfg, pipeline.Options{}).Run(context.Background(), path, nil)
		if err != nil {
			t.Fatalf("analysis %s: %v", name, err)
		}
		paths = append(paths, s.Layout.Files.Bundle())
	}

	var events pipeline.Collector
	gs, err := pipeline.New(cfg, pipeline.Options{}).RunGrandAverage(context.Background(), paths, &events)
	if err != nil {
		t.Fatalf("grand average: %v", err)
	}
	want := []string{"Prepare Grand Average Data ...", "Write Grand Average Output Files ...", pipeline.StatusGrandAverageFinished}
	if diff := cmp.Diff(want, events.Messages(pipeline.EventStatus)); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	if gs.Files.Dir != filepath.Join(cfg.Paths.AnalysisRoot, grandaverage.DirName, "Tapping") {
		t.Fatalf("unexpected directory %s", gs.Files.Dir)
	}
	for _, path := range gs.Artifacts {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing artifact %s: %v", path, err)
		}
	}
	if filepath.Base(gs.Files.Oxy()) != "Grand_Average_oxyC_1.csv" {
		t.Fatalf("unexpected report name %s", gs.Files.Oxy())
	}
	if len(gs.Report.Oxy) != 2 || len(gs.Report.Headers) != grandaverage.Windows {
		t.Fatalf("unexpected report shape: %d rows, headers %v", len(gs.Report.Oxy), gs.Report.Headers)
	}
	agg, err := bundle.Read(gs.Files.Bundle())
	if err != nil {
		t.Fatalf("read aggregate: %v", err)
	}
	if agg.SamplingRate != 4 || len(agg.HeadOxy) != 141 {
		t.Fatalf("unexpected aggregate: fs %g, %d samples", agg.SamplingRate, len(agg.HeadOxy))
	}
}

func TestRunGrandAverageNeedsTwoBundles(t *testing.T) {
	var events pipeline.Collector
	_, err := pipeline.New(newConfig(t, nil), pipeline.Options{}).RunGrandAverage(context.Background(), []string{"one_for_GA.json"}, &events)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	statuses := events.Messages(pipeline.EventStatus)
	if diff := cmp.Diff([]string{"Prepare Grand Average Data ...", "Error while preparing Grand Average Data"}, statuses); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestRunGrandAverageLeavesNoDirectoryOnWriteFailure(t *testing.T) {
	cfg := newConfig(t, nil)
	var paths []string
	for _, name := range []string{"subject01", "subject02"} {
		s, err := pipeline.New(cfg, pipeline.Options{}).Run(context.Background(), writeRecording(t, name, nil), nil)
		if err != nil {
			t.Fatalf("analysis %s: %v", name, err)
		}
		paths = append(paths, s.Layout.Files.Bundle())
	}

	broken := *cfg
	broken.GrandAverage.ROIs = [][]int{{1, 99}}
	var events pipeline.Collector
	_, err := pipeline.New(&broken, pipeline.Options{}).RunGrandAverage(context.Background(), paths, &events)
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Result.Stage != pipeline.StageGrandAverageWrite {
		t.Fatalf("expected write stage failure, got %v", err)
	}
	dir := filepath.Join(cfg.Paths.AnalysisRoot, grandaverage.DirName, "Tapping")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected no directory at %s, stat err %v", dir, err)
	}

	gs, err := pipeline.New(cfg, pipeline.Options{}).RunGrandAverage(context.Background(), paths, nil)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if gs.Files.Dir != dir {
		t.Fatalf("unexpected directory %s", gs.Files.Dir)
	}
}
