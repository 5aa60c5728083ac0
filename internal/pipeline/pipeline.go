package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nica/internal/config"
	"nica/internal/denoise"
	"nica/internal/heartrate"
	"nica/internal/logging"
	"nica/internal/services"
	"nica/internal/stage"
	"nica/internal/stageexec"
)

// Final statuses.
const (
	StatusFinished             = "Analysis Finished"
	StatusGrandAverageFinished = "Grand Average Analysis Finished"
)

// HeartRateExtractor derives an instantaneous heart-rate series from an ECG
// trace, sample-aligned with it.
type HeartRateExtractor interface {
	Extract(ecg []float64, fs float64) ([]float64, error)
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	Logger    *slog.Logger
	HeartRate HeartRateExtractor
	Remover   denoise.Remover
	// NewRunID overrides run identifier generation.
	NewRunID func() string
}

// Pipeline runs analyses with one configuration snapshot.
type Pipeline struct {
	cfg       config.Config
	logger    *slog.Logger
	heartRate HeartRateExtractor
	remover   denoise.Remover
	newRunID  func() string
}

// New builds a pipeline. The configuration is copied; later changes to cfg
// do not affect runs.
func New(cfg *config.Config, opts Options) *Pipeline {
	p := &Pipeline{
		cfg:       *cfg,
		logger:    opts.Logger,
		heartRate: opts.HeartRate,
		remover:   opts.Remover,
		newRunID:  opts.NewRunID,
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	if p.heartRate == nil {
		p.heartRate = heartrate.New()
	}
	if p.remover == nil {
		p.remover = denoise.TF{
			BlockSeconds: cfg.Tuning.TFWindowSeconds,
			MinOrder:     cfg.Tuning.MinOrder,
			MaxOrder:     cfg.Tuning.MaxOrder,
		}
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// StageError reports the stage that stopped a run.
type StageError struct {
	Result stage.Result
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Result.Status, e.Result.Err)
}

func (e *StageError) Unwrap() error { return e.Result.Err }

// Outcome is delivered on the done channel of Start.
type Outcome struct {
	Session *Session
	Err     error
}

// Run analyzes the recording at recordingPath synchronously. The returned
// session is non-nil whenever stages ran, including failed runs; a failure is
// reported as *StageError.
func (p *Pipeline) Run(ctx context.Context, recordingPath string, sink EventSink) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.cfg.Analysis.ValidateForRun(p.cfg.Tuning); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "validate", "invalid analysis settings", err)
	}
	s := &Session{
		RunID:         p.newRunID(),
		RecordingPath: recordingPath,
		Analysis:      cloneAnalysis(p.cfg.Analysis),
		Tuning:        p.cfg.Tuning,
	}
	r := p.newRun(ctx, s.RunID, sink, &s.Warnings)
	r.logger.Info("analysis started",
		logging.String(logging.FieldEventType, "analysis_start"),
		logging.String("recording", recordingPath),
	)
	return s, r.execute(ctx, analysisSteps(p, s, r), &s.Results, StatusFinished)
}

// Start runs the analysis on its own goroutine. Events arrive on the first
// channel, which is closed when the run ends; the outcome is then delivered
// on the second. Callers must drain the event channel.
func (p *Pipeline) Start(ctx context.Context, recordingPath string) (<-chan Event, <-chan Outcome) {
	events := make(chan Event, 32)
	done := make(chan Outcome, 1)
	go func() {
		s, err := p.Run(ctx, recordingPath, NewChannelSink(ctx, events))
		close(events)
		done <- Outcome{Session: s, Err: err}
		close(done)
	}()
	return events, done
}

// step is one stage of a run bound to its session.
type step struct {
	spec stage.Spec
	fn   func(ctx context.Context) error
}

// run carries the event plumbing shared by the stages of one execution.
type run struct {
	id       string
	sink     EventSink
	logger   *slog.Logger
	current  string
	warnings *[]string
}

func (p *Pipeline) newRun(ctx context.Context, id string, sink EventSink, warnings *[]string) *run {
	if sink == nil {
		sink = discardSink{}
	}
	ctx = services.WithRunID(ctx, id)
	return &run{
		id:       id,
		sink:     sink,
		logger:   logging.WithContext(ctx, p.logger),
		warnings: warnings,
	}
}

func (r *run) emit(kind EventKind, msg string) {
	r.sink.Emit(Event{Kind: kind, RunID: r.id, Stage: r.current, Message: msg, Time: time.Now()})
}

func (r *run) output(format string, args ...any) {
	r.emit(EventOutput, fmt.Sprintf(format, args...))
}

func (r *run) warn(msg string) {
	*r.warnings = append(*r.warnings, msg)
	logging.WarnWithContext(r.logger, "stage warning", "stage_warning",
		logging.String("warning", msg),
		logging.String(logging.FieldErrorHint, "review the recording and the analysis settings"),
	)
	r.emit(EventWarning, msg)
}

func (r *run) warnAll(msgs []string) {
	for _, msg := range msgs {
		r.warn(msg)
	}
}

// handler binds a step to the run so the stage-scoped logger reaches it.
type handler struct {
	r  *run
	fn func(context.Context) error
}

func (h *handler) SetLogger(logger *slog.Logger) { h.r.logger = logger }

func (h *handler) Execute(ctx context.Context) error { return h.fn(ctx) }

// execute runs steps in order and stops at the first failure.
func (r *run) execute(ctx context.Context, steps []step, results *[]stage.Result, finished string) error {
	ctx = services.WithRunID(ctx, r.id)
	base := r.logger
	for _, st := range steps {
		r.current = st.spec.Name
		r.logger = base
		r.emit(EventStatus, st.spec.Status)

		h := &handler{r: r, fn: st.fn}
		if err := ctx.Err(); err != nil {
			h.fn = func(context.Context) error { return err }
		}
		res := stageexec.Run(ctx, stageexec.Options{Logger: base, Spec: st.spec, Handler: h})
		*results = append(*results, res)
		if !res.OK {
			r.emit(EventStatus, res.Status)
			r.emit(EventError, res.Trace)
			r.current = ""
			r.sink.Emit(Event{Kind: EventFinished, RunID: r.id, Time: time.Now()})
			return &StageError{Result: res}
		}
	}
	r.current = ""
	r.logger = base
	r.emit(EventStatus, finished)
	r.logger.Info("run finished", logging.String(logging.FieldEventType, "run_complete"))
	r.sink.Emit(Event{Kind: EventFinished, RunID: r.id, OK: true, Time: time.Now()})
	return nil
}

func cloneAnalysis(a config.Analysis) config.Analysis {
	out := a
	out.Conditions = append([]config.Condition(nil), a.Conditions...)
	out.ExcludedChannels = append([]int(nil), a.ExcludedChannels...)
	out.DisplayedChannels = append([]int(nil), a.DisplayedChannels...)
	out.OptodeFailures = make([]config.OptodeFailure, len(a.OptodeFailures))
	for i, f := range a.OptodeFailures {
		out.OptodeFailures[i] = config.OptodeFailure{Channel: f.Channel, Replacements: append([]int(nil), f.Replacements...)}
	}
	return out
}
