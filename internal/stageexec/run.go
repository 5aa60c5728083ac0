package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nica/internal/logging"
	"nica/internal/services"
	"nica/internal/stage"
)

// ErrPanic marks a stage that panicked.
var ErrPanic = errors.New("stage panicked")

// Options controls stage execution.
type Options struct {
	Logger  *slog.Logger
	Spec    stage.Spec
	Handler stage.Handler
}

// Run executes a stage inside a guard. A returned error or a panic becomes a
// failed Result carrying the full trace; Run itself never panics.
func Run(ctx context.Context, opts Options) stage.Result {
	res := stage.Result{Stage: opts.Spec.Name, Status: opts.Spec.Status}
	if opts.Handler == nil {
		res.Err = fmt.Errorf("stage handler unavailable: %s", opts.Spec.Name)
		res.Trace = res.Err.Error()
		res.Status = opts.Spec.Failure
		return res
	}

	stageCtx := logging.WithStage(ctx, opts.Spec.Name)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_label", Label(opts.Spec.Name)),
		logging.String("status", opts.Spec.Status),
	)

	start := time.Now()
	err, trace := guard(stageCtx, opts.Handler)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		res.Trace = trace
		res.Status = opts.Spec.Failure
		details := services.Details(err)
		message := strings.TrimSpace(details.Message)
		if message == "" {
			message = strings.TrimSpace(err.Error())
		}
		stageLogger.Error(
			"stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("status", opts.Spec.Failure),
			logging.String("error_kind", details.Kind),
			logging.String("error_message", message),
			logging.Duration("duration", res.Duration),
			logging.Error(err),
		)
		return res
	}

	res.OK = true
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", res.Duration),
	)
	return res
}

func guard(ctx context.Context, h stage.Handler) (err error, trace string) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			trace = fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		}
	}()
	if err = h.Execute(ctx); err != nil {
		trace = err.Error()
	}
	return err, trace
}

var titleCaser = cases.Title(language.English)

// Label turns a stage name such as "raw_spectra" into "Raw Spectra".
func Label(name string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}
