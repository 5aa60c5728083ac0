package stageexec_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"nica/internal/services"
	"nica/internal/stage"
	"nica/internal/stageexec"
)

var spec = stage.Spec{Name: "raw_spectra", Status: "Generating RAW Spectra ...", Failure: "Error while generating RAW Spectra"}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

type awareHandler struct {
	logger *slog.Logger
}

func (h *awareHandler) SetLogger(l *slog.Logger) { h.logger = l }

func (h *awareHandler) Execute(context.Context) error {
	h.logger.Info("inside")
	return nil
}

func TestRunSuccess(t *testing.T) {
	logger, buf := bufferLogger()
	h := &awareHandler{}
	res := stageexec.Run(context.Background(), stageexec.Options{Logger: logger, Spec: spec, Handler: h})
	if !res.OK || res.Err != nil {
		t.Fatalf("expected success, got %#v", res)
	}
	if res.Status != spec.Status || res.Stage != "raw_spectra" {
		t.Fatalf("unexpected result %#v", res)
	}
	out := buf.String()
	for _, want := range []string{`"event_type":"stage_start"`, `"event_type":"stage_complete"`, `"stage":"raw_spectra"`, `"stage_label":"Raw Spectra"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
	if !strings.Contains(out, `"msg":"inside"`) {
		t.Fatalf("stage logger was not injected:\n%s", out)
	}
}

func TestRunError(t *testing.T) {
	logger, buf := bufferLogger()
	cause := services.Wrap(services.ErrNumerical, "spectra", "welch", "no usable channel", nil)
	res := stageexec.Run(context.Background(), stageexec.Options{
		Logger:  logger,
		Spec:    spec,
		Handler: stage.HandlerFunc(func(context.Context) error { return cause }),
	})
	if res.OK || !errors.Is(res.Err, services.ErrNumerical) {
		t.Fatalf("expected numerical failure, got %#v", res)
	}
	if res.Status != spec.Failure {
		t.Fatalf("status = %q, want %q", res.Status, spec.Failure)
	}
	if res.Trace != cause.Error() {
		t.Fatalf("unexpected trace %q", res.Trace)
	}
	if !strings.Contains(buf.String(), `"error_message":"no usable channel"`) {
		t.Fatalf("failure log missing message:\n%s", buf.String())
	}
}

func TestRunRecoversPanics(t *testing.T) {
	logger, _ := bufferLogger()
	res := stageexec.Run(context.Background(), stageexec.Options{
		Logger: logger,
		Spec:   spec,
		Handler: stage.HandlerFunc(func(context.Context) error {
			var m map[string]int
			m["boom"] = 1
			return nil
		}),
	})
	if res.OK || !errors.Is(res.Err, stageexec.ErrPanic) {
		t.Fatalf("expected panic failure, got %#v", res)
	}
	if !strings.Contains(res.Trace, "assignment to entry in nil map") || !strings.Contains(res.Trace, "goroutine") {
		t.Fatalf("trace lacks panic value or stack:\n%s", res.Trace)
	}
}

func TestRunWithoutHandler(t *testing.T) {
	res := stageexec.Run(context.Background(), stageexec.Options{Spec: spec})
	if res.OK || res.Err == nil || res.Status != spec.Failure {
		t.Fatalf("expected failure without handler, got %#v", res)
	}
}

func TestLabel(t *testing.T) {
	if got := stageexec.Label("evaluation_path"); got != "Evaluation Path" {
		t.Fatalf("Label = %q", got)
	}
}
