package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nica/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("singular matrix")
	err := services.Wrap(services.ErrNumerical, "denoise", "solve", "order selection failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrNumerical) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"denoise", "solve", "order selection failed", "singular matrix"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestDetailsExtractsOutermostWrap(t *testing.T) {
	inner := services.Wrap(services.ErrMissingData, "physio", "reference", "No Respiration Data found!", nil)
	outer := services.Wrap(services.ErrNumerical, "pipeline", "run", "stage failed", inner)

	details := services.Details(outer)
	if details.Kind != services.ErrNumerical.Error() {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "pipeline" || details.Operation != "run" || details.Message != "stage failed" {
		t.Fatalf("unexpected details %+v", details)
	}
	if !strings.Contains(details.Cause, "No Respiration Data found!") {
		t.Fatalf("expected cause text, got %q", details.Cause)
	}
	if !errors.Is(outer, services.ErrMissingData) {
		t.Fatal("expected inner marker to stay reachable")
	}
}

func TestDetailsForPlainError(t *testing.T) {
	details := services.Details(errors.New("  boom "))
	if details.Kind != "unknown" || details.Message != "boom" {
		t.Fatalf("unexpected details %+v", details)
	}
	if got := services.Details(nil); got != (services.ErrorDetails{}) {
		t.Fatalf("expected zero details for nil, got %+v", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithStage(ctx, "load")
	ctx = services.WithRequestID(ctx, "req-1")
	ctx = services.WithStage(ctx, "")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id %q %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "load" {
		t.Fatalf("unexpected stage %q %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("unexpected request id %q %v", rid, ok)
	}
	if _, ok := services.RunIDFromContext(context.Background()); ok {
		t.Fatal("expected missing run id")
	}
}
