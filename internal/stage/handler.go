package stage

import (
	"context"
	"log/slog"
	"time"
)

// Handler is one step of a pipeline. Handlers read their inputs from and
// store their outputs on the run session they were built with.
type Handler interface {
	Execute(context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context) error { return f(ctx) }

// LoggerAware handlers receive the stage-scoped logger before Execute.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Spec names a stage and the status texts shown when it starts and fails.
type Spec struct {
	Name    string
	Status  string
	Failure string
}

// Result is the outcome of one guarded stage.
type Result struct {
	Stage    string
	Status   string
	OK       bool
	Err      error
	Trace    string
	Duration time.Duration
}
