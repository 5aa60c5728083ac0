package runstore

import (
	"strings"
	"time"
)

// Kind distinguishes single-recording runs from grand-average batches.
type Kind string

const (
	KindAnalysis     Kind = "analysis"
	KindGrandAverage Kind = "grand_average"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Run is one row of the history.
type Run struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	Recording    string     `json:"recording"`
	Condition    string     `json:"condition,omitempty"`
	Status       Status     `json:"status"`
	FailedStage  string     `json:"failed_stage,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	EvalPath     string     `json:"eval_path,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Outcome finalizes a run.
type Outcome struct {
	Status       Status
	FailedStage  string
	ErrorMessage string
	EvalPath     string
}

// Duration is the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Label is a short description for listings.
func (r Run) Label() string {
	if strings.TrimSpace(r.Recording) != "" {
		return r.Recording
	}
	return string(r.Kind)
}
