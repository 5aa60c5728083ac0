package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrMissingData   = errors.New("missing peripheral data")
	ErrNumerical     = errors.New("numerical error")
	ErrIO            = errors.New("i/o error")
	ErrNotFound      = errors.New("not found")
)

var markers = []error{ErrConfiguration, ErrValidation, ErrMissingData, ErrNumerical, ErrIO, ErrNotFound}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	w := &wrapped{marker: marker, stage: strings.TrimSpace(stage), operation: strings.TrimSpace(operation), message: strings.TrimSpace(message), cause: err}
	if err != nil {
		w.text = fmt.Sprintf("%s: %s: %s", marker, detail, err)
	} else {
		w.text = fmt.Sprintf("%s: %s", marker, detail)
	}
	return w
}

type wrapped struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
	text      string
}

func (w *wrapped) Error() string { return w.text }

func (w *wrapped) Unwrap() []error {
	if w.cause == nil {
		return []error{w.marker}
	}
	return []error{w.marker, w.cause}
}

// ErrorDetails is the structured view of an error produced by Wrap.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     string
}

// Details extracts the outermost Wrap context from err. Errors that were never
// wrapped report their text as Message and an empty Stage.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var w *wrapped
	if errors.As(err, &w) {
		details := ErrorDetails{
			Kind:      Kind(err),
			Stage:     w.stage,
			Operation: w.operation,
			Message:   w.message,
		}
		if w.cause != nil {
			details.Cause = w.cause.Error()
		}
		return details
	}
	return ErrorDetails{Kind: Kind(err), Message: strings.TrimSpace(err.Error())}
}

// Kind returns the text of the first known marker carried by err, or
// "unknown".
func Kind(err error) string {
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "analysis failure"
	}
	return strings.Join(parts, ": ")
}
