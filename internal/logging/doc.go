// Package logging assembles structured slog loggers and formatting helpers used
// across the analysis pipeline and the CLI.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code automatically tags log lines
// with run IDs, stage names, and correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
