// Package services defines shared utilities consumed by the analysis stages
// and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration, missing peripheral data, numerical, I/O) consistently.
//   - Details, which pulls the marker, stage, operation and message back out
//     of a wrapped error for status reporting and run history.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
