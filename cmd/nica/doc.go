// Package main hosts the nica CLI entrypoint and command graph.
//
// The Cobra-based command tree runs single-recording analyses, grand-average
// batches and t-test reports, inspects and converts recordings, lists the
// run history and scaffolds configuration. It centralizes configuration
// resolution, logger setup, run locking and notification wiring so that
// subcommands only translate flags into calls on the internal packages.
package main
