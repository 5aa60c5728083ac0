// Package logs reads back the nica.log file written by the logging package.
//
// Tail returns the most recent lines, optionally narrowed to a single analysis
// run, and Follow streams lines appended after a known offset until the
// context ends. Both understand the JSON and console handler formats.
package logs
