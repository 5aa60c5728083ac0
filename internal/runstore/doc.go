// Package runstore keeps the history of analysis and grand-average runs in
// SQLite.
//
// The schema is managed with golang-migrate from migrations embedded in the
// binary. Every run is inserted as running when it starts and finalized
// with its outcome, the failing stage and the evaluation path once the
// pipeline returns.
package runstore
