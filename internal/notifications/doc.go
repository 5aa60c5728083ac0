// Package notifications delivers run outcomes via ntfy.
//
// The ntfy implementation publishes to the topic URL configured in
// config.toml and degrades to a no-op when no topic is set. Delivery
// failures are returned to the caller, which logs them; a failed push never
// fails a run.
package notifications
