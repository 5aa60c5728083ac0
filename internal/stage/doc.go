// Package stage defines the contract between the pipeline orchestrator and
// its steps: a Handler executes, a Spec carries the user-facing status
// texts, and a Result records what happened.
package stage
