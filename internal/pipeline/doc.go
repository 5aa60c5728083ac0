// Package pipeline runs the analysis of one recording through its ordered,
// guarded stages and the grand-average batch over several result bundles.
//
// Every run owns a Session that carries the configuration snapshot, the
// evaluation layout, the loaded recording and the typed output of each
// stage. Stages only add to the session; they never modify what an earlier
// stage produced. Progress is reported through an EventSink as status,
// output, warning, error and finished events, in emission order.
//
// A failing stage stops the run: the orchestrator emits the stage's failure
// status, one error event carrying the trace and one finished event.
package pipeline
