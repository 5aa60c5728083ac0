package pipeline

import (
	"context"
	"time"
)

// EventKind classifies pipeline events.
type EventKind string

const (
	// EventStatus carries a stage start, stage failure or final status text.
	EventStatus EventKind = "status"
	// EventOutput carries an informational line produced by a stage.
	EventOutput EventKind = "output"
	// EventWarning carries a non-fatal condition.
	EventWarning EventKind = "warning"
	// EventError carries the full trace of a failed stage.
	EventError EventKind = "error"
	// EventFinished is always the last event of a run.
	EventFinished EventKind = "finished"
)

// Event is one progress notification.
type Event struct {
	Kind    EventKind `json:"kind"`
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	// OK is set on finished events of successful runs.
	OK   bool      `json:"ok,omitempty"`
	Time time.Time `json:"time"`
}

// EventSink receives events in emission order.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// ChannelSink forwards events to a channel. Sends block until the receiver
// is ready or ctx is done; events sent after cancellation are dropped.
type ChannelSink struct {
	ctx context.Context
	ch  chan<- Event
}

// NewChannelSink returns a sink writing to ch.
func NewChannelSink(ctx context.Context, ch chan<- Event) *ChannelSink {
	return &ChannelSink{ctx: ctx, ch: ch}
}

// Emit sends e unless the context is done.
func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	case <-s.ctx.Done():
	}
}

// Collector records every event. It is not safe for concurrent use.
type Collector struct {
	Events []Event
}

// Emit appends e.
func (c *Collector) Emit(e Event) { c.Events = append(c.Events, e) }

// Messages returns the messages of the events of kind, in order.
func (c *Collector) Messages(kind EventKind) []string {
	var out []string
	for _, e := range c.Events {
		if e.Kind == kind {
			out = append(out, e.Message)
		}
	}
	return out
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
