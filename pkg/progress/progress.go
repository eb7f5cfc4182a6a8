// Package progress implements the Progress Channel: a push-style stream
// of per-step events shared by the Pipeline Orchestrator (Core B) and,
// through the same shape, any long-running Core A operation that wants to
// report progress to an operator or UI (spec §4.12).
//
// Delivery is best-effort and unordered with respect to wall clock only
// within the same step; exactly one Complete or Error event is emitted per
// job. This mirrors the keep-alive SSE loop in
// internal/mcp/handler.go's handleSSEConnect, generalized from an HTTP
// response writer to a plain Go channel so both the HTTP and MCP surfaces
// can consume it.
package progress

import "time"

// Kind discriminates the three event shapes the channel can carry.
type Kind string

const (
	KindStep     Kind = "step"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one message on the channel.
type Event struct {
	Kind       Kind      `json:"kind"`
	Step       int       `json:"step,omitempty"`
	Total      int       `json:"total,omitempty"`
	Label      string    `json:"label,omitempty"`
	ProgressPc float64   `json:"progress_pct,omitempty"`
	Message    string    `json:"message,omitempty"`
	Err        string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Channel is a single-job, push-style progress stream. Producers call
// Step/Complete/Error; Complete or Error also closes the underlying
// channel so a ranging consumer terminates cleanly.
type Channel struct {
	events chan Event
	closed bool
}

// New creates a Channel with the given buffer size. A small buffer keeps
// producers from blocking on a slow consumer for more than one event
// (spec §5: "producers may block briefly on backpressure").
func New(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 8
	}
	return &Channel{events: make(chan Event, buffer)}
}

// Events returns the receive-only event stream.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Step emits a {step, total, label} progress event.
func (c *Channel) Step(step, total int, label string) {
	if c.closed {
		return
	}
	pct := 0.0
	if total > 0 {
		pct = float64(step) / float64(total) * 100
	}
	c.events <- Event{Kind: KindStep, Step: step, Total: total, Label: label, ProgressPc: pct, At: time.Now()}
}

// Complete emits the terminal success event and closes the channel.
func (c *Channel) Complete(message string) {
	if c.closed {
		return
	}
	c.events <- Event{Kind: KindComplete, Message: message, At: time.Now()}
	c.closed = true
	close(c.events)
}

// Error emits the terminal failure event and closes the channel.
func (c *Channel) Error(err error) {
	if c.closed {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.events <- Event{Kind: KindError, Err: msg, At: time.Now()}
	c.closed = true
	close(c.events)
}
