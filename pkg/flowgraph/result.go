package flowgraph

import (
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
)

// Status is the outcome of one advance of a thread.
type Status string

// Advance outcomes.
const (
	StatusCompleted Status = "completed"
	StatusSuspended Status = "suspended"
	StatusFailed    Status = "failed"
)

// Result is returned by Run, Start and Resume.
type Result[S any] struct {
	ThreadID string
	// State is the state after the last merged update. On failure it is the
	// state at the point of failure.
	State  S
	Status Status
	// Interrupt is set when Status is StatusSuspended.
	Interrupt *interrupt.Marker
	// Path lists the nodes whose updates were merged during this advance,
	// in merge order.
	Path []string
}

// Suspended reports whether the advance stopped at an interrupt.
func (r Result[S]) Suspended() bool {
	return r.Status == StatusSuspended
}

// EventKind classifies observer events.
type EventKind string

// Observer event kinds.
const (
	EventNode      EventKind = "node"
	EventSuspended EventKind = "suspended"
	EventCompleted EventKind = "completed"
)

// Event is delivered to the observer registered with WithObserver.
type Event[S any] struct {
	Kind     EventKind
	ThreadID string
	// NodeID is the node whose update was just merged. For suspended and
	// completed events it is the interrupt node and the last node respectively.
	NodeID string
	// State is the merged state after NodeID.
	State     S
	Interrupt *interrupt.Marker
}

// Snapshot is the persisted view of a thread returned by Inspect.
type Snapshot[S any] struct {
	ThreadID  string
	State     S
	Status    checkpoint.Status
	NodeID    string
	NextNode  string
	Sequence  int
	UpdatedAt time.Time
	Interrupt *interrupt.Marker
	Decision  *interrupt.Decision
	Error     string
}

// Suspended reports whether the thread is waiting for a decision.
func (s Snapshot[S]) Suspended() bool {
	return s.Status == checkpoint.StatusSuspended && s.Interrupt != nil
}
