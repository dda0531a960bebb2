// Package interrupt provides the human-in-the-loop gate used by flowgraph.
//
// A gate belongs to one thread. It moves through a small state machine:
//
//	running -> suspended -> resumed_approved | resumed_rejected
//
// The gate is persisted inside the thread's checkpoint, so a suspension made by
// one process can be resumed by another that shares the checkpoint store.
// A gate accepts exactly one decision per suspension; a second decision is
// rejected with ErrNotSuspended.
package interrupt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a gate.
type State string

// Gate states.
const (
	StateRunning         State = "running"
	StateSuspended       State = "suspended"
	StateResumedApproved State = "resumed_approved"
	StateResumedRejected State = "resumed_rejected"
)

// Verdict is the reviewer's answer to a suspension.
type Verdict string

// Verdicts accepted by Resume.
const (
	Approved Verdict = "approved"
	Rejected Verdict = "rejected"
)

// Sentinel errors for gate transitions.
var (
	// ErrAlreadySuspended indicates Suspend was called on a suspended gate.
	ErrAlreadySuspended = errors.New("gate already suspended")

	// ErrNotSuspended indicates Resume was called on a gate that is not awaiting a decision.
	ErrNotSuspended = errors.New("gate not awaiting a decision")

	// ErrInvalidVerdict indicates a verdict other than approved or rejected.
	ErrInvalidVerdict = errors.New("invalid verdict")
)

// ParseVerdict normalizes user input into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case Approved, Rejected:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
	}
}

// Marker records why and where a thread is suspended.
// It exists only while the gate is suspended.
type Marker struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMarker creates a marker for the given node and reviewer prompt.
func NewMarker(nodeID, prompt string) Marker {
	return Marker{
		ID:        fmt.Sprintf("int-%s", uuid.New().String()[:8]),
		NodeID:    nodeID,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
}

// Decision is the external input that resumes a suspended gate.
type Decision struct {
	Verdict   Verdict   `json:"verdict"`
	Reviewer  string    `json:"reviewer,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// NewDecision creates a decision stamped with the current time.
func NewDecision(v Verdict, reviewer string) Decision {
	return Decision{
		Verdict:   v,
		Reviewer:  reviewer,
		DecidedAt: time.Now().UTC(),
	}
}

// Approved reports whether the decision approves continuation.
func (d Decision) Approved() bool {
	return d.Verdict == Approved
}

// Gate is the per-thread interrupt state machine.
// Gate is not safe for concurrent use; the engine serializes access per thread.
type Gate struct {
	State    State     `json:"state"`
	Marker   *Marker   `json:"marker,omitempty"`
	Decision *Decision `json:"decision,omitempty"`

	// Suspensions counts every suspension the thread has gone through.
	// It distinguishes a thread that was never gated from one whose gate
	// has already been resolved.
	Suspensions int `json:"suspensions"`
}

// NewGate returns a gate in the running state.
func NewGate() *Gate {
	return &Gate{State: StateRunning}
}

// Suspended reports whether the gate is awaiting a decision.
func (g *Gate) Suspended() bool {
	return g != nil && g.State == StateSuspended
}

// EverSuspended reports whether the gate has suspended at least once.
func (g *Gate) EverSuspended() bool {
	return g != nil && g.Suspensions > 0
}

// Suspend parks the gate on the given marker.
func (g *Gate) Suspend(m Marker) error {
	if g.State == StateSuspended {
		return ErrAlreadySuspended
	}
	g.State = StateSuspended
	g.Marker = &m
	g.Decision = nil
	g.Suspensions++
	return nil
}

// Resume applies a decision to a suspended gate and clears the marker.
// It returns the marker that was pending so the caller can continue from its node.
func (g *Gate) Resume(d Decision) (Marker, error) {
	if g.State != StateSuspended || g.Marker == nil {
		return Marker{}, ErrNotSuspended
	}

	switch d.Verdict {
	case Approved:
		g.State = StateResumedApproved
	case Rejected:
		g.State = StateResumedRejected
	default:
		return Marker{}, fmt.Errorf("%w: %q", ErrInvalidVerdict, d.Verdict)
	}

	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}

	m := *g.Marker
	g.Marker = nil
	g.Decision = &d
	return m, nil
}

// Reset starts a new turn on the gate. A suspended gate cannot be reset;
// the pending decision must be resolved or the thread discarded first.
func (g *Gate) Reset() error {
	if g.State == StateSuspended {
		return ErrAlreadySuspended
	}
	g.State = StateRunning
	g.Marker = nil
	g.Decision = nil
	return nil
}

// Clone returns a deep copy of the gate.
func (g *Gate) Clone() *Gate {
	if g == nil {
		return nil
	}
	c := *g
	if g.Marker != nil {
		m := *g.Marker
		c.Marker = &m
	}
	if g.Decision != nil {
		d := *g.Decision
		c.Decision = &d
	}
	return &c
}
