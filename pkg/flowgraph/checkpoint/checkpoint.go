package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 2

// Status describes where a thread stands as of its latest checkpoint.
type Status string

// Checkpoint statuses.
const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the persisted snapshot of a thread.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// Execution position. NodeID is the last node whose update is included
	// in State; NextNode is where execution continues.
	NodeID   string `json:"node_id"`
	NextNode string `json:"next_node"`
	Status   Status `json:"status"`

	// Gate carries the interrupt state machine for the thread.
	Gate *interrupt.Gate `json:"gate,omitempty"`

	// Error is set when Status is StatusFailed.
	Error string `json:"error,omitempty"`

	State json.RawMessage `json:"state"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a running checkpoint. State must already be JSON-serialized.
func New(threadID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ThreadID:  threadID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
		Status:    StatusRunning,
	}
}

// WithStatus sets the checkpoint status.
func (c *Checkpoint) WithStatus(s Status) *Checkpoint {
	c.Status = s
	return c
}

// WithGate attaches a copy of the thread's interrupt gate.
func (c *Checkpoint) WithGate(g *interrupt.Gate) *Checkpoint {
	c.Gate = g.Clone()
	return c
}

// WithError marks the checkpoint failed with the given cause.
func (c *Checkpoint) WithError(err error) *Checkpoint {
	c.Status = StatusFailed
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// Suspended reports whether the thread is waiting for an external decision.
func (c *Checkpoint) Suspended() bool {
	return c.Status == StatusSuspended && c.Gate.Suspended()
}

// PendingPrompt returns the reviewer prompt of a suspended thread, if any.
func (c *Checkpoint) PendingPrompt() string {
	if c.Gate == nil || c.Gate.Marker == nil {
		return ""
	}
	return c.Gate.Marker.Prompt
}
