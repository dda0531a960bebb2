package flowgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrInvalidFanOut indicates a node fans out into a shape the engine
	// cannot merge deterministically.
	ErrInvalidFanOut = errors.New("invalid fan-out")
)

// Sentinel errors for execution.
var (
	// ErrMaxIterations indicates the execution loop exceeded the configured limit.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrNilContext indicates a run was started with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrRouterTargetNotFound indicates a router function returned an unknown node ID.
	ErrRouterTargetNotFound = errors.New("router returned unknown node")

	// ErrInterruptNotAllowed indicates a node returned Interrupt without
	// being registered with SetInterruptNode.
	ErrInterruptNotAllowed = errors.New("node is not an interrupt node")

	// ErrThreadIDRequired indicates a run was started without a thread ID.
	ErrThreadIDRequired = errors.New("thread ID required")
)

// Sentinel errors for threads, checkpoints and resume.
var (
	// ErrThreadNotFound indicates there is no suspended run to resume for the
	// thread, either because nothing was ever stored or because the thread
	// never reached an interrupt.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrNotAwaitingDecision indicates Resume was called on a thread whose
	// interrupt has already been resolved.
	ErrNotAwaitingDecision = errors.New("thread is not awaiting a decision")

	// ErrAwaitingDecision indicates Start was called on a thread that is
	// suspended at an interrupt.
	ErrAwaitingDecision = errors.New("thread is awaiting a decision")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrInvalidResumeNode indicates the resume node doesn't exist in the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// CheckpointError wraps errors from checkpoint operations.
// Checkpoint failures always abort the run.
type CheckpointError struct {
	// NodeID is the node whose result was being committed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize", "marshal").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It provides information about which node failed and what operation was attempted.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute", "interrupt").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the context's cancellation cause: context.Canceled,
	// context.DeadlineExceeded, or the cause it was cancelled with, such as
	// lock.ErrLockLost.
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from conditional edge routing.
// It provides context about which router failed and what it returned.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the value the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// ForkJoinError reports the first failing branch of a fan-out, in branch
// declaration order. No branch update is merged when any branch fails.
type ForkJoinError struct {
	// ForkNodeID is the node that fanned out.
	ForkNodeID string
	// BranchID is the failing branch.
	BranchID string
	// Err is the branch error.
	Err error
}

// Error implements the error interface.
func (e *ForkJoinError) Error() string {
	return fmt.Sprintf("fork %s: branch %s failed: %v", e.ForkNodeID, e.BranchID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ForkJoinError) Unwrap() error {
	return e.Err
}

// MaxIterationsError provides context when the loop limit is exceeded.
// It includes the state at termination for inspection.
type MaxIterationsError struct {
	// Max is the configured iteration limit.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// lastNodeOf extracts the failing node from a run error, if known.
func lastNodeOf(err error) string {
	var (
		nodeErr   *NodeError
		panicErr  *PanicError
		maxErr    *MaxIterationsError
		cancelErr *CancellationError
		routerErr *RouterError
		forkErr   *ForkJoinError
		cpErr     *CheckpointError
	)
	switch {
	case errors.As(err, &forkErr):
		return forkErr.BranchID
	case errors.As(err, &nodeErr):
		return nodeErr.NodeID
	case errors.As(err, &panicErr):
		return panicErr.NodeID
	case errors.As(err, &maxErr):
		return maxErr.LastNodeID
	case errors.As(err, &cancelErr):
		return cancelErr.NodeID
	case errors.As(err, &routerErr):
		return routerErr.FromNode
	case errors.As(err, &cpErr):
		return cpErr.NodeID
	}
	return ""
}
