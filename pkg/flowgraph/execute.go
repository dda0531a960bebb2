package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/lock"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// run is the mutable state of one advance of a thread. It is confined to
// the goroutine that holds the thread lock; fan-out branches only read it.
type run[S, U any] struct {
	cg       *CompiledGraph[S, U]
	cfg      *runConfig
	ec       *executionContext
	store    checkpoint.Store
	threadID string
	gate     *interrupt.Gate
	observer func(Event[S])

	state     S
	sequence  int
	committed json.RawMessage
	lastNode  string
	path      []string
	nodeCount int

	decision     *interrupt.Decision
	decisionNode string
}

func (cg *CompiledGraph[S, U]) newRun(ctx context.Context, cfg *runConfig, store checkpoint.Store, threadID string, state S, gate *interrupt.Gate) *run[S, U] {
	r := &run[S, U]{
		cg:       cg,
		cfg:      cfg,
		store:    store,
		threadID: threadID,
		gate:     gate,
		state:    state,
		ec: &executionContext{
			Context:  ctx,
			logger:   cfg.logger,
			threadID: threadID,
		},
	}
	if cfg.observer != nil {
		fn, ok := cfg.observer.(func(Event[S]))
		if ok {
			r.observer = fn
		} else {
			cfg.logger.Warn("observer does not match graph state type, ignoring",
				"thread_id", threadID)
		}
	}
	return r
}

// execute advances the thread from start until END, an interrupt, or an
// error, with run-level logging, metrics and tracing.
func (r *run[S, U]) execute(start string) (result Result[S], runErr error) {
	startTime := time.Now()
	observability.LogRunStart(r.cfg.logger, r.threadID, start)

	spanCtx, span := r.cfg.spans.StartRunSpan(r.ec.Context, r.cg.name, r.threadID)
	r.ec = r.ec.withContext(spanCtx)
	defer func() {
		r.cfg.spans.EndSpanWithError(span, runErr)
	}()

	result, runErr = r.loop(start)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	if runErr != nil {
		if ownsThread(runErr) {
			r.commitFailure(runErr)
		}
		r.cfg.metrics.RecordGraphRun(r.ec, observability.OutcomeFailed, duration)
		observability.LogRunError(r.cfg.logger, r.threadID, runErr, durationMs, lastNodeOf(runErr))
		return result, runErr
	}

	r.cfg.metrics.RecordGraphRun(r.ec, string(result.Status), duration)
	observability.LogRunComplete(r.cfg.logger, r.threadID, string(result.Status), durationMs, r.nodeCount)
	return result, nil
}

// loop is the sequential scheduler. Each iteration runs one node, merges
// its update, commits a checkpoint and picks the next node. A fork node is
// committed and then followed by its fan-out, which commits once more after
// the branches merge.
func (r *run[S, U]) loop(start string) (Result[S], error) {
	current := start
	iterations := 0

	for current != END {
		iterations++
		if iterations > r.cfg.maxIterations {
			return r.result(StatusFailed, nil), &MaxIterationsError{
				Max:        r.cfg.maxIterations,
				LastNodeID: current,
				State:      r.state,
			}
		}

		if r.ec.Err() != nil {
			return r.result(StatusFailed, nil), &CancellationError{
				NodeID: current,
				State:  r.state,
				Cause:  context.Cause(r.ec),
			}
		}

		update, err := r.runNode(current, r.state, r.takeDecision(current))
		if err != nil {
			if sig, ok := asInterrupt(err); ok {
				return r.suspend(current, sig)
			}
			return r.result(StatusFailed, nil), err
		}
		r.merge(current, update)

		var next string
		if fork, ok := r.cg.forkNodes[current]; ok {
			// The fork point is committed before its branches start and
			// points at the first branch.
			if err := r.commit(current, fork.Branches[0]); err != nil {
				return r.result(StatusFailed, nil), err
			}
			next, err = r.fanOut(fork)
			if err != nil {
				return r.result(StatusFailed, nil), err
			}
			current = next
			continue
		}

		next, err = r.nextNode(current)
		if err != nil {
			return r.result(StatusFailed, nil), err
		}
		if err := r.commit(current, next); err != nil {
			return r.result(StatusFailed, nil), err
		}
		current = next
	}

	r.emit(EventCompleted, r.lastNode, nil)
	return r.result(StatusCompleted, nil), nil
}

// merge folds a node update into the state and notifies the observer.
func (r *run[S, U]) merge(nodeID string, update U) {
	r.state = r.cg.reduce(r.state, update)
	r.path = append(r.path, nodeID)
	r.nodeCount++
	r.emit(EventNode, nodeID, nil)
}

// runNode executes one node with node-level logging, metrics and tracing.
// It is safe to call from concurrent fan-out branches.
func (r *run[S, U]) runNode(nodeID string, state S, decision *interrupt.Decision) (U, error) {
	observability.LogNodeStart(r.cfg.logger, nodeID)

	spanCtx, span := r.cfg.spans.StartNodeSpan(r.ec.Context, nodeID)
	nodeCtx := r.ec.withContext(spanCtx).forNode(nodeID, decision)

	nodeStart := time.Now()
	update, err := r.cg.executeNode(nodeCtx, nodeID, state)
	nodeDuration := time.Since(nodeStart)

	if sig, ok := asInterrupt(err); ok {
		if !r.cg.interruptNodes[nodeID] {
			err = &NodeError{NodeID: nodeID, Op: "interrupt", Err: ErrInterruptNotAllowed}
		} else {
			r.cfg.metrics.RecordNodeExecution(spanCtx, nodeID, nodeDuration, nil)
			r.cfg.spans.EndSpanWithError(span, nil)
			return update, sig
		}
	}

	if err != nil && r.ec.Err() != nil {
		err = &CancellationError{
			NodeID:       nodeID,
			State:        state,
			Cause:        context.Cause(r.ec),
			WasExecuting: true,
		}
	}

	r.cfg.metrics.RecordNodeExecution(spanCtx, nodeID, nodeDuration, err)
	r.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogNodeError(r.cfg.logger, nodeID, err)
		return update, err
	}
	observability.LogNodeComplete(r.cfg.logger, nodeID, float64(nodeDuration.Milliseconds()))
	return update, nil
}

// takeDecision hands the pending decision to the interrupt node being
// resumed, exactly once.
func (r *run[S, U]) takeDecision(nodeID string) *interrupt.Decision {
	if r.decision == nil || nodeID != r.decisionNode {
		return nil
	}
	d := r.decision
	r.decision = nil
	return d
}

// suspend parks the thread at nodeID. The interrupting node's update is
// discarded and the checkpoint points back at it.
func (r *run[S, U]) suspend(nodeID string, sig *InterruptSignal) (Result[S], error) {
	marker := interrupt.NewMarker(nodeID, sig.Prompt)
	if err := r.gate.Suspend(marker); err != nil {
		return r.result(StatusFailed, nil), &NodeError{NodeID: nodeID, Op: "interrupt", Err: err}
	}

	if err := r.commitAs(r.lastNode, nodeID, checkpoint.StatusSuspended); err != nil {
		return r.result(StatusFailed, nil), err
	}

	r.cfg.metrics.RecordSuspension(r.ec, nodeID)
	observability.LogSuspend(r.cfg.logger, r.threadID, nodeID)
	r.emit(EventSuspended, nodeID, &marker)

	return r.result(StatusSuspended, &marker), nil
}

func (r *run[S, U]) result(status Status, marker *interrupt.Marker) Result[S] {
	return Result[S]{
		ThreadID:  r.threadID,
		State:     r.state,
		Status:    status,
		Interrupt: marker,
		Path:      append([]string(nil), r.path...),
	}
}

func (r *run[S, U]) emit(kind EventKind, nodeID string, marker *interrupt.Marker) {
	if r.observer == nil {
		return
	}
	r.observer(Event[S]{
		Kind:      kind,
		ThreadID:  r.threadID,
		NodeID:    nodeID,
		State:     r.state,
		Interrupt: marker,
	})
}

// commit persists the state after nodeID. A commit that leads to END marks
// the thread completed.
func (r *run[S, U]) commit(nodeID, next string) error {
	status := checkpoint.StatusRunning
	if next == END {
		status = checkpoint.StatusCompleted
	}
	if err := r.commitAs(nodeID, next, status); err != nil {
		return err
	}
	r.lastNode = nodeID
	return nil
}

func (r *run[S, U]) commitAs(nodeID, next string, status checkpoint.Status) error {
	if r.store == nil {
		return nil
	}

	stateBytes, err := json.Marshal(r.state)
	if err != nil {
		return &CheckpointError{
			NodeID: nodeID,
			Op:     "serialize",
			Err:    fmt.Errorf("%w: %v", ErrSerializeState, err),
		}
	}

	r.sequence++
	cp := checkpoint.New(r.threadID, nodeID, r.sequence, stateBytes, next).
		WithStatus(status).
		WithGate(r.gate)

	if err := r.save(r.ec, cp); err != nil {
		return err
	}
	r.committed = stateBytes
	return nil
}

// ownsThread reports whether the run may still write the thread after
// failing with err. A run that lost its lock or a commit race must leave
// the newer checkpoint alone.
func ownsThread(err error) bool {
	return !errors.Is(err, checkpoint.ErrStaleSequence) && !errors.Is(err, lock.ErrLockLost)
}

// commitFailure records a failed advance on top of the last committed
// state. Errors here are logged only; the run error is what the caller sees.
func (r *run[S, U]) commitFailure(cause error) {
	if r.store == nil {
		return
	}

	state := r.committed
	if state == nil {
		data, err := json.Marshal(r.state)
		if err != nil {
			observability.LogCheckpointError(r.cfg.logger, r.lastNode, "serialize", err)
			return
		}
		state = data
	}

	r.sequence++
	cp := checkpoint.New(r.threadID, r.lastNode, r.sequence, state, "").
		WithGate(r.gate).
		WithError(cause)

	// The request context may already be cancelled.
	_ = r.save(context.WithoutCancel(r.ec), cp)
}

func (r *run[S, U]) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		observability.LogCheckpointError(r.cfg.logger, cp.NodeID, "marshal", err)
		return &CheckpointError{NodeID: cp.NodeID, Op: "marshal", Err: err}
	}

	// Commit refuses to replace a newer checkpoint, so a run that lost its
	// thread to another process fails here instead of overwriting its work.
	if err := r.store.Commit(ctx, r.threadID, cp.Sequence, data); err != nil {
		observability.LogCheckpointError(r.cfg.logger, cp.NodeID, "save", err)
		return &CheckpointError{NodeID: cp.NodeID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(r.cfg.logger, cp.NodeID, string(cp.Status), len(data))
	r.cfg.metrics.RecordCheckpoint(ctx, cp.NodeID, int64(len(data)))
	return nil
}

// nextNode determines the node after current.
// Checks conditional edges first, then simple edges.
func (r *run[S, U]) nextNode(current string) (string, error) {
	if router, exists := r.cg.getRouter(current); exists {
		next := router(r.ec.forNode(current, nil), r.state)

		if next == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrInvalidRouterResult,
			}
		}

		if next != END && !r.cg.HasNode(next) {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrRouterTargetNotFound,
			}
		}

		return next, nil
	}

	edges := r.cg.edges[current]
	if len(edges) == 0 {
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}
	return edges[0], nil
}

// executeNode executes a single node with panic recovery.
// Interrupt signals pass through unwrapped.
func (cg *CompiledGraph[S, U]) executeNode(ctx Context, nodeID string, state S) (update U, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		return update, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			var zero U
			update = zero
			err = &PanicError{
				NodeID: nodeID,
				Value:  rec,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	update, err = fn(ctx, state)
	if err != nil {
		if _, ok := asInterrupt(err); ok {
			return update, err
		}
		return update, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return update, nil
}
