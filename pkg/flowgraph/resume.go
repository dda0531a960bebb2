package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// PrepareFunc builds the state for a new turn from the thread's last
// committed state. found is false for a thread with no checkpoint.
type PrepareFunc[S any] func(prev S, found bool) (S, error)

// Run executes the graph once without persistence.
// Use it for one-shot runs and tests; an interrupt ends the run with
// StatusSuspended and cannot be resumed.
//
// An empty threadID is replaced with a generated one.
//
// Example:
//
//	result, err := compiled.Run(ctx, "", initialState)
//	if err != nil {
//	    // result.State holds the state at the point of failure
//	}
func (cg *CompiledGraph[S, U]) Run(ctx context.Context, threadID string, state S, opts ...RunOption) (Result[S], error) {
	if ctx == nil {
		return Result[S]{State: state, Status: StatusFailed}, ErrNilContext
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	cfg := buildRunConfig(opts)
	r := cg.newRun(ctx, &cfg, nil, threadID, state, interrupt.NewGate())
	return r.execute(cg.entryPoint)
}

// Start begins a new turn on a persisted thread.
//
// The thread's last committed state (if any) is passed to prepare, which
// returns the state for this turn; the engine commits it and runs from the
// entry point. A thread suspended at an interrupt is rejected with
// ErrAwaitingDecision unless WithDiscardPending is given.
//
// Runs on the same thread are serialized; different threads run in parallel.
func (cg *CompiledGraph[S, U]) Start(ctx context.Context, store checkpoint.Store, threadID string, prepare PrepareFunc[S], opts ...RunOption) (Result[S], error) {
	if ctx == nil {
		return Result[S]{}, ErrNilContext
	}
	if threadID == "" {
		return Result[S]{}, ErrThreadIDRequired
	}
	if prepare == nil {
		prepare = func(prev S, _ bool) (S, error) { return prev, nil }
	}

	cfg := buildRunConfig(opts)

	var result Result[S]
	err := cg.locks.WithLock(ctx, threadID, func(ctx context.Context) error {
		cp, found, err := loadCheckpoint(ctx, store, threadID)
		if err != nil {
			return err
		}

		var prev S
		gate := interrupt.NewGate()
		sequence := 0

		if found {
			if cp.Suspended() && !cfg.discardPending {
				return fmt.Errorf("%w: %s", ErrAwaitingDecision, threadID)
			}
			if err := decodeState(cp, &prev); err != nil {
				return err
			}
			sequence = cp.Sequence
			if cp.Gate != nil {
				gate = cp.Gate.Clone()
				if gate.Suspended() {
					cfg.logger.Info("discarding pending interrupt",
						"thread_id", threadID,
						"node_id", cp.Gate.Marker.NodeID,
					)
					gate = &interrupt.Gate{State: interrupt.StateRunning, Suspensions: gate.Suspensions}
				} else if err := gate.Reset(); err != nil {
					return err
				}
			}
		}

		state, err := prepare(prev, found)
		if err != nil {
			return err
		}

		r := cg.newRun(ctx, &cfg, store, threadID, state, gate)
		r.sequence = sequence
		if err := r.commit("", cg.entryPoint); err != nil {
			return err
		}

		result, err = r.execute(cg.entryPoint)
		return err
	})
	return result, err
}

// Resume applies a reviewer decision to a thread suspended at an interrupt
// and continues the run. The interrupt node is executed again with the
// decision available from Context.Decision.
//
// Errors:
//   - ErrThreadNotFound: no checkpoint, or the thread never reached an interrupt
//   - ErrNotAwaitingDecision: the thread's interrupt was already resolved
//   - interrupt.ErrInvalidVerdict: the decision carries an unknown verdict
func (cg *CompiledGraph[S, U]) Resume(ctx context.Context, store checkpoint.Store, threadID string, decision interrupt.Decision, opts ...RunOption) (Result[S], error) {
	if ctx == nil {
		return Result[S]{}, ErrNilContext
	}
	if threadID == "" {
		return Result[S]{}, ErrThreadIDRequired
	}

	cfg := buildRunConfig(opts)

	var result Result[S]
	err := cg.locks.WithLock(ctx, threadID, func(ctx context.Context) error {
		cp, found, err := loadCheckpoint(ctx, store, threadID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		if !cp.Suspended() {
			if cp.Gate.EverSuspended() {
				return fmt.Errorf("%w: %s", ErrNotAwaitingDecision, threadID)
			}
			return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}

		var state S
		if err := decodeState(cp, &state); err != nil {
			return err
		}

		gate := cp.Gate.Clone()
		marker, err := gate.Resume(decision)
		if err != nil {
			return err
		}
		if !cg.IsInterruptNode(marker.NodeID) {
			return fmt.Errorf("%w: %s", ErrInvalidResumeNode, marker.NodeID)
		}

		r := cg.newRun(ctx, &cfg, store, threadID, state, gate)
		r.sequence = cp.Sequence
		r.committed = cp.State
		r.lastNode = cp.NodeID
		r.decision = gate.Decision
		r.decisionNode = marker.NodeID

		cfg.metrics.RecordResume(ctx, string(decision.Verdict))
		observability.LogResume(cfg.logger, threadID, marker.NodeID, string(decision.Verdict), decision.Reviewer)

		result, err = r.execute(marker.NodeID)
		return err
	})
	return result, err
}

// Inspect returns the latest committed view of a thread.
// Returns ErrThreadNotFound if the thread has no checkpoint.
func (cg *CompiledGraph[S, U]) Inspect(ctx context.Context, store checkpoint.Store, threadID string) (Snapshot[S], error) {
	cp, found, err := loadCheckpoint(ctx, store, threadID)
	if err != nil {
		return Snapshot[S]{}, err
	}
	if !found {
		return Snapshot[S]{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	snap := Snapshot[S]{
		ThreadID:  threadID,
		Status:    cp.Status,
		NodeID:    cp.NodeID,
		NextNode:  cp.NextNode,
		Sequence:  cp.Sequence,
		UpdatedAt: cp.Timestamp,
		Error:     cp.Error,
	}
	if err := decodeState(cp, &snap.State); err != nil {
		return Snapshot[S]{}, err
	}
	if cp.Gate != nil {
		gate := cp.Gate.Clone()
		snap.Interrupt = gate.Marker
		snap.Decision = gate.Decision
	}
	return snap, nil
}

func buildRunConfig(opts []RunOption) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// loadCheckpoint reads and validates the thread's checkpoint.
// found is false when the store has nothing for the thread.
func loadCheckpoint(ctx context.Context, store checkpoint.Store, threadID string) (*checkpoint.Checkpoint, bool, error) {
	data, err := store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, &CheckpointError{Op: "load", Err: err}
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, false, &CheckpointError{Op: "load", Err: fmt.Errorf("%w: %v", ErrDeserializeState, err)}
	}
	if cp.Version != checkpoint.Version {
		return nil, false, &CheckpointError{
			NodeID: cp.NodeID,
			Op:     "load",
			Err:    fmt.Errorf("%w: got %d, want %d", ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}
	return cp, true, nil
}

func decodeState[S any](cp *checkpoint.Checkpoint, state *S) error {
	if err := json.Unmarshal(cp.State, state); err != nil {
		return &CheckpointError{
			NodeID: cp.NodeID,
			Op:     "load",
			Err:    fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}
	return nil
}
