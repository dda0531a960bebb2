package flowgraph

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// ForkNode describes a fan-out: a node with more than one unconditional
// edge. Its branches run concurrently on copies of the state at the fork
// point and their updates are merged in Branches order.
type ForkNode struct {
	// NodeID is the node that fans out.
	NodeID string
	// Branches are the branch nodes in edge declaration order.
	Branches []string
	// JoinNodeID is the common successor of the branches without a router.
	JoinNodeID string
	// RouterBranch is the branch whose conditional edge picks the node
	// after the join. Empty when no branch has a router.
	RouterBranch string
}

// Cloner is an optional interface for state types that can copy themselves
// cheaply. Fan-out branches receive a clone of the fork-point state so that
// no branch can observe another's work. Without Cloner the engine falls
// back to a JSON round trip.
type Cloner[S any] interface {
	Clone() S
}

// cloneState returns an independent copy of state.
func cloneState[S any](state S) (S, error) {
	if c, ok := any(state).(Cloner[S]); ok {
		return c.Clone(), nil
	}

	var clone S
	data, err := json.Marshal(state)
	if err != nil {
		return clone, fmt.Errorf("clone state: %w", err)
	}
	if err := json.Unmarshal(data, &clone); err != nil {
		return clone, fmt.Errorf("clone state: %w", err)
	}
	return clone, nil
}

// fanOut runs the branches of fork concurrently, waits for all of them,
// merges their updates in declaration order and commits one checkpoint.
// If any branch fails nothing is merged and the first failure in
// declaration order is returned.
func (r *run[S, U]) fanOut(fork *ForkNode) (string, error) {
	started := time.Now()
	n := len(fork.Branches)

	snapshots := make([]S, n)
	for i, branch := range fork.Branches {
		s, err := cloneState(r.state)
		if err != nil {
			return "", &ForkJoinError{ForkNodeID: fork.NodeID, BranchID: branch, Err: err}
		}
		snapshots[i] = s
	}

	updates := make([]U, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, branch := range fork.Branches {
		wg.Add(1)
		go func(i int, branch string) {
			defer wg.Done()
			updates[i], errs[i] = r.runNode(branch, snapshots[i], nil)
		}(i, branch)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return "", &ForkJoinError{ForkNodeID: fork.NodeID, BranchID: fork.Branches[i], Err: err}
		}
	}

	for i, branch := range fork.Branches {
		r.merge(branch, updates[i])
	}

	observability.LogFanOut(r.cfg.logger, fork.NodeID, n, float64(time.Since(started).Milliseconds()))

	next := fork.JoinNodeID
	if fork.RouterBranch != "" {
		var err error
		next, err = r.nextNode(fork.RouterBranch)
		if err != nil {
			return "", err
		}
	}

	last := fork.Branches[n-1]
	if err := r.commit(last, next); err != nil {
		return "", err
	}
	return next, nil
}
