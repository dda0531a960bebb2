package flowgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
)

// Test state types used across tests

// Counter is a simple state for testing incrementing.
type Counter struct {
	Value int
}

// Delta is the update type for Counter.
type Delta struct {
	Add int
}

func addDelta(s Counter, d Delta) Counter {
	s.Value += d.Add
	return s
}

// State is a more complex state for testing various scenarios.
type State struct {
	Progress []string
	Output   string
	Done     bool
	GoLeft   bool
	Count    int
}

// Patch is the partial update for State. Progress is appended, Output and
// Done replace when set, Count is added.
type Patch struct {
	Progress []string
	Output   *string
	Done     *bool
	Count    int
}

func applyPatch(s State, p Patch) State {
	if len(p.Progress) > 0 {
		s.Progress = append(append([]string(nil), s.Progress...), p.Progress...)
	}
	if p.Output != nil {
		s.Output = *p.Output
	}
	if p.Done != nil {
		s.Done = *p.Done
	}
	s.Count += p.Count
	return s
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Delta, error) {
	return Delta{Add: 1}, nil
}

// newStateGraph returns an empty builder for State.
func newStateGraph() *Graph[State, Patch] {
	return NewGraph(applyPatch)
}

// makeTrackingNode creates a node that records its execution.
func makeTrackingNode(name string, tracker *[]string) NodeFunc[State, Patch] {
	return func(ctx Context, s State) (Patch, error) {
		*tracker = append(*tracker, name)
		return Patch{Progress: []string{name}}, nil
	}
}

// makeStepNode creates a node that appends its name to Progress.
func makeStepNode(name string) NodeFunc[State, Patch] {
	return func(ctx Context, s State) (Patch, error) {
		return Patch{Progress: []string{name}}, nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc[State, Patch] {
	return func(ctx Context, s State) (Patch, error) {
		return Patch{}, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc[State, Patch] {
	return func(ctx Context, s State) (Patch, error) {
		panic(value)
	}
}

// makeApprovalNode creates an interrupt node that suspends until a
// decision arrives and then records it.
func makeApprovalNode(prompt string) NodeFunc[State, Patch] {
	return func(ctx Context, s State) (Patch, error) {
		d := ctx.Decision()
		if d == nil {
			return Patch{}, Interrupt(prompt)
		}
		if d.Approved() {
			return Patch{Progress: []string{"approved"}}, nil
		}
		return Patch{Progress: []string{"rejected"}, Done: boolPtr(true)}, nil
	}
}

// approvalGraph is prepare -> review (interrupt) -> finish -> END.
func approvalGraph() *Graph[State, Patch] {
	return newStateGraph().
		AddNode("prepare", makeStepNode("prepare")).
		AddNode("review", makeApprovalNode("please review")).
		AddNode("finish", makeStepNode("finish")).
		AddEdge("prepare", "review").
		AddEdge("review", "finish").
		AddEdge("finish", END).
		SetInterruptNode("review").
		SetEntry("prepare")
}

// testCtx creates a simple test context.
func testCtx() context.Context {
	return context.Background()
}

// countingStore wraps a MemoryStore and counts saves.
type countingStore struct {
	*checkpoint.MemoryStore
	saves atomic.Int32
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: checkpoint.NewMemoryStore()}
}

func (s *countingStore) Commit(ctx context.Context, threadID string, sequence int, data []byte) error {
	s.saves.Add(1)
	return s.MemoryStore.Commit(ctx, threadID, sequence, data)
}

// failingStore fails every save after the first failAfter saves.
type failingStore struct {
	*checkpoint.MemoryStore
	mu        sync.Mutex
	failAfter int
	saves     int
}

var errStoreDown = errors.New("store down")

func (s *failingStore) Commit(ctx context.Context, threadID string, sequence int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saves > s.failAfter {
		return errStoreDown
	}
	return s.MemoryStore.Commit(ctx, threadID, sequence, data)
}

// latest loads and decodes the thread's checkpoint.
func latest(store checkpoint.Store, threadID string) (*checkpoint.Checkpoint, error) {
	data, err := store.Load(context.Background(), threadID)
	if err != nil {
		return nil, err
	}
	return checkpoint.Unmarshal(data)
}
