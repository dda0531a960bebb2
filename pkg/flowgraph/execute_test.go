package flowgraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRun_LinearFlow tests basic linear execution.
func TestRun_LinearFlow(t *testing.T) {
	compiled, err := NewGraph(addDelta).
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		AddNode("inc3", increment).
		AddEdge("inc1", "inc2").
		AddEdge("inc2", "inc3").
		AddEdge("inc3", END).
		SetEntry("inc1").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "t-1", Counter{Value: 0})

	require.NoError(t, err)
	assert.Equal(t, 3, result.State.Value)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []string{"inc1", "inc2", "inc3"}, result.Path)
	assert.Equal(t, "t-1", result.ThreadID)
}

// TestRun_GeneratesThreadID tests that an empty thread ID is replaced.
func TestRun_GeneratesThreadID(t *testing.T) {
	compiled, err := NewGraph(addDelta).
		AddNode("only", increment).
		AddEdge("only", END).
		SetEntry("only").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "", Counter{Value: 10})

	require.NoError(t, err)
	assert.Equal(t, 11, result.State.Value)
	assert.NotEmpty(t, result.ThreadID)
}

// TestRun_NodesSeeMergedState tests that each node receives the state
// produced by the reducer, not the raw update of its predecessor.
func TestRun_NodesSeeMergedState(t *testing.T) {
	var seenByB State

	nodeA := func(ctx Context, s State) (Patch, error) {
		return Patch{Progress: []string{"a"}, Output: strPtr("from a"), Count: 2}, nil
	}
	nodeB := func(ctx Context, s State) (Patch, error) {
		seenByB = s
		return Patch{Progress: []string{"b"}, Count: 3}, nil
	}

	compiled, err := newStateGraph().
		AddNode("a", nodeA).
		AddNode("b", nodeB).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "", State{Progress: []string{"seed"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"seed", "a"}, seenByB.Progress)
	assert.Equal(t, "from a", seenByB.Output)
	assert.Equal(t, []string{"seed", "a", "b"}, result.State.Progress)
	assert.Equal(t, "from a", result.State.Output)
	assert.Equal(t, 5, result.State.Count)
}

// TestRun_ConditionalRouting tests routing on merged state.
func TestRun_ConditionalRouting(t *testing.T) {
	build := func(tracker *[]string) *CompiledGraph[State, Patch] {
		compiled, err := newStateGraph().
			AddNode("start", makeTrackingNode("start", tracker)).
			AddNode("left", makeTrackingNode("left", tracker)).
			AddNode("right", makeTrackingNode("right", tracker)).
			AddConditionalEdge("start", func(ctx Context, s State) string {
				if s.GoLeft {
					return "left"
				}
				return "right"
			}, "left", "right").
			AddEdge("left", END).
			AddEdge("right", END).
			SetEntry("start").
			Compile()
		require.NoError(t, err)
		return compiled
	}

	var leftTrack, rightTrack []string
	_, err := build(&leftTrack).Run(testCtx(), "", State{GoLeft: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "left"}, leftTrack)

	_, err = build(&rightTrack).Run(testCtx(), "", State{GoLeft: false})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "right"}, rightTrack)
}

// TestRun_RouterErrors tests invalid router results.
func TestRun_RouterErrors(t *testing.T) {
	tests := []struct {
		name     string
		returned string
		want     error
	}{
		{"empty", "", ErrInvalidRouterResult},
		{"unknown", "nowhere", ErrRouterTargetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := newStateGraph().
				AddNode("a", makeStepNode("a")).
				AddConditionalEdge("a", func(ctx Context, s State) string { return tt.returned }).
				SetEntry("a").
				Compile()
			require.NoError(t, err)

			result, err := compiled.Run(testCtx(), "", State{})

			var routerErr *RouterError
			require.ErrorAs(t, err, &routerErr)
			assert.Equal(t, "a", routerErr.FromNode)
			assert.Equal(t, tt.returned, routerErr.Returned)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, []string{"a"}, result.State.Progress)
		})
	}
}

// TestRun_NodeError tests that node errors are wrapped with the node ID.
func TestRun_NodeError(t *testing.T) {
	boom := errors.New("boom")

	compiled, err := newStateGraph().
		AddNode("ok", makeStepNode("ok")).
		AddNode("bad", makeFailingNode(boom)).
		AddNode("never", makeStepNode("never")).
		AddEdge("ok", "bad").
		AddEdge("bad", "never").
		AddEdge("never", END).
		SetEntry("ok").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "", State{})

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "bad", nodeErr.NodeID)
	assert.Equal(t, "execute", nodeErr.Op)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"ok"}, result.State.Progress)
	assert.Equal(t, []string{"ok"}, result.Path)
}

// TestRun_PanicRecovery tests that node panics become PanicError.
func TestRun_PanicRecovery(t *testing.T) {
	compiled, err := newStateGraph().
		AddNode("boom", makePanicNode("kaboom")).
		AddEdge("boom", END).
		SetEntry("boom").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "", State{})

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "boom", panicErr.NodeID)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.Contains(t, panicErr.Stack, "goroutine")
}

// TestRun_MaxIterations tests the loop guard.
func TestRun_MaxIterations(t *testing.T) {
	compiled, err := newStateGraph().
		AddNode("loop", func(ctx Context, s State) (Patch, error) {
			return Patch{Count: 1}, nil
		}).
		AddConditionalEdge("loop", func(ctx Context, s State) string { return "loop" }).
		SetEntry("loop").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "", State{}, WithMaxIterations(5))

	var maxErr *MaxIterationsError
	require.ErrorAs(t, err, &maxErr)
	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Equal(t, 5, maxErr.Max)
	assert.Equal(t, "loop", maxErr.LastNodeID)
	assert.Equal(t, 5, result.State.Count)
}

// TestRun_CancelledBeforeNode tests cancellation between nodes.
func TestRun_CancelledBeforeNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	compiled, err := newStateGraph().
		AddNode("first", func(c Context, s State) (Patch, error) {
			cancel()
			return Patch{Progress: []string{"first"}}, nil
		}).
		AddNode("second", makeStepNode("second")).
		AddEdge("first", "second").
		AddEdge("second", END).
		SetEntry("first").
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(ctx, "", State{})

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "second", cancelErr.NodeID)
	assert.False(t, cancelErr.WasExecuting)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, result.State.Progress)
}

// TestRun_CancelledDuringNode tests a node failing because its context ended.
func TestRun_CancelledDuringNode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	compiled, err := newStateGraph().
		AddNode("slow", func(c Context, s State) (Patch, error) {
			<-c.Done()
			return Patch{}, c.Err()
		}).
		AddEdge("slow", END).
		SetEntry("slow").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(ctx, "", State{})

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.True(t, cancelErr.WasExecuting)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRun_NilContext tests the nil context guard.
func TestRun_NilContext(t *testing.T) {
	compiled, err := newStateGraph().
		AddNode("a", makeStepNode("a")).
		AddEdge("a", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	var nilCtx context.Context
	_, err = compiled.Run(nilCtx, "", State{})
	assert.ErrorIs(t, err, ErrNilContext)
}

// TestRun_ContextMetadata tests what nodes can read from their Context.
func TestRun_ContextMetadata(t *testing.T) {
	var threadID, nodeID string
	var decision *interrupt.Decision
	var hasLogger bool

	compiled, err := newStateGraph().
		AddNode("inspect", func(ctx Context, s State) (Patch, error) {
			threadID = ctx.ThreadID()
			nodeID = ctx.NodeID()
			decision = ctx.Decision()
			hasLogger = ctx.Logger() != nil
			return Patch{}, nil
		}).
		AddEdge("inspect", END).
		SetEntry("inspect").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "thread-42", State{})

	require.NoError(t, err)
	assert.Equal(t, "thread-42", threadID)
	assert.Equal(t, "inspect", nodeID)
	assert.Nil(t, decision)
	assert.True(t, hasLogger)
}

// TestRun_InterruptNotAllowed tests that only registered nodes may interrupt.
func TestRun_InterruptNotAllowed(t *testing.T) {
	compiled, err := newStateGraph().
		AddNode("sneaky", makeApprovalNode("let me pause")).
		AddEdge("sneaky", END).
		SetEntry("sneaky").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "", State{})

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "interrupt", nodeErr.Op)
	assert.ErrorIs(t, err, ErrInterruptNotAllowed)
}

// TestRun_InterruptWithoutStore tests that Run reports a suspension even
// though it cannot be resumed.
func TestRun_InterruptWithoutStore(t *testing.T) {
	compiled, err := approvalGraph().Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "", State{})

	require.NoError(t, err)
	assert.True(t, result.Suspended())
	require.NotNil(t, result.Interrupt)
	assert.Equal(t, "review", result.Interrupt.NodeID)
	assert.Equal(t, "please review", result.Interrupt.Prompt)
	assert.Equal(t, []string{"prepare"}, result.State.Progress)
}

// TestRun_Observer tests the event sequence delivered to observers.
func TestRun_Observer(t *testing.T) {
	compiled, err := newStateGraph().
		AddNode("a", makeStepNode("a")).
		AddNode("b", makeStepNode("b")).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	var events []Event[State]
	_, err = compiled.Run(testCtx(), "obs", State{}, WithObserver(func(e Event[State]) {
		events = append(events, e)
	}))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, EventNode, events[0].Kind)
	assert.Equal(t, "a", events[0].NodeID)
	assert.Equal(t, []string{"a"}, events[0].State.Progress)
	assert.Equal(t, EventNode, events[1].Kind)
	assert.Equal(t, "b", events[1].NodeID)
	assert.Equal(t, EventCompleted, events[2].Kind)
	assert.Equal(t, "obs", events[2].ThreadID)
}

// TestRun_ObserverTypeMismatch tests that a mistyped observer is ignored.
func TestRun_ObserverTypeMismatch(t *testing.T) {
	compiled, err := NewGraph(addDelta).
		AddNode("inc", increment).
		AddEdge("inc", END).
		SetEntry("inc").
		Compile()
	require.NoError(t, err)

	called := false
	result, err := compiled.Run(testCtx(), "", Counter{}, WithObserver(func(Event[State]) {
		called = true
	}))

	require.NoError(t, err)
	assert.Equal(t, 1, result.State.Value)
	assert.False(t, called)
}

// TestNewContext tests building a Context for calling nodes directly.
func TestNewContext(t *testing.T) {
	d := interrupt.NewDecision(interrupt.Rejected, "bob")
	ctx := NewContext(context.Background(), WithThreadID("t"), WithDecision(d), WithLogger(nil))

	assert.Equal(t, "t", ctx.ThreadID())
	assert.Empty(t, ctx.NodeID())
	require.NotNil(t, ctx.Decision())
	assert.Equal(t, interrupt.Rejected, ctx.Decision().Verdict)
	assert.NotNil(t, ctx.Logger())

	patch, err := makeApprovalNode("x")(ctx, State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rejected"}, patch.Progress)
}
