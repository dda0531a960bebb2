package flowgraph

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and a read-only view of the current
// state, and return a partial update. The engine merges the update into the
// state with the graph's Reducer; nodes never write to shared state directly.
//
// A node may return Interrupt(prompt) instead of an update to suspend the
// run for a human decision. Only nodes registered with SetInterruptNode may
// do so.
//
// Example:
//
//	func classify(ctx flowgraph.Context, s State) (Update, error) {
//	    return Update{Kind: "simple"}, nil
//	}
type NodeFunc[S, U any] func(ctx Context, state S) (U, error)

// RouterFunc determines the next node based on state.
// It is used for conditional edges where the next node depends on runtime state.
//
// The router should return a valid node ID or flowgraph.END.
// Returning an empty string or an unknown node ID will cause a runtime error.
// Routers are pure: they must not change state.
//
// Example:
//
//	func router(ctx flowgraph.Context, s State) string {
//	    if s.Done {
//	        return flowgraph.END
//	    }
//	    return "process"
//	}
type RouterFunc[S any] func(ctx Context, state S) string

// Reducer merges a node's partial update into the state and returns the
// new state. It is the only place where state changes.
type Reducer[S, U any] func(state S, update U) S
