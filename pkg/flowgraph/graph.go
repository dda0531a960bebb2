package flowgraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := flowgraph.NewGraph(applyUpdate).
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    AddEdge("fetch", "process").
//	    AddEdge("process", flowgraph.END).
//	    SetEntry("fetch")
//
//	compiled, err := graph.Compile()
type Graph[S, U any] struct {
	mu               sync.RWMutex
	name             string
	nodes            map[string]NodeFunc[S, U]
	order            []string
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc[S]
	routeTargets     map[string][]string
	interruptNodes   map[string]bool
	entryPoint       string
	reduce           Reducer[S, U]
}

// NewGraph creates a new graph builder. The type parameter S is the state
// that flows through the graph and U is the partial update nodes return.
// reduce merges each update into the state.
//
// Panics if reduce is nil.
func NewGraph[S, U any](reduce Reducer[S, U]) *Graph[S, U] {
	if reduce == nil {
		panic("flowgraph: reducer cannot be nil")
	}
	return &Graph[S, U]{
		name:             "flowgraph",
		nodes:            make(map[string]NodeFunc[S, U]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]RouterFunc[S]),
		routeTargets:     make(map[string][]string),
		interruptNodes:   make(map[string]bool),
		reduce:           reduce,
	}
}

// SetName sets the name used for run spans and logs.
func (g *Graph[S, U]) SetName(name string) *Graph[S, U] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if name != "" {
		g.name = name
	}
	return g
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S, U]) AddNode(id string, fn NodeFunc[S, U]) *Graph[S, U] {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	g.order = append(g.order, id)
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END.
// Returns the graph for method chaining.
//
// Adding more than one edge from the same node declares a fan-out: the
// targets run concurrently and their updates are merged in the order the
// edges were added. Edge validation happens at Compile() time, not here.
func (g *Graph[S, U]) AddEdge(from, to string) *Graph[S, U] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc
// determines the next node at runtime based on state.
// Returns the graph for method chaining.
//
// The router function should return a valid node ID or flowgraph.END.
// Returning an empty string or unknown node ID will cause a runtime error.
//
// targets optionally lists the nodes the router may return. They are
// validated at Compile() time and used for visualization; the router is
// not restricted to them.
//
// A node can have either simple edges or a conditional edge, not both.
// If both are present, the conditional edge takes precedence.
func (g *Graph[S, U]) AddConditionalEdge(from string, router RouterFunc[S], targets ...string) *Graph[S, U] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = router
	g.routeTargets[from] = append([]string(nil), targets...)
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S, U]) SetEntry(id string) *Graph[S, U] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

// SetInterruptNode allows the node to suspend the run by returning
// Interrupt. When the run is resumed with a decision, this node is
// executed again and can read the decision from its Context.
//
// Validation happens at Compile() time.
func (g *Graph[S, U]) SetInterruptNode(id string) *Graph[S, U] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.interruptNodes[id] = true
	return g
}
