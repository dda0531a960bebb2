package flowgraph

import (
	"maps"
	"slices"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/lock"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is safe for concurrent use. Runs on different threads
// proceed in parallel; runs on the same thread are serialized by the
// graph's per-thread lock.
//
// Use the introspection methods (NodeIDs, Successors, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph[S, U any] struct {
	name             string
	nodes            map[string]NodeFunc[S, U]
	order            []string
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc[S]
	routeTargets     map[string][]string
	interruptNodes   map[string]bool
	entryPoint       string
	reduce           Reducer[S, U]

	predecessors map[string][]string
	forkNodes    map[string]*ForkNode

	locks *lock.Keyed
}

// Name returns the graph name used for spans and logs.
func (cg *CompiledGraph[S, U]) Name() string {
	return cg.name
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S, U]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in declaration order.
func (cg *CompiledGraph[S, U]) NodeIDs() []string {
	return slices.Clone(cg.order)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S, U]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns the node IDs that can be reached from the given node
// via simple (non-conditional) edges.
// Returns nil for END or unknown nodes.
// Does not include targets of conditional edges (those are runtime-determined).
func (cg *CompiledGraph[S, U]) Successors(id string) []string {
	if id == END {
		return nil
	}
	return slices.Clone(cg.edges[id])
}

// Predecessors returns the node IDs that have simple edges to the given node.
func (cg *CompiledGraph[S, U]) Predecessors(id string) []string {
	return slices.Clone(cg.predecessors[id])
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S, U]) IsConditional(id string) bool {
	_, exists := cg.conditionalEdges[id]
	return exists
}

// RouteTargets returns the declared targets of a conditional edge.
func (cg *CompiledGraph[S, U]) RouteTargets(id string) []string {
	return slices.Clone(cg.routeTargets[id])
}

// IsInterruptNode returns true if the node may suspend the run.
func (cg *CompiledGraph[S, U]) IsInterruptNode(id string) bool {
	return cg.interruptNodes[id]
}

// IsForkNode returns true if the node fans out to parallel branches.
func (cg *CompiledGraph[S, U]) IsForkNode(id string) bool {
	_, exists := cg.forkNodes[id]
	return exists
}

// GetForkNode returns the fork information for a node, or nil if not a fork.
func (cg *CompiledGraph[S, U]) GetForkNode(id string) *ForkNode {
	return cg.forkNodes[id]
}

// ForkNodes returns all fork nodes in the graph ordered by node ID.
func (cg *CompiledGraph[S, U]) ForkNodes() []*ForkNode {
	result := make([]*ForkNode, 0, len(cg.forkNodes))
	for _, id := range sortedKeys(cg.forkNodes) {
		result = append(result, cg.forkNodes[id])
	}
	return result
}

// HasParallelExecution returns true if the graph contains any fan-out.
func (cg *CompiledGraph[S, U]) HasParallelExecution() bool {
	return len(cg.forkNodes) > 0
}

func (cg *CompiledGraph[S, U]) getNode(id string) (NodeFunc[S, U], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

func (cg *CompiledGraph[S, U]) getRouter(id string) (RouterFunc[S], bool) {
	router, exists := cg.conditionalEdges[id]
	return router, exists
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
