package flowgraph

import (
	"errors"
	"fmt"
	"log/slog"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set
//  2. Entry point must reference an existing node
//  3. All edge sources must reference existing nodes
//  4. All edge targets must reference existing nodes or END
//  5. Interrupt nodes must exist
//  6. Every fan-out must have a supported shape (see ForkNode)
//  7. All nodes must have a path to END
//
// Unreachable nodes (not reachable from entry) are logged as warnings
// but do not cause compilation to fail.
func (g *Graph[S, U]) Compile(opts ...CompileOption) (*CompiledGraph[S, U], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range sortedKeys(g.edges) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to == END {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range sortedKeys(g.conditionalEdges) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.routeTargets[from] {
			if to == END {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: route target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, id := range sortedKeys(g.interruptNodes) {
		if _, exists := g.nodes[id]; !exists {
			errs = append(errs, fmt.Errorf("%w: interrupt node '%s' does not exist", ErrNodeNotFound, id))
		}
	}

	forkNodes := make(map[string]*ForkNode)
	for _, from := range g.order {
		targets := g.edges[from]
		if len(targets) < 2 {
			continue
		}
		if _, conditional := g.conditionalEdges[from]; conditional {
			continue
		}
		fork, err := g.buildForkNode(from, targets)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		forkNodes[from] = fork
	}

	if g.entryPoint != "" {
		if _, exists := g.nodes[g.entryPoint]; exists {
			if !g.hasPathToEnd() {
				errs = append(errs, ErrNoPathToEnd)
			}
		}
	}

	g.warnUnreachableNodes()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return g.buildCompiledGraph(forkNodes, cfg), nil
}

// buildForkNode validates a fan-out from the given node and returns its
// description. A fan-out is supported when:
//   - every branch is a distinct, ordinary node (not END, not an interrupt node)
//   - every branch without a router has exactly one outgoing edge, and all
//     of those edges lead to the same join node
//   - at most one branch has a conditional edge; it is evaluated once on the
//     merged state
func (g *Graph[S, U]) buildForkNode(from string, targets []string) (*ForkNode, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: fork '%s': %s", ErrInvalidFanOut, from, fmt.Sprintf(format, args...))
	}

	fork := &ForkNode{
		NodeID:   from,
		Branches: make([]string, len(targets)),
	}
	copy(fork.Branches, targets)

	seen := make(map[string]bool, len(targets))
	for _, branch := range targets {
		if branch == END {
			return nil, fail("END cannot be a parallel branch")
		}
		if seen[branch] {
			return nil, fail("branch '%s' listed twice", branch)
		}
		seen[branch] = true

		if g.interruptNodes[branch] {
			return nil, fail("interrupt node '%s' cannot run as a parallel branch", branch)
		}

		if _, conditional := g.conditionalEdges[branch]; conditional {
			if fork.RouterBranch != "" {
				return nil, fail("branches '%s' and '%s' both have routers", fork.RouterBranch, branch)
			}
			fork.RouterBranch = branch
			continue
		}

		next := g.edges[branch]
		if len(next) != 1 {
			return nil, fail("branch '%s' must have exactly one outgoing edge, has %d", branch, len(next))
		}
		if fork.JoinNodeID == "" {
			fork.JoinNodeID = next[0]
		} else if fork.JoinNodeID != next[0] {
			return nil, fail("branches join at both '%s' and '%s'", fork.JoinNodeID, next[0])
		}
	}

	if seen[fork.JoinNodeID] {
		return nil, fail("join node '%s' is also a branch", fork.JoinNodeID)
	}

	return fork, nil
}

// hasPathToEnd checks if there's a path from entry to END.
// This uses a simple reachability analysis.
// Nodes with conditional edges are assumed to potentially reach any of their
// possible targets, including END.
func (g *Graph[S, U]) hasPathToEnd() bool {
	canReachEnd := make(map[string]bool)
	canReachEnd[END] = true

	changed := true
	for changed {
		changed = false

		for from, targets := range g.edges {
			if canReachEnd[from] {
				continue
			}
			for _, to := range targets {
				if canReachEnd[to] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}

		// A router might return END.
		for from := range g.conditionalEdges {
			if !canReachEnd[from] {
				canReachEnd[from] = true
				changed = true
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph[S, U]) warnUnreachableNodes() {
	if g.entryPoint == "" {
		return
	}

	reachable := g.findReachableNodes()

	for _, nodeID := range g.order {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph[S, U]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.edges[current] {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}

		// Router targets are only known at runtime, so every node counts
		// as reachable from a conditional edge.
		if _, hasConditional := g.conditionalEdges[current]; hasConditional {
			for _, nodeID := range g.order {
				if !reachable[nodeID] {
					reachable[nodeID] = true
					queue = append(queue, nodeID)
				}
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S, U]) buildCompiledGraph(forkNodes map[string]*ForkNode, cfg compileConfig) *CompiledGraph[S, U] {
	nodes := make(map[string]NodeFunc[S, U], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	order := make([]string, len(g.order))
	copy(order, g.order)

	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = make([]string, len(targets))
		copy(edges[from], targets)
	}

	conditionalEdges := make(map[string]RouterFunc[S], len(g.conditionalEdges))
	for from, router := range g.conditionalEdges {
		conditionalEdges[from] = router
	}

	routeTargets := make(map[string][]string, len(g.routeTargets))
	for from, targets := range g.routeTargets {
		routeTargets[from] = append([]string(nil), targets...)
	}

	interruptNodes := make(map[string]bool, len(g.interruptNodes))
	for id := range g.interruptNodes {
		interruptNodes[id] = true
	}

	predecessors := make(map[string][]string)
	for _, from := range order {
		for _, to := range edges[from] {
			if to != END {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	return &CompiledGraph[S, U]{
		name:             g.name,
		nodes:            nodes,
		order:            order,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		routeTargets:     routeTargets,
		interruptNodes:   interruptNodes,
		entryPoint:       g.entryPoint,
		reduce:           g.reduce,
		predecessors:     predecessors,
		forkNodes:        forkNodes,
		locks:            cfg.locks,
	}
}
