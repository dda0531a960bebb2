package flowgraph

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart.
//
// Shapes: the entry node is a circle, interrupt nodes are parallelograms
// and fork nodes are hexagons. Conditional edges are drawn dotted to their
// declared route targets.
func (cg *CompiledGraph[S, U]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range cg.order {
		opener, closer := "[", "]"
		switch {
		case id == cg.entryPoint:
			opener, closer = "((", "))"
		case cg.interruptNodes[id]:
			opener, closer = "[/", "/]"
		case cg.IsForkNode(id):
			opener, closer = "{{", "}}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(id), opener, id, closer)
	}
	fmt.Fprintf(&sb, "    %s((\"END\"))\n", mermaidID(END))

	for _, from := range cg.order {
		if _, conditional := cg.conditionalEdges[from]; conditional {
			for _, to := range cg.routeTargets[from] {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", mermaidID(from), mermaidID(to))
			}
			continue
		}
		for _, to := range cg.edges[from] {
			fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID(from), mermaidID(to))
		}
	}

	return sb.String()
}

func mermaidID(id string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return r.Replace(id)
}
