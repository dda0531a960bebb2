// Package agent wires the audit assistant workflow: the shared state, the
// step functions, the two routers and the graph that connects them.
//
//	classify ──simple──> fast_retrieve ───────────────────────────> respond ──> END
//	    └─────complex──> plan ──┬─> retrieve ─────────────────────────^
//	                            ├─> check_deadlines ──────────────────^
//	                            └─> assess_compliance ─needs_approval─> human_review ─> respond
//
// The three plan branches run concurrently and are merged in the order
// above before the compliance router runs on the merged state.
package agent

import (
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
)

// Node IDs.
const (
	NodeClassify         = "classify"
	NodeFastRetrieve     = "fast_retrieve"
	NodePlan             = "plan"
	NodeRetrieve         = "retrieve"
	NodeAssessCompliance = "assess_compliance"
	NodeCheckDeadlines   = "check_deadlines"
	NodeHumanReview      = "human_review"
	NodeRespond          = "respond"
)

// GraphName names the workflow in logs and traces.
const GraphName = "audit-assistant"

// NewGraph returns the uncompiled workflow graph for steps.
func NewGraph(steps *Steps) *flowgraph.Graph[State, Update] {
	return flowgraph.NewGraph[State, Update](Apply).
		SetName(GraphName).
		AddNode(NodeClassify, steps.Classify).
		AddNode(NodeFastRetrieve, steps.FastRetrieve).
		AddNode(NodePlan, steps.Plan).
		AddNode(NodeRetrieve, steps.Retrieve).
		AddNode(NodeAssessCompliance, steps.AssessCompliance).
		AddNode(NodeCheckDeadlines, steps.CheckDeadlines).
		AddNode(NodeHumanReview, steps.HumanReview).
		AddNode(NodeRespond, steps.Respond).
		SetEntry(NodeClassify).
		AddConditionalEdge(NodeClassify, RouteAfterClassify, NodeFastRetrieve, NodePlan).
		AddEdge(NodeFastRetrieve, NodeRespond).
		AddEdge(NodePlan, NodeRetrieve).
		AddEdge(NodePlan, NodeAssessCompliance).
		AddEdge(NodePlan, NodeCheckDeadlines).
		AddEdge(NodeRetrieve, NodeRespond).
		AddConditionalEdge(NodeAssessCompliance, RouteAfterCompliance, NodeHumanReview, NodeRespond).
		AddEdge(NodeCheckDeadlines, NodeRespond).
		SetInterruptNode(NodeHumanReview).
		AddEdge(NodeHumanReview, NodeRespond).
		AddEdge(NodeRespond, flowgraph.END)
}

// Compile builds and compiles the workflow.
func Compile(steps *Steps, opts ...flowgraph.CompileOption) (*flowgraph.CompiledGraph[State, Update], error) {
	return NewGraph(steps).Compile(opts...)
}
