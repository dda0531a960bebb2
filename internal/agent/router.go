package agent

import "github.com/randalmurphal/auditflow/pkg/flowgraph"

// RouteAfterClassify sends simple questions down the fast path.
func RouteAfterClassify(_ flowgraph.Context, s State) string {
	if s.QuestionType == Simple {
		return NodeFastRetrieve
	}
	return NodePlan
}

// RouteAfterCompliance gates the response on human review when the merged
// fan-out state needs approval.
func RouteAfterCompliance(_ flowgraph.Context, s State) string {
	if s.NeedsApproval {
		return NodeHumanReview
	}
	return NodeRespond
}
