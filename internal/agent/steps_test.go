package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/randalmurphal/auditflow/internal/agent/agenttest"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSteps(t *testing.T, f *agenttest.Fakes) *agent.Steps {
	t.Helper()
	steps, err := agent.NewSteps(f.Tools(), agent.DefaultSettings())
	require.NoError(t, err)
	return steps
}

func stepCtx() flowgraph.Context {
	return flowgraph.NewContext(context.Background())
}

func turnState(message string) agent.State {
	s, _ := agent.NewTurn("t1", message, false)(agent.State{}, false)
	return s
}

func TestNewSteps(t *testing.T) {
	_, err := agent.NewSteps(agent.Tools{}, agent.Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier is required")
	assert.Contains(t, err.Error(), "answerer is required")

	f := agenttest.New()
	steps, err := agent.NewSteps(f.Tools(), agent.Settings{})
	require.NoError(t, err)

	_, err = steps.FastRetrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)
	_, err = steps.Retrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)
	_, err = steps.CheckDeadlines(stepCtx(), turnState("q"))
	require.NoError(t, err)

	assert.Equal(t, []int{5, 8}, f.Retriever.TopKs, "zero settings fall back to defaults")
	assert.Equal(t, []int{30}, f.Deadlines.Thresholds)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  agent.QuestionType
	}{
		{"simple", "simple", agent.Simple},
		{"complex", "complex", agent.Complex},
		{"case and space", "  Complex\n", agent.Complex},
		{"unrecognized defaults to simple", "it depends", agent.Simple},
		{"empty defaults to simple", "", agent.Simple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := agenttest.New()
			f.Classifier.Type = tt.reply

			u, err := newSteps(t, f).Classify(stepCtx(), turnState("What is finding HK-001?"))
			require.NoError(t, err)

			assert.Equal(t, agent.Some(tt.want), u.QuestionType)
			assert.Equal(t, []string{agent.ClassifiedLabel(tt.want)}, u.Steps)
			assert.Equal(t, []string{"What is finding HK-001?"}, f.Classifier.Calls)
		})
	}
}

func TestClassify_ErrorIsFatal(t *testing.T) {
	f := agenttest.New()
	f.Classifier.Err = errors.New("model unavailable")

	_, err := newSteps(t, f).Classify(stepCtx(), turnState("q"))
	require.Error(t, err)
	assert.ErrorIs(t, err, f.Classifier.Err)
}

func TestFastRetrieve(t *testing.T) {
	f := agenttest.New()
	f.Retriever.Hits = []agent.SearchHit{
		{Content: "one", Source: "policy.pdf", Relevance: 0.9},
		{Content: "two", Source: "policy.pdf", Relevance: 0.8},
		{Content: "three", Source: "audit.pdf", Relevance: 0.7},
	}

	u, err := newSteps(t, f).FastRetrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)

	require.True(t, u.RetrievedDocs.Set)
	assert.Len(t, u.RetrievedDocs.Value, 3)
	assert.Equal(t, "policy.pdf", u.RetrievedDocs.Value[0].Source)
	assert.Equal(t, []string{agent.LabelFastRetrieve}, u.Steps)

	s := agent.Apply(turnState("q"), u)
	assert.Equal(t, []string{"policy.pdf", "audit.pdf"}, s.Sources)
	assert.Equal(t, []int{5}, f.Retriever.TopKs)
}

func TestRetrieve_BoundsAndEmpty(t *testing.T) {
	f := agenttest.New()
	f.Retriever.Hits = make([]agent.SearchHit, 12)

	steps, err := agent.NewSteps(f.Tools(), agent.Settings{DeepTopK: 8})
	require.NoError(t, err)

	u, err := steps.Retrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)
	assert.Len(t, u.RetrievedDocs.Value, 8, "a retriever over-returning is cut to top_k")
	assert.Empty(t, u.Sources)
	assert.Equal(t, []string{agent.LabelRetrieve}, u.Steps)

	f.Retriever.Hits = nil
	u, err = steps.Retrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)
	assert.True(t, u.RetrievedDocs.Set)
	assert.Empty(t, u.RetrievedDocs.Value)
}

func TestRetrieve_FailureIsDegraded(t *testing.T) {
	f := agenttest.New()
	f.Retriever.Err = errors.New("index offline")

	u, err := newSteps(t, f).Retrieve(stepCtx(), turnState("q"))
	require.NoError(t, err)

	require.Len(t, u.RetrievedDocs.Value, 1)
	assert.Equal(t, "Document search failed: index offline", u.RetrievedDocs.Value[0].Content)
	assert.Empty(t, u.Sources)
	assert.Equal(t, []string{agent.LabelRetrieve}, u.Steps)
}

func TestPlan(t *testing.T) {
	u, err := newSteps(t, agenttest.New()).Plan(stepCtx(), turnState("q"))
	require.NoError(t, err)

	assert.Equal(t, agent.Some(true), u.NeedsApproval)
	assert.Equal(t, []string{agent.LabelPlan}, u.Steps)
}

func TestAssessCompliance(t *testing.T) {
	t.Run("uses excerpts of retrieved documents", func(t *testing.T) {
		f := agenttest.New()
		f.Evaluator.Report = agenttest.GapReport

		s := turnState("Review all findings")
		s.RetrievedDocs = []agent.Document{
			{Content: strings.Repeat("a", 450)},
			{Content: "short"},
		}

		u, err := newSteps(t, f).AssessCompliance(stepCtx(), s)
		require.NoError(t, err)

		require.Len(t, f.Evaluator.Summaries, 1)
		assert.Equal(t, strings.Repeat("a", 400)+" short", f.Evaluator.Summaries[0])
		assert.Equal(t, agent.Some([]string{agenttest.GapReport}), u.ComplianceGaps)
		assert.Equal(t, agent.Some(true), u.NeedsApproval)
		assert.Equal(t, []string{agent.LabelCompliance}, u.Steps)
	})

	t.Run("falls back to the user message", func(t *testing.T) {
		f := agenttest.New()

		u, err := newSteps(t, f).AssessCompliance(stepCtx(), turnState("Review all findings"))
		require.NoError(t, err)

		assert.Equal(t, []string{"Review all findings"}, f.Evaluator.Summaries)
		assert.Equal(t, agent.Some(false), u.NeedsApproval, "a no-gap report clears approval")
	})

	t.Run("failure is degraded and gated", func(t *testing.T) {
		f := agenttest.New()
		f.Evaluator.Err = errors.New("timeout")

		u, err := newSteps(t, f).AssessCompliance(stepCtx(), turnState("q"))
		require.NoError(t, err)

		assert.Equal(t, agent.Some([]string{"Compliance check failed: timeout"}), u.ComplianceGaps)
		assert.Equal(t, agent.Some(true), u.NeedsApproval)
	})

	t.Run("custom policy", func(t *testing.T) {
		f := agenttest.New()
		f.Evaluator.Report = agenttest.GapReport

		steps, err := agent.NewSteps(f.Tools(), agent.Settings{Policy: agent.GapReportPolicy{MinLength: 1000}})
		require.NoError(t, err)

		u, err := steps.AssessCompliance(stepCtx(), turnState("q"))
		require.NoError(t, err)
		assert.Equal(t, agent.Some(false), u.NeedsApproval)
	})
}

func TestCheckDeadlines(t *testing.T) {
	deadline := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	f := agenttest.New()
	f.Deadlines.Findings = []agent.Finding{
		{ID: "HK-2024-001", Title: "Trade reconciliation control gap", Owner: "Alice Chen", Deadline: deadline, Status: "In Progress", DaysRemaining: 20},
	}

	u, err := newSteps(t, f).CheckDeadlines(stepCtx(), turnState("q"))
	require.NoError(t, err)

	assert.Equal(t, agent.Some([]string{
		"Finding HK-2024-001: 'Trade reconciliation control gap' | Owner: Alice Chen | Deadline: 2026-03-15 (20 days) | Status: In Progress",
	}), u.DeadlineWarnings)
	assert.Equal(t, []string{agent.LabelDeadlines}, u.Steps)

	t.Run("nothing at risk", func(t *testing.T) {
		f.Deadlines.Findings = nil
		u, err := newSteps(t, f).CheckDeadlines(stepCtx(), turnState("q"))
		require.NoError(t, err)
		assert.True(t, u.DeadlineWarnings.Set)
		assert.Empty(t, u.DeadlineWarnings.Value)
	})

	t.Run("failure is degraded", func(t *testing.T) {
		f.Deadlines.Err = errors.New("store down")
		u, err := newSteps(t, f).CheckDeadlines(stepCtx(), turnState("q"))
		require.NoError(t, err)
		assert.Equal(t, agent.Some([]string{"Deadline check failed: store down"}), u.DeadlineWarnings)
	})
}

func TestHumanReview(t *testing.T) {
	s := turnState("q")
	s.ComplianceGaps = []string{agenttest.GapReport}
	s.DeadlineWarnings = []string{"w1", "w2"}
	s.NeedsApproval = true

	t.Run("suspends without a decision", func(t *testing.T) {
		_, err := newSteps(t, agenttest.New()).HumanReview(stepCtx(), s)

		var sig *flowgraph.InterruptSignal
		require.ErrorAs(t, err, &sig)
		assert.Equal(t, "HUMAN APPROVAL REQUIRED\n"+
			"Compliance gaps found: 1 issue(s)\n"+
			"Deadline warnings: 2 item(s)\n"+
			"Please review and approve or reject report generation.", sig.Prompt)
	})

	t.Run("approved", func(t *testing.T) {
		ctx := flowgraph.NewContext(context.Background(),
			flowgraph.WithDecision(interrupt.NewDecision(interrupt.Approved, "alice")))

		u, err := newSteps(t, agenttest.New()).HumanReview(ctx, s)
		require.NoError(t, err)

		assert.Equal(t, agent.Some(false), u.NeedsApproval)
		assert.False(t, u.FinalResponse.Set)
		assert.Equal(t, []string{agent.LabelApproved}, u.Steps)
	})

	t.Run("rejected", func(t *testing.T) {
		ctx := flowgraph.NewContext(context.Background(),
			flowgraph.WithDecision(interrupt.NewDecision(interrupt.Rejected, "bob")))

		u, err := newSteps(t, agenttest.New()).HumanReview(ctx, s)
		require.NoError(t, err)

		assert.Equal(t, agent.Some(agent.RejectionNotice), u.FinalResponse)
		assert.Equal(t, []string{agent.LabelRejected}, u.Steps)
	})
}

func TestRespond_Simple(t *testing.T) {
	f := agenttest.New()

	s := turnState("What is finding HK-001?")
	s.QuestionType = agent.Simple
	s.RetrievedDocs = []agent.Document{
		{Content: strings.Repeat("b", 1200), Source: "policy.pdf", Relevance: 0.912},
		{Content: "unsourced"},
	}

	u, err := newSteps(t, f).Respond(stepCtx(), s)
	require.NoError(t, err)

	assert.Equal(t, agent.Some(f.Answerer.Reply), u.FinalResponse)
	assert.Equal(t, []agent.Message{{Role: agent.RoleAssistant, Content: f.Answerer.Reply}}, u.Conversation)
	assert.Equal(t, []string{agent.LabelResponded}, u.Steps)

	require.Len(t, f.Answerer.Contexts, 1)
	assert.Equal(t,
		"[1] Source: policy.pdf (relevance: 0.912)\n    "+strings.Repeat("b", 1000)+"\nunsourced",
		f.Answerer.Contexts[0])
}

func TestRespond_SimpleWithoutDocuments(t *testing.T) {
	f := agenttest.New()

	_, err := newSteps(t, f).Respond(stepCtx(), turnState("q"))
	require.NoError(t, err)
	assert.Equal(t, []string{agent.NoDocumentsFound}, f.Answerer.Contexts)
}

func TestRespond_Complex(t *testing.T) {
	f := agenttest.New()

	s := turnState("Review all findings")
	s.QuestionType = agent.Complex
	s.RetrievedDocs = []agent.Document{{Content: strings.Repeat("c", 600)}, {Content: "d"}}
	s.DeadlineWarnings = []string{"w1", "w2"}

	u, err := newSteps(t, f).Respond(stepCtx(), s)
	require.NoError(t, err)

	require.Len(t, f.Summarizer.Calls, 1)
	assert.Equal(t, strings.Repeat("c", 500)+"\nd", f.Summarizer.Calls[0][0])
	assert.Equal(t, "None identified", f.Summarizer.Calls[0][1])
	assert.Equal(t, agent.Some(f.Summarizer.Report+"\n\n---\nDEADLINE ALERTS:\nw1\nw2"), u.FinalResponse)

	t.Run("gaps are passed and no alerts without warnings", func(t *testing.T) {
		s.ComplianceGaps = []string{"g1", "g2"}
		s.DeadlineWarnings = []string{}

		u, err := newSteps(t, f).Respond(stepCtx(), s)
		require.NoError(t, err)

		assert.Equal(t, "g1\ng2", f.Summarizer.Calls[1][1])
		assert.Equal(t, agent.Some(f.Summarizer.Report), u.FinalResponse)
	})
}

func TestRespond_ErrorIsFatal(t *testing.T) {
	f := agenttest.New()
	f.Answerer.Err = errors.New("model down")

	_, err := newSteps(t, f).Respond(stepCtx(), turnState("q"))
	assert.ErrorIs(t, err, f.Answerer.Err)
}

func TestRespond_NoOpWhenFinal(t *testing.T) {
	f := agenttest.New()
	steps := newSteps(t, f)

	s := turnState("q")
	s.QuestionType = agent.Complex
	s.FinalResponse = agent.RejectionNotice

	first, err := steps.Respond(stepCtx(), s)
	require.NoError(t, err)
	once := agent.Apply(s, first)

	second, err := steps.Respond(stepCtx(), once)
	require.NoError(t, err)
	twice := agent.Apply(once, second)

	assert.Equal(t, agent.Update{}, first)
	assert.Equal(t, s, twice)
	assert.Equal(t, 0, f.Summarizer.CallCount())
	assert.Equal(t, 0, f.Answerer.CallCount())
}

func TestRouters(t *testing.T) {
	ctx := stepCtx()

	assert.Equal(t, agent.NodeFastRetrieve, agent.RouteAfterClassify(ctx, agent.State{QuestionType: agent.Simple}))
	assert.Equal(t, agent.NodePlan, agent.RouteAfterClassify(ctx, agent.State{QuestionType: agent.Complex}))
	assert.Equal(t, agent.NodePlan, agent.RouteAfterClassify(ctx, agent.State{QuestionType: agent.Unclassified}))

	assert.Equal(t, agent.NodeHumanReview, agent.RouteAfterCompliance(ctx, agent.State{NeedsApproval: true}))
	assert.Equal(t, agent.NodeRespond, agent.RouteAfterCompliance(ctx, agent.State{}))
}
