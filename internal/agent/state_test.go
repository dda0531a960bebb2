package agent_test

import (
	"encoding/json"
	"testing"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	base := agent.State{
		Conversation:  []agent.Message{{Role: agent.RoleUser, Content: "hi"}},
		Sources:       []string{"a.pdf"},
		StepsTaken:    []string{"one"},
		FinalResponse: "",
	}

	t.Run("appends lists and dedupes sources", func(t *testing.T) {
		got := agent.Apply(base, agent.Update{
			Conversation: []agent.Message{{Role: agent.RoleAssistant, Content: "hello"}},
			Sources:      []string{"b.pdf", "a.pdf", "b.pdf"},
			Steps:        []string{"two"},
		})

		assert.Len(t, got.Conversation, 2)
		assert.Equal(t, []string{"a.pdf", "b.pdf"}, got.Sources)
		assert.Equal(t, []string{"one", "two"}, got.StepsTaken)
	})

	t.Run("replaces only set fields", func(t *testing.T) {
		withGaps := base
		withGaps.ComplianceGaps = []string{"old"}
		withGaps.NeedsApproval = true

		got := agent.Apply(withGaps, agent.Update{
			QuestionType:  agent.Some(agent.Complex),
			NeedsApproval: agent.Some(false),
		})

		assert.Equal(t, agent.Complex, got.QuestionType)
		assert.False(t, got.NeedsApproval)
		assert.Equal(t, []string{"old"}, got.ComplianceGaps)
	})

	t.Run("set to empty replaces", func(t *testing.T) {
		withDocs := base
		withDocs.RetrievedDocs = []agent.Document{{Content: "x"}}

		got := agent.Apply(withDocs, agent.Update{RetrievedDocs: agent.Some([]agent.Document{})})
		assert.NotNil(t, got.RetrievedDocs)
		assert.Empty(t, got.RetrievedDocs)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		before := base.Clone()
		_ = agent.Apply(base, agent.Update{
			Conversation:  []agent.Message{{Role: agent.RoleAssistant, Content: "x"}},
			Sources:       []string{"c.pdf"},
			Steps:         []string{"three"},
			FinalResponse: agent.Some("done"),
		})
		assert.Equal(t, before, base)
	})
}

func TestState_Clone(t *testing.T) {
	s := agent.State{
		Conversation:   []agent.Message{{Role: agent.RoleUser, Content: "q"}},
		RetrievedDocs:  []agent.Document{{Content: "doc"}},
		ComplianceGaps: []string{"gap"},
		StepsTaken:     []string{"s"},
	}

	c := s.Clone()
	c.Conversation[0].Content = "changed"
	c.RetrievedDocs[0].Content = "changed"
	c.ComplianceGaps[0] = "changed"
	c.StepsTaken[0] = "changed"

	assert.Equal(t, "q", s.Conversation[0].Content)
	assert.Equal(t, "doc", s.RetrievedDocs[0].Content)
	assert.Equal(t, "gap", s.ComplianceGaps[0])
	assert.Equal(t, "s", s.StepsTaken[0])
}

func TestState_LatestUserMessage(t *testing.T) {
	s := agent.State{Conversation: []agent.Message{
		{Role: agent.RoleUser, Content: "first"},
		{Role: agent.RoleAssistant, Content: "answer"},
		{Role: agent.RoleUser, Content: "second"},
		{Role: agent.RoleAssistant, Content: "answer"},
	}}
	assert.Equal(t, "second", s.LatestUserMessage())
	assert.Equal(t, "", agent.State{}.LatestUserMessage())
}

func TestNewTurn(t *testing.T) {
	prev := agent.State{
		ThreadID:         "t1",
		Conversation:     []agent.Message{{Role: agent.RoleUser, Content: "old"}, {Role: agent.RoleAssistant, Content: "reply"}},
		QuestionType:     agent.Complex,
		RetrievedDocs:    []agent.Document{{Content: "doc"}},
		Sources:          []string{"a.pdf"},
		ComplianceGaps:   []string{"gap"},
		DeadlineWarnings: []string{"warn"},
		NeedsApproval:    true,
		FinalResponse:    "done",
		StepsTaken:       []string{"Classified as: complex", "Response generated"},
		Turn:             1,
	}

	t.Run("first turn", func(t *testing.T) {
		s, err := agent.NewTurn("t1", "What is finding HK-001?", false)(agent.State{}, false)
		require.NoError(t, err)

		assert.Equal(t, "t1", s.ThreadID)
		assert.Equal(t, 1, s.Turn)
		assert.Equal(t, 0, s.TurnStart)
		assert.Equal(t, agent.Unclassified, s.QuestionType)
		assert.Equal(t, []agent.Message{{Role: agent.RoleUser, Content: "What is finding HK-001?"}}, s.Conversation)
		assert.NotNil(t, s.StepsTaken)
		assert.Empty(t, s.StepsTaken)
	})

	t.Run("follow-up keeps history and resets turn fields", func(t *testing.T) {
		s, err := agent.NewTurn("t1", "next", false)(prev, true)
		require.NoError(t, err)

		assert.Equal(t, 2, s.Turn)
		assert.Equal(t, 2, s.TurnStart)
		assert.Len(t, s.Conversation, 3)
		assert.Equal(t, prev.StepsTaken, s.StepsTaken)
		assert.Empty(t, s.TurnSteps())

		assert.Equal(t, agent.Unclassified, s.QuestionType)
		assert.Empty(t, s.RetrievedDocs)
		assert.Empty(t, s.Sources)
		assert.Empty(t, s.ComplianceGaps)
		assert.Empty(t, s.DeadlineWarnings)
		assert.False(t, s.NeedsApproval)
		assert.Empty(t, s.FinalResponse)

		assert.Len(t, prev.Conversation, 2, "previous state must not change")
	})

	t.Run("new session starts over", func(t *testing.T) {
		s, err := agent.NewTurn("t1", "fresh", true)(prev, true)
		require.NoError(t, err)

		assert.Equal(t, 1, s.Turn)
		assert.Empty(t, s.StepsTaken)
		assert.Len(t, s.Conversation, 1)
	})
}

func TestState_TurnSteps(t *testing.T) {
	s := agent.State{StepsTaken: []string{"a", "b", "c"}, TurnStart: 1}
	assert.Equal(t, []string{"b", "c"}, s.TurnSteps())

	s.TurnStart = 10
	assert.Equal(t, []string{"a", "b", "c"}, s.TurnSteps())
}

func TestState_JSONRoundTrip(t *testing.T) {
	s := agent.State{
		ThreadID:         "t1",
		Conversation:     []agent.Message{{Role: agent.RoleUser, Content: "q"}},
		QuestionType:     agent.Simple,
		RetrievedDocs:    []agent.Document{{Content: "c", Source: "policy.pdf", Relevance: 0.5}},
		Sources:          []string{"policy.pdf"},
		ComplianceGaps:   []string{},
		DeadlineWarnings: nil,
		NeedsApproval:    true,
		FinalResponse:    "answer",
		StepsTaken:       []string{"Classified as: simple"},
		Turn:             3,
		TurnStart:        1,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got agent.State
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, s, got)
	assert.NotNil(t, got.ComplianceGaps, "empty sequence stays empty")
	assert.Nil(t, got.DeadlineWarnings, "absent sequence stays absent")
}
