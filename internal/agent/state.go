package agent

import (
	"slices"

	"github.com/randalmurphal/auditflow/pkg/flowgraph"
)

// QuestionType is the classification of the latest user message.
type QuestionType string

// Question types.
const (
	Unclassified QuestionType = "unclassified"
	Simple       QuestionType = "simple"
	Complex      QuestionType = "complex"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is a retrieved excerpt.
type Document struct {
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance,omitempty"`
}

// State is threaded through every step of one conversation thread and
// persisted in its checkpoint.
type State struct {
	ThreadID         string       `json:"thread_id"`
	Conversation     []Message    `json:"conversation"`
	QuestionType     QuestionType `json:"question_type"`
	RetrievedDocs    []Document   `json:"retrieved_docs"`
	Sources          []string     `json:"sources"`
	ComplianceGaps   []string     `json:"compliance_gaps"`
	DeadlineWarnings []string     `json:"deadline_warnings"`
	NeedsApproval    bool         `json:"needs_approval"`
	FinalResponse    string       `json:"final_response"`
	// StepsTaken is the trace of every step label since the session began.
	StepsTaken []string `json:"steps_taken"`
	// Turn counts user messages in this session, starting at 1.
	Turn int `json:"turn"`
	// TurnStart indexes the first StepsTaken entry of the current turn.
	TurnStart int `json:"turn_start"`
}

// LatestUserMessage returns the content of the most recent user message.
func (s State) LatestUserMessage() string {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == RoleUser {
			return s.Conversation[i].Content
		}
	}
	return ""
}

// TurnSteps returns the step labels recorded during the current turn.
func (s State) TurnSteps() []string {
	if s.TurnStart < 0 || s.TurnStart > len(s.StepsTaken) {
		return slices.Clone(s.StepsTaken)
	}
	return slices.Clone(s.StepsTaken[s.TurnStart:])
}

// Clone returns a deep copy. Fan-out branches each receive a clone.
func (s State) Clone() State {
	c := s
	c.Conversation = slices.Clone(s.Conversation)
	c.RetrievedDocs = slices.Clone(s.RetrievedDocs)
	c.Sources = slices.Clone(s.Sources)
	c.ComplianceGaps = slices.Clone(s.ComplianceGaps)
	c.DeadlineWarnings = slices.Clone(s.DeadlineWarnings)
	c.StepsTaken = slices.Clone(s.StepsTaken)
	return c
}

var _ flowgraph.Cloner[State] = State{}

// Opt is an optional replacement value in an Update.
type Opt[T any] struct {
	Value T
	Set   bool
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Update is the partial result of a step. Conversation, Sources and Steps
// are appended (Sources skips identifiers already present); every other
// field replaces the state's value when Set.
type Update struct {
	Conversation     []Message
	QuestionType     Opt[QuestionType]
	RetrievedDocs    Opt[[]Document]
	Sources          []string
	ComplianceGaps   Opt[[]string]
	DeadlineWarnings Opt[[]string]
	NeedsApproval    Opt[bool]
	FinalResponse    Opt[string]
	Steps            []string
}

// Apply merges u into s and returns the result. s is not modified.
func Apply(s State, u Update) State {
	out := s.Clone()

	out.Conversation = append(out.Conversation, u.Conversation...)
	for _, src := range u.Sources {
		if !slices.Contains(out.Sources, src) {
			out.Sources = append(out.Sources, src)
		}
	}
	out.StepsTaken = append(out.StepsTaken, u.Steps...)

	if u.QuestionType.Set {
		out.QuestionType = u.QuestionType.Value
	}
	if u.RetrievedDocs.Set {
		out.RetrievedDocs = slices.Clone(u.RetrievedDocs.Value)
	}
	if u.ComplianceGaps.Set {
		out.ComplianceGaps = slices.Clone(u.ComplianceGaps.Value)
	}
	if u.DeadlineWarnings.Set {
		out.DeadlineWarnings = slices.Clone(u.DeadlineWarnings.Value)
	}
	if u.NeedsApproval.Set {
		out.NeedsApproval = u.NeedsApproval.Value
	}
	if u.FinalResponse.Set {
		out.FinalResponse = u.FinalResponse.Value
	}
	return out
}

// NewTurn returns the prepare function for a user message on threadID.
//
// The conversation and trace carry over from the thread's last state; the
// per-turn fields are reset. newSession starts the thread from scratch.
func NewTurn(threadID, message string, newSession bool) flowgraph.PrepareFunc[State] {
	return func(prev State, found bool) (State, error) {
		s := State{}
		if found && !newSession {
			s = prev.Clone()
		}
		if s.Conversation == nil {
			s.Conversation = []Message{}
		}
		if s.StepsTaken == nil {
			s.StepsTaken = []string{}
		}

		s.ThreadID = threadID
		s.Turn++
		s.TurnStart = len(s.StepsTaken)
		s.Conversation = append(s.Conversation, Message{Role: RoleUser, Content: message})

		s.QuestionType = Unclassified
		s.RetrievedDocs = []Document{}
		s.Sources = []string{}
		s.ComplianceGaps = []string{}
		s.DeadlineWarnings = []string{}
		s.NeedsApproval = false
		s.FinalResponse = ""
		return s, nil
	}
}
