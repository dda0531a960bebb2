// Package tools implements the collaborators behind the assistant steps:
// model-backed classification, compliance review, summarization and
// answering, an in-memory document index and a deadline tracker.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/auditflow/internal/agent"
	fgerrors "github.com/randalmurphal/auditflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/llm"
)

const classifyPrompt = `Classify this user message as either 'simple' or 'complex'.
Simple: a direct question that needs one search (e.g., 'What is finding HK-001?')
Complex: a task requiring multiple steps (e.g., 'Review all critical findings and identify compliance gaps, then prepare a report')
User message: %s
Answer with only one word: simple or complex`

const compliancePrompt = `Analyse these findings for regulatory compliance gaps:
%s

Check each finding for these REQUIRED attributes:
1. Remediation owner (named individual, not just a department)
2. Target completion date (specific date)
3. Budget allocated (amount or 'within existing budget')
4. Current status (Open/In Progress/Closed)

List any missing attributes as GAPS. Reference HKMA or MAS guidelines where applicable. Be specific and concise. If nothing is missing, say "No gaps identified."`

const summaryPrompt = `Based on the following findings and compliance analysis, write a concise executive summary suitable for the Chief Audit Executive.

FINDINGS:
%s

COMPLIANCE GAPS:
%s

Format:
- Executive Summary (2-3 sentences)
- Key Findings (numbered list, max 5)
- Compliance Gaps (numbered list)
- Recommended Actions (numbered list, prioritised by risk)
- Conclusion
Keep the total under 400 words.`

const answerPrompt = `Answer this question using only the provided context.
Question: %s
Context:
%s
If the answer is not in the context, say so clearly.`

const (
	complianceSystem = "You are a compliance officer reviewing audit findings."
	summarySystem    = "You are a senior internal auditor preparing an executive summary."
)

// Model implements the agent's model-backed collaborators on top of an
// llm.Client. Calls that fail transiently or return nothing are retried.
type Model struct {
	client llm.Client
	retry  fgerrors.RetryConfig
	logger *slog.Logger
}

var (
	_ agent.Classifier          = (*Model)(nil)
	_ agent.ComplianceEvaluator = (*Model)(nil)
	_ agent.Summarizer          = (*Model)(nil)
	_ agent.Answerer            = (*Model)(nil)
)

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithRetry sets the retry policy for model calls.
func WithRetry(cfg fgerrors.RetryConfig) ModelOption {
	return func(m *Model) {
		m.retry = cfg
	}
}

// WithModelLogger sets the logger used for retries.
func WithModelLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewModel wraps client.
func NewModel(client llm.Client, opts ...ModelOption) *Model {
	m := &Model{
		client: client,
		retry:  fgerrors.DefaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retry.Logger == nil {
		m.retry.Logger = m.logger
	}
	return m
}

// Classify asks the model for a one-word classification. The reply is
// returned lower-cased; the caller maps unknown labels to simple.
func (m *Model) Classify(ctx context.Context, message string) (string, error) {
	reply, err := m.ask(ctx, "classify", "", fmt.Sprintf(classifyPrompt, message))
	if err != nil {
		return "", err
	}
	return strings.ToLower(reply), nil
}

// Evaluate reviews a findings summary against the compliance checklist.
func (m *Model) Evaluate(ctx context.Context, summary string) (string, error) {
	return m.ask(ctx, "compliance", complianceSystem, fmt.Sprintf(compliancePrompt, summary))
}

// Summarize writes the executive summary for a complex request.
func (m *Model) Summarize(ctx context.Context, findings, gaps string) (string, error) {
	return m.ask(ctx, "summarize", summarySystem, fmt.Sprintf(summaryPrompt, findings, gaps))
}

// Answer answers question from excerpts only.
func (m *Model) Answer(ctx context.Context, question, excerpts string) (string, error) {
	return m.ask(ctx, "answer", "", fmt.Sprintf(answerPrompt, question, excerpts))
}

func (m *Model) ask(ctx context.Context, op, system, prompt string) (string, error) {
	return fgerrors.Retry(ctx, m.retry, op, func(ctx context.Context) (string, error) {
		reply, err := llm.Ask(ctx, m.client, system, prompt)
		if err != nil {
			return "", err
		}
		if reply == "" {
			return "", &fgerrors.EmptyOutputError{Op: op}
		}
		return reply, nil
	})
}
