package agent

import (
	"context"
	"time"
)

// SearchHit is one ranked excerpt returned by a Retriever.
type SearchHit struct {
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// Finding is a tracked remediation item.
type Finding struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Owner    string    `json:"owner"`
	Deadline time.Time `json:"deadline"`
	Status   string    `json:"status"`
	// DaysRemaining is whole days from now until Deadline, negative when
	// overdue.
	DaysRemaining int `json:"days_remaining"`
}

// Retriever searches the audit document corpus. An empty result is valid.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]SearchHit, error)
}

// ComplianceEvaluator checks a findings summary against the compliance
// checklist and returns a free-text gap report.
type ComplianceEvaluator interface {
	Evaluate(ctx context.Context, summary string) (string, error)
}

// DeadlineSource returns tracked findings due within thresholdDays,
// including overdue ones, ordered as tracked.
type DeadlineSource interface {
	FindingsAtRisk(ctx context.Context, thresholdDays int) ([]Finding, error)
}

// Summarizer writes the structured report for complex requests.
type Summarizer interface {
	Summarize(ctx context.Context, findings, gaps string) (string, error)
}

// Classifier labels a user message. Any answer other than "simple" or
// "complex" is treated as simple.
type Classifier interface {
	Classify(ctx context.Context, message string) (string, error)
}

// Answerer answers a simple question strictly from the supplied context.
type Answerer interface {
	Answer(ctx context.Context, question, excerpts string) (string, error)
}

// Tools bundles the collaborators the steps call.
type Tools struct {
	Classifier Classifier
	Retriever  Retriever
	Evaluator  ComplianceEvaluator
	Deadlines  DeadlineSource
	Summarizer Summarizer
	Answerer   Answerer
}
