// Package agenttest provides scripted collaborators for exercising the
// workflow without a model, search index or findings store.
package agenttest

import (
	"context"
	"sync"

	"github.com/randalmurphal/auditflow/internal/agent"
)

// Classifier returns Type, or Err when set.
type Classifier struct {
	mu    sync.Mutex
	Type  string
	Err   error
	Calls []string
}

// Classify implements agent.Classifier.
func (c *Classifier) Classify(_ context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, message)
	return c.Type, c.Err
}

// Retriever returns Hits, or Err when set.
type Retriever struct {
	mu    sync.Mutex
	Hits  []agent.SearchHit
	Err   error
	TopKs []int
}

// Search implements agent.Retriever.
func (r *Retriever) Search(_ context.Context, _ string, topK int) ([]agent.SearchHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TopKs = append(r.TopKs, topK)
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]agent.SearchHit(nil), r.Hits...), nil
}

// Evaluator returns Report, or Err when set.
type Evaluator struct {
	mu        sync.Mutex
	Report    string
	Err       error
	Summaries []string
}

// Evaluate implements agent.ComplianceEvaluator.
func (e *Evaluator) Evaluate(_ context.Context, summary string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Summaries = append(e.Summaries, summary)
	return e.Report, e.Err
}

// Deadlines returns Findings, or Err when set.
type Deadlines struct {
	mu         sync.Mutex
	Findings   []agent.Finding
	Err        error
	Thresholds []int
}

// FindingsAtRisk implements agent.DeadlineSource.
func (d *Deadlines) FindingsAtRisk(_ context.Context, thresholdDays int) ([]agent.Finding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Thresholds = append(d.Thresholds, thresholdDays)
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]agent.Finding(nil), d.Findings...), nil
}

// Summarizer returns Report, or Err when set.
type Summarizer struct {
	mu     sync.Mutex
	Report string
	Err    error
	Calls  [][2]string
}

// Summarize implements agent.Summarizer.
func (s *Summarizer) Summarize(_ context.Context, findings, gaps string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, [2]string{findings, gaps})
	return s.Report, s.Err
}

// CallCount returns the number of Summarize calls.
func (s *Summarizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Answerer returns Reply, or Err when set.
type Answerer struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Contexts []string
}

// Answer implements agent.Answerer.
func (a *Answerer) Answer(_ context.Context, _ string, excerpts string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Contexts = append(a.Contexts, excerpts)
	return a.Reply, a.Err
}

// CallCount returns the number of Answer calls.
func (a *Answerer) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Contexts)
}

// Fakes bundles one of each fake.
type Fakes struct {
	Classifier *Classifier
	Retriever  *Retriever
	Evaluator  *Evaluator
	Deadlines  *Deadlines
	Summarizer *Summarizer
	Answerer   *Answerer
}

// New returns fakes with benign defaults: the message is simple, search
// returns one excerpt from policy.pdf, the compliance report states no
// gaps and no finding is at risk.
func New() *Fakes {
	return &Fakes{
		Classifier: &Classifier{Type: "simple"},
		Retriever: &Retriever{Hits: []agent.SearchHit{
			{Content: "Finding HK-001 concerns trade reconciliation controls.", Source: "policy.pdf", Relevance: 0.91},
		}},
		Evaluator:  &Evaluator{Report: "No gaps identified."},
		Deadlines:  &Deadlines{},
		Summarizer: &Summarizer{Report: "Executive Summary\nAll findings are on track."},
		Answerer:   &Answerer{Reply: "HK-001 is a trade reconciliation control gap."},
	}
}

// Tools returns the fakes as agent.Tools.
func (f *Fakes) Tools() agent.Tools {
	return agent.Tools{
		Classifier: f.Classifier,
		Retriever:  f.Retriever,
		Evaluator:  f.Evaluator,
		Deadlines:  f.Deadlines,
		Summarizer: f.Summarizer,
		Answerer:   f.Answerer,
	}
}

// GapReport is a compliance report that requires approval under the
// default policy.
const GapReport = "GAP: finding HK-2024-007 has no named remediation owner and no budget line."
