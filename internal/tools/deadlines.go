package tools

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/auditflow/internal/agent"
	fgerrors "github.com/randalmurphal/auditflow/pkg/flowgraph/errors"
)

// DateLayout is the deadline format in findings files.
const DateLayout = "2006-01-02"

// TrackedFinding is a remediation item known to the tracker.
type TrackedFinding struct {
	ID       string
	Title    string
	Owner    string
	Deadline time.Time
	Status   string
}

type findingRecord struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Owner    string `yaml:"owner"`
	Deadline string `yaml:"deadline"`
	Status   string `yaml:"status"`
}

type findingsFile struct {
	Findings []findingRecord `yaml:"findings"`
}

// SampleFindings returns the findings the tracker starts with when no
// findings file is configured.
func SampleFindings() []TrackedFinding {
	return []TrackedFinding{
		{ID: "HK-2024-001", Title: "Trade reconciliation control gap", Owner: "Alice Chen", Deadline: date(2026, time.March, 15), Status: "In Progress"},
		{ID: "HK-2024-007", Title: "AML transaction monitoring threshold", Owner: "Bob Lam", Deadline: date(2026, time.February, 28), Status: "Open"},
		{ID: "SG-2024-003", Title: "Access control review - trading system", Owner: "Carol Tan", Deadline: date(2026, time.April, 30), Status: "In Progress"},
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LoadFindings reads a YAML findings file of the form
//
//	findings:
//	  - id: HK-2024-001
//	    title: Trade reconciliation control gap
//	    owner: Alice Chen
//	    deadline: 2026-03-15
//	    status: In Progress
func LoadFindings(path string) ([]TrackedFinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	return ParseFindings(data)
}

// ParseFindings decodes findings YAML. Every finding needs an id and a
// deadline in YYYY-MM-DD form.
func ParseFindings(data []byte) ([]TrackedFinding, error) {
	var file findingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse findings: %w", err)
	}

	findings := make([]TrackedFinding, 0, len(file.Findings))
	for i, rec := range file.Findings {
		if rec.ID == "" {
			return nil, &fgerrors.ValidationError{
				Field:   fmt.Sprintf("findings[%d].id", i),
				Message: "id is required",
			}
		}
		deadline, err := time.Parse(DateLayout, rec.Deadline)
		if err != nil {
			return nil, &fgerrors.ValidationError{
				Field:   fmt.Sprintf("findings[%d].deadline", i),
				Message: fmt.Sprintf("%q is not a YYYY-MM-DD date", rec.Deadline),
			}
		}
		findings = append(findings, TrackedFinding{
			ID:       rec.ID,
			Title:    rec.Title,
			Owner:    rec.Owner,
			Deadline: deadline,
			Status:   rec.Status,
		})
	}
	return findings, nil
}

// DeadlineTracker reports tracked findings whose deadline is close or past.
// It is read-only after construction and safe for concurrent use.
type DeadlineTracker struct {
	findings []TrackedFinding
	now      func() time.Time
}

var _ agent.DeadlineSource = (*DeadlineTracker)(nil)

// DeadlineOption configures a DeadlineTracker.
type DeadlineOption func(*DeadlineTracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DeadlineOption {
	return func(t *DeadlineTracker) {
		t.now = now
	}
}

// NewDeadlineTracker tracks findings. A nil slice tracks SampleFindings.
func NewDeadlineTracker(findings []TrackedFinding, opts ...DeadlineOption) *DeadlineTracker {
	if findings == nil {
		findings = SampleFindings()
	}
	t := &DeadlineTracker{
		findings: append([]TrackedFinding(nil), findings...),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FindingsAtRisk returns findings due within thresholdDays whole days,
// overdue ones included, in tracking order.
func (t *DeadlineTracker) FindingsAtRisk(ctx context.Context, thresholdDays int) ([]agent.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := t.now()
	var atRisk []agent.Finding
	for _, f := range t.findings {
		days := daysUntil(now, f.Deadline)
		if days > thresholdDays {
			continue
		}
		atRisk = append(atRisk, agent.Finding{
			ID:            f.ID,
			Title:         f.Title,
			Owner:         f.Owner,
			Deadline:      f.Deadline,
			Status:        f.Status,
			DaysRemaining: days,
		})
	}
	return atRisk, nil
}

// daysUntil counts whole days from now to deadline, rounding down, so a
// deadline earlier today is -1.
func daysUntil(now, deadline time.Time) int {
	return int(math.Floor(deadline.Sub(now).Hours() / 24))
}
