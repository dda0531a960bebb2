package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/auditflow/pkg/flowgraph"
)

// Step labels recorded in State.StepsTaken.
const (
	LabelFastRetrieve = "Fast RAG retrieval"
	LabelPlan         = "Planning multi-step analysis"
	LabelRetrieve     = "Searched audit documents"
	LabelCompliance   = "Compliance gap check complete"
	LabelDeadlines    = "Deadline check complete"
	LabelApproved     = "Human approval granted"
	LabelRejected     = "Human approval rejected"
	LabelResponded    = "Response generated"
)

// RejectionNotice is the final response when a reviewer rejects the report.
const RejectionNotice = "Report generation rejected by reviewer."

// NoDocumentsFound is the answer context when a search returned nothing.
const NoDocumentsFound = "No relevant documents found in the audit database."

// ClassifiedLabel returns the trace label for a classification.
func ClassifiedLabel(qt QuestionType) string {
	return "Classified as: " + string(qt)
}

// Excerpt lengths, in characters, taken from each retrieved document.
const (
	complianceExcerpt = 400
	answerExcerpt     = 1000
	summaryExcerpt    = 500
)

// Settings tunes the steps.
type Settings struct {
	// FastTopK bounds the simple-path search.
	FastTopK int
	// DeepTopK bounds the complex-path search.
	DeepTopK int
	// ThresholdDays selects findings due within this many days.
	ThresholdDays int
	// Policy decides needs_approval from the compliance report.
	Policy ApprovalPolicy
}

// DefaultSettings returns the reference settings.
func DefaultSettings() Settings {
	return Settings{
		FastTopK:      5,
		DeepTopK:      8,
		ThresholdDays: 30,
		Policy:        DefaultGapReportPolicy,
	}
}

// Steps holds the collaborators and settings behind every workflow step.
// Each step returns only the fields it changed and never mutates its input.
type Steps struct {
	tools    Tools
	settings Settings
}

// NewSteps validates tools and fills unset settings from DefaultSettings.
func NewSteps(tools Tools, settings Settings) (*Steps, error) {
	var errs []error
	if tools.Classifier == nil {
		errs = append(errs, errors.New("classifier is required"))
	}
	if tools.Retriever == nil {
		errs = append(errs, errors.New("retriever is required"))
	}
	if tools.Evaluator == nil {
		errs = append(errs, errors.New("compliance evaluator is required"))
	}
	if tools.Deadlines == nil {
		errs = append(errs, errors.New("deadline source is required"))
	}
	if tools.Summarizer == nil {
		errs = append(errs, errors.New("summarizer is required"))
	}
	if tools.Answerer == nil {
		errs = append(errs, errors.New("answerer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	def := DefaultSettings()
	if settings.FastTopK <= 0 {
		settings.FastTopK = def.FastTopK
	}
	if settings.DeepTopK <= 0 {
		settings.DeepTopK = def.DeepTopK
	}
	if settings.ThresholdDays <= 0 {
		settings.ThresholdDays = def.ThresholdDays
	}
	if settings.Policy == nil {
		settings.Policy = def.Policy
	}
	return &Steps{tools: tools, settings: settings}, nil
}

// Classify labels the latest user message simple or complex.
func (st *Steps) Classify(ctx flowgraph.Context, s State) (Update, error) {
	raw, err := st.tools.Classifier.Classify(ctx, s.LatestUserMessage())
	if err != nil {
		return Update{}, fmt.Errorf("classify: %w", err)
	}

	qt := QuestionType(strings.ToLower(strings.TrimSpace(raw)))
	if qt != Simple && qt != Complex {
		qt = Simple
	}
	ctx.Logger().Info("question classified", slog.String("question_type", string(qt)))

	return Update{
		QuestionType: Some(qt),
		Steps:        []string{ClassifiedLabel(qt)},
	}, nil
}

// FastRetrieve runs the single search of the simple path.
func (st *Steps) FastRetrieve(ctx flowgraph.Context, s State) (Update, error) {
	u := st.search(ctx, s.LatestUserMessage(), st.settings.FastTopK)
	u.Steps = []string{LabelFastRetrieve}
	return u, nil
}

// Plan opens the complex path. Complex requests always start gated.
func (st *Steps) Plan(_ flowgraph.Context, _ State) (Update, error) {
	return Update{
		NeedsApproval: Some(true),
		Steps:         []string{LabelPlan},
	}, nil
}

// Retrieve runs the broader search of the complex path.
func (st *Steps) Retrieve(ctx flowgraph.Context, s State) (Update, error) {
	u := st.search(ctx, s.LatestUserMessage(), st.settings.DeepTopK)
	u.Steps = []string{LabelRetrieve}
	return u, nil
}

func (st *Steps) search(ctx flowgraph.Context, query string, topK int) Update {
	hits, err := st.tools.Retriever.Search(ctx, query, topK)
	if err != nil {
		ctx.Logger().Warn("document search failed", slog.String("error", err.Error()))
		return Update{
			RetrievedDocs: Some([]Document{{Content: "Document search failed: " + err.Error()}}),
		}
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}
	docs := make([]Document, 0, len(hits))
	var sources []string
	for _, h := range hits {
		docs = append(docs, Document{Content: h.Content, Source: h.Source, Relevance: h.Relevance})
		if h.Source != "" {
			sources = append(sources, h.Source)
		}
	}
	return Update{RetrievedDocs: Some(docs), Sources: sources}
}

// AssessCompliance evaluates the retrieved excerpts, or the raw message
// when there are none, and decides whether approval is needed.
func (st *Steps) AssessCompliance(ctx flowgraph.Context, s State) (Update, error) {
	excerpts := make([]string, 0, len(s.RetrievedDocs))
	for _, d := range s.RetrievedDocs {
		excerpts = append(excerpts, truncate(d.Content, complianceExcerpt))
	}
	summary := strings.Join(excerpts, " ")
	if strings.TrimSpace(summary) == "" {
		summary = s.LatestUserMessage()
	}

	report, err := st.tools.Evaluator.Evaluate(ctx, summary)
	if err != nil {
		ctx.Logger().Warn("compliance check failed", slog.String("error", err.Error()))
		// An unchecked report cannot be waved through.
		return Update{
			ComplianceGaps: Some([]string{"Compliance check failed: " + err.Error()}),
			NeedsApproval:  Some(true),
			Steps:          []string{LabelCompliance},
		}, nil
	}

	return Update{
		ComplianceGaps: Some([]string{report}),
		NeedsApproval:  Some(st.settings.Policy.RequiresApproval(report)),
		Steps:          []string{LabelCompliance},
	}, nil
}

// CheckDeadlines lists tracked findings due within the threshold.
func (st *Steps) CheckDeadlines(ctx flowgraph.Context, _ State) (Update, error) {
	findings, err := st.tools.Deadlines.FindingsAtRisk(ctx, st.settings.ThresholdDays)
	if err != nil {
		ctx.Logger().Warn("deadline check failed", slog.String("error", err.Error()))
		return Update{
			DeadlineWarnings: Some([]string{"Deadline check failed: " + err.Error()}),
			Steps:            []string{LabelDeadlines},
		}, nil
	}

	warnings := make([]string, 0, len(findings))
	for _, f := range findings {
		warnings = append(warnings, FormatWarning(f))
	}
	return Update{
		DeadlineWarnings: Some(warnings),
		Steps:            []string{LabelDeadlines},
	}, nil
}

// FormatWarning renders an at-risk finding as a deadline warning line.
func FormatWarning(f Finding) string {
	return fmt.Sprintf("Finding %s: '%s' | Owner: %s | Deadline: %s (%d days) | Status: %s",
		f.ID, f.Title, f.Owner, f.Deadline.Format("2006-01-02"), f.DaysRemaining, f.Status)
}

// ApprovalPrompt composes the reviewer prompt for s.
func ApprovalPrompt(s State) string {
	return fmt.Sprintf("HUMAN APPROVAL REQUIRED\n"+
		"Compliance gaps found: %d issue(s)\n"+
		"Deadline warnings: %d item(s)\n"+
		"Please review and approve or reject report generation.",
		len(s.ComplianceGaps), len(s.DeadlineWarnings))
}

// HumanReview suspends the thread until a reviewer decides. When resumed,
// an approval clears needs_approval and a rejection ends the turn with
// RejectionNotice.
func (st *Steps) HumanReview(ctx flowgraph.Context, s State) (Update, error) {
	decision := ctx.Decision()
	if decision == nil {
		return Update{}, flowgraph.Interrupt(ApprovalPrompt(s))
	}

	if decision.Approved() {
		return Update{
			NeedsApproval: Some(false),
			Steps:         []string{LabelApproved},
		}, nil
	}
	return Update{
		FinalResponse: Some(RejectionNotice),
		Conversation:  []Message{{Role: RoleAssistant, Content: RejectionNotice}},
		Steps:         []string{LabelRejected},
	}, nil
}

// Respond generates the final answer. It does nothing when a final
// response is already set.
func (st *Steps) Respond(ctx flowgraph.Context, s State) (Update, error) {
	if s.FinalResponse != "" {
		return Update{}, nil
	}

	var (
		answer string
		err    error
	)
	if s.QuestionType == Complex {
		answer, err = st.report(ctx, s)
	} else {
		answer, err = st.tools.Answerer.Answer(ctx, s.LatestUserMessage(), answerContext(s.RetrievedDocs))
	}
	if err != nil {
		return Update{}, fmt.Errorf("respond: %w", err)
	}

	return Update{
		FinalResponse: Some(answer),
		Conversation:  []Message{{Role: RoleAssistant, Content: answer}},
		Steps:         []string{LabelResponded},
	}, nil
}

func (st *Steps) report(ctx flowgraph.Context, s State) (string, error) {
	excerpts := make([]string, 0, len(s.RetrievedDocs))
	for _, d := range s.RetrievedDocs {
		excerpts = append(excerpts, truncate(d.Content, summaryExcerpt))
	}
	gaps := "None identified"
	if len(s.ComplianceGaps) > 0 {
		gaps = strings.Join(s.ComplianceGaps, "\n")
	}

	summary, err := st.tools.Summarizer.Summarize(ctx, strings.Join(excerpts, "\n"), gaps)
	if err != nil {
		return "", err
	}
	if len(s.DeadlineWarnings) > 0 {
		summary += "\n\n---\nDEADLINE ALERTS:\n" + strings.Join(s.DeadlineWarnings, "\n")
	}
	return summary, nil
}

// answerContext renders retrieved documents as ranked excerpts.
func answerContext(docs []Document) string {
	if len(docs) == 0 {
		return NoDocumentsFound
	}
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		if d.Source != "" {
			fmt.Fprintf(&b, "[%d] Source: %s (relevance: %.3f)\n    ", i+1, d.Source, d.Relevance)
		}
		b.WriteString(truncate(d.Content, answerExcerpt))
	}
	return b.String()
}

// truncate returns the first n characters of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
