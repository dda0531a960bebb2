package agent

import "strings"

// ApprovalPolicy decides from a compliance gap report whether the
// response needs human sign-off.
type ApprovalPolicy interface {
	RequiresApproval(report string) bool
}

// GapReportPolicy flags a report longer than MinLength characters that
// does not contain NoGapPhrase (case-insensitive).
type GapReportPolicy struct {
	MinLength   int
	NoGapPhrase string
}

// DefaultGapReportPolicy is the reference heuristic: more than 20
// characters and no "no gap" affirmation.
var DefaultGapReportPolicy = GapReportPolicy{MinLength: 20, NoGapPhrase: "no gap"}

// RequiresApproval implements ApprovalPolicy.
func (p GapReportPolicy) RequiresApproval(report string) bool {
	if len([]rune(report)) <= p.MinLength {
		return false
	}
	if p.NoGapPhrase == "" {
		return true
	}
	return !strings.Contains(strings.ToLower(report), strings.ToLower(p.NoGapPhrase))
}
