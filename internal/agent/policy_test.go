package agent_test

import (
	"strings"
	"testing"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/stretchr/testify/assert"
)

func TestGapReportPolicy(t *testing.T) {
	tests := []struct {
		name   string
		report string
		want   bool
	}{
		{"empty", "", false},
		{"exactly twenty characters", strings.Repeat("x", 20), false},
		{"twenty one characters", strings.Repeat("x", 21), true},
		{"multibyte counted as characters", strings.Repeat("é", 20), false},
		{"long with gaps", "GAP: finding lacks a named owner and a target date.", true},
		{"no gaps affirmation", "Reviewed all findings: no gaps identified in remediation plans.", false},
		{"no gap case-insensitive", "NO GAP found across the reviewed findings today.", false},
		{"short no gap", "no gap", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, agent.DefaultGapReportPolicy.RequiresApproval(tt.report))
		})
	}
}

func TestGapReportPolicy_Custom(t *testing.T) {
	p := agent.GapReportPolicy{MinLength: 5, NoGapPhrase: "All Clear"}

	assert.True(t, p.RequiresApproval("owner missing"))
	assert.False(t, p.RequiresApproval("status: all clear"))
	assert.False(t, p.RequiresApproval("short"))

	p.NoGapPhrase = ""
	assert.True(t, p.RequiresApproval("no gap here at all"))
}
