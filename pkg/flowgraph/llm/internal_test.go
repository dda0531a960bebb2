package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		client   *ClaudeCLI
		req      CompletionRequest
		contains []string
		excludes []string
	}{
		{
			name:     "basic request",
			client:   NewClaudeCLI(),
			req:      CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "Hello"}}},
			contains: []string{"--print", "--output-format", "json", "-p", "Hello"},
			excludes: []string{"--model", "--system-prompt"},
		},
		{
			name:   "with system prompt",
			client: NewClaudeCLI(),
			req: CompletionRequest{
				SystemPrompt: "You are a compliance officer",
				Messages:     []Message{{Role: RoleUser, Content: "Hi"}},
			},
			contains: []string{"--system-prompt", "You are a compliance officer"},
		},
		{
			name:     "model from client",
			client:   NewClaudeCLI(WithModel("sonnet")),
			req:      CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "Test"}}},
			contains: []string{"--model", "sonnet"},
		},
		{
			name:   "model from request overrides client",
			client: NewClaudeCLI(WithModel("sonnet")),
			req: CompletionRequest{
				Model:    "haiku",
				Messages: []Message{{Role: RoleUser, Content: "Test"}},
			},
			contains: []string{"--model", "haiku"},
			excludes: []string{"sonnet"},
		},
		{
			name:     "max tokens",
			client:   NewClaudeCLI(),
			req:      CompletionRequest{MaxTokens: 400, Messages: []Message{{Role: RoleUser, Content: "Test"}}},
			contains: []string{"--max-tokens", "400"},
		},
		{
			name:     "no messages",
			client:   NewClaudeCLI(),
			req:      CompletionRequest{},
			excludes: []string{"-p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.client.buildArgs(tt.req)
			for _, want := range tt.contains {
				assert.Contains(t, args, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, args, unwanted)
			}
		})
	}
}

func TestBuildArgs_Transcript(t *testing.T) {
	args := NewClaudeCLI().buildArgs(CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "What is HK-001?"},
			{Role: RoleAssistant, Content: "A reconciliation finding."},
			{Role: RoleUser, Content: "Who owns it?"},
		},
	})

	require.Equal(t, "-p", args[len(args)-2])
	assert.Equal(t,
		"What is HK-001?\n\nAssistant: A reconciliation finding.\n\nUser: Who owns it?",
		args[len(args)-1])
}

func TestParseResponse(t *testing.T) {
	c := NewClaudeCLI(WithModel("sonnet"))

	t.Run("json result", func(t *testing.T) {
		resp, err := c.parseResponse([]byte(`{"type":"result","subtype":"success","result":" complex \n","total_cost_usd":0.01,"usage":{"input_tokens":12,"output_tokens":1}}`))
		require.NoError(t, err)
		assert.Equal(t, "complex", resp.Content)
		assert.Equal(t, "sonnet", resp.Model)
		assert.Equal(t, 13, resp.Usage.TotalTokens)
		assert.InDelta(t, 0.01, resp.CostUSD, 1e-9)
	})

	t.Run("plain text", func(t *testing.T) {
		resp, err := c.parseResponse([]byte("simple\n"))
		require.NoError(t, err)
		assert.Equal(t, "simple", resp.Content)
	})

	t.Run("error result", func(t *testing.T) {
		_, err := c.parseResponse([]byte(`{"type":"result","subtype":"error_during_execution","is_error":true,"result":"API overloaded"}`))
		var llmErr *Error
		require.True(t, errors.As(err, &llmErr))
		assert.True(t, llmErr.Retryable())
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Rate limit exceeded", true},
		{"request timeout", true},
		{"API is overloaded", true},
		{"HTTP 503", true},
		{"status 529", true},
		{"invalid api key", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.msg))
		})
	}
}
