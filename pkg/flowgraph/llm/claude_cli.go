package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ClaudeCLI implements Client by running the claude binary in print mode.
type ClaudeCLI struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a new Claude CLI client.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) {
		if path != "" {
			c.path = path
		}
	}
}

// WithModel sets the default model.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithWorkdir sets the working directory for claude commands.
func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithTimeout bounds each call. Zero disables the client-side timeout.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// Complete implements Client.
func (c *ClaudeCLI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.path, c.buildArgs(req)...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// A client-side timeout is worth retrying; a caller cancel is not.
			return nil, NewError("complete", ctxErr, errors.Is(ctxErr, context.DeadlineExceeded))
		}
		errMsg := strings.TrimSpace(stderr.String())
		return nil, NewError("complete", fmt.Errorf("%w: %s", err, errMsg), isRetryableError(errMsg))
	}

	resp, err := c.parseResponse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

// buildArgs constructs CLI arguments from a request.
func (c *ClaudeCLI) buildArgs(req CompletionRequest) []string {
	args := []string{"--print", "--output-format", "json"}

	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}

	// Model priority: request > client default
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(req.MaxTokens))
	}

	// The CLI takes one prompt, so earlier turns are folded in as a transcript.
	var prompt strings.Builder
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			if prompt.Len() > 0 {
				prompt.WriteString("\n\nUser: ")
			}
			prompt.WriteString(msg.Content)
		case RoleAssistant:
			if prompt.Len() > 0 {
				prompt.WriteString("\n\nAssistant: ")
				prompt.WriteString(msg.Content)
			}
		}
	}

	if p := strings.TrimSpace(prompt.String()); p != "" {
		args = append(args, "-p", p)
	}
	return args
}

// cliResult is the document printed by --output-format json.
type cliResult struct {
	Type    string  `json:"type"`
	Subtype string  `json:"subtype"`
	IsError bool    `json:"is_error"`
	Result  string  `json:"result"`
	CostUSD float64 `json:"total_cost_usd"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// parseResponse extracts response data from CLI output. Output that is not
// a JSON result document is treated as plain text.
func (c *ClaudeCLI) parseResponse(data []byte) (*CompletionResponse, error) {
	var res cliResult
	if err := json.Unmarshal(data, &res); err != nil || res.Type == "" {
		return &CompletionResponse{
			Content:      strings.TrimSpace(string(data)),
			FinishReason: "stop",
			Model:        c.model,
		}, nil
	}

	if res.IsError {
		return nil, NewError("complete", fmt.Errorf("cli reported %s: %s", res.Subtype, res.Result), isRetryableError(res.Result))
	}

	return &CompletionResponse{
		Content:      strings.TrimSpace(res.Result),
		FinishReason: "stop",
		Model:        c.model,
		CostUSD:      res.CostUSD,
		Usage: TokenUsage{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			TotalTokens:  res.Usage.InputTokens + res.Usage.OutputTokens,
		},
	}, nil
}

// isRetryableError checks if an error message indicates a transient error.
func isRetryableError(errMsg string) bool {
	errLower := strings.ToLower(errMsg)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "overloaded") ||
		strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "529")
}
