// Package llm provides the language-model boundary used by the assistant
// steps: a Client interface, a Claude CLI implementation and a scripted
// MockClient for tests.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client sends a completion request to a language model.
//
// Implementations must be safe for concurrent use; fan-out branches may
// call the same client at the same time.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Error is returned by clients when a completion fails.
type Error struct {
	Op        string
	Err       error
	retryable bool
}

// NewError wraps err with the failing operation and whether a retry may
// succeed.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, retryable: retryable}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure looked transient (rate limits,
// overload, timeouts).
func (e *Error) Retryable() bool {
	return e.retryable
}

// Ask sends a single user prompt with an optional system prompt and
// returns the trimmed text of the reply.
func Ask(ctx context.Context, c Client, system, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
