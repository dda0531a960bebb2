package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests.
// It is safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	response  string
	responses []string
	next      int
	err       error
	fn        func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Calls records every request in call order.
	Calls []CompletionRequest
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a client that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the client cycle through responses in order.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompleteFunc delegates every call to fn.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn, err := m.fn, m.err
	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	in := 0
	for _, msg := range req.Messages {
		in += len(strings.Fields(msg.Content))
	}
	out := len(strings.Fields(content))
	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Model:        "mock",
		Usage:        TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Reset clears recorded calls and rewinds the response sequence.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}
