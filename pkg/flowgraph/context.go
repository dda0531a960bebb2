package flowgraph

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with flowgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID and enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread and node context.
	// Never returns nil.
	Logger() *slog.Logger

	// ThreadID returns the conversation thread this run belongs to.
	ThreadID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Decision returns the reviewer's decision when an interrupt node is
	// re-executed after Resume. It is nil on every other invocation.
	Decision() *interrupt.Decision
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	threadID string
	nodeID   string
	decision *interrupt.Decision
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// ThreadID returns the thread identifier.
func (c *executionContext) ThreadID() string {
	return c.threadID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Decision returns the pending decision, if any.
func (c *executionContext) Decision() *interrupt.Decision {
	return c.decision
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithThreadID sets the thread identifier for the context.
func WithThreadID(id string) ContextOption {
	return func(c *executionContext) {
		c.threadID = id
	}
}

// WithDecision attaches a reviewer decision to the context. The engine does
// this itself on Resume; the option exists for exercising interrupt nodes
// directly in tests.
func WithDecision(d interrupt.Decision) ContextOption {
	return func(c *executionContext) {
		c.decision = &d
	}
}

// NewContext creates an execution context from a standard context.
// Use it to call node functions outside of a run.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithLogger(myLogger),
//	    flowgraph.WithThreadID("thread-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// forNode returns a derived context for executing nodeID.
func (c *executionContext) forNode(nodeID string, decision *interrupt.Decision) *executionContext {
	return &executionContext{
		Context:  c.Context,
		logger:   observability.EnrichLogger(c.logger, c.threadID, nodeID),
		threadID: c.threadID,
		nodeID:   nodeID,
		decision: decision,
	}
}

// withContext returns a copy bound to a different context.Context, used to
// carry span context into node execution.
func (c *executionContext) withContext(ctx context.Context) *executionContext {
	clone := *c
	clone.Context = ctx
	return &clone
}
