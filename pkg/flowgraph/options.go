package flowgraph

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/auditflow/pkg/flowgraph/lock"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// DefaultMaxIterations bounds the node executions of a single advance.
const DefaultMaxIterations = 1000

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxIterations  int
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	observer       any
	discardPending bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of node executions per advance.
// Default: 1000. Non-positive values are ignored.
//
// This prevents infinite loops from hanging forever. If a graph
// exceeds this limit, the run fails with ErrMaxIterations.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithObservabilityLogger sets the logger used for run, node and checkpoint
// events. Nodes receive the same logger enriched with thread and node IDs.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsRecorder records node, run and checkpoint metrics.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and every node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithObserver registers a callback invoked synchronously after every
// merged node update, on suspension and on completion. The callback must
// not block and must not modify the state it receives.
func WithObserver[S any](fn func(Event[S])) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.observer = fn
		}
	}
}

// WithDiscardPending lets Start begin a new turn on a thread that is
// waiting for a decision. The pending interrupt is abandoned.
func WithDiscardPending() RunOption {
	return func(c *runConfig) {
		c.discardPending = true
	}
}

// compileConfig holds configuration fixed at compile time.
type compileConfig struct {
	locks *lock.Keyed
}

func defaultCompileConfig() compileConfig {
	return compileConfig{locks: lock.NewKeyed()}
}

// CompileOption configures a CompiledGraph.
type CompileOption func(*compileConfig)

// WithDistributedLock serializes runs of the same thread across processes
// as well as within this one.
func WithDistributedLock(d lock.Distributed, ttl time.Duration) CompileOption {
	return func(c *compileConfig) {
		if d != nil {
			c.locks = lock.NewKeyed(lock.WithDistributed(d, ttl))
		}
	}
}
