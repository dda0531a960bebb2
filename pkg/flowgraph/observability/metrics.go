package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Run outcomes reported to RecordGraphRun.
const (
	OutcomeCompleted = "completed"
	OutcomeSuspended = "suspended"
	OutcomeFailed    = "failed"
)

// MetricsRecorder records flowgraph metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusMetrics() for a
// Prometheus registry, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records a run returning to its caller with the given outcome.
	RecordGraphRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)

	// RecordSuspension records a thread parking at an interrupt node.
	RecordSuspension(ctx context.Context, nodeID string)

	// RecordResume records a decision applied to a suspended thread.
	RecordResume(ctx context.Context, verdict string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	checkpointSize metric.Int64Histogram
	suspensions    metric.Int64Counter
	resumes        metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowgraph")

	nodeExecutions, err := meter.Int64Counter("flowgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("flowgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("flowgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	graphRuns, err := meter.Int64Counter("flowgraph.graph.runs",
		metric.WithDescription("Number of graph runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	graphLatency, err := meter.Float64Histogram("flowgraph.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("flowgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	suspensions, err := meter.Int64Counter("flowgraph.interrupt.suspensions",
		metric.WithDescription("Number of threads suspended awaiting a decision"),
	)
	if err != nil {
		return nil, err
	}

	resumes, err := meter.Int64Counter("flowgraph.interrupt.resumes",
		metric.WithDescription("Number of decisions applied to suspended threads"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		graphRuns:      graphRuns,
		graphLatency:   graphLatency,
		checkpointSize: checkpointSize,
		suspensions:    suspensions,
		resumes:        resumes,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordGraphRun records a graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordSuspension records a suspension.
func (m *otelMetrics) RecordSuspension(ctx context.Context, nodeID string) {
	m.suspensions.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordResume records a resume decision.
func (m *otelMetrics) RecordResume(ctx context.Context, verdict string) {
	m.resumes.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}
