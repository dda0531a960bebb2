package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsRecorder with Prometheus collectors.
type PrometheusMetrics struct {
	nodeExecutions *prometheus.CounterVec
	nodeErrors     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	graphRuns      *prometheus.CounterVec
	graphDuration  *prometheus.HistogramVec
	checkpointSize *prometheus.HistogramVec
	suspensions    *prometheus.CounterVec
	resumes        *prometheus.CounterVec
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditflow_node_executions_total",
			Help: "Total number of node executions",
		}, []string{"node_id"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditflow_node_errors_total",
			Help: "Total number of node execution errors",
		}, []string{"node_id"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditflow_node_duration_seconds",
			Help:    "Duration of node executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_id"}),
		graphRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditflow_graph_runs_total",
			Help: "Total number of graph runs by outcome",
		}, []string{"outcome"}),
		graphDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditflow_graph_duration_seconds",
			Help:    "Duration of graph runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		checkpointSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditflow_checkpoint_size_bytes",
			Help:    "Size of committed checkpoints",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"node_id"}),
		suspensions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditflow_suspensions_total",
			Help: "Total number of threads suspended awaiting a decision",
		}, []string{"node_id"}),
		resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditflow_resumes_total",
			Help: "Total number of decisions applied to suspended threads",
		}, []string{"verdict"}),
	}

	for _, c := range []prometheus.Collector{
		m.nodeExecutions, m.nodeErrors, m.nodeDuration,
		m.graphRuns, m.graphDuration, m.checkpointSize,
		m.suspensions, m.resumes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordNodeExecution implements MetricsRecorder.
func (m *PrometheusMetrics) RecordNodeExecution(_ context.Context, nodeID string, duration time.Duration, err error) {
	m.nodeExecutions.WithLabelValues(nodeID).Inc()
	m.nodeDuration.WithLabelValues(nodeID).Observe(duration.Seconds())
	if err != nil {
		m.nodeErrors.WithLabelValues(nodeID).Inc()
	}
}

// RecordGraphRun implements MetricsRecorder.
func (m *PrometheusMetrics) RecordGraphRun(_ context.Context, outcome string, duration time.Duration) {
	m.graphRuns.WithLabelValues(outcome).Inc()
	m.graphDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCheckpoint implements MetricsRecorder.
func (m *PrometheusMetrics) RecordCheckpoint(_ context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.WithLabelValues(nodeID).Observe(float64(sizeBytes))
}

// RecordSuspension implements MetricsRecorder.
func (m *PrometheusMetrics) RecordSuspension(_ context.Context, nodeID string) {
	m.suspensions.WithLabelValues(nodeID).Inc()
}

// RecordResume implements MetricsRecorder.
func (m *PrometheusMetrics) RecordResume(_ context.Context, verdict string) {
	m.resumes.WithLabelValues(verdict).Inc()
}

// Multi fans every call out to several recorders.
type Multi []MetricsRecorder

// RecordNodeExecution implements MetricsRecorder.
func (m Multi) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	for _, r := range m {
		r.RecordNodeExecution(ctx, nodeID, duration, err)
	}
}

// RecordGraphRun implements MetricsRecorder.
func (m Multi) RecordGraphRun(ctx context.Context, outcome string, duration time.Duration) {
	for _, r := range m {
		r.RecordGraphRun(ctx, outcome, duration)
	}
}

// RecordCheckpoint implements MetricsRecorder.
func (m Multi) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	for _, r := range m {
		r.RecordCheckpoint(ctx, nodeID, sizeBytes)
	}
}

// RecordSuspension implements MetricsRecorder.
func (m Multi) RecordSuspension(ctx context.Context, nodeID string) {
	for _, r := range m {
		r.RecordSuspension(ctx, nodeID)
	}
}

// RecordResume implements MetricsRecorder.
func (m Multi) RecordResume(ctx context.Context, verdict string) {
	for _, r := range m {
		r.RecordResume(ctx, verdict)
	}
}
