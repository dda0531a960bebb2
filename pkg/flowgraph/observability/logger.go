// Package observability provides logging, metrics, and tracing helpers for
// flowgraph runs.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds thread and node context to a logger.
func EnrichLogger(logger *slog.Logger, threadID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a graph run on a thread.
func LogRunStart(logger *slog.Logger, threadID, entry string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("thread_id", threadID),
		slog.String("entry", entry),
	)
}

// LogRunComplete logs a run that returned control to its caller.
// The status is "completed" or "suspended".
func LogRunComplete(logger *slog.Logger, threadID, status string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run finished",
		slog.String("thread_id", threadID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogFanOut logs completion of a fan-out region.
func LogFanOut(logger *slog.Logger, forkNode string, branches int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("fan-out joined",
		slog.String("fork_node", forkNode),
		slog.Int("branches", branches),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID, status string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.String("status", status),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogSuspend logs a thread parking at an interrupt node.
func LogSuspend(logger *slog.Logger, threadID, nodeID string) {
	if logger == nil {
		return
	}
	logger.Info("thread suspended",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
	)
}

// LogResume logs a decision being applied to a suspended thread.
func LogResume(logger *slog.Logger, threadID, nodeID, verdict, reviewer string) {
	if logger == nil {
		return
	}
	logger.Info("thread resumed",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.String("verdict", verdict),
		slog.String("reviewer", reviewer),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
