// Package config holds the typed service configuration.
//
// Values come from Default, then an optional YAML or JSON file, then
// AUDITFLOW_* environment variables. Every key path maps to one variable:
// checkpoint.redis.addr is AUDITFLOW_CHECKPOINT_REDIS_ADDR.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Checkpoint drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Lock       LockConfig       `mapstructure:"lock"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LLMConfig configures the model client.
type LLMConfig struct {
	// Path is the claude executable.
	Path    string        `mapstructure:"path"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxAttempts bounds retries of transient model failures.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// SearchConfig configures document retrieval.
type SearchConfig struct {
	// CorpusPath is a YAML corpus loaded into the in-memory index at
	// startup. Empty starts with an empty index.
	CorpusPath string `mapstructure:"corpus_path"`
	FastTopK   int    `mapstructure:"fast_top_k"`
	DeepTopK   int    `mapstructure:"deep_top_k"`
}

// WorkflowConfig tunes the assistant workflow.
type WorkflowConfig struct {
	ThresholdDays int `mapstructure:"threshold_days"`
	// FindingsPath overrides the tracked findings. Empty uses the samples.
	FindingsPath      string `mapstructure:"findings_path"`
	ApprovalMinLength int    `mapstructure:"approval_min_length"`
	NoGapPhrase       string `mapstructure:"no_gap_phrase"`
	StreamBuffer      int    `mapstructure:"stream_buffer"`
	MaxIterations     int    `mapstructure:"max_iterations"`
}

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Driver     string      `mapstructure:"driver"`
	SQLitePath string      `mapstructure:"sqlite_path"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig is shared by the Redis store and the distributed lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// TTL expires idle threads. Zero keeps them forever.
	TTL time.Duration `mapstructure:"ttl"`
}

// LockConfig configures cross-process thread locking.
type LockConfig struct {
	Distributed bool          `mapstructure:"distributed"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	Prometheus  bool `mapstructure:"prometheus"`
	OTelMetrics bool `mapstructure:"otel_metrics"`
	OTelTracing bool `mapstructure:"otel_tracing"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			Path:        "claude",
			Timeout:     2 * time.Minute,
			MaxAttempts: 3,
		},
		Search: SearchConfig{FastTopK: 5, DeepTopK: 8},
		Workflow: WorkflowConfig{
			ThresholdDays:     30,
			ApprovalMinLength: 20,
			NoGapPhrase:       "no gap",
			StreamBuffer:      64,
			MaxIterations:     100,
		},
		Checkpoint: CheckpointConfig{
			Driver:     DriverMemory,
			SQLitePath: "auditflow.db",
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "auditflow:"},
		},
		Lock:      LockConfig{TTL: 30 * time.Second},
		Telemetry: TelemetryConfig{Prometheus: true},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.LLM.Path == "" {
		add("llm.path is required")
	}
	if c.LLM.Timeout <= 0 {
		add("llm.timeout must be positive")
	}
	if c.LLM.MaxAttempts < 1 {
		add("llm.max_attempts must be at least 1")
	}

	if c.Search.FastTopK < 1 {
		add("search.fast_top_k must be at least 1")
	}
	if c.Search.DeepTopK < 1 {
		add("search.deep_top_k must be at least 1")
	}

	if c.Workflow.ThresholdDays < 0 {
		add("workflow.threshold_days must not be negative")
	}
	if c.Workflow.ApprovalMinLength < 0 {
		add("workflow.approval_min_length must not be negative")
	}
	if c.Workflow.StreamBuffer < 1 {
		add("workflow.stream_buffer must be at least 1")
	}
	if c.Workflow.MaxIterations < 1 {
		add("workflow.max_iterations must be at least 1")
	}

	switch c.Checkpoint.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Checkpoint.SQLitePath == "" {
			add("checkpoint.sqlite_path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Checkpoint.Redis.Addr == "" {
			add("checkpoint.redis.addr is required for the redis driver")
		}
	default:
		add("checkpoint.driver must be memory, sqlite or redis, got %q", c.Checkpoint.Driver)
	}
	if c.Checkpoint.Redis.TTL < 0 {
		add("checkpoint.redis.ttl must not be negative")
	}

	if c.Lock.Distributed {
		if c.Checkpoint.Redis.Addr == "" {
			add("lock.distributed requires checkpoint.redis.addr")
		}
		if c.Lock.TTL <= 0 {
			add("lock.ttl must be positive")
		}
	}

	return errors.Join(errs...)
}
