// Package app assembles the assistant from configuration: checkpoint
// store, thread locking, telemetry, collaborators and the compiled graph.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/randalmurphal/auditflow/internal/assistant"
	"github.com/randalmurphal/auditflow/internal/config"
	"github.com/randalmurphal/auditflow/internal/tools"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	fgerrors "github.com/randalmurphal/auditflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/llm"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/lock"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/observability"
)

// App is a fully wired assistant.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Service *assistant.Service
	Graph   *assistant.Graph
	Index   *tools.MemoryIndex
	// Registry holds the Prometheus collectors. Nil when disabled.
	Registry *prometheus.Registry

	closers []func() error
}

// Option overrides a component Build would otherwise create.
type Option func(*buildOptions)

type buildOptions struct {
	client llm.Client
	store  checkpoint.Store
}

// WithLLMClient replaces the Claude CLI client.
func WithLLMClient(c llm.Client) Option {
	return func(o *buildOptions) {
		o.client = c
	}
}

// WithStore replaces the configured checkpoint store. The caller keeps
// ownership and closes it.
func WithStore(s checkpoint.Store) Option {
	return func(o *buildOptions) {
		o.store = s
	}
}

// Build wires an App from cfg. On error everything already opened is
// closed.
func Build(cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store := bo.store
	if store == nil {
		store, err = a.openStore(cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
	}

	var compileOpts []flowgraph.CompileOption
	if cfg.Lock.Distributed {
		client := redisClient(store)
		if client == nil {
			client = backend.NewClient(&backend.Options{
				Addr:     cfg.Checkpoint.Redis.Addr,
				Password: cfg.Checkpoint.Redis.Password,
				DB:       cfg.Checkpoint.Redis.DB,
			})
			a.closers = append(a.closers, client.Close)
		}
		compileOpts = append(compileOpts,
			flowgraph.WithDistributedLock(lock.NewRedisLocker(client, cfg.Checkpoint.Redis.Prefix), cfg.Lock.TTL))
	}

	runOpts, err := a.telemetry(cfg)
	if err != nil {
		return nil, err
	}
	runOpts = append(runOpts,
		flowgraph.WithObservabilityLogger(logger),
		flowgraph.WithMaxIterations(cfg.Workflow.MaxIterations),
	)

	toolset, index, err := buildTools(cfg, bo.client, logger)
	if err != nil {
		return nil, err
	}
	a.Index = index

	steps, err := agent.NewSteps(toolset, agent.Settings{
		FastTopK:      cfg.Search.FastTopK,
		DeepTopK:      cfg.Search.DeepTopK,
		ThresholdDays: cfg.Workflow.ThresholdDays,
		Policy: agent.GapReportPolicy{
			MinLength:   cfg.Workflow.ApprovalMinLength,
			NoGapPhrase: cfg.Workflow.NoGapPhrase,
		},
	})
	if err != nil {
		return nil, err
	}

	a.Graph, err = agent.Compile(steps, compileOpts...)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	a.Service = assistant.New(a.Graph, store,
		assistant.WithRunOptions(runOpts...),
		assistant.WithStreamBuffer(cfg.Workflow.StreamBuffer),
		assistant.WithLogger(logger),
	)

	logger.Info("assistant ready",
		slog.String("checkpoint_driver", cfg.Checkpoint.Driver),
		slog.Bool("distributed_lock", cfg.Lock.Distributed),
		slog.Int("documents", index.Len()),
	)
	return a, nil
}

// Close releases the store and any connections Build opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(cfg config.CheckpointConfig) (checkpoint.Store, error) {
	var store checkpoint.Store
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := checkpoint.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	case config.DriverRedis:
		store = checkpoint.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			checkpoint.WithPrefix(cfg.Redis.Prefix+"checkpoint:"),
			checkpoint.WithTTL(cfg.Redis.TTL),
		)
	default:
		store = checkpoint.NewMemoryStore()
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// redisClient returns the store's client when the store is Redis-backed.
func redisClient(store checkpoint.Store) *backend.Client {
	if rs, ok := store.(*checkpoint.RedisStore); ok {
		return rs.Client()
	}
	return nil
}

func (a *App) telemetry(cfg config.Config) ([]flowgraph.RunOption, error) {
	var recorders observability.Multi

	if cfg.Telemetry.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := observability.NewPrometheusMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.Registry = reg
		recorders = append(recorders, m)
	}
	if cfg.Telemetry.OTelMetrics {
		recorders = append(recorders, observability.NewMetricsRecorder())
	}

	var opts []flowgraph.RunOption
	if len(recorders) > 0 {
		opts = append(opts, flowgraph.WithMetricsRecorder(recorders))
	}
	if cfg.Telemetry.OTelTracing {
		opts = append(opts, flowgraph.WithTracing(true))
	}
	return opts, nil
}

func buildTools(cfg config.Config, client llm.Client, logger *slog.Logger) (agent.Tools, *tools.MemoryIndex, error) {
	index := tools.NewMemoryIndex()
	if cfg.Search.CorpusPath != "" {
		docs, err := tools.LoadCorpus(cfg.Search.CorpusPath)
		if err != nil {
			return agent.Tools{}, nil, err
		}
		index.Add(docs...)
	}

	var findings []tools.TrackedFinding
	if cfg.Workflow.FindingsPath != "" {
		var err error
		findings, err = tools.LoadFindings(cfg.Workflow.FindingsPath)
		if err != nil {
			return agent.Tools{}, nil, err
		}
	}

	if client == nil {
		client = llm.NewClaudeCLI(
			llm.WithClaudePath(cfg.LLM.Path),
			llm.WithModel(cfg.LLM.Model),
			llm.WithTimeout(cfg.LLM.Timeout),
		)
	}
	model := tools.NewModel(client,
		tools.WithRetry(fgerrors.NewRetryConfig(
			fgerrors.WithMaxAttempts(cfg.LLM.MaxAttempts),
			fgerrors.WithRetryLogger(logger),
		)),
		tools.WithModelLogger(logger),
	)

	return agent.Tools{
		Classifier: model,
		Retriever:  index,
		Evaluator:  model,
		Deadlines:  tools.NewDeadlineTracker(findings),
		Summarizer: model,
		Answerer:   model,
	}, index, nil
}
