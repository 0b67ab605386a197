// =============================================================================
// Package taskflow — One-Line Engine Construction
// =============================================================================
// Provides a convenience entry point for assembling a workflow engine with
// minimal boilerplate. Delegates to engine, routing, checkpoint, and state
// internally.
//
// Usage:
//
//	import "github.com/BaSui01/taskflow"
//
//	eng, err := taskflow.New(
//	    taskflow.WithAgent("execution", myCapability),
//	)
//	st, err := eng.Execute(ctx, map[string]any{"title": "build the report"})
//
// Without further options the engine uses the default configuration: the
// standard phase-progression router, an in-memory checkpoint store, and a
// nop logger.
// =============================================================================
package taskflow

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/checkpoint"
	"github.com/BaSui01/taskflow/config"
	"github.com/BaSui01/taskflow/engine"
	"github.com/BaSui01/taskflow/executor"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/routing"
	"github.com/BaSui01/taskflow/state"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     checkpoint.Store
	router    *routing.Router
	registry  prometheus.Registerer
	agents    map[string]executor.Capability
	noMetrics bool
}

// WithConfig sets the full configuration. Defaults to config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCheckpointStore sets a pre-built checkpoint store, overriding the
// backend named in the configuration.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(o *options) { o.store = store }
}

// WithRouter sets a pre-built router, replacing the standard
// phase-progression router. Its name must match the engine config.
func WithRouter(r *routing.Router) Option {
	return func(o *options) { o.router = r }
}

// WithAgent binds a capability to a routing target name.
func WithAgent(target string, capability executor.Capability) Option {
	return func(o *options) { o.agents[target] = capability }
}

// WithRegistry sets the Prometheus registerer for the metrics collector.
// Defaults to prometheus.DefaultRegisterer.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithoutMetrics disables the Prometheus collector regardless of config.
func WithoutMetrics() Option {
	return func(o *options) { o.noMetrics = true }
}

// New assembles a compiled workflow engine: validator, transition manager,
// checkpoint manager, routing engine with the workflow router, and one
// execution wrapper per registered agent.
func New(opts ...Option) (*engine.Engine, error) {
	o := &options{
		agents: make(map[string]executor.Capability),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Validation and transitions.
	validator := state.NewValidator(state.Limits{
		MaxRetries:  cfg.Validator.MaxRetries,
		MaxMessages: cfg.Validator.MaxMessages,
		MaxElapsed:  cfg.Validator.MaxElapsed,
	})
	transitions := state.NewTransitionManager(validator, logger)

	// Checkpointing.
	store := o.store
	if store == nil {
		var err error
		store, err = buildStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build checkpoint store: %w", err)
		}
	}
	checkpoints := checkpoint.NewManager(store, checkpoint.Config{
		MinInterval:    cfg.Checkpoint.MinInterval,
		MemoryCapacity: cfg.Checkpoint.MemoryCapacity,
	}, logger)

	// Routing.
	router := o.router
	if router == nil {
		router = routing.NewWorkflowRouter(cfg.Engine.Router,
			cfg.Routing.ConfidenceThreshold, cfg.Routing.QualityThreshold)
	}
	routingEngine := routing.NewEngine(cfg.Routing.HistorySize, logger)
	if err := routingEngine.RegisterRouter(router); err != nil {
		return nil, err
	}

	// Metrics.
	var collector *metrics.Collector
	if cfg.Metrics.Enabled && !o.noMetrics {
		reg := o.registry
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
	}

	eng := engine.New(engine.Config{
		Name:          cfg.Engine.Name,
		Router:        cfg.Engine.Router,
		MaxIterations: cfg.Engine.MaxIterations,
		Timeout:       cfg.Engine.Timeout,
		MaxParallel:   cfg.Engine.MaxParallel,
	}, routingEngine, transitions, checkpoints, collector, logger)

	execCfg := executor.Config{
		Timeout:    cfg.Executor.Timeout,
		MaxRetries: cfg.Executor.MaxRetries,
		RetryDelay: cfg.Executor.RetryDelay,
	}
	for target, capability := range o.agents {
		w := executor.NewWrapper(target, capability, execCfg, transitions, logger)
		if err := eng.RegisterAgent(target, w); err != nil {
			return nil, err
		}
	}

	if err := eng.Compile(); err != nil {
		return nil, err
	}
	return eng, nil
}

// buildStore resolves the checkpoint backend named in the config.
func buildStore(cfg *config.Config, logger *zap.Logger) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "", "memory":
		return checkpoint.NewMemoryStore(cfg.Checkpoint.MemoryCapacity), nil
	case "sqlite":
		db, err := checkpoint.OpenSQLite(cfg.Checkpoint.SQLitePath)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewGormStore(db, logger)
	case "postgres":
		db, err := checkpoint.OpenPostgres(cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		return checkpoint.NewGormStore(db, logger)
	default:
		// redis and mongo stores need live clients; callers construct those
		// and pass them in via WithCheckpointStore.
		return nil, fmt.Errorf("checkpoint backend %q needs an explicit store, use WithCheckpointStore", cfg.Checkpoint.Backend)
	}
}
