// Package loom is a parallel, dependency-aware workflow execution engine
// with contract-mediated coordination between independently executing work
// streams. Callers build a validated workflow graph, register a runner per
// node kind, and execute; the engine schedules ready nodes honoring
// dependency and concurrency constraints, checkpoints after every committed
// node, and reports every node's terminal status.
package loom

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-hclog"

	"github.com/loomworks/loom/internal/adapters/engine"
	"github.com/loomworks/loom/internal/adapters/events"
	"github.com/loomworks/loom/internal/adapters/execution"
	"github.com/loomworks/loom/internal/adapters/memory"
	"github.com/loomworks/loom/internal/adapters/observability"
	"github.com/loomworks/loom/internal/adapters/registry"
	"github.com/loomworks/loom/internal/adapters/storage"
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/ports"
)

// Engine ties the scheduler, contract registry, context store and event
// manager together for one embedding application. Multiple engines may
// coexist in a process; nothing is process-global.
type Engine struct {
	config   *domain.Config
	logger   *slog.Logger
	storage  ports.StoragePort
	store    *execution.Store
	registry *registry.Registry
	events   *events.Manager
	executor *engine.Executor
}

// New builds an Engine from config. With an empty DataDir run state is kept
// in memory only; otherwise checkpoints go to a badger store under DataDir.
func New(config *domain.Config) (*Engine, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store ports.StoragePort
	if config.DataDir == "" {
		store = memory.NewStore()
	} else {
		badgerStore, err := storage.Open(config.DataDir, logger)
		if err != nil {
			return nil, err
		}
		store = badgerStore
	}

	eventManager := events.NewManager(logger)
	contractRegistry := registry.New(eventManager, logger)
	contextStore := execution.NewStore(store, logger)
	executor := engine.NewExecutor(config, contextStore, contractRegistry, eventManager, logger)

	return &Engine{
		config:   config,
		logger:   logger,
		storage:  store,
		store:    contextStore,
		registry: contractRegistry,
		events:   eventManager,
		executor: executor,
	}, nil
}

// NewWithHCLog is New with logging routed through an hclog.Logger.
func NewWithHCLog(config *domain.Config, logger hclog.Logger) (*Engine, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	config.Logger = observability.NewHCLogger(logger)
	return New(config)
}

// RegisterRunner binds the execution strategy for one node kind. Every kind
// present in a graph must have a runner before Execute or Resume.
func (e *Engine) RegisterRunner(kind NodeKind, runner NodeRunner) error {
	return e.executor.RegisterRunner(kind, runner)
}

// Execute runs a validated graph to a terminal status and returns the full
// per-node report. The graph must have passed Validate.
func (e *Engine) Execute(ctx context.Context, g *Graph, globalInput map[string]interface{}) (*RunReport, error) {
	return e.executor.Run(ctx, g, globalInput)
}

// Resume continues a checkpointed run. The caller supplies the same graph;
// completed nodes are not re-run.
func (e *Engine) Resume(ctx context.Context, g *Graph, runID string) (*RunReport, error) {
	return e.executor.Resume(ctx, g, runID)
}

// Cancel requests cooperative cancellation of an active run.
func (e *Engine) Cancel(runID string) error {
	return e.executor.Cancel(runID)
}

// Contracts exposes the engine's contract registry for producer and
// consumer coordination.
func (e *Engine) Contracts() *registry.Registry {
	return e.registry
}

// Subscribe registers a generic event handler for every event whose type
// starts with pattern; the returned function unsubscribes.
func (e *Engine) Subscribe(pattern string, handler EventHandler) func() {
	return e.events.Subscribe(pattern, handler)
}

// Events exposes the typed handler registration surface.
func (e *Engine) Events() *events.Manager {
	return e.events
}

// Audit forwards a terminal report to an external audit gateway and returns
// its verdict unchanged; the engine does not interpret it.
func (e *Engine) Audit(ctx context.Context, gateway AuditGateway, report *RunReport) (Verdict, error) {
	return gateway.Evaluate(ctx, report)
}

// Archive deletes the durable state of a terminal run.
func (e *Engine) Archive(runID string) error {
	return e.store.Archive(runID)
}

// Close releases the underlying storage.
func (e *Engine) Close() error {
	return e.storage.Close()
}
