// Package engine walks a validated workflow graph, dispatches ready nodes
// to their runners, commits results into the run context, and checkpoints
// after every commit until the graph is exhausted, failed, or cancelled.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/adapters/execution"
	"github.com/loomworks/loom/internal/adapters/registry"
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/ports"
)

type Executor struct {
	config   *domain.Config
	logger   *slog.Logger
	store    *execution.Store
	registry *registry.Registry
	events   ports.EventManager
	runner   *recoverableRunner

	mu      sync.Mutex
	runners map[domain.NodeKind]ports.NodeRunner
	active  map[string]*activeRun
}

type activeRun struct {
	mu        sync.Mutex
	cancelled bool
	cancel    context.CancelFunc
}

func (r *activeRun) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func NewExecutor(config *domain.Config, store *execution.Store, reg *registry.Registry, events ports.EventManager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		config:   config,
		logger:   logger.With("component", "executor"),
		store:    store,
		registry: reg,
		events:   events,
		runner:   newRecoverableRunner(config.Retry, logger),
		runners:  make(map[domain.NodeKind]ports.NodeRunner),
		active:   make(map[string]*activeRun),
	}
}

// RegisterRunner binds the execution strategy for one node kind. The
// scheduler depends only on this interface, never on kind internals.
func (e *Executor) RegisterRunner(kind domain.NodeKind, runner ports.NodeRunner) error {
	if !domain.ValidKind(kind) {
		return fmt.Errorf("%w: unknown node kind %q", domain.ErrInvalidInput, kind)
	}
	if runner == nil {
		return fmt.Errorf("%w: runner must not be nil", domain.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[kind] = runner
	return nil
}

// Run executes a validated graph from scratch and blocks until the run
// reaches a terminal status. An unsealed graph is a caller bug, not a
// runtime failure.
func (e *Executor) Run(ctx context.Context, g *graph.Graph, globalInput map[string]interface{}) (*domain.RunReport, error) {
	if !g.Sealed() {
		return nil, domain.ErrGraphInvalid
	}
	if err := e.checkRunners(g); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	runCtx := execution.NewContext(runID, g, globalInput)
	runCtx.SetStatus(domain.RunStatusRunning)

	for _, root := range g.Roots() {
		runCtx.SetState(domain.NodeState{NodeID: root, Status: domain.NodeStatusReady})
	}

	e.logger.Info("run started",
		"run_id", runID,
		"nodes", g.Len(),
		"roots", len(g.Roots()),
	)
	e.publish(domain.EventRunStarted, &domain.RunStartedEvent{
		RunID:        runID,
		InitialNodes: g.Roots(),
		StartedAt:    runCtx.StartedAt(),
	})

	return e.drive(ctx, g, runCtx)
}

// Resume reloads a checkpointed run and continues it. Nodes already
// Completed never re-run; nodes interrupted while Running were reset to
// Ready by the store and execute at least once more.
func (e *Executor) Resume(ctx context.Context, g *graph.Graph, runID string) (*domain.RunReport, error) {
	if !g.Sealed() {
		return nil, domain.ErrGraphInvalid
	}
	if err := e.checkRunners(g); err != nil {
		return nil, err
	}

	runCtx, contracts, err := e.store.Restore(runID, g)
	if err != nil {
		return nil, err
	}
	e.registry.RestoreSnapshot(contracts)

	if runCtx.Status().Terminal() {
		return runCtx.Report(g, e.registry.Snapshot()), nil
	}

	states := runCtx.States()
	for _, id := range g.TopoOrder() {
		if states[id].Status == domain.NodeStatusPending && e.depsCompleted(g, states, id) {
			runCtx.SetState(domain.NodeState{NodeID: id, Status: domain.NodeStatusReady, RetryCount: states[id].RetryCount})
		}
	}

	e.logger.Info("run resumed", "run_id", runID)
	return e.drive(ctx, g, runCtx)
}

// Cancel requests cooperative cancellation of an active run. Nodes already
// running may finish within the grace period before their contexts are
// cancelled and they are recorded as failed.
func (e *Executor) Cancel(runID string) error {
	e.mu.Lock()
	run, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return domain.ErrRunNotFound
	}

	run.mu.Lock()
	already := run.cancelled
	run.cancelled = true
	cancel := run.cancel
	run.mu.Unlock()

	if already {
		return nil
	}

	e.logger.Info("cancellation requested", "run_id", runID, "grace_period", e.config.Engine.CancelGracePeriod)
	if cancel != nil {
		grace := e.config.Engine.CancelGracePeriod
		if grace <= 0 {
			cancel()
		} else {
			time.AfterFunc(grace, cancel)
		}
	}
	return nil
}

func (e *Executor) checkRunners(g *graph.Graph) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		if _, ok := e.runners[node.Kind]; !ok {
			return fmt.Errorf("%w: kind %q (node %q)", domain.ErrRunnerMissing, node.Kind, id)
		}
	}
	return nil
}

// drive is the scheduler loop: compute the ready generation, dispatch it
// with a barrier join, commit results, repeat until no node is ready.
func (e *Executor) drive(ctx context.Context, g *graph.Graph, runCtx *execution.Context) (*domain.RunReport, error) {
	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &activeRun{cancel: cancel}
	e.mu.Lock()
	e.active[runCtx.RunID()] = run
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, runCtx.RunID())
		e.mu.Unlock()
	}()

	e.checkpoint(runCtx, g)

	for {
		if ctx.Err() != nil || run.isCancelled() {
			return e.finishCancelled(g, runCtx)
		}

		generation := e.readyGeneration(g, runCtx)
		if len(generation) == 0 {
			break
		}

		var parallel, sequential []string
		for _, id := range generation {
			node, _ := g.Node(id)
			if node.Mode == domain.ModeParallel {
				parallel = append(parallel, id)
			} else {
				sequential = append(sequential, id)
			}
		}

		if len(parallel) > 0 {
			e.dispatchBatch(dispatchCtx, g, runCtx, parallel)
		}

		for _, id := range sequential {
			if run.isCancelled() {
				return e.finishCancelled(g, runCtx)
			}
			e.dispatchBatch(dispatchCtx, g, runCtx, []string{id})
		}
	}

	return e.finish(g, runCtx)
}

// readyGeneration returns the current Ready nodes ordered by
// (dependency depth, node id) so throttled dispatch is reproducible.
func (e *Executor) readyGeneration(g *graph.Graph, runCtx *execution.Context) []string {
	var ready []string
	states := runCtx.States()
	for _, id := range g.TopoOrder() {
		if states[id].Status == domain.NodeStatusReady {
			ready = append(ready, id)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		di, dj := g.Depth(ready[i]), g.Depth(ready[j])
		if di != dj {
			return di < dj
		}
		return ready[i] < ready[j]
	})
	return ready
}

type dispatchOutcome struct {
	nodeID  string
	outcome attemptOutcome
}

// dispatchBatch runs one generation slice: mark Running, build inputs,
// execute concurrently under the configured throttle, join, then commit
// results in batch order.
func (e *Executor) dispatchBatch(ctx context.Context, g *graph.Graph, runCtx *execution.Context, batch []string) {
	type pending struct {
		node   domain.Node
		input  domain.NodeInput
		runner ports.NodeRunner
	}

	activeContracts := e.registry.Active()
	pendings := make([]pending, 0, len(batch))

	for _, id := range batch {
		node, _ := g.Node(id)

		input, err := runCtx.BuildNodeInput(id, g, activeContracts)
		if err != nil {
			e.commitFailure(g, runCtx, *node, 0, err)
			continue
		}

		e.mu.Lock()
		runner := e.runners[node.Kind]
		e.mu.Unlock()

		now := time.Now()
		state := runCtx.State(id)
		state.Status = domain.NodeStatusRunning
		state.StartedAt = &now
		runCtx.SetState(state)

		e.logger.Debug("node dispatched",
			"run_id", runCtx.RunID(),
			"node_id", id,
			"kind", string(node.Kind),
			"mode", string(node.Mode),
			"depth", g.Depth(id),
		)

		pendings = append(pendings, pending{node: *node, input: input, runner: runner})
	}

	if len(pendings) == 0 {
		return
	}

	// Running states are persisted before dispatch so a crash mid-node
	// resumes with those nodes reset to Ready.
	e.checkpoint(runCtx, g)

	var throttle chan struct{}
	if e.config.Engine.MaxConcurrentNodes > 0 {
		throttle = make(chan struct{}, e.config.Engine.MaxConcurrentNodes)
	}

	// Throttle slots are acquired here in batch order, not raced for inside
	// the workers: under a concurrency limit nodes must start in ascending
	// (depth, id) order so throttled runs are reproducible.
	outcomes := make([]dispatchOutcome, len(pendings))
	var wg sync.WaitGroup
	for i, p := range pendings {
		if throttle != nil {
			throttle <- struct{}{}
		}

		e.publish(domain.EventNodeStarted, &domain.NodeStartedEvent{
			RunID:     runCtx.RunID(),
			NodeID:    p.node.ID,
			Kind:      p.node.Kind,
			Attempt:   runCtx.State(p.node.ID).RetryCount + 1,
			StartedAt: time.Now(),
		})

		wg.Add(1)
		go func(i int, p pending) {
			defer wg.Done()
			if throttle != nil {
				defer func() { <-throttle }()
			}
			outcomes[i] = dispatchOutcome{
				nodeID:  p.node.ID,
				outcome: e.runner.execute(ctx, p.runner, p.node, p.input, e.config.Engine.NodeExecutionTimeout),
			}
		}(i, p)
	}
	wg.Wait()

	for i, out := range outcomes {
		node := pendings[i].node
		if out.outcome.err == nil {
			e.commitSuccess(g, runCtx, node, out.outcome)
			continue
		}
		if node.Kind == domain.NodeKindValidation && !e.config.Engine.FailOnValidationError {
			e.commitValidationWarning(g, runCtx, node, out.outcome)
			continue
		}
		e.commitFailure(g, runCtx, node, out.outcome.attempts, out.outcome.err)
	}
}

func (e *Executor) commitSuccess(g *graph.Graph, runCtx *execution.Context, node domain.Node, out attemptOutcome) {
	if err := runCtx.RecordOutput(node.ID, out.result.Output, out.result.Artifacts, out.result.ContractsTouched); err != nil {
		e.commitFailure(g, runCtx, node, out.attempts, err)
		return
	}

	now := time.Now()
	state := runCtx.State(node.ID)
	state.Status = domain.NodeStatusCompleted
	state.CompletedAt = &now
	state.RetryCount = out.attempts - 1
	state.Error = ""
	runCtx.SetState(state)

	e.markReadySuccessors(g, runCtx, node.ID)
	e.checkpoint(runCtx, g)

	duration := time.Duration(0)
	if state.StartedAt != nil {
		duration = now.Sub(*state.StartedAt)
	}
	e.logger.Info("node completed",
		"run_id", runCtx.RunID(),
		"node_id", node.ID,
		"attempts", out.attempts,
		"duration", duration,
	)
	e.publish(domain.EventNodeCompleted, &domain.NodeCompletedEvent{
		RunID:       runCtx.RunID(),
		NodeID:      node.ID,
		Duration:    duration,
		CompletedAt: now,
	})
}

// commitValidationWarning records a validation failure without stopping the
// graph: the error detail is kept but the node counts as Completed.
func (e *Executor) commitValidationWarning(g *graph.Graph, runCtx *execution.Context, node domain.Node, out attemptOutcome) {
	now := time.Now()
	state := runCtx.State(node.ID)
	state.Status = domain.NodeStatusCompleted
	state.CompletedAt = &now
	state.RetryCount = out.attempts - 1
	state.Error = out.err.Error()
	runCtx.SetState(state)

	e.markReadySuccessors(g, runCtx, node.ID)
	e.checkpoint(runCtx, g)

	e.logger.Warn("validation failed, continuing per policy",
		"run_id", runCtx.RunID(),
		"node_id", node.ID,
		"error", out.err.Error(),
	)
	e.publish(domain.EventNodeCompleted, &domain.NodeCompletedEvent{
		RunID:       runCtx.RunID(),
		NodeID:      node.ID,
		CompletedAt: now,
	})
}

func (e *Executor) commitFailure(g *graph.Graph, runCtx *execution.Context, node domain.Node, attempts int, err error) {
	now := time.Now()
	state := runCtx.State(node.ID)
	state.Status = domain.NodeStatusFailed
	state.CompletedAt = &now
	if attempts > 0 {
		state.RetryCount = attempts - 1
	}
	state.Error = err.Error()
	runCtx.SetState(state)

	e.logger.Error("node failed",
		"run_id", runCtx.RunID(),
		"node_id", node.ID,
		"attempts", attempts,
		"error", err.Error(),
	)
	e.publish(domain.EventNodeFailed, &domain.NodeFailedEvent{
		RunID:    runCtx.RunID(),
		NodeID:   node.ID,
		Error:    err.Error(),
		Attempt:  attempts,
		Final:    true,
		FailedAt: now,
	})

	// Cancellation propagates forward only: every transitive dependent is
	// skipped and never runs.
	for _, dep := range g.TransitiveDependents(node.ID) {
		depState := runCtx.State(dep)
		if depState.Status.Terminal() {
			continue
		}
		depState.Status = domain.NodeStatusSkipped
		depState.Error = fmt.Sprintf("skipped: upstream node %q failed", node.ID)
		runCtx.SetState(depState)

		e.publish(domain.EventNodeSkipped, &domain.NodeSkippedEvent{
			RunID:      runCtx.RunID(),
			NodeID:     dep,
			UpstreamID: node.ID,
		})
	}

	e.checkpoint(runCtx, g)
}

func (e *Executor) markReadySuccessors(g *graph.Graph, runCtx *execution.Context, nodeID string) {
	states := runCtx.States()
	for _, succ := range g.ReadySuccessors(nodeID, states) {
		state := runCtx.State(succ)
		state.Status = domain.NodeStatusReady
		runCtx.SetState(state)
	}
}

func (e *Executor) depsCompleted(g *graph.Graph, states map[string]domain.NodeState, id string) bool {
	for _, dep := range g.Dependencies(id) {
		if states[dep].Status != domain.NodeStatusCompleted {
			return false
		}
	}
	return true
}

func (e *Executor) finish(g *graph.Graph, runCtx *execution.Context) (*domain.RunReport, error) {
	status := domain.RunStatusCompleted
	for _, state := range runCtx.States() {
		if state.Status == domain.NodeStatusFailed {
			status = domain.RunStatusFailed
			break
		}
	}

	return e.seal(g, runCtx, status)
}

// finishCancelled marks everything not yet terminal as Skipped and seals
// the run Cancelled.
func (e *Executor) finishCancelled(g *graph.Graph, runCtx *execution.Context) (*domain.RunReport, error) {
	for id, state := range runCtx.States() {
		if state.Status.Terminal() {
			continue
		}
		state.Status = domain.NodeStatusSkipped
		state.Error = domain.ErrCancelled.Error()
		state.NodeID = id
		runCtx.SetState(state)
	}

	return e.seal(g, runCtx, domain.RunStatusCancelled)
}

func (e *Executor) seal(g *graph.Graph, runCtx *execution.Context, status domain.RunStatus) (*domain.RunReport, error) {
	runCtx.SetStatus(status)
	e.checkpoint(runCtx, g)

	now := time.Now()
	duration := now.Sub(runCtx.StartedAt())

	eventType := domain.EventRunCompleted
	switch status {
	case domain.RunStatusFailed:
		eventType = domain.EventRunFailed
	case domain.RunStatusCancelled:
		eventType = domain.EventRunCancelled
	}

	e.logger.Info("run finished",
		"run_id", runCtx.RunID(),
		"status", string(status),
		"duration", duration,
	)
	e.publish(eventType, &domain.RunCompletedEvent{
		RunID:       runCtx.RunID(),
		Status:      status,
		CompletedAt: now,
		Duration:    duration,
	})

	return runCtx.Report(g, e.registry.Snapshot()), nil
}

// checkpoint persists the context; a checkpoint failure is logged and the
// run continues with the still-valid in-memory context.
func (e *Executor) checkpoint(runCtx *execution.Context, g *graph.Graph) {
	if err := e.store.Checkpoint(runCtx, g.NodeIDs(), e.registry.Snapshot()); err != nil {
		e.logger.Error("checkpoint failed, run continues without resumability for this interval",
			"run_id", runCtx.RunID(),
			"error", err.Error(),
		)
	}
}

func (e *Executor) publish(eventType domain.EventType, payload interface{}) {
	if e.events == nil {
		return
	}
	e.events.Publish(domain.Event{Type: eventType, Payload: payload})
}
