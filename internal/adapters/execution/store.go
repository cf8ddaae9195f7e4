package execution

import (
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/ports"
)

// Store is the persistence boundary for run contexts. Checkpoints are
// written after every committed node so a crashed run resumes from the last
// completed unit.
type Store struct {
	storage ports.StoragePort
	logger  *slog.Logger
}

func NewStore(storage ports.StoragePort, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		storage: storage,
		logger:  logger.With("component", "context-store"),
	}
}

// Checkpoint serializes the full context plus the contract table snapshot.
// A failure here leaves the in-memory context valid; the caller decides
// whether to continue with reduced resumability.
func (s *Store) Checkpoint(ctx *Context, nodeIDs []string, contracts []domain.Contract) error {
	refs := make([]domain.ContractRef, 0, len(contracts))
	for i := range contracts {
		refs = append(refs, domain.ContractRef{
			Name:     contracts[i].Name,
			Version:  contracts[i].Version,
			Status:   contracts[i].Status,
			SpecHash: contracts[i].SpecHash(),
		})
	}

	checkpoint := domain.Checkpoint{
		RunID:            ctx.runID,
		Status:           ctx.status,
		NodeIDs:          nodeIDs,
		GlobalInput:      ctx.globalInput,
		Outputs:          ctx.outputs,
		Artifacts:        ctx.artifacts,
		States:           ctx.states,
		ContractsTouched: ctx.contracts,
		Contracts:        contracts,
		ContractRefs:     refs,
		StartedAt:        ctx.startedAt,
		SavedAt:          time.Now(),
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return &domain.CheckpointError{RunID: ctx.runID, Op: "serialize", Err: err}
	}

	if err := s.storage.Put(domain.CheckpointKey(ctx.runID), data); err != nil {
		return &domain.CheckpointError{RunID: ctx.runID, Op: "put", Err: err}
	}

	s.logger.Debug("checkpoint written",
		"run_id", ctx.runID,
		"status", string(ctx.status),
		"bytes", len(data),
	)
	return nil
}

// Restore reconstructs a context the scheduler can continue exactly as if
// no interruption occurred: Completed nodes keep their outputs and states,
// nodes that were Running at interruption are reset to Ready so they run
// at least once more, never silently dropped. The caller supplies the
// graph; only state was persisted, not structure.
func (s *Store) Restore(runID string, g *graph.Graph) (*Context, []domain.Contract, error) {
	data, exists, err := s.storage.Get(domain.CheckpointKey(runID))
	if err != nil {
		return nil, nil, &domain.CheckpointError{RunID: runID, Op: "get", Err: err}
	}
	if !exists {
		return nil, nil, domain.ErrRunNotFound
	}

	var checkpoint domain.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, nil, &domain.CheckpointError{RunID: runID, Op: "deserialize", Err: err}
	}

	for _, id := range checkpoint.NodeIDs {
		if !g.HasNode(id) {
			return nil, nil, &domain.UnknownNodeError{NodeID: id, Op: "restore checkpoint against graph"}
		}
	}

	ctx := &Context{
		runID:       checkpoint.RunID,
		status:      checkpoint.Status,
		globalInput: checkpoint.GlobalInput,
		outputs:     checkpoint.Outputs,
		artifacts:   checkpoint.Artifacts,
		states:      checkpoint.States,
		contracts:   checkpoint.ContractsTouched,
		startedAt:   checkpoint.StartedAt,
	}
	if ctx.outputs == nil {
		ctx.outputs = make(map[string]json.RawMessage)
	}
	if ctx.artifacts == nil {
		ctx.artifacts = make(map[string][]string)
	}
	if ctx.states == nil {
		ctx.states = make(map[string]domain.NodeState)
	}
	if ctx.contracts == nil {
		ctx.contracts = make(map[string][]string)
	}

	reset := 0
	for id, state := range ctx.states {
		if state.Status == domain.NodeStatusRunning {
			state.Status = domain.NodeStatusReady
			ctx.states[id] = state
			reset++
		}
	}

	s.logger.Info("run restored from checkpoint",
		"run_id", runID,
		"status", string(ctx.status),
		"running_reset_to_ready", reset,
	)

	return ctx, checkpoint.Contracts, nil
}

// Archive removes the durable state of a terminal run.
func (s *Store) Archive(runID string) error {
	deleted, err := s.storage.DeleteByPrefix(domain.RunPrefix(runID))
	if err != nil {
		return &domain.CheckpointError{RunID: runID, Op: "archive", Err: err}
	}

	s.logger.Debug("run archived", "run_id", runID, "keys_deleted", deleted)
	return nil
}
