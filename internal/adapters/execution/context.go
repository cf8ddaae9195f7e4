// Package execution owns per-run mutable state: the node output slots, the
// artifact and state tables, and the checkpoint boundary over durable
// storage.
package execution

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/graph"
)

// Context is the single shared mutable resource of a run. Writes are
// append-only per node slot; only the scheduler mutates it, on behalf of a
// completing node. Completed slots may be read without locking concerns
// because they are never overwritten.
type Context struct {
	runID       string
	status      domain.RunStatus
	globalInput map[string]interface{}
	outputs     map[string]json.RawMessage
	artifacts   map[string][]string
	states      map[string]domain.NodeState
	contracts   map[string][]string // contract names touched, per node
	startedAt   time.Time
}

func NewContext(runID string, g *graph.Graph, globalInput map[string]interface{}) *Context {
	states := make(map[string]domain.NodeState, g.Len())
	for _, id := range g.NodeIDs() {
		states[id] = domain.NodeState{NodeID: id, Status: domain.NodeStatusPending}
	}

	return &Context{
		runID:       runID,
		status:      domain.RunStatusNotStarted,
		globalInput: globalInput,
		outputs:     make(map[string]json.RawMessage),
		artifacts:   make(map[string][]string),
		states:      states,
		contracts:   make(map[string][]string),
		startedAt:   time.Now(),
	}
}

func (c *Context) RunID() string {
	return c.runID
}

func (c *Context) Status() domain.RunStatus {
	return c.status
}

func (c *Context) SetStatus(status domain.RunStatus) {
	c.status = status
}

func (c *Context) StartedAt() time.Time {
	return c.startedAt
}

func (c *Context) GlobalInput() map[string]interface{} {
	return c.globalInput
}

// RecordOutput commits a node's result into its slot, once per run. A
// second write for the same node is rejected and leaves the context exactly
// as the first write left it.
func (c *Context) RecordOutput(nodeID string, output interface{}, artifacts []string, contractsTouched []string) error {
	if _, written := c.outputs[nodeID]; written {
		return &domain.DuplicateWriteError{RunID: c.runID, NodeID: nodeID}
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("serialize output of node %q: %w", nodeID, err)
	}

	c.outputs[nodeID] = raw
	if len(artifacts) > 0 {
		c.artifacts[nodeID] = append([]string(nil), artifacts...)
	}
	if len(contractsTouched) > 0 {
		c.contracts[nodeID] = append([]string(nil), contractsTouched...)
	}
	return nil
}

// ResetOutput clears a node's slot for an explicit retry; RecordOutput may
// then commit again. Contracts the node touched are forgotten with the
// output so a re-run does not double-count them.
func (c *Context) ResetOutput(nodeID string) {
	delete(c.outputs, nodeID)
	delete(c.artifacts, nodeID)
	delete(c.contracts, nodeID)
}

func (c *Context) Output(nodeID string) (json.RawMessage, bool) {
	out, ok := c.outputs[nodeID]
	return out, ok
}

func (c *Context) Artifacts(nodeID string) []string {
	return append([]string(nil), c.artifacts[nodeID]...)
}

// ContractsTouched flattens the per-node records into one list, ordered by
// node id so the result is stable across runs.
func (c *Context) ContractsTouched() []string {
	ids := make([]string, 0, len(c.contracts))
	for id := range c.contracts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []string
	for _, id := range ids {
		out = append(out, c.contracts[id]...)
	}
	return out
}

func (c *Context) State(nodeID string) domain.NodeState {
	return c.states[nodeID]
}

func (c *Context) SetState(state domain.NodeState) {
	c.states[state.NodeID] = state
}

// States returns a copy of the full state table.
func (c *Context) States() map[string]domain.NodeState {
	out := make(map[string]domain.NodeState, len(c.states))
	for id, st := range c.states {
		out[id] = st
	}
	return out
}

// BuildNodeInput assembles the view handed to a node's runner: the global
// input, the outputs and artifacts of every transitive ancestor (cumulative
// history, not direct parents only), the given Active contracts, and a
// merged document folding global input and ancestor outputs in topological
// order.
func (c *Context) BuildNodeInput(nodeID string, g *graph.Graph, activeContracts []domain.Contract) (domain.NodeInput, error) {
	if !g.HasNode(nodeID) {
		return domain.NodeInput{}, &domain.UnknownNodeError{NodeID: nodeID, Op: "build node input"}
	}

	ancestors := g.Ancestors(nodeID)

	input := domain.NodeInput{
		RunID:       c.runID,
		NodeID:      nodeID,
		GlobalInput: c.globalInput,
		Outputs:     make(map[string]json.RawMessage, len(ancestors)),
		Artifacts:   make(map[string][]string),
		Contracts:   activeContracts,
	}

	merged, err := json.Marshal(c.globalInput)
	if err != nil {
		return domain.NodeInput{}, fmt.Errorf("serialize global input: %w", err)
	}

	for _, ancestor := range ancestors {
		out, ok := c.outputs[ancestor]
		if !ok {
			continue
		}
		input.Outputs[ancestor] = out
		if arts := c.artifacts[ancestor]; len(arts) > 0 {
			input.Artifacts[ancestor] = append([]string(nil), arts...)
		}

		// Nodes with no output payload still occupy their slot but
		// contribute nothing to the merged document.
		if len(out) == 0 || string(out) == "null" {
			continue
		}

		merged, err = domain.MergeStates(merged, out)
		if err != nil {
			return domain.NodeInput{}, fmt.Errorf("merge output of ancestor %q: %w", ancestor, err)
		}
	}

	input.Merged = merged
	return input, nil
}

// Report builds the terminal run report from the current state table.
func (c *Context) Report(g *graph.Graph, contracts []domain.Contract) *domain.RunReport {
	report := &domain.RunReport{
		RunID:       c.runID,
		Status:      c.status,
		Contracts:   contracts,
		StartedAt:   c.startedAt,
		CompletedAt: time.Now(),
	}

	for _, id := range g.TopoOrder() {
		node, _ := g.Node(id)
		state := c.states[id]

		nr := domain.NodeReport{
			NodeID:      id,
			Name:        node.Name,
			Kind:        node.Kind,
			Status:      state.Status,
			Attempts:    state.RetryCount + 1,
			Error:       state.Error,
			StartedAt:   state.StartedAt,
			CompletedAt: state.CompletedAt,
			Artifacts:   c.artifacts[id],
		}
		if state.StartedAt == nil {
			nr.Attempts = 0
		}
		if state.StartedAt != nil && state.CompletedAt != nil {
			nr.Duration = state.CompletedAt.Sub(*state.StartedAt)
		}
		report.Nodes = append(report.Nodes, nr)
	}

	return report
}
