package domain

import (
	json "github.com/goccy/go-json"
)

// NodeInput is the dependency-scoped view handed to a node's runner: the
// run's global input, the outputs and artifacts of every transitive
// ancestor, the contracts currently Active, and a single merged document
// folding all of that together in topological order.
type NodeInput struct {
	RunID       string                     `json:"run_id"`
	NodeID      string                     `json:"node_id"`
	GlobalInput map[string]interface{}     `json:"global_input,omitempty"`
	Outputs     map[string]json.RawMessage `json:"outputs,omitempty"`
	Artifacts   map[string][]string        `json:"artifacts,omitempty"`
	Contracts   []Contract                 `json:"contracts,omitempty"`
	Merged      json.RawMessage            `json:"merged,omitempty"`
}

// NodeResult is what a runner returns on success. Output is serialized and
// committed to the node's slot; ContractsTouched names registry entries the
// node created or evolved so the run can report them.
type NodeResult struct {
	Output           interface{} `json:"output,omitempty"`
	Artifacts        []string    `json:"artifacts,omitempty"`
	ContractsTouched []string    `json:"contracts_touched,omitempty"`
}
