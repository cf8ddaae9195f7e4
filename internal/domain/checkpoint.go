package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

// Checkpoint is the durable record for one run: enough state to resume
// without re-executing completed nodes. The graph itself is not persisted;
// the caller supplies it again on restore and NodeIDs is checked against it.
type Checkpoint struct {
	RunID            string                     `json:"run_id"`
	Status           RunStatus                  `json:"status"`
	NodeIDs          []string                   `json:"node_ids"`
	GlobalInput      map[string]interface{}     `json:"global_input,omitempty"`
	Outputs          map[string]json.RawMessage `json:"outputs,omitempty"`
	Artifacts        map[string][]string        `json:"artifacts,omitempty"`
	States           map[string]NodeState       `json:"states"`
	ContractsTouched map[string][]string        `json:"contracts_touched,omitempty"`
	Contracts        []Contract                 `json:"contracts,omitempty"`
	ContractRefs     []ContractRef              `json:"contract_refs,omitempty"`
	StartedAt        time.Time                  `json:"started_at"`
	SavedAt          time.Time                  `json:"saved_at"`
}
