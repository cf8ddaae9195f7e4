package domain

import (
	"time"
)

type NodeKind string

const (
	NodeKindPhase      NodeKind = "phase"
	NodeKindValidation NodeKind = "validation"
	NodeKindInterface  NodeKind = "interface"
)

type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Node is a single unit of work in a workflow graph. DependsOn lists the
// ids of nodes whose completion gates this node; Config is opaque to the
// engine and handed verbatim to the node's runner.
type Node struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Kind      NodeKind               `json:"kind"`
	Mode      ExecutionMode          `json:"mode"`
	DependsOn []string               `json:"depends_on,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusReady     NodeStatus = "ready"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether a status cannot change for the remainder of the run.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusSkipped
}

// NodeState is the per-run record for one node.
type NodeState struct {
	NodeID      string     `json:"node_id"`
	Status      NodeStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
}

func ValidKind(k NodeKind) bool {
	switch k {
	case NodeKindPhase, NodeKindValidation, NodeKindInterface:
		return true
	}
	return false
}

func ValidMode(m ExecutionMode) bool {
	return m == ModeSequential || m == ModeParallel
}
