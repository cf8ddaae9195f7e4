package domain

import (
	"time"
)

type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunCompleted    EventType = "run.completed"
	EventRunFailed       EventType = "run.failed"
	EventRunCancelled    EventType = "run.cancelled"
	EventNodeStarted     EventType = "node.started"
	EventNodeCompleted   EventType = "node.completed"
	EventNodeFailed      EventType = "node.failed"
	EventNodeSkipped     EventType = "node.skipped"
	EventNodeRetried     EventType = "node.retried"
	EventContractChanged EventType = "contract.changed"
)

// Event is the envelope published through the event manager. Payload is one
// of the typed event structs below.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type RunStartedEvent struct {
	RunID        string    `json:"run_id"`
	InitialNodes []string  `json:"initial_nodes"`
	StartedAt    time.Time `json:"started_at"`
}

type RunCompletedEvent struct {
	RunID       string        `json:"run_id"`
	Status      RunStatus     `json:"status"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

type NodeStartedEvent struct {
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Kind      NodeKind  `json:"kind"`
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`
}

type NodeCompletedEvent struct {
	RunID       string        `json:"run_id"`
	NodeID      string        `json:"node_id"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

type NodeFailedEvent struct {
	RunID    string    `json:"run_id"`
	NodeID   string    `json:"node_id"`
	Error    string    `json:"error"`
	Attempt  int       `json:"attempt"`
	Final    bool      `json:"final"`
	FailedAt time.Time `json:"failed_at"`
}

type NodeSkippedEvent struct {
	RunID      string `json:"run_id"`
	NodeID     string `json:"node_id"`
	UpstreamID string `json:"upstream_id"`
}

// ContractChangedEvent is emitted on every mutating registry call; the only
// place side effects escape the registry.
type ContractChangedEvent struct {
	Name      string         `json:"name"`
	Version   Version        `json:"version"`
	Operation string         `json:"operation"`
	Status    ContractStatus `json:"status"`
	Breaking  bool           `json:"breaking"`
	ChangedAt time.Time      `json:"changed_at"`
}
