package domain

import (
	"time"
)

type RunStatus string

const (
	RunStatusNotStarted RunStatus = "not_started"
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// NodeReport is the terminal record for one node in a finished run.
// Failed and Skipped nodes always carry the originating error.
type NodeReport struct {
	NodeID      string        `json:"node_id"`
	Name        string        `json:"name"`
	Kind        NodeKind      `json:"kind"`
	Status      NodeStatus    `json:"status"`
	Attempts    int           `json:"attempts"`
	Error       string        `json:"error,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Artifacts   []string      `json:"artifacts,omitempty"`
}

// RunReport enumerates every node's final status plus the contract table
// as it stood at termination. Partial success stays visible: the report is
// never collapsed into a single pass/fail flag.
type RunReport struct {
	RunID       string       `json:"run_id"`
	Status      RunStatus    `json:"status"`
	Nodes       []NodeReport `json:"nodes"`
	Contracts   []Contract   `json:"contracts,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// FailedNodes returns the ids of nodes that terminated Failed.
func (r *RunReport) FailedNodes() []string {
	var failed []string
	for _, n := range r.Nodes {
		if n.Status == NodeStatusFailed {
			failed = append(failed, n.NodeID)
		}
	}
	return failed
}

type VerdictDecision string

const (
	VerdictAllPassed      VerdictDecision = "all_passed"
	VerdictStreamFailed   VerdictDecision = "stream_failed"
	VerdictMultipleFailed VerdictDecision = "multiple_failed"
	VerdictRunInterrupted VerdictDecision = "run_interrupted"
)

// Verdict is produced by an external audit collaborator from a terminal
// RunReport. The engine forwards it without interpretation.
type Verdict struct {
	Decision      VerdictDecision `json:"decision"`
	FailedStreams []string        `json:"failed_streams,omitempty"`
	MayProceed    bool            `json:"may_proceed"`
}
