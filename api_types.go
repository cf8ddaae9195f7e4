package loom

import (
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/ports"
)

type Node = domain.Node

type NodeKind = domain.NodeKind

const (
	NodeKindPhase      NodeKind = domain.NodeKindPhase
	NodeKindValidation NodeKind = domain.NodeKindValidation
	NodeKindInterface  NodeKind = domain.NodeKindInterface
)

type ExecutionMode = domain.ExecutionMode

const (
	ModeSequential ExecutionMode = domain.ModeSequential
	ModeParallel   ExecutionMode = domain.ModeParallel
)

type NodeStatus = domain.NodeStatus

const (
	NodeStatusPending   NodeStatus = domain.NodeStatusPending
	NodeStatusReady     NodeStatus = domain.NodeStatusReady
	NodeStatusRunning   NodeStatus = domain.NodeStatusRunning
	NodeStatusCompleted NodeStatus = domain.NodeStatusCompleted
	NodeStatusFailed    NodeStatus = domain.NodeStatusFailed
	NodeStatusSkipped   NodeStatus = domain.NodeStatusSkipped
)

type NodeState = domain.NodeState

type RunStatus = domain.RunStatus

const (
	RunStatusRunning   RunStatus = domain.RunStatusRunning
	RunStatusCompleted RunStatus = domain.RunStatusCompleted
	RunStatusFailed    RunStatus = domain.RunStatusFailed
	RunStatusCancelled RunStatus = domain.RunStatusCancelled
)

type RunReport = domain.RunReport

type NodeReport = domain.NodeReport

type NodeInput = domain.NodeInput

type NodeResult = domain.NodeResult

type Contract = domain.Contract

type ContractStatus = domain.ContractStatus

const (
	ContractStatusDraft      ContractStatus = domain.ContractStatusDraft
	ContractStatusActive     ContractStatus = domain.ContractStatusActive
	ContractStatusLocked     ContractStatus = domain.ContractStatusLocked
	ContractStatusSuperseded ContractStatus = domain.ContractStatusSuperseded
	ContractStatusDeprecated ContractStatus = domain.ContractStatusDeprecated
)

type Version = domain.Version

type Verdict = domain.Verdict

type VerdictDecision = domain.VerdictDecision

const (
	VerdictAllPassed      VerdictDecision = domain.VerdictAllPassed
	VerdictStreamFailed   VerdictDecision = domain.VerdictStreamFailed
	VerdictMultipleFailed VerdictDecision = domain.VerdictMultipleFailed
	VerdictRunInterrupted VerdictDecision = domain.VerdictRunInterrupted
)

type Event = domain.Event

type EventType = domain.EventType

type Graph = graph.Graph

type NodeRunner = ports.NodeRunner

type RunnerFunc = ports.RunnerFunc

type AuditGateway = ports.AuditGateway

type EventHandler = ports.EventHandler

// ParseVersion parses a major.minor.patch string.
func ParseVersion(s string) (Version, error) {
	return domain.ParseVersion(s)
}

// NewGraph returns an empty workflow graph; add nodes and edges, then call
// Validate before handing it to an Engine.
func NewGraph() *Graph {
	return graph.New()
}

// Error predicates re-exported for callers matching engine errors.
var (
	IsDuplicateNode          = domain.IsDuplicateNode
	IsUnknownNode            = domain.IsUnknownNode
	IsCycle                  = domain.IsCycle
	IsDuplicateWrite         = domain.IsDuplicateWrite
	IsDuplicateVersion       = domain.IsDuplicateVersion
	IsUnknownContract        = domain.IsUnknownContract
	IsBreakingChangeMismatch = domain.IsBreakingChangeMismatch
	IsInvalidTransition      = domain.IsInvalidTransition
	IsCheckpointError        = domain.IsCheckpointError
	IsPanicError             = domain.IsPanicError
)

// Sentinel errors callers may match with errors.Is.
var (
	ErrGraphSealed   = domain.ErrGraphSealed
	ErrGraphInvalid  = domain.ErrGraphInvalid
	ErrRunNotFound   = domain.ErrRunNotFound
	ErrRunnerMissing = domain.ErrRunnerMissing
	ErrCancelled     = domain.ErrCancelled
	ErrStorageClosed = domain.ErrStorageClosed
	ErrInvalidInput  = domain.ErrInvalidInput
	ErrInvalidConfig = domain.ErrInvalidConfig
)
