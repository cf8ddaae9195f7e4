package domain

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	ErrGraphSealed   = errors.New("graph is sealed after validation")
	ErrGraphInvalid  = errors.New("graph failed validation")
	ErrRunNotFound   = errors.New("run not found")
	ErrRunnerMissing = errors.New("no runner registered for node kind")
	ErrCancelled     = errors.New("run cancelled")
	ErrStorageClosed = errors.New("storage is closed")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DuplicateNodeError rejects a second AddNode with an id already present.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already exists in graph", e.NodeID)
}

// UnknownNodeError rejects edges or dependencies naming an absent node.
type UnknownNodeError struct {
	NodeID string
	Op     string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("%s: unknown node %q", e.Op, e.NodeID)
}

// CycleError reports a dependency cycle found during validation, naming at
// least one node on the cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving nodes %v", e.Members)
}

// DuplicateWriteError guards the one-output-per-node invariant of a run.
type DuplicateWriteError struct {
	RunID  string
	NodeID string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("output already recorded for node %q in run %q", e.NodeID, e.RunID)
}

// DuplicateVersionError rejects creating a (name, version) pair that exists.
type DuplicateVersionError struct {
	Name    string
	Version Version
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("contract %s@%s already exists", e.Name, e.Version)
}

// UnknownContractError rejects evolving or transitioning an absent contract.
type UnknownContractError struct {
	Name    string
	Version string
}

func (e *UnknownContractError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("contract %s@%s not found", e.Name, e.Version)
	}
	return fmt.Sprintf("contract %q not found", e.Name)
}

// BreakingChangeMismatchError rejects an evolution whose declared breaking
// flag disagrees with the structural diff or the version bump.
type BreakingChangeMismatchError struct {
	Name    string
	Version Version
	Reason  string
}

func (e *BreakingChangeMismatchError) Error() string {
	return fmt.Sprintf("contract %s@%s: %s", e.Name, e.Version, e.Reason)
}

// InvalidTransitionError rejects a contract lifecycle move the policy
// forbids, e.g. activating a Locked version.
type InvalidTransitionError struct {
	Name    string
	Version Version
	From    ContractStatus
	To      ContractStatus
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("contract %s@%s: cannot transition %s -> %s", e.Name, e.Version, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// CheckpointError wraps a persistence failure during checkpoint. The
// in-memory context stays valid; only resumability for the interval is lost.
type CheckpointError struct {
	RunID string
	Op    string
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint[%s] %s: %v", e.RunID, e.Op, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeExecutionError is the only expected, recoverable error category:
// a runner failure that may be retried within the node's budget.
type NodeExecutionError struct {
	RunID   string
	NodeID  string
	Attempt int
	Err     error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q attempt %d: %v", e.NodeID, e.Attempt, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic escaping a node runner together with the
// stack at the point of recovery.
type PanicError struct {
	RunID      string
	NodeID     string
	PanicValue interface{}
	StackTrace string
}

func NewPanicError(runID, nodeID string, panicValue interface{}) *PanicError {
	return &PanicError{
		RunID:      runID,
		NodeID:     nodeID,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %q panicked: %v", e.NodeID, e.PanicValue)
}

func IsDuplicateNode(err error) bool {
	var target *DuplicateNodeError
	return errors.As(err, &target)
}

func IsUnknownNode(err error) bool {
	var target *UnknownNodeError
	return errors.As(err, &target)
}

func IsCycle(err error) bool {
	var target *CycleError
	return errors.As(err, &target)
}

func IsDuplicateWrite(err error) bool {
	var target *DuplicateWriteError
	return errors.As(err, &target)
}

func IsDuplicateVersion(err error) bool {
	var target *DuplicateVersionError
	return errors.As(err, &target)
}

func IsUnknownContract(err error) bool {
	var target *UnknownContractError
	return errors.As(err, &target)
}

func IsBreakingChangeMismatch(err error) bool {
	var target *BreakingChangeMismatchError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsCheckpointError(err error) bool {
	var target *CheckpointError
	return errors.As(err, &target)
}

func IsPanicError(err error) bool {
	var target *PanicError
	return errors.As(err, &target)
}
