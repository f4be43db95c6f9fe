// Package engine runs workflow executions: the scheduler owns the lifecycle
// of each run and the executor walks the graph one node visit at a time.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotActive is returned when starting an execution against
	// a version that is not active.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrNoMatchingBranch is returned when a condition node evaluates and
	// no outgoing branch accepts the result.
	ErrNoMatchingBranch = errors.New("no matching branch")

	// ErrActionTimeout is returned when a node handler exceeds its timeout.
	ErrActionTimeout = errors.New("action timed out")

	// ErrActionExecution is returned when a node handler fails after
	// exhausting its retries and no error branch is routed.
	ErrActionExecution = errors.New("action execution failed")

	// ErrLoopLimitExceeded is returned when a loop node is visited more
	// times than its iteration cap allows.
	ErrLoopLimitExceeded = errors.New("loop iteration limit exceeded")

	// ErrAmbiguousRoute is returned when a linear node has more than one
	// non-error outgoing edge. Graph validation rejects this at activation,
	// so hitting it at runtime means the stored workflow bypassed
	// validation.
	ErrAmbiguousRoute = errors.New("ambiguous outgoing route")

	// ErrNotRunning is returned when cancelling or resuming an execution
	// this engine instance is not running.
	ErrNotRunning = errors.New("execution is not running")

	// ErrNotPaused is returned when resuming an execution that is not
	// waiting on an approval.
	ErrNotPaused = errors.New("execution is not paused")
)

// NodeFailure ties an execution error to the node visit that raised it.
type NodeFailure struct {
	NodeID string
	Err    error
}

func (e *NodeFailure) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeFailure) Unwrap() error {
	return e.Err
}
