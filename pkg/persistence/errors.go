package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations use.
var (
	// ErrWorkflowNotFound indicates no workflow exists for the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowVersionNotFound indicates the workflow exists but not at
	// the requested version.
	ErrWorkflowVersionNotFound = errors.New("workflow version not found")

	// ErrTriggerNotFound indicates no trigger exists for the given id.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrExecutionNotFound indicates no execution exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")
)

// WorkflowError wraps workflow storage failures with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionError wraps execution storage failures with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks whether an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrWorkflowVersionNotFound)
}

// IsTriggerNotFound checks whether an error indicates a missing trigger.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsExecutionNotFound checks whether an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
