package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// NodeError captures the failure of one node visit, retained on the
// execution record for inspection.
type NodeError struct {
	NodeID  string    `json:"node_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Execution is one run of a workflow version. It references (never owns) the
// workflow version it runs against; it exclusively owns its node executions.
type Execution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	WorkflowVersion int             `json:"workflow_version"`
	Status          ExecutionStatus `json:"status"`
	Context         map[string]any  `json:"context,omitempty"`
	CurrentNodeID   string          `json:"current_node_id,omitempty"`
	CompletedNodes  []string        `json:"completed_nodes"`
	FailedNodes     []NodeError     `json:"failed_nodes,omitempty"`
	Result          map[string]any  `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	TriggeredBy     string          `json:"triggered_by"`
	TriggerID       string          `json:"trigger_id,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// Duration returns the wall-clock duration of a finished execution, or the
// elapsed time so far for one still in flight.
func (e *Execution) Duration() time.Duration {
	if e.FinishedAt != nil {
		return e.FinishedAt.Sub(e.StartedAt)
	}

	return time.Since(e.StartedAt)
}

// NodeExecutionStatus represents the state of one node visit.
type NodeExecutionStatus string

// Records are created running and finalized completed or failed; a node
// revisit appends a fresh record rather than transitioning an old one.
const (
	NodeExecutionStatusRunning   NodeExecutionStatus = "running"
	NodeExecutionStatusCompleted NodeExecutionStatus = "completed"
	NodeExecutionStatusFailed    NodeExecutionStatus = "failed"
)

// NodeExecution records one visit to one node within one execution. A node
// revisited inside a LOOP produces a fresh record per visit; records are
// never overwritten.
type NodeExecution struct {
	ID          string              `json:"id"`
	ExecutionID string              `json:"execution_id"`
	NodeID      string              `json:"node_id"`
	NodeType    NodeType            `json:"node_type"`
	Status      NodeExecutionStatus `json:"status"`
	Input       map[string]any      `json:"input,omitempty"`
	Output      any                 `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
}
