// Package web provides the HTTP handlers and REST API for workflow
// management and execution control.
package web

import "github.com/weavebit/loom/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow. The
// graph can be supplied up front or built node by node afterwards.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
	Variables   map[string]any `json:"variables"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
}

// UpdateWorkflowRequest is the request body for updating a workflow. All
// fields are optional; omitted fields keep their current value. Updates
// always produce a new version.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AddNodeRequest is the request body for adding a node to a workflow.
type AddNodeRequest struct {
	ID        string          `json:"id"     validate:"required"`
	Type      models.NodeType `json:"type"   validate:"required"`
	Name      string          `json:"name"`
	Config    map[string]any  `json:"config"`
	PositionX int             `json:"position_x"`
	PositionY int             `json:"position_y"`
}

// AddEdgeRequest is the request body for connecting two nodes.
type AddEdgeRequest struct {
	ID        string `json:"id"`
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// RegisterTriggerRequest is the request body for attaching a trigger to a
// workflow.
type RegisterTriggerRequest struct {
	Type   models.TriggerType `json:"type"   validate:"required,oneof=manual schedule webhook event"`
	Config map[string]any     `json:"config"`
}

// SetTriggerEnabledRequest toggles a trigger.
type SetTriggerEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ExecuteWorkflowRequest is the request body for starting an execution
// manually. The payload seeds the execution context's trigger data.
type ExecuteWorkflowRequest struct {
	Payload map[string]any `json:"payload"`
}

// ResumeExecutionRequest is the request body for approving a paused
// execution. The payload is merged into the approval node's output.
type ResumeExecutionRequest struct {
	Payload map[string]any `json:"payload"`
}
