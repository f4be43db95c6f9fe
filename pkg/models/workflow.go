// Package models defines the core domain models for DAG-based workflow orchestration.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Immutable, executable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// Workflow represents a versioned graph of nodes, edges and triggers.
//
// Once a version is activated its graph is immutable: edits go through a new
// draft version while in-flight executions keep running against the version
// they started with.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"      validate:"required"`
	Version     int            `json:"version"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Triggers    []*Trigger     `json:"triggers"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EdgesFrom returns every edge leaving the given node.
func (w *Workflow) EdgesFrom(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// EdgesTo returns every edge entering the given node.
func (w *Workflow) EdgesTo(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range w.Edges {
		if edge.Target == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// EntryNode returns the workflow's trigger node, or nil if it has none.
func (w *Workflow) EntryNode() *Node {
	for _, node := range w.Nodes {
		if node.Type == NodeTypeTrigger {
			return node
		}
	}

	return nil
}

// IsExecutable reports whether executions may be started against this version.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive
}
