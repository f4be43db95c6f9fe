// Package execctx implements the append-only key/value context carried
// through a workflow execution.
package execctx

import (
	"fmt"
	"sync"
)

// Reserved top-level namespaces.
const (
	TriggerDataKey = "trigger_data"
	VariablesKey   = "variables"
)

// NodeResultKey returns the namespaced key a node's output is merged under.
func NodeResultKey(nodeID string) string {
	return fmt.Sprintf("node_%s_result", nodeID)
}

// Context is the accumulating state of one execution. Keys are only ever
// added or overwritten, never deleted, so a node execution's input snapshot
// can be reconstructed from the context as of its start time.
//
// Concurrent writers only exist inside PARALLEL regions. Writes are
// serialized by the mutex; when sibling branches write the same key the
// last writer in completion order wins. Values are treated as immutable
// after they are stored.
type Context struct {
	ExecutionID string
	WorkflowID  string

	mu     sync.RWMutex
	values map[string]any
}

// New seeds a context from the triggering payload and workflow variables.
func New(executionID, workflowID string, payload, variables map[string]any) *Context {
	values := make(map[string]any, 2)

	if payload == nil {
		payload = map[string]any{}
	}

	values[TriggerDataKey] = payload

	if variables != nil {
		values[VariablesKey] = variables
	}

	return &Context{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		values:      values,
	}
}

// Restore rebuilds a context from a persisted execution record.
func Restore(executionID, workflowID string, snapshot map[string]any) *Context {
	values := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		values[k] = v
	}

	return &Context{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		values:      values,
	}
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]

	return v, ok
}

// Set stores a value under key, overwriting any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = value
}

// MergeNodeResult stores a node's output under its namespaced result key.
func (c *Context) MergeNodeResult(nodeID string, result any) {
	c.Set(NodeResultKey(nodeID), result)
}

// NodeResult returns the stored output of a completed node.
func (c *Context) NodeResult(nodeID string) (any, bool) {
	return c.Get(NodeResultKey(nodeID))
}

// Snapshot returns a point-in-time copy of the context's top-level mapping.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}

	return snap
}

// TriggerData returns the payload the execution was started with.
func (c *Context) TriggerData() map[string]any {
	if v, ok := c.Get(TriggerDataKey); ok {
		if payload, ok := v.(map[string]any); ok {
			return payload
		}
	}

	return map[string]any{}
}

// EvalData returns the document guard expressions and templates are
// evaluated against.
func (c *Context) EvalData() map[string]any {
	data := c.Snapshot()
	data["execution"] = map[string]any{
		"id":          c.ExecutionID,
		"workflow_id": c.WorkflowID,
	}

	return data
}
