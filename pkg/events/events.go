// Package events defines the lifecycle notifications published while
// workflows execute. Consumers subscribe through pkg/eventbus.
package events

import (
	"time"

	"github.com/weavebit/loom/pkg/models"
)

type EventType string

// Topic carries every loom event; consumers filter on the event_type
// metadata.
const Topic = "loom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerFiredEvent EventType = "trigger.fired"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	NodeStartedEvent   EventType = "node.started"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

type TriggerFired struct {
	BaseEvent

	TriggerID   string         `json:"trigger_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	WorkflowVersion int    `json:"workflow_version"`
	TriggeredBy     string `json:"triggered_by"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Result      map[string]any `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type NodeStarted struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
	DurationMs  int64           `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeType    models.NodeType `json:"node_type"`
	Error       string          `json:"error"`
	DurationMs  int64           `json:"duration_ms"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}
