package models

import "time"

// TriggerType identifies the mechanism that starts an execution.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeEvent    TriggerType = "event"
)

// Trigger binds a start mechanism to a workflow. Triggers are created and
// disabled independently of workflow edits; disabling one never affects
// in-flight executions.
type Trigger struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Type       TriggerType    `json:"type"        validate:"required,oneof=manual schedule webhook event"`
	Config     map[string]any `json:"config"`
	Enabled    bool           `json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CronExpr returns the cron descriptor of a schedule trigger.
func (t *Trigger) CronExpr() string {
	expr, _ := t.Config["cron"].(string)

	return expr
}

// WebhookSecret returns the shared secret of a webhook trigger.
func (t *Trigger) WebhookSecret() string {
	secret, _ := t.Config["secret"].(string)

	return secret
}

// EventQueue returns the queue name an event trigger consumes from.
func (t *Trigger) EventQueue() string {
	queue, _ := t.Config["queue"].(string)

	return queue
}
