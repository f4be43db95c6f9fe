// Package triggers manages trigger registration and the single funnel every
// trigger source fires through. Manual runs, cron ticks, webhook deliveries
// and queued events all end up in Manager.Fire, which resolves the trigger,
// checks it is usable and hands the payload to the execution scheduler.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

var (
	// ErrTriggerNotFound is returned when a trigger is not found.
	ErrTriggerNotFound = persistence.ErrTriggerNotFound

	// ErrTriggerDisabled is returned when firing a disabled trigger.
	ErrTriggerDisabled = errors.New("trigger is disabled")

	// ErrSecretMismatch is returned when a webhook delivery carries the
	// wrong shared secret.
	ErrSecretMismatch = errors.New("webhook secret mismatch")

	// ErrUnsupportedTriggerType is returned for unknown trigger types.
	ErrUnsupportedTriggerType = errors.New("unsupported trigger type")
)

// Starter starts workflow executions. Implemented by the engine scheduler;
// declared here so trigger sources do not depend on the engine package.
type Starter interface {
	StartExecution(ctx context.Context, workflowID, triggeredBy, triggerID string, payload map[string]any) (*models.Execution, error)
}

// Manager registers triggers and fires them.
type Manager struct {
	persistence persistence.Persistence
	starter     Starter
	logger      *slog.Logger
}

// NewManager creates a trigger manager.
func NewManager(persistence persistence.Persistence, starter Starter, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: persistence,
		starter:     starter,
		logger:      logger.With("module", "trigger_manager"),
	}
}

// Register validates and stores a trigger for a workflow. Webhook triggers
// get a shared secret issued here; callers never choose their own.
func (m *Manager) Register(ctx context.Context, workflowID string, triggerType models.TriggerType, config map[string]any) (*models.Trigger, error) {
	if _, err := m.persistence.WorkflowRepository().Latest(ctx, workflowID); err != nil {
		return nil, err
	}

	if config == nil {
		config = make(map[string]any)
	}

	trigger := &models.Trigger{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Type:       triggerType,
		Config:     config,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}

	switch triggerType {
	case models.TriggerTypeManual:
	case models.TriggerTypeSchedule:
		if _, err := cron.ParseStandard(trigger.CronExpr()); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", trigger.CronExpr(), err)
		}
	case models.TriggerTypeWebhook:
		config["secret"] = uuid.New().String()
	case models.TriggerTypeEvent:
		if trigger.EventQueue() == "" {
			return nil, errors.New("event trigger requires a queue name")
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTriggerType, triggerType)
	}

	if err := m.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	m.logger.InfoContext(ctx, "Registered trigger",
		"trigger_id", trigger.ID, "workflow_id", workflowID, "type", triggerType)

	return trigger, nil
}

// Get returns a trigger by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Trigger, error) {
	return m.persistence.TriggerRepository().ByID(ctx, id)
}

// ByWorkflow returns every trigger of a workflow.
func (m *Manager) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	return m.persistence.TriggerRepository().ByWorkflow(ctx, workflowID)
}

// SetEnabled flips a trigger on or off. Disabling never affects in-flight
// executions.
func (m *Manager) SetEnabled(ctx context.Context, id string, enabled bool) (*models.Trigger, error) {
	trigger, err := m.persistence.TriggerRepository().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	trigger.Enabled = enabled

	if err := m.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return trigger, nil
}

// Delete removes a trigger.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.persistence.TriggerRepository().Delete(ctx, id)
}

// Fire starts an execution from a trigger. Every trigger source goes through
// here; the payload lands in the execution context's trigger_data namespace.
func (m *Manager) Fire(ctx context.Context, triggerID string, payload map[string]any) (*models.Execution, error) {
	trigger, err := m.persistence.TriggerRepository().ByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	if !trigger.Enabled {
		return nil, fmt.Errorf("trigger %s: %w", triggerID, ErrTriggerDisabled)
	}

	if payload == nil {
		payload = make(map[string]any)
	}

	if payload["timestamp"] == nil {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	execution, err := m.starter.StartExecution(ctx, trigger.WorkflowID, string(trigger.Type), trigger.ID, payload)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Trigger fired",
		"trigger_id", triggerID, "workflow_id", trigger.WorkflowID, "execution_id", execution.ID)

	return execution, nil
}

// FireWebhook resolves a webhook trigger by id, verifies the shared secret
// and fires it. Deliveries are addressed by trigger id; the secret is the
// only credential.
func (m *Manager) FireWebhook(ctx context.Context, triggerID, secret string, payload map[string]any) (*models.Execution, error) {
	trigger, err := m.persistence.TriggerRepository().ByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	if trigger.Type != models.TriggerTypeWebhook {
		return nil, fmt.Errorf("%w: trigger %s is not a webhook", ErrUnsupportedTriggerType, triggerID)
	}

	if trigger.WebhookSecret() != secret {
		return nil, ErrSecretMismatch
	}

	return m.Fire(ctx, triggerID, payload)
}
