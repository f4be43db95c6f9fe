package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// TriggerRepository stores trigger configurations.
type TriggerRepository struct {
	db *sql.DB
}

const triggerColumns = `id, workflow_id, trigger_type, config, enabled, created_at`

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	config, err := json.Marshal(trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to encode trigger config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO triggers (`+triggerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			trigger_type = EXCLUDED.trigger_type,
			config = EXCLUDED.config,
			enabled = EXCLUDED.enabled`,
		trigger.ID, trigger.WorkflowID, trigger.Type, config, trigger.Enabled, trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) ByID(ctx context.Context, id string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+triggerColumns+` FROM triggers WHERE id = $1`, id)

	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTriggerNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read trigger %s: %w", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	return r.query(ctx, `
		SELECT `+triggerColumns+` FROM triggers
		WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
}

func (r *TriggerRepository) All(ctx context.Context) ([]*models.Trigger, error) {
	return r.query(ctx, `SELECT `+triggerColumns+` FROM triggers ORDER BY created_at`)
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

func (r *TriggerRepository) query(ctx context.Context, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var triggers []*models.Trigger

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		trigger models.Trigger
		config  []byte
	)

	err := row.Scan(&trigger.ID, &trigger.WorkflowID, &trigger.Type,
		&config, &trigger.Enabled, &trigger.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &trigger.Config); err != nil {
			return nil, fmt.Errorf("failed to decode trigger config: %w", err)
		}
	}

	return &trigger, nil
}
