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

// WorkflowRepository stores one row per (id, version).
type WorkflowRepository struct {
	db *sql.DB
}

const workflowColumns = `id, version, name, description, status, nodes, edges, triggers,
	variables, metadata, owner, created_at, updated_at, activated_at`

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	edges, err := json.Marshal(workflow.Edges)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	triggers, err := json.Marshal(workflow.Triggers)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	variables, err := json.Marshal(workflow.Variables)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	metadata, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id, version) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			triggers = EXCLUDED.triggers,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			activated_at = EXCLUDED.activated_at`,
		workflow.ID, workflow.Version, workflow.Name, workflow.Description,
		workflow.Status, nodes, edges, triggers, variables, metadata,
		workflow.Owner, workflow.CreatedAt, workflow.UpdatedAt, workflow.ActivatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Latest(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE id = $1 ORDER BY version DESC LIMIT 1`, id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("Latest", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Latest", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Version(ctx context.Context, id string, version int) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE id = $1 AND version = $2`, id, version)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("Version", id, persistence.ErrWorkflowVersionNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Version", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (id) `+workflowColumns+` FROM workflows
		ORDER BY id, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow    models.Workflow
		nodes       []byte
		edges       []byte
		triggers    []byte
		variables   []byte
		metadata    []byte
		activatedAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID, &workflow.Version, &workflow.Name, &workflow.Description,
		&workflow.Status, &nodes, &edges, &triggers, &variables, &metadata,
		&workflow.Owner, &workflow.CreatedAt, &workflow.UpdatedAt, &activatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}

	if err := json.Unmarshal(triggers, &workflow.Triggers); err != nil {
		return nil, fmt.Errorf("failed to decode triggers: %w", err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &workflow.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode variables: %w", err)
		}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &workflow.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		workflow.ActivatedAt = &t
	}

	return &workflow, nil
}
