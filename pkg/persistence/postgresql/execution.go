package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// ExecutionRepository stores execution records and their append-only node
// execution history.
type ExecutionRepository struct {
	db *sql.DB
}

const executionColumns = `id, workflow_id, workflow_version, status, context, current_node_id,
	completed_nodes, failed_nodes, result, error_message, triggered_by, trigger_id,
	started_at, finished_at`

const nodeExecutionColumns = `id, execution_id, node_id, node_type, status, input, output,
	error_message, started_at, finished_at, duration_ms`

func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	execCtx, err := json.Marshal(execution.Context)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	completed, err := json.Marshal(execution.CompletedNodes)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	failed, err := json.Marshal(execution.FailedNodes)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	result, err := json.Marshal(execution.Result)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			current_node_id = EXCLUDED.current_node_id,
			completed_nodes = EXCLUDED.completed_nodes,
			failed_nodes = EXCLUDED.failed_nodes,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`,
		execution.ID, execution.WorkflowID, execution.WorkflowVersion, execution.Status,
		execCtx, execution.CurrentNodeID, completed, failed, result, execution.Error,
		execution.TriggeredBy, execution.TriggerID, execution.StartedAt, execution.FinishedAt,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) ListExecutions(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		conditions = append(conditions, "workflow_id = $"+strconv.Itoa(len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, "started_at >= $"+strconv.Itoa(len(args)))
	}

	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, "started_at <= $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + executionColumns + ` FROM executions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func (r *ExecutionRepository) AppendNodeExecution(ctx context.Context, record *models.NodeExecution) error {
	input, err := json.Marshal(record.Input)
	if err != nil {
		return &persistence.ExecutionError{Op: "AppendNodeExecution", ExecutionID: record.ExecutionID, Err: err}
	}

	output, err := json.Marshal(record.Output)
	if err != nil {
		return &persistence.ExecutionError{Op: "AppendNodeExecution", ExecutionID: record.ExecutionID, Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO node_executions (`+nodeExecutionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID, record.ExecutionID, record.NodeID, record.NodeType, record.Status,
		input, output, record.Error, record.StartedAt, record.FinishedAt, record.DurationMs,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "AppendNodeExecution", ExecutionID: record.ExecutionID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+nodeExecutionColumns+` FROM node_executions
		WHERE execution_id = $1 ORDER BY started_at, id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var records []*models.NodeExecution

	for rows.Next() {
		var (
			record     models.NodeExecution
			input      []byte
			output     []byte
			finishedAt sql.NullTime
		)

		err := rows.Scan(&record.ID, &record.ExecutionID, &record.NodeID, &record.NodeType,
			&record.Status, &input, &output, &record.Error, &record.StartedAt,
			&finishedAt, &record.DurationMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		if len(input) > 0 {
			if err := json.Unmarshal(input, &record.Input); err != nil {
				return nil, fmt.Errorf("failed to decode node input: %w", err)
			}
		}

		if len(output) > 0 {
			if err := json.Unmarshal(output, &record.Output); err != nil {
				return nil, fmt.Errorf("failed to decode node output: %w", err)
			}
		}

		if finishedAt.Valid {
			t := finishedAt.Time.UTC()
			record.FinishedAt = &t
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		execCtx    []byte
		completed  []byte
		failed     []byte
		result     []byte
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.WorkflowVersion, &execution.Status,
		&execCtx, &execution.CurrentNodeID, &completed, &failed, &result, &execution.Error,
		&execution.TriggeredBy, &execution.TriggerID, &execution.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(execCtx) > 0 {
		if err := json.Unmarshal(execCtx, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to decode execution context: %w", err)
		}
	}

	if err := json.Unmarshal(completed, &execution.CompletedNodes); err != nil {
		return nil, fmt.Errorf("failed to decode completed nodes: %w", err)
	}

	if len(failed) > 0 {
		if err := json.Unmarshal(failed, &execution.FailedNodes); err != nil {
			return nil, fmt.Errorf("failed to decode failed nodes: %w", err)
		}
	}

	if len(result) > 0 {
		if err := json.Unmarshal(result, &execution.Result); err != nil {
			return nil, fmt.Errorf("failed to decode execution result: %w", err)
		}
	}

	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		execution.FinishedAt = &t
	}

	return &execution, nil
}
