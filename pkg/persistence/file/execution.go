package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// ExecutionRepository stores executions as executions/<id>.json and node
// execution records as node_executions/<executionID>/<timestamp>-<id>.json.
// Node execution files are written once and never rewritten.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func (r *ExecutionRepository) executionPath(id string) string {
	return filepath.Join(r.root, "executions", id+".json")
}

func (r *ExecutionRepository) nodeDir(executionID string) string {
	return filepath.Join(r.root, "node_executions", executionID)
}

func (r *ExecutionRepository) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeJSON(r.executionPath(execution.ID), execution); err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	err := readJSON(r.executionPath(id), &execution)
	if os.IsNotExist(err) {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: err}
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListExecutions(_ context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "executions"))
	if os.IsNotExist(err) {
		return []*models.Execution{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.Execution, 0, len(entries))

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var execution models.Execution
		if err := readJSON(filepath.Join(r.root, "executions", entry.Name()), &execution); err != nil {
			return nil, fmt.Errorf("failed to read execution file %s: %w", entry.Name(), err)
		}

		if !matchesFilter(&execution, filter) {
			continue
		}

		executions = append(executions, &execution)
	}

	// Newest first.
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if filter.Limit > 0 && len(executions) > filter.Limit {
		executions = executions[:filter.Limit]
	}

	return executions, nil
}

func matchesFilter(execution *models.Execution, filter persistence.ExecutionFilter) bool {
	if filter.WorkflowID != "" && execution.WorkflowID != filter.WorkflowID {
		return false
	}

	if filter.Status != "" && execution.Status != filter.Status {
		return false
	}

	if !filter.From.IsZero() && execution.StartedAt.Before(filter.From) {
		return false
	}

	if !filter.To.IsZero() && execution.StartedAt.After(filter.To) {
		return false
	}

	return true
}

func (r *ExecutionRepository) AppendNodeExecution(_ context.Context, record *models.NodeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := fmt.Sprintf("%020d-%s.json", record.StartedAt.UnixNano(), record.ID)

	return writeJSON(filepath.Join(r.nodeDir(record.ExecutionID), name), record)
}

func (r *ExecutionRepository) NodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	entries, err := os.ReadDir(r.nodeDir(executionID))
	if os.IsNotExist(err) {
		return []*models.NodeExecution{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}

	// File names embed the start timestamp, so lexical order is start order.
	sort.Strings(names)

	records := make([]*models.NodeExecution, 0, len(names))

	for _, name := range names {
		var record models.NodeExecution
		if err := readJSON(filepath.Join(r.nodeDir(executionID), name), &record); err != nil {
			return nil, fmt.Errorf("failed to read node execution file %s: %w", name, err)
		}

		records = append(records, &record)
	}

	return records, nil
}
