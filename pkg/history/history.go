// Package history exposes the audit trail of executions: per-run records,
// per-visit node records and aggregate statistics per workflow.
package history

import (
	"context"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// History queries execution records. It never mutates them; the engine is
// the only writer.
type History struct {
	persistence persistence.Persistence
}

// NewHistory creates a history reader.
func NewHistory(persist persistence.Persistence) *History {
	return &History{persistence: persist}
}

// Execution returns one execution record.
func (h *History) Execution(ctx context.Context, id string) (*models.Execution, error) {
	return h.persistence.ExecutionRepository().ExecutionByID(ctx, id)
}

// List returns executions matching the filter, newest first.
func (h *History) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	return h.persistence.ExecutionRepository().ListExecutions(ctx, filter)
}

// NodeExecutions returns every node visit of an execution in start order.
// LOOP revisits appear once per iteration.
func (h *History) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	return h.persistence.ExecutionRepository().NodeExecutions(ctx, executionID)
}

// WorkflowStatistics aggregates the outcomes of a workflow's executions.
type WorkflowStatistics struct {
	WorkflowID    string  `json:"workflow_id"`
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	Cancelled     int     `json:"cancelled"`
	InFlight      int     `json:"in_flight"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
}

// WorkflowStatistics computes aggregates over every recorded execution of a
// workflow. The success rate counts completed runs against finished runs;
// in-flight runs do not weigh in.
func (h *History) WorkflowStatistics(ctx context.Context, workflowID string) (*WorkflowStatistics, error) {
	executions, err := h.persistence.ExecutionRepository().ListExecutions(ctx, persistence.ExecutionFilter{
		WorkflowID: workflowID,
	})
	if err != nil {
		return nil, err
	}

	stats := &WorkflowStatistics{WorkflowID: workflowID, Total: len(executions)}

	var (
		finished        int
		totalDurationMs int64
	)

	for _, execution := range executions {
		switch execution.Status {
		case models.ExecutionStatusCompleted:
			stats.Completed++
		case models.ExecutionStatusFailed:
			stats.Failed++
		case models.ExecutionStatusCancelled:
			stats.Cancelled++
		default:
			stats.InFlight++
		}

		if execution.FinishedAt != nil {
			finished++
			totalDurationMs += execution.Duration().Milliseconds()
		}
	}

	if finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
		stats.AvgDurationMs = totalDurationMs / int64(finished)
	}

	return stats, nil
}
