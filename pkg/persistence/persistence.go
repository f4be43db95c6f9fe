// Package persistence provides the storage abstraction for workflow
// definitions, triggers and execution history. The engine does not depend on
// the storage technology; file and PostgreSQL implementations are provided.
package persistence

import (
	"context"
	"time"

	"github.com/weavebit/loom/pkg/models"
)

// WorkflowRepository stores versioned workflow definitions. Every version of
// a workflow is kept so in-flight executions can keep resolving the version
// they started with.
type WorkflowRepository interface {
	// Save persists the given (id, version) record, overwriting the same
	// version only. Activated versions are never rewritten by callers.
	Save(ctx context.Context, workflow *models.Workflow) error

	// Latest returns the highest version of a workflow.
	Latest(ctx context.Context, id string) (*models.Workflow, error)

	// Version returns one specific version of a workflow.
	Version(ctx context.Context, id string, version int) (*models.Workflow, error)

	// All returns the latest version of every workflow.
	All(ctx context.Context) ([]*models.Workflow, error)

	// Delete removes a workflow and all of its versions.
	Delete(ctx context.Context, id string) error
}

// TriggerRepository stores trigger configurations, owned by workflows but
// editable independently of workflow versioning.
type TriggerRepository interface {
	Save(ctx context.Context, trigger *models.Trigger) error
	ByID(ctx context.Context, id string) (*models.Trigger, error)
	ByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error)
	All(ctx context.Context) ([]*models.Trigger, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionFilter narrows execution queries.
type ExecutionFilter struct {
	WorkflowID string
	Status     models.ExecutionStatus
	From       time.Time
	To         time.Time
	Limit      int
}

// ExecutionRepository is the append-oriented store behind the execution
// history. Node execution records are append-only; execution records are
// updated in place as their status advances.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.Execution, error)

	AppendNodeExecution(ctx context.Context, record *models.NodeExecution) error
	NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
}

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TriggerRepository() TriggerRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
