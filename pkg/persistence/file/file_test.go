package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/persistence/file"
)

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func TestWorkflowRepository_SaveAndVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.WorkflowRepository()

	v1 := &models.Workflow{
		ID:        "wf-1",
		Name:      "Test Workflow",
		Status:    models.WorkflowStatusDraft,
		Version:   1,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, v1))

	v2 := &models.Workflow{
		ID:      "wf-1",
		Name:    "Test Workflow (edited)",
		Status:  models.WorkflowStatusDraft,
		Version: 2,
	}
	require.NoError(t, repo.Save(ctx, v2))

	latest, err := repo.Latest(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "Test Workflow (edited)", latest.Name)

	pinned, err := repo.Version(ctx, "wf-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Test Workflow", pinned.Name)
}

func TestWorkflowRepository_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.WorkflowRepository()

	_, err := repo.Latest(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = repo.Version(ctx, "missing", 3)
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_DeleteCascadesVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.WorkflowRepository()

	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-1", Version: 1}))
	require.NoError(t, repo.Save(ctx, &models.Workflow{ID: "wf-1", Version: 2}))

	require.NoError(t, repo.Delete(ctx, "wf-1"))

	_, err := repo.Version(ctx, "wf-1", 1)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestTriggerRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.TriggerRepository()

	trigger := &models.Trigger{
		ID:         "trg-1",
		WorkflowID: "wf-1",
		Type:       models.TriggerTypeWebhook,
		Config:     map[string]any{"secret": "s3cret"},
		Enabled:    true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, repo.Save(ctx, trigger))

	loaded, err := repo.ByID(ctx, "trg-1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeWebhook, loaded.Type)
	assert.Equal(t, "s3cret", loaded.WebhookSecret())

	byWorkflow, err := repo.ByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)

	require.NoError(t, repo.Delete(ctx, "trg-1"))

	_, err = repo.ByID(ctx, "trg-1")
	assert.ErrorIs(t, err, persistence.ErrTriggerNotFound)
}

func TestExecutionRepository_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.ExecutionRepository()

	now := time.Now()

	for _, execution := range []*models.Execution{
		{ID: "e1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: now.Add(-2 * time.Hour)},
		{ID: "e2", WorkflowID: "wf-1", Status: models.ExecutionStatusFailed, StartedAt: now.Add(-1 * time.Hour)},
		{ID: "e3", WorkflowID: "wf-2", Status: models.ExecutionStatusCompleted, StartedAt: now},
	} {
		require.NoError(t, repo.SaveExecution(ctx, execution))
	}

	byWorkflow, err := repo.ListExecutions(ctx, persistence.ExecutionFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	assert.Equal(t, "e2", byWorkflow[0].ID, "newest first")

	byStatus, err := repo.ListExecutions(ctx, persistence.ExecutionFilter{Status: models.ExecutionStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	limited, err := repo.ListExecutions(ctx, persistence.ExecutionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestExecutionRepository_NodeExecutionsOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.ExecutionRepository()

	base := time.Now()

	for i, nodeID := range []string{"T1", "A1", "E1"} {
		record := &models.NodeExecution{
			ID:          nodeID + "-visit",
			ExecutionID: "e1",
			NodeID:      nodeID,
			Status:      models.NodeExecutionStatusCompleted,
			StartedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, repo.AppendNodeExecution(ctx, record))
	}

	records, err := repo.NodeExecutions(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "T1", records[0].NodeID)
	assert.Equal(t, "A1", records[1].NodeID)
	assert.Equal(t, "E1", records[2].NodeID)
}
