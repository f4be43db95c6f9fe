package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// WorkflowRepository stores each workflow version as
// workflows/<id>/v<version>.json.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex
}

func (r *WorkflowRepository) dir(id string) string {
	return filepath.Join(r.root, "workflows", id)
}

func (r *WorkflowRepository) path(id string, version int) string {
	return filepath.Join(r.dir(id), fmt.Sprintf("v%d.json", version))
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeJSON(r.path(workflow.ID, workflow.Version), workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Latest(ctx context.Context, id string) (*models.Workflow, error) {
	versions, err := r.versions(id)
	if err != nil {
		return nil, err
	}

	return r.Version(ctx, id, versions[len(versions)-1])
}

func (r *WorkflowRepository) Version(_ context.Context, id string, version int) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(r.path(id, version), &workflow)
	if os.IsNotExist(err) {
		return nil, persistence.NewWorkflowError("Version", id, persistence.ErrWorkflowVersionNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Version", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "workflows"))
	if os.IsNotExist(err) {
		return []*models.Workflow{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		workflow, err := r.Latest(ctx, entry.Name())
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.dir(id)); os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return os.RemoveAll(r.dir(id))
}

func (r *WorkflowRepository) versions(id string) ([]int, error) {
	entries, err := os.ReadDir(r.dir(id))
	if os.IsNotExist(err) || (err == nil && len(entries) == 0) {
		return nil, persistence.NewWorkflowError("Latest", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Latest", id, err)
	}

	versions := make([]int, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}

		version, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"))
		if err != nil {
			continue
		}

		versions = append(versions, version)
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowError("Latest", id, persistence.ErrWorkflowNotFound)
	}

	sort.Ints(versions)

	return versions, nil
}
