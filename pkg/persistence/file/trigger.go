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

// TriggerRepository stores triggers as triggers/<id>.json.
type TriggerRepository struct {
	root string
	mu   sync.Mutex
}

func (r *TriggerRepository) path(id string) string {
	return filepath.Join(r.root, "triggers", id+".json")
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(trigger.ID), trigger)
}

func (r *TriggerRepository) ByID(_ context.Context, id string) (*models.Trigger, error) {
	var trigger models.Trigger

	err := readJSON(r.path(id), &trigger)
	if os.IsNotExist(err) {
		return nil, persistence.ErrTriggerNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read trigger %s: %w", id, err)
	}

	return &trigger, nil
}

func (r *TriggerRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Trigger

	for _, trigger := range all {
		if trigger.WorkflowID == workflowID {
			out = append(out, trigger)
		}
	}

	return out, nil
}

func (r *TriggerRepository) All(_ context.Context) ([]*models.Trigger, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "triggers"))
	if os.IsNotExist(err) {
		return []*models.Trigger{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	triggers := make([]*models.Trigger, 0, len(entries))

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var trigger models.Trigger
		if err := readJSON(filepath.Join(r.root, "triggers", entry.Name()), &trigger); err != nil {
			return nil, fmt.Errorf("failed to read trigger file %s: %w", entry.Name(), err)
		}

		triggers = append(triggers, &trigger)
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

func (r *TriggerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if os.IsNotExist(err) {
		return persistence.ErrTriggerNotFound
	}

	return err
}
