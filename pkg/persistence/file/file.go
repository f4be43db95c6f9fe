// Package file provides file-based persistence for workflows, triggers and
// execution history. Intended for development and tests; production
// deployments use the PostgreSQL backend.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weavebit/loom/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	triggerRepo   *TriggerRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  &WorkflowRepository{root: cleanRoot},
		triggerRepo:   &TriggerRepository{root: cleanRoot},
		executionRepo: &ExecutionRepository{root: cleanRoot},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	// Write-then-rename keeps readers from observing partial files.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
