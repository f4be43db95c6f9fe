package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
)

// Store manages versioned workflow definitions. Draft versions are editable
// in place (each edit still bumps the version); active versions are immutable
// and edits branch off a new draft version, so in-flight executions keep
// resolving the version they started with.
type Store struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewStore creates a workflow store on top of the given persistence.
func NewStore(persistence persistence.Persistence) *Store {
	return &Store{
		persistence: persistence,
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Store) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new workflow as version 1 in draft status.
func (s *Store) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	workflow.Version = 1
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ActivatedAt = nil

	if err := s.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Get returns the latest version of a workflow.
func (s *Store) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().Latest(ctx, id)
}

// GetVersion returns one specific version of a workflow.
func (s *Store) GetVersion(ctx context.Context, id string, version int) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().Version(ctx, id, version)
}

// List returns the latest version of every workflow.
func (s *Store) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().All(ctx)
}

// Update stores the given definition as a new version of the workflow. When
// the latest version is active the new version starts over as a draft; the
// active version itself is never rewritten.
func (s *Store) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.Version = latest.Version + 1
	workflow.CreatedAt = latest.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if latest.Status == models.WorkflowStatusDraft {
		workflow.Status = latest.Status
	} else {
		workflow.Status = models.WorkflowStatusDraft
	}

	workflow.ActivatedAt = nil

	if err := s.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// AddNode appends a node to the workflow, producing a new version.
func (s *Store) AddNode(ctx context.Context, id string, node *models.Node) (*models.Workflow, error) {
	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if latest.NodeByID(node.ID) != nil {
		return nil, &GraphError{WorkflowID: id, Issues: []string{fmt.Sprintf("duplicate node id %q", node.ID)}}
	}

	latest.Nodes = append(latest.Nodes, node)

	return s.Update(ctx, id, latest)
}

// AddEdge connects two existing nodes, producing a new version. Dangling
// endpoints are rejected up front rather than at activation.
func (s *Store) AddEdge(ctx context.Context, id string, edge *models.Edge) (*models.Workflow, error) {
	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	var issues []string

	if latest.NodeByID(edge.Source) == nil {
		issues = append(issues, fmt.Sprintf("edge source %q does not exist", edge.Source))
	}

	if latest.NodeByID(edge.Target) == nil {
		issues = append(issues, fmt.Sprintf("edge target %q does not exist", edge.Target))
	}

	if len(issues) > 0 {
		return nil, &GraphError{WorkflowID: id, Issues: issues}
	}

	latest.Edges = append(latest.Edges, edge)

	return s.Update(ctx, id, latest)
}

// RemoveNode deletes a node and every edge touching it, producing a new
// version.
func (s *Store) RemoveNode(ctx context.Context, id, nodeID string) (*models.Workflow, error) {
	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	if latest.NodeByID(nodeID) == nil {
		return nil, &GraphError{WorkflowID: id, Issues: []string{fmt.Sprintf("node %q does not exist", nodeID)}}
	}

	nodes := make([]*models.Node, 0, len(latest.Nodes)-1)

	for _, node := range latest.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	edges := make([]*models.Edge, 0, len(latest.Edges))

	for _, edge := range latest.Edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			edges = append(edges, edge)
		}
	}

	latest.Nodes = nodes
	latest.Edges = edges

	return s.Update(ctx, id, latest)
}

// Activate validates the latest version's graph and marks it active. The
// version becomes immutable and executable.
func (s *Store) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	if latest.Status == models.WorkflowStatusActive {
		return latest, nil
	}

	if err := ValidateGraph(latest); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	latest.Status = models.WorkflowStatusActive
	latest.UpdatedAt = now
	latest.ActivatedAt = &now

	if err := s.persistence.WorkflowRepository().Save(ctx, latest); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	return latest, nil
}

// Deactivate pauses the latest version so no new executions start from it.
// Running executions are unaffected.
func (s *Store) Deactivate(ctx context.Context, id string) (*models.Workflow, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusPaused)
}

// Archive retires the latest version permanently.
func (s *Store) Archive(ctx context.Context, id string) (*models.Workflow, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusArchived)
}

func (s *Store) setStatus(ctx context.Context, id string, status models.WorkflowStatus) (*models.Workflow, error) {
	latest, err := s.persistence.WorkflowRepository().Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	latest.Status = status
	latest.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, latest); err != nil {
		return nil, fmt.Errorf("failed to set workflow status: %w", err)
	}

	return latest, nil
}

// Delete removes a workflow, all of its versions and its triggers.
func (s *Store) Delete(ctx context.Context, id string) error {
	triggers, err := s.persistence.TriggerRepository().ByWorkflow(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list workflow triggers: %w", err)
	}

	for _, trigger := range triggers {
		if err := s.persistence.TriggerRepository().Delete(ctx, trigger.ID); err != nil {
			return fmt.Errorf("failed to delete trigger %s: %w", trigger.ID, err)
		}
	}

	return s.persistence.WorkflowRepository().Delete(ctx, id)
}
