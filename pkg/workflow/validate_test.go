package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/workflow"
)

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf-1",
		Name:   "linear",
		Status: models.WorkflowStatusDraft,
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
		},
	}
}

func TestValidateGraphAcceptsLinearWorkflow(t *testing.T) {
	t.Parallel()

	require.NoError(t, workflow.ValidateGraph(linearWorkflow()))
}

func TestValidateGraphRejectsStructuralIssues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(w *models.Workflow)
		message string
	}{
		{
			name:    "no nodes",
			mutate:  func(w *models.Workflow) { w.Nodes = nil; w.Edges = nil },
			message: "no nodes",
		},
		{
			name: "two triggers",
			mutate: func(w *models.Workflow) {
				w.Nodes = append(w.Nodes, &models.Node{ID: "T2", Type: models.NodeTypeTrigger})
				w.Edges = append(w.Edges, &models.Edge{ID: "e3", Source: "T2", Target: "A1"})
			},
			message: "exactly one trigger",
		},
		{
			name: "dangling edge",
			mutate: func(w *models.Workflow) {
				w.Edges = append(w.Edges, &models.Edge{ID: "e3", Source: "A1", Target: "ghost"})
			},
			message: "unknown target",
		},
		{
			name: "dead end",
			mutate: func(w *models.Workflow) {
				w.Edges = w.Edges[:1]
			},
			message: "no outgoing edge",
		},
		{
			name: "unreachable node",
			mutate: func(w *models.Workflow) {
				w.Nodes = append(w.Nodes, &models.Node{ID: "A2", Type: models.NodeTypeAction, Config: map[string]any{"action": "log"}})
				w.Edges = append(w.Edges, &models.Edge{ID: "e3", Source: "A2", Target: "E1"})
			},
			message: "unreachable",
		},
		{
			name: "action without handler",
			mutate: func(w *models.Workflow) {
				w.NodeByID("A1").Config = nil
			},
			message: "does not resolve to an action",
		},
		{
			name: "ambiguous fan out from a plain node",
			mutate: func(w *models.Workflow) {
				w.Nodes = append(w.Nodes, &models.Node{ID: "A2", Type: models.NodeTypeAction, Config: map[string]any{"action": "log"}})
				w.Edges = append(w.Edges,
					&models.Edge{ID: "e3", Source: "A1", Target: "A2"},
					&models.Edge{ID: "e4", Source: "A2", Target: "E1"})
			},
			message: "unconditional outgoing edges",
		},
		{
			name: "cycle without loop node",
			mutate: func(w *models.Workflow) {
				w.Edges = append(w.Edges, &models.Edge{ID: "e3", Source: "A1", Target: "A1"})
			},
			message: "does not pass through a loop node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wf := linearWorkflow()
			tt.mutate(wf)

			err := workflow.ValidateGraph(wf)
			require.ErrorIs(t, err, workflow.ErrGraphInvalid)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateGraphAllowsErrorRouteFanOut(t *testing.T) {
	t.Parallel()

	// An error edge next to the success edge is routing, not ambiguity.
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "H1", Type: models.NodeTypeErrorHandler, Config: map[string]any{"action": "log"}})
	wf.Edges = append(wf.Edges,
		&models.Edge{ID: "e3", Source: "A1", Target: "H1", Label: models.EdgeLabelError},
		&models.Edge{ID: "e4", Source: "H1", Target: "E1"})

	require.NoError(t, workflow.ValidateGraph(wf))
}

func TestValidateGraphConditionBranches(t *testing.T) {
	t.Parallel()

	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "C1", Type: models.NodeTypeCondition})
	wf.Edges = []*models.Edge{
		{ID: "e1", Source: "T1", Target: "C1"},
		{ID: "e2", Source: "C1", Target: "A1", Label: models.EdgeLabelTrue, Condition: "x > 1"},
		{ID: "e3", Source: "A1", Target: "E1"},
	}

	err := workflow.ValidateGraph(wf)
	require.ErrorIs(t, err, workflow.ErrGraphInvalid)
	assert.Contains(t, err.Error(), "not exhaustive")

	// A default branch makes the routing total.
	wf.Edges = append(wf.Edges, &models.Edge{ID: "e4", Source: "C1", Target: "E1", Label: models.EdgeLabelDefault})
	require.NoError(t, workflow.ValidateGraph(wf))
}

func TestValidateGraphLoopBranches(t *testing.T) {
	t.Parallel()

	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "L1", Type: models.NodeTypeLoop})
	wf.Edges = []*models.Edge{
		{ID: "e1", Source: "T1", Target: "L1"},
		{ID: "e2", Source: "L1", Target: "A1", Label: models.EdgeLabelBody},
		{ID: "e3", Source: "A1", Target: "L1"},
		{ID: "e4", Source: "L1", Target: "E1", Label: models.EdgeLabelDone},
	}

	// The body routes back through the loop node, so the cycle is legal.
	require.NoError(t, workflow.ValidateGraph(wf))

	wf.Edges[3].Label = ""
	err := workflow.ValidateGraph(wf)
	require.ErrorIs(t, err, workflow.ErrGraphInvalid)
	assert.Contains(t, err.Error(), "done edge")
}

func TestValidateGraphParallelJoin(t *testing.T) {
	t.Parallel()

	wf := &models.Workflow{
		ID:     "wf-par",
		Name:   "parallel",
		Status: models.WorkflowStatusDraft,
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "P1", Type: models.NodeTypeParallel},
			{ID: "B1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log"}},
			{ID: "B2", Type: models.NodeTypeAction, Config: map[string]any{"action": "log"}},
			{ID: "J1", Type: models.NodeTypeJoin},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "P1"},
			{ID: "e2", Source: "P1", Target: "B1"},
			{ID: "e3", Source: "P1", Target: "B2"},
			{ID: "e4", Source: "B1", Target: "J1"},
			{ID: "e5", Source: "B2", Target: "J1"},
			{ID: "e6", Source: "J1", Target: "E1"},
		},
	}

	require.NoError(t, workflow.ValidateGraph(wf))

	// A single branch is not a fan-out.
	wf.Edges = append(wf.Edges[:2], wf.Edges[3:]...)

	err := workflow.ValidateGraph(wf)
	require.ErrorIs(t, err, workflow.ErrGraphInvalid)
	assert.Contains(t, err.Error(), "at least two branches")
}
