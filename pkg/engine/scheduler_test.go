package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavebit/loom/pkg/actions/logaction"
	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/persistence/file"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/workflow"
)

// stubAction is a scriptable handler for executor tests.
type stubAction struct {
	calls    atomic.Int64
	failures int64         // fail this many calls before succeeding
	sleep    time.Duration // sleep per call, interruptible
}

func (a *stubAction) Execute(ctx context.Context, _ *execctx.Context, _ *slog.Logger) (any, error) {
	call := a.calls.Add(1)

	if a.sleep > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.sleep):
		}
	}

	if call <= a.failures {
		return nil, errors.New("stub failure")
	}

	return map[string]any{"call": call}, nil
}

type stubFactory struct {
	id     string
	action *stubAction
}

func (f *stubFactory) ID() string { return f.id }

func (f *stubFactory) Create(map[string]any) (registry.Action, error) { return f.action, nil }

func (f *stubFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{ID: f.id, Name: f.id}
}

type harness struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	scheduler   *engine.Scheduler
	store       *workflow.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())
	reg.Register(logaction.NewActionFactory())

	scheduler := engine.NewScheduler(persist, reg, nil, slog.Default())
	t.Cleanup(scheduler.Stop)

	return &harness{
		persistence: persist,
		registry:    reg,
		scheduler:   scheduler,
		store:       workflow.NewStore(persist),
	}
}

// activate persists and activates a workflow definition.
func (h *harness) activate(t *testing.T, wf *models.Workflow) *models.Workflow {
	t.Helper()

	created, err := h.store.Create(t.Context(), wf)
	require.NoError(t, err)

	active, err := h.store.Activate(t.Context(), created.ID)
	require.NoError(t, err)

	return active
}

func (h *harness) waitStatus(t *testing.T, executionID string, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	var execution *models.Execution

	require.Eventually(t, func() bool {
		var err error

		execution, err = h.scheduler.GetExecution(context.Background(), executionID)

		return err == nil && execution.Status == status
	}, 5*time.Second, 10*time.Millisecond, "waiting for status %s", status)

	return execution
}

func linearDefinition() *models.Workflow {
	return &models.Workflow{
		Name: "linear",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
		},
	}
}

func TestLinearExecutionVisitsNodesInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.activate(t, linearDefinition())

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"order_id": "42"})
	require.NoError(t, err)
	assert.Equal(t, wf.Version, execution.WorkflowVersion)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Equal(t, []string{"T1", "A1", "E1"}, done.CompletedNodes)
	assert.NotNil(t, done.FinishedAt)

	records, err := h.persistence.ExecutionRepository().NodeExecutions(t.Context(), execution.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "T1", records[0].NodeID)
	assert.Equal(t, "A1", records[1].NodeID)
	assert.Equal(t, "E1", records[2].NodeID)

	for _, record := range records {
		assert.Equal(t, models.NodeExecutionStatusCompleted, record.Status)
	}

	// The trigger payload is preserved in the context namespace.
	trigger, ok := done.Context[execctx.TriggerDataKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "42", trigger["order_id"])
}

func TestStartExecutionRequiresActiveWorkflow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	created, err := h.store.Create(t.Context(), linearDefinition())
	require.NoError(t, err)

	_, err = h.scheduler.StartExecution(t.Context(), created.ID, "manual", "", nil)
	require.ErrorIs(t, err, engine.ErrWorkflowNotActive)
}

func TestConditionTakesExactlyOneBranch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "branching",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "C1", Type: models.NodeTypeCondition, Config: map[string]any{"expression": "trigger_data.value > 5"}},
			{ID: "HI", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "LO", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "C1"},
			{ID: "e2", Source: "C1", Target: "HI", Label: models.EdgeLabelTrue},
			{ID: "e3", Source: "C1", Target: "LO", Label: models.EdgeLabelFalse},
			{ID: "e4", Source: "HI", Target: "E1"},
			{ID: "e5", Source: "LO", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"value": 10})
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "HI")
	assert.NotContains(t, done.CompletedNodes, "LO")

	execution, err = h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"value": 1})
	require.NoError(t, err)

	done = h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "LO")
	assert.NotContains(t, done.CompletedNodes, "HI")
}

func TestConditionWithoutMatchingBranchFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "no match",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "C1", Type: models.NodeTypeCondition},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "C1"},
			{ID: "e2", Source: "C1", Target: "A1", Label: models.EdgeLabelTrue, Condition: "trigger_data.value > 100"},
			{ID: "e3", Source: "C1", Target: "E1", Label: models.EdgeLabelFalse, Condition: "trigger_data.value < 0"},
			{ID: "e4", Source: "A1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"value": 50})
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusFailed)
	assert.Contains(t, done.Error, "no matching branch")
	require.Len(t, done.FailedNodes, 1)
	assert.Equal(t, "C1", done.FailedNodes[0].NodeID)
}

func TestCancelStopsOnlyTargetExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "slow",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "D1", Type: models.NodeTypeDelay, Config: map[string]any{"duration": "30s"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "D1"},
			{ID: "e2", Source: "D1", Target: "E1"},
		},
	})

	first, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	second, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	require.NoError(t, h.scheduler.Cancel(t.Context(), first.ID))

	done := h.waitStatus(t, first.ID, models.ExecutionStatusCancelled)
	assert.NotContains(t, done.CompletedNodes, "E1")

	// The sibling execution is still in flight.
	other, err := h.scheduler.GetExecution(t.Context(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, other.Status)

	require.NoError(t, h.scheduler.Cancel(t.Context(), second.ID))
	h.waitStatus(t, second.ID, models.ExecutionStatusCancelled)
}

func TestCancelFinishedExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.activate(t, linearDefinition())

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)

	err = h.scheduler.Cancel(t.Context(), execution.ID)
	require.ErrorIs(t, err, engine.ErrNotRunning)
}

func TestLoopStopsAtIterationCap(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	body := &stubAction{}
	h.registry.Register(&stubFactory{id: "loop_body", action: body})

	wf := h.activate(t, &models.Workflow{
		Name: "runaway loop",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "L1", Type: models.NodeTypeLoop, Config: map[string]any{"condition": "true", "max_iterations": 3}},
			{ID: "B1", Type: models.NodeTypeAction, Config: map[string]any{"action": "loop_body"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "L1"},
			{ID: "e2", Source: "L1", Target: "B1", Label: models.EdgeLabelBody},
			{ID: "e3", Source: "B1", Target: "L1"},
			{ID: "e4", Source: "L1", Target: "E1", Label: models.EdgeLabelDone},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusFailed)
	assert.Contains(t, done.Error, "loop iteration limit exceeded")
	assert.EqualValues(t, 3, body.calls.Load())
}

func TestLoopGuardExits(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	body := &stubAction{}
	h.registry.Register(&stubFactory{id: "loop_body", action: body})

	wf := h.activate(t, &models.Workflow{
		Name: "bounded loop",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "L1", Type: models.NodeTypeLoop, Config: map[string]any{"condition": "loop_L1_iteration < 2"}},
			{ID: "B1", Type: models.NodeTypeAction, Config: map[string]any{"action": "loop_body"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "L1"},
			{ID: "e2", Source: "L1", Target: "B1", Label: models.EdgeLabelBody},
			{ID: "e3", Source: "B1", Target: "L1"},
			{ID: "e4", Source: "L1", Target: "E1", Label: models.EdgeLabelDone},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.EqualValues(t, 2, body.calls.Load())
	assert.Contains(t, done.CompletedNodes, "E1")
}

func TestParallelBranchesJoin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "fan out",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "P1", Type: models.NodeTypeParallel},
			{ID: "B1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "B2", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
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
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "B1")
	assert.Contains(t, done.CompletedNodes, "B2")
	assert.Contains(t, done.CompletedNodes, "E1")

	records, err := h.persistence.ExecutionRepository().NodeExecutions(t.Context(), execution.ID)
	require.NoError(t, err)

	// Both branches arrive at the join; only the last arrival continues.
	joins := 0
	ends := 0

	for _, record := range records {
		switch record.NodeID {
		case "J1":
			joins++
		case "E1":
			ends++
		}
	}

	assert.Equal(t, 2, joins)
	assert.Equal(t, 1, ends)
}

func TestLoopRepeatsParallelJoinRegion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	body := &stubAction{}
	h.registry.Register(&stubFactory{id: "branch", action: body})

	wf := h.activate(t, &models.Workflow{
		Name: "looped fan out",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "L1", Type: models.NodeTypeLoop, Config: map[string]any{"condition": "loop_L1_iteration < 2"}},
			{ID: "P1", Type: models.NodeTypeParallel},
			{ID: "B1", Type: models.NodeTypeAction, Config: map[string]any{"action": "branch"}},
			{ID: "B2", Type: models.NodeTypeAction, Config: map[string]any{"action": "branch"}},
			{ID: "J1", Type: models.NodeTypeJoin},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "L1"},
			{ID: "e2", Source: "L1", Target: "P1", Label: models.EdgeLabelBody},
			{ID: "e3", Source: "P1", Target: "B1"},
			{ID: "e4", Source: "P1", Target: "B2"},
			{ID: "e5", Source: "B1", Target: "J1"},
			{ID: "e6", Source: "B2", Target: "J1"},
			{ID: "e7", Source: "J1", Target: "L1"},
			{ID: "e8", Source: "L1", Target: "E1", Label: models.EdgeLabelDone},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	// The join gate counts from zero on each iteration, so the second pass
	// releases the loop's back edge and the run reaches END.
	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "E1")
	assert.EqualValues(t, 4, body.calls.Load())

	records, err := h.persistence.ExecutionRepository().NodeExecutions(t.Context(), execution.ID)
	require.NoError(t, err)

	joins := 0

	for _, record := range records {
		if record.NodeID == "J1" {
			joins++
		}
	}

	assert.Equal(t, 4, joins)
}

func TestAmbiguousRouteFailsExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// Saved directly with two unlabeled branches off A1, skipping the
	// validation that activation would run.
	wf := &models.Workflow{
		ID:      "wf-ambiguous",
		Name:    "ambiguous",
		Version: 1,
		Status:  models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "A2", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
			{ID: "e3", Source: "A1", Target: "A2"},
			{ID: "e4", Source: "A2", Target: "E1"},
		},
	}
	require.NoError(t, h.persistence.WorkflowRepository().Save(t.Context(), wf))

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	// The engine never guesses a branch; the walk fails at A1.
	done := h.waitStatus(t, execution.ID, models.ExecutionStatusFailed)
	assert.Contains(t, done.Error, "ambiguous outgoing route")
	require.Len(t, done.FailedNodes, 1)
	assert.Equal(t, "A1", done.FailedNodes[0].NodeID)
}

func TestApprovalPausesUntilResumed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "approval gate",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "AP", Type: models.NodeTypeApproval},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "AP"},
			{ID: "e2", Source: "AP", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	h.waitStatus(t, execution.ID, models.ExecutionStatusPaused)

	err = h.scheduler.Resume(t.Context(), execution.ID, map[string]any{"approver": "sam"})
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "AP")

	result, ok := done.Context[execctx.NodeResultKey("AP")].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sam", result["approver"])
	assert.Equal(t, true, result["approved"])
}

func TestResumeRunningExecutionFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "slow for resume",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "D1", Type: models.NodeTypeDelay, Config: map[string]any{"duration": "30s"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "D1"},
			{ID: "e2", Source: "D1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	h.waitStatus(t, execution.ID, models.ExecutionStatusRunning)

	err = h.scheduler.Resume(t.Context(), execution.ID, nil)
	require.ErrorIs(t, err, engine.ErrNotPaused)

	require.NoError(t, h.scheduler.Cancel(t.Context(), execution.ID))
	h.waitStatus(t, execution.ID, models.ExecutionStatusCancelled)
}

func TestCancelWhilePaused(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "approval cancel",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "AP", Type: models.NodeTypeApproval},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "AP"},
			{ID: "e2", Source: "AP", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	h.waitStatus(t, execution.ID, models.ExecutionStatusPaused)

	require.NoError(t, h.scheduler.Cancel(t.Context(), execution.ID))

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCancelled)
	assert.NotContains(t, done.CompletedNodes, "E1")
}

func TestActionRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	flaky := &stubAction{failures: 2}
	h.registry.Register(&stubFactory{id: "flaky", action: flaky})

	wf := h.activate(t, &models.Workflow{
		Name: "retrying",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{
				"action": "flaky", "retries": 2, "retry_interval": "10ms",
			}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.EqualValues(t, 3, flaky.calls.Load())
	assert.Empty(t, done.FailedNodes)
}

func TestActionTimeoutFailsExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	slow := &stubAction{sleep: time.Second}
	h.registry.Register(&stubFactory{id: "slow", action: slow})

	wf := h.activate(t, &models.Workflow{
		Name: "timing out",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "slow", "timeout": "50ms"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusFailed)
	assert.Contains(t, done.Error, "action timed out")
}

func TestActionFailureRoutesToErrorHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	broken := &stubAction{failures: 100}
	h.registry.Register(&stubFactory{id: "broken", action: broken})

	wf := h.activate(t, &models.Workflow{
		Name: "error routed",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "broken"}},
			{ID: "H1", Type: models.NodeTypeErrorHandler, Config: map[string]any{"action": "log", "message": "recovered"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1", Label: models.EdgeLabelSuccess},
			{ID: "e3", Source: "A1", Target: "H1", Label: models.EdgeLabelError},
			{ID: "e4", Source: "H1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", nil)
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	assert.Contains(t, done.CompletedNodes, "H1")
	require.Len(t, done.FailedNodes, 1)
	assert.Equal(t, "A1", done.FailedNodes[0].NodeID)
}

func TestConcurrentExecutionsAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.activate(t, linearDefinition())

	first, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"who": "first"})
	require.NoError(t, err)

	second, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"who": "second"})
	require.NoError(t, err)

	doneFirst := h.waitStatus(t, first.ID, models.ExecutionStatusCompleted)
	doneSecond := h.waitStatus(t, second.ID, models.ExecutionStatusCompleted)

	firstData, _ := doneFirst.Context[execctx.TriggerDataKey].(map[string]any)
	secondData, _ := doneSecond.Context[execctx.TriggerDataKey].(map[string]any)
	assert.Equal(t, "first", firstData["who"])
	assert.Equal(t, "second", secondData["who"])
}

func TestEndNodeRendersResult(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	wf := h.activate(t, &models.Workflow{
		Name: "with result",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "done"}},
			{ID: "E1", Type: models.NodeTypeEnd, Config: map[string]any{
				"result": map[string]any{"order": "{{ .trigger_data.order_id }}"},
			}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "T1", Target: "A1"},
			{ID: "e2", Source: "A1", Target: "E1"},
		},
	})

	execution, err := h.scheduler.StartExecution(t.Context(), wf.ID, "manual", "", map[string]any{"order_id": "o-7"})
	require.NoError(t, err)

	done := h.waitStatus(t, execution.ID, models.ExecutionStatusCompleted)
	require.NotNil(t, done.Result)
	assert.Equal(t, "o-7", done.Result["order"])
}
