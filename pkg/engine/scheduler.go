package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weavebit/loom/pkg/eventbus"
	"github.com/weavebit/loom/pkg/events"
	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/log"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/registry"
)

// Scheduler starts, cancels and resumes executions. Each execution runs on
// its own goroutine against the workflow version that was active when it
// started. The scheduler instance is injected wherever executions are
// started; there is no process-wide engine.
type Scheduler struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	executor    *Executor

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
}

// run is the live handle of one in-flight execution.
type run struct {
	cancel    context.CancelFunc
	lc        *lifecycle
	approvals chan map[string]any
	state     *runState
}

// NewScheduler creates a scheduler and its executor.
func NewScheduler(persist persistence.Persistence, reg *registry.Registry, bus eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: persist,
		bus:         bus,
		logger:      logger.With("module", "scheduler"),
		executor:    NewExecutor(reg, persist, bus, logger),
		running:     make(map[string]*run),
	}
}

// StartExecution starts a workflow run and returns once it is accepted. The
// walk itself happens asynchronously; callers poll GetExecution or subscribe
// to lifecycle events.
func (s *Scheduler) StartExecution(ctx context.Context, workflowID, triggeredBy, triggerID string, payload map[string]any) (*models.Execution, error) {
	workflow, err := s.persistence.WorkflowRepository().Latest(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsExecutable() {
		return nil, fmt.Errorf("workflow %s (version %d, status %s): %w",
			workflow.ID, workflow.Version, workflow.Status, ErrWorkflowNotActive)
	}

	execution := &models.Execution{
		ID:              uuid.New().String(),
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		Status:          models.ExecutionStatusPending,
		CompletedNodes:  []string{},
		TriggeredBy:     triggeredBy,
		TriggerID:       triggerID,
		StartedAt:       time.Now().UTC(),
	}

	st := &runState{
		workflow:   workflow,
		execution:  execution,
		ectx:       execctx.New(execution.ID, workflow.ID, payload, workflow.Variables),
		loopCounts: make(map[string]int),
		joins:      make(map[string]*joinGate),
	}

	st.lc = newLifecycle(func(status models.ExecutionStatus) {
		st.mu.Lock()
		st.execution.Status = status
		st.mu.Unlock()

		s.executor.saveExecution(context.Background(), st)
	})

	approvals := make(chan map[string]any, 1)
	st.approvals = approvals

	s.executor.saveExecution(ctx, st)

	runCtx, cancel := context.WithCancel(log.WithLogger(context.Background(),
		s.logger.With("execution_id", execution.ID, "workflow_id", workflowID)))

	r := &run{
		cancel:    cancel,
		lc:        st.lc,
		approvals: approvals,
		state:     st,
	}

	s.mu.Lock()
	s.running[execution.ID] = r
	s.mu.Unlock()

	if err := st.lc.Start(); err != nil {
		s.remove(execution.ID)
		cancel()

		return nil, fmt.Errorf("failed to start execution: %w", err)
	}

	if triggerID != "" {
		s.publish(ctx, execution.ID, events.TriggerFired{
			BaseEvent:   s.baseEvent(events.TriggerFiredEvent, workflow.ID),
			TriggerID:   triggerID,
			TriggerData: payload,
		})
	}

	s.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:       s.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:     execution.ID,
		WorkflowVersion: workflow.Version,
		TriggeredBy:     triggeredBy,
	})

	s.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID, "workflow_id", workflow.ID, "version", workflow.Version)

	s.wg.Add(1)

	go s.runExecution(runCtx, r)

	st.mu.Lock()
	snapshot := *execution
	st.mu.Unlock()

	return &snapshot, nil
}

func (s *Scheduler) runExecution(ctx context.Context, r *run) {
	defer s.wg.Done()
	defer s.remove(r.state.execution.ID)

	st := r.state

	err := s.executor.Execute(ctx, st)

	finished := time.Now().UTC()

	st.mu.Lock()
	st.execution.FinishedAt = &finished
	st.execution.CurrentNodeID = ""
	duration := finished.Sub(st.execution.StartedAt)
	st.mu.Unlock()

	switch {
	case err == nil:
		if err := r.lc.Complete(); err != nil {
			s.logger.Error("Failed to complete execution", "execution_id", st.execution.ID, "error", err)
		}

		st.mu.Lock()
		result := st.execution.Result
		st.mu.Unlock()

		s.publish(ctx, st.execution.ID, events.ExecutionCompleted{
			BaseEvent:   s.baseEvent(events.ExecutionCompletedEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
			Result:      result,
			Duration:    duration,
		})
	case errors.Is(err, context.Canceled):
		// Cancel may already have driven the state machine there.
		_ = r.lc.Cancel()

		s.publish(ctx, st.execution.ID, events.ExecutionCancelled{
			BaseEvent:   s.baseEvent(events.ExecutionCancelledEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
		})
	default:
		st.mu.Lock()
		st.execution.Error = err.Error()
		st.mu.Unlock()

		if err := r.lc.Fail(); err != nil {
			s.logger.Error("Failed to fail execution", "execution_id", st.execution.ID, "error", err)
		}

		s.publish(ctx, st.execution.ID, events.ExecutionFailed{
			BaseEvent:   s.baseEvent(events.ExecutionFailedEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
			Error:       err.Error(),
			Duration:    duration,
		})
	}

	s.executor.saveExecution(context.Background(), st)

	s.logger.Info("Execution finished",
		"execution_id", st.execution.ID, "status", r.lc.Status(), "duration", duration)
}

// Cancel stops a running or paused execution. The walk observes the
// cancellation at its next node boundary.
func (s *Scheduler) Cancel(ctx context.Context, executionID string) error {
	s.mu.Lock()
	r, ok := s.running[executionID]
	s.mu.Unlock()

	if !ok {
		if _, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID); err != nil {
			return err
		}

		return fmt.Errorf("execution %s: %w", executionID, ErrNotRunning)
	}

	if err := r.lc.Cancel(); err != nil {
		return fmt.Errorf("execution %s: %w", executionID, ErrNotRunning)
	}

	r.cancel()

	s.logger.InfoContext(ctx, "Execution cancelled", "execution_id", executionID)

	return nil
}

// Resume delivers an approval payload to an execution paused on an APPROVAL
// node.
func (s *Scheduler) Resume(ctx context.Context, executionID string, payload map[string]any) error {
	s.mu.Lock()
	r, ok := s.running[executionID]
	s.mu.Unlock()

	if !ok {
		if _, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID); err != nil {
			return err
		}

		return fmt.Errorf("execution %s: %w", executionID, ErrNotRunning)
	}

	if r.lc.Status() != models.ExecutionStatusPaused {
		return fmt.Errorf("execution %s: %w", executionID, ErrNotPaused)
	}

	if payload == nil {
		payload = make(map[string]any)
	}

	select {
	case r.approvals <- payload:
		return nil
	default:
		return fmt.Errorf("execution %s: %w", executionID, ErrNotPaused)
	}
}

// GetExecution returns the persisted record of an execution.
func (s *Scheduler) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
}

// Running reports how many executions are currently in flight.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.running)
}

// Stop cancels every in-flight execution and waits for their goroutines.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, r := range s.running {
		_ = r.lc.Cancel()
		r.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) remove(executionID string) {
	s.mu.Lock()
	delete(s.running, executionID)
	s.mu.Unlock()
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func (s *Scheduler) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}
