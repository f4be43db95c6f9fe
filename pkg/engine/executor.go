package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weavebit/loom/pkg/eventbus"
	"github.com/weavebit/loom/pkg/events"
	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/expr"
	"github.com/weavebit/loom/pkg/log"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/otelhelper"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/template"
)

const (
	defaultNodeTimeout   = 30 * time.Second
	defaultLoopLimit     = 100
	defaultRetryInterval = time.Second
)

// Executor walks a workflow graph for one execution at a time. Control-flow
// nodes are interpreted here; action-backed nodes delegate to the registry.
type Executor struct {
	registry    *registry.Registry
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	nodeTimeout time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(reg *registry.Registry, persist persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Executor {
	return &Executor{
		registry:    reg,
		persistence: persist,
		bus:         bus,
		logger:      logger.With("module", "executor"),
		tracer:      otel.Tracer("loom/engine"),
		nodeTimeout: defaultNodeTimeout,
	}
}

// runState is the mutable state of one execution walk. The mutex guards the
// execution record and the loop counters; the execution context has its own
// synchronization.
type runState struct {
	workflow  *models.Workflow
	execution *models.Execution
	ectx      *execctx.Context
	lc        *lifecycle
	approvals <-chan map[string]any

	mu         sync.Mutex
	loopCounts map[string]int
	joins      map[string]*joinGate
}

type joinGate struct {
	mu       sync.Mutex
	expected int
	arrived  int
}

// arrive registers one branch arrival and reports whether it was the last
// one expected.
func (g *joinGate) arrive() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.arrived++

	return g.arrived, g.arrived == g.expected
}

// Execute walks the graph from the trigger node until every branch reaches
// an END node or a failure stops the execution. The caller owns the
// execution's status transitions; Execute only reports the outcome.
func (e *Executor) Execute(ctx context.Context, st *runState) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, st.workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, st.execution.ID),
	)
	defer span.End()

	entry := st.workflow.EntryNode()
	if entry == nil {
		return &NodeFailure{NodeID: "", Err: errors.New("workflow has no trigger node")}
	}

	return e.runBranch(ctx, st, entry.ID)
}

// runBranch walks one chain of nodes. It returns when the chain ends (END
// node or a non-final join arrival) or on the first failure. Cancellation is
// checked at the top of every iteration.
func (e *Executor) runBranch(ctx context.Context, st *runState, nodeID string) error {
	for nodeID != "" {
		if err := ctx.Err(); err != nil {
			return err
		}

		node := st.workflow.NodeByID(nodeID)
		if node == nil {
			return &NodeFailure{NodeID: nodeID, Err: errors.New("node does not exist")}
		}

		next, err := e.visit(ctx, st, node)
		if err != nil {
			return err
		}

		nodeID = next
	}

	return nil
}

// visit runs one node and returns the id of the next node on this branch,
// or "" when the branch ends here. Every visit appends exactly one node
// execution record.
func (e *Executor) visit(ctx context.Context, st *runState, node *models.Node) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node."+string(node.Type),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	record := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      models.NodeExecutionStatusRunning,
		Input:       st.ectx.Snapshot(),
		StartedAt:   time.Now().UTC(),
	}

	st.mu.Lock()
	st.execution.CurrentNodeID = node.ID
	st.mu.Unlock()

	e.publish(ctx, st.execution.ID, events.NodeStarted{
		BaseEvent:   e.baseEvent(events.NodeStartedEvent, st.workflow.ID),
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
	})

	output, next, err := e.dispatch(ctx, st, node)

	finished := time.Now().UTC()
	record.FinishedAt = &finished
	record.DurationMs = finished.Sub(record.StartedAt).Milliseconds()

	if err != nil {
		record.Status = models.NodeExecutionStatusFailed
		record.Error = err.Error()
	} else {
		record.Status = models.NodeExecutionStatusCompleted
		record.Output = output
	}

	if appendErr := e.persistence.ExecutionRepository().AppendNodeExecution(ctx, record); appendErr != nil {
		e.logger.ErrorContext(ctx, "Failed to append node execution",
			"execution_id", st.execution.ID, "node_id", node.ID, "error", appendErr)
	}

	if err != nil {
		// Cancellation is not a node failure; the scheduler settles it.
		if errors.Is(err, context.Canceled) {
			return "", err
		}

		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))

		st.mu.Lock()
		st.execution.FailedNodes = append(st.execution.FailedNodes, models.NodeError{
			NodeID:  node.ID,
			Message: err.Error(),
			At:      finished,
		})
		st.mu.Unlock()

		e.publish(ctx, st.execution.ID, events.NodeFailed{
			BaseEvent:   e.baseEvent(events.NodeFailedEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			Error:       err.Error(),
			DurationMs:  record.DurationMs,
		})

		// Explicit error routing keeps the execution alive.
		if edge := edgeByLabel(st.workflow, node.ID, models.EdgeLabelError); edge != nil {
			st.ectx.Set(execctx.NodeResultKey(node.ID), map[string]any{"error": err.Error()})
			e.saveExecution(ctx, st)

			return edge.Target, nil
		}

		return "", err
	}

	st.mu.Lock()
	st.execution.CompletedNodes = append(st.execution.CompletedNodes, node.ID)
	st.mu.Unlock()

	e.publish(ctx, st.execution.ID, events.NodeCompleted{
		BaseEvent:   e.baseEvent(events.NodeCompletedEvent, st.workflow.ID),
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		DurationMs:  record.DurationMs,
	})

	e.saveExecution(ctx, st)

	return next, nil
}

func (e *Executor) dispatch(ctx context.Context, st *runState, node *models.Node) (any, string, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		next, err := nextEdgeTarget(st.workflow, node.ID)
		if err != nil {
			return nil, "", err
		}

		return st.ectx.TriggerData(), next, nil
	case models.NodeTypeCondition:
		return e.visitCondition(st, node)
	case models.NodeTypeLoop:
		return e.visitLoop(st, node)
	case models.NodeTypeParallel:
		return e.visitParallel(ctx, st, node)
	case models.NodeTypeJoin:
		return e.visitJoin(st, node)
	case models.NodeTypeDelay:
		return e.visitDelay(ctx, st, node)
	case models.NodeTypeApproval:
		return e.visitApproval(ctx, st, node)
	case models.NodeTypeEnd:
		return e.visitEnd(st, node)
	default:
		return e.visitAction(ctx, st, node)
	}
}

func (e *Executor) visitAction(ctx context.Context, st *runState, node *models.Node) (any, string, error) {
	actionID := node.ActionID()
	if actionID == "" {
		return nil, "", &NodeFailure{NodeID: node.ID, Err: errors.New("node does not resolve to an action")}
	}

	action, err := e.registry.CreateAction(actionID, node.Config)
	if err != nil {
		return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
	}

	timeout := configDuration(node, "timeout", e.nodeTimeout)
	interval := configDuration(node, "retry_interval", defaultRetryInterval)
	retries := node.ConfigInt("retries", 0)

	actionLogger := log.FromContext(ctx).With("node_id", node.ID, "action_id", actionID)

	var output any

	err = retry.Do(ctx, retry.WithMaxRetries(uint64(retries), retry.NewConstant(interval)),
		func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var attemptErr error

			output, attemptErr = action.Execute(attemptCtx, st.ectx, actionLogger)
			if attemptErr != nil {
				if attemptCtx.Err() != nil && ctx.Err() == nil {
					attemptErr = fmt.Errorf("%w after %s: %w", ErrActionTimeout, timeout, attemptErr)
				}

				return retry.RetryableError(attemptErr)
			}

			return nil
		})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, "", context.Canceled
		}

		// Error handlers observe failures, they do not cause them.
		if node.Type == models.NodeTypeErrorHandler {
			e.logger.Error("Error handler action failed", "node_id", node.ID, "error", err)

			next, nextErr := nextEdgeTarget(st.workflow, node.ID)
			if nextErr != nil {
				return nil, "", nextErr
			}

			return map[string]any{"error": err.Error()}, next, nil
		}

		if !errors.Is(err, ErrActionTimeout) {
			err = fmt.Errorf("%w: %w", ErrActionExecution, err)
		}

		return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
	}

	st.ectx.MergeNodeResult(node.ID, output)

	next, err := nextEdgeTarget(st.workflow, node.ID)
	if err != nil {
		return nil, "", err
	}

	return output, next, nil
}

// visitCondition routes on either a node-level expression (true/false
// branches) or per-edge guard expressions evaluated in definition order.
func (e *Executor) visitCondition(st *runState, node *models.Node) (any, string, error) {
	data := st.ectx.EvalData()

	if expression := node.ConfigString("expression", ""); expression != "" {
		result, err := expr.Evaluate(expression, data)
		if err != nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
		}

		label := models.EdgeLabelFalse
		if result {
			label = models.EdgeLabelTrue
		}

		edge := edgeByLabel(st.workflow, node.ID, label)
		if edge == nil {
			edge = edgeByLabel(st.workflow, node.ID, models.EdgeLabelDefault)
		}

		if edge == nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: fmt.Errorf("%w for result %v", ErrNoMatchingBranch, result)}
		}

		return map[string]any{"result": result, "branch": edge.Label}, edge.Target, nil
	}

	var defaultEdge *models.Edge

	for _, edge := range st.workflow.EdgesFrom(node.ID) {
		if edge.Label == models.EdgeLabelDefault {
			defaultEdge = edge

			continue
		}

		if edge.Condition == "" {
			continue
		}

		match, err := expr.Evaluate(edge.Condition, data)
		if err != nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
		}

		if match {
			return map[string]any{"branch": edge.Label}, edge.Target, nil
		}
	}

	if defaultEdge != nil {
		return map[string]any{"branch": models.EdgeLabelDefault}, defaultEdge.Target, nil
	}

	return nil, "", &NodeFailure{NodeID: node.ID, Err: ErrNoMatchingBranch}
}

// visitLoop evaluates the loop guard once per visit. While the guard holds
// the body branch runs and the iteration counter advances; hitting the
// iteration cap with the guard still true fails the execution.
func (e *Executor) visitLoop(st *runState, node *models.Node) (any, string, error) {
	st.mu.Lock()
	count := st.loopCounts[node.ID]
	st.mu.Unlock()

	st.ectx.Set(fmt.Sprintf("loop_%s_iteration", node.ID), count)

	condition := node.ConfigString("condition", "")

	again := true

	if condition != "" {
		var err error

		again, err = expr.Evaluate(condition, st.ectx.EvalData())
		if err != nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
		}
	}

	if !again {
		return map[string]any{"iterations": count}, edgeTargetByLabel(st.workflow, node.ID, models.EdgeLabelDone), nil
	}

	limit := node.ConfigInt("max_iterations", defaultLoopLimit)
	if count >= limit {
		return nil, "", &NodeFailure{NodeID: node.ID, Err: fmt.Errorf("%w: %d iterations", ErrLoopLimitExceeded, count)}
	}

	st.mu.Lock()
	st.loopCounts[node.ID] = count + 1
	st.mu.Unlock()

	return map[string]any{"iteration": count}, edgeTargetByLabel(st.workflow, node.ID, models.EdgeLabelBody), nil
}

// visitParallel runs every outgoing branch concurrently and waits for all of
// them. Branches share the execution context; each ends at an END node or at
// a join gate. The first branch failure fails the parallel region.
func (e *Executor) visitParallel(ctx context.Context, st *runState, node *models.Node) (any, string, error) {
	edges := st.workflow.EdgesFrom(node.ID)

	var wg sync.WaitGroup

	errs := make([]error, len(edges))

	for i, edge := range edges {
		if edge.IsErrorRoute() {
			continue
		}

		wg.Add(1)

		go func(i int, target string) {
			defer wg.Done()

			errs[i] = e.runBranch(ctx, st, target)
		}(i, edge.Target)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, "", err
		}
	}

	return map[string]any{"branches": len(edges)}, "", nil
}

// visitJoin counts branch arrivals. Only the final arrival continues past
// the join; earlier arrivals end their branch here.
func (e *Executor) visitJoin(st *runState, node *models.Node) (any, string, error) {
	st.mu.Lock()

	gate, ok := st.joins[node.ID]
	if !ok {
		gate = &joinGate{expected: len(st.workflow.EdgesTo(node.ID))}
		st.joins[node.ID] = gate
	}

	st.mu.Unlock()

	arrived, last := gate.arrive()

	output := map[string]any{"arrived": arrived, "expected": gate.expected}
	if !last {
		return output, "", nil
	}

	// Drop the spent gate so the next activation of this region, e.g. on a
	// later loop iteration, counts arrivals from zero again.
	st.mu.Lock()
	delete(st.joins, node.ID)
	st.mu.Unlock()

	next, err := nextEdgeTarget(st.workflow, node.ID)
	if err != nil {
		return nil, "", err
	}

	return output, next, nil
}

func (e *Executor) visitDelay(ctx context.Context, st *runState, node *models.Node) (any, string, error) {
	d := configDuration(node, "duration", time.Second)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-timer.C:
	}

	next, err := nextEdgeTarget(st.workflow, node.ID)
	if err != nil {
		return nil, "", err
	}

	return map[string]any{"delayed_ms": d.Milliseconds()}, next, nil
}

// visitApproval pauses the execution until Resume delivers an approval
// payload or the execution is cancelled.
func (e *Executor) visitApproval(ctx context.Context, st *runState, node *models.Node) (any, string, error) {
	if err := st.lc.Pause(); err != nil {
		return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
	}

	e.publish(ctx, st.execution.ID, events.ExecutionPaused{
		BaseEvent:   e.baseEvent(events.ExecutionPausedEvent, st.workflow.ID),
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
	})

	e.saveExecution(ctx, st)

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case payload := <-st.approvals:
		if err := st.lc.Resume(); err != nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
		}

		e.publish(ctx, st.execution.ID, events.ExecutionResumed{
			BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
			NodeID:      node.ID,
		})

		output := map[string]any{"approved": true}
		for k, v := range payload {
			output[k] = v
		}

		st.ectx.MergeNodeResult(node.ID, output)

		next, err := nextEdgeTarget(st.workflow, node.ID)
		if err != nil {
			return nil, "", err
		}

		return output, next, nil
	}
}

// visitEnd renders the execution result. The END node's "result" config maps
// output fields to template strings over the execution context.
func (e *Executor) visitEnd(st *runState, node *models.Node) (any, string, error) {
	spec, _ := node.Config["result"].(map[string]any)
	if spec == nil {
		return nil, "", nil
	}

	result := make(map[string]any, len(spec))

	for key, value := range spec {
		str, ok := value.(string)
		if !ok {
			result[key] = value

			continue
		}

		rendered, err := template.RenderWithContext(str, st.ectx)
		if err != nil {
			return nil, "", &NodeFailure{NodeID: node.ID, Err: err}
		}

		result[key] = rendered
	}

	st.mu.Lock()
	st.execution.Result = result
	st.mu.Unlock()

	return result, "", nil
}

// saveExecution persists a snapshot of the execution record. Failures are
// logged, not fatal: the walk is the source of truth while running.
func (e *Executor) saveExecution(ctx context.Context, st *runState) {
	st.mu.Lock()
	snapshot := *st.execution
	snapshot.Context = st.ectx.Snapshot()
	st.mu.Unlock()

	if err := e.persistence.ExecutionRepository().SaveExecution(ctx, &snapshot); err != nil {
		e.logger.ErrorContext(ctx, "Failed to save execution",
			"execution_id", st.execution.ID, "error", err)
	}
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// nextEdgeTarget picks the branch a linear node continues on: its single
// non-error outgoing edge, or "" when the branch ends here. Finding more
// than one candidate fails the visit rather than guessing a path.
func nextEdgeTarget(workflow *models.Workflow, nodeID string) (string, error) {
	target := ""

	for _, edge := range workflow.EdgesFrom(nodeID) {
		if edge.IsErrorRoute() {
			continue
		}

		if target != "" {
			return "", &NodeFailure{NodeID: nodeID, Err: ErrAmbiguousRoute}
		}

		target = edge.Target
	}

	return target, nil
}

func edgeByLabel(workflow *models.Workflow, nodeID, label string) *models.Edge {
	for _, edge := range workflow.EdgesFrom(nodeID) {
		if edge.Label == label {
			return edge
		}
	}

	return nil
}

func edgeTargetByLabel(workflow *models.Workflow, nodeID, label string) string {
	if edge := edgeByLabel(workflow, nodeID, label); edge != nil {
		return edge.Target
	}

	return ""
}

// configDuration reads a duration config value, accepting either a Go
// duration string or a number of seconds.
func configDuration(node *models.Node, key string, fallback time.Duration) time.Duration {
	switch v := node.Config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}

	return fallback
}
