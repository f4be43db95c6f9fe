package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/history"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/triggers"
	"github.com/weavebit/loom/pkg/workflow"
)

// WebhookSecretHeader carries the shared secret on webhook deliveries.
const WebhookSecretHeader = "X-Webhook-Secret"

type APIHandlers struct {
	store     *workflow.Store
	scheduler *engine.Scheduler
	triggers  *triggers.Manager
	history   *history.History
	registry  *registry.Registry
	validator *validator.Validate
}

func NewAPIHandlers(
	store *workflow.Store,
	scheduler *engine.Scheduler,
	triggerManager *triggers.Manager,
	executionHistory *history.History,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		scheduler: scheduler,
		triggers:  triggerManager,
		history:   executionHistory,
		registry:  registry,
		validator: validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.store.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"actions":    len(h.registry.Actions()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.List(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	if status := c.Query("status"); status != "" {
		filtered := make([]*models.Workflow, 0, len(workflows))

		for _, wf := range workflows {
			if wf.Status == models.WorkflowStatus(status) {
				filtered = append(filtered, wf)
			}
		}

		workflows = filtered
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if versionStr := c.Query("version"); versionStr != "" {
		version, err := strconv.Atoi(versionStr)
		if err != nil {
			return badRequest(c, "Invalid version: "+versionStr)
		}

		wf, err := h.store.GetVersion(c.Context(), id, version)
		if err != nil {
			return handleError(c, err)
		}

		return c.JSON(wf)
	}

	wf, err := h.store.Get(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	wf := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	created, err := h.store.Create(c.Context(), wf)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.store.Get(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.store.Update(c.Context(), id, existing)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.store.Delete(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	activated, err := h.store.Activate(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(activated)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	deactivated, err := h.store.Deactivate(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(deactivated)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	archived, err := h.store.Archive(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) AddWorkflowNode(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node := &models.Node{
		ID:        req.ID,
		Type:      req.Type,
		Name:      req.Name,
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	}

	updated, err := h.store.AddNode(c.Context(), id, node)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) RemoveWorkflowNode(c fiber.Ctx) error {
	id := c.Params("id")
	nodeID := c.Params("nodeId")

	if id == "" || nodeID == "" {
		return badRequest(c, "Workflow ID and node ID are required")
	}

	updated, err := h.store.RemoveNode(c.Context(), id, nodeID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) AddWorkflowEdge(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req AddEdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	edge := &models.Edge{
		ID:        req.ID,
		Source:    req.Source,
		Target:    req.Target,
		Label:     req.Label,
		Condition: req.Condition,
	}

	updated, err := h.store.AddEdge(c.Context(), id, edge)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.scheduler.StartExecution(c.Context(), id, string(models.TriggerTypeManual), "", req.Payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetWorkflowTriggers(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflowTriggers, err := h.triggers.ByWorkflow(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"triggers": workflowTriggers})
}

func (h *APIHandlers) RegisterTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RegisterTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger, err := h.triggers.Register(c.Context(), id, req.Type, req.Config)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) SetTriggerEnabled(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	var req SetTriggerEnabledRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	trigger, err := h.triggers.SetEnabled(c.Context(), id, req.Enabled)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	if err := h.triggers.Delete(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) FireTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.triggers.Fire(c.Context(), id, payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

// Webhook receives an external delivery for a webhook trigger. The shared
// secret travels in the X-Webhook-Secret header.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	id := c.Params("triggerId")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.triggers.FireWebhook(c.Context(), id, c.Get(WebhookSecretHeader), payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": execution.ID,
		"status":       execution.Status,
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	filter, err := h.parseExecutionFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.history.List(c.Context(), *filter)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) parseExecutionFilter(c fiber.Ctx) (*persistence.ExecutionFilter, error) {
	filter := &persistence.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		Status:     models.ExecutionStatus(c.Query("status")),
	}

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, err
		}

		filter.From = from
	}

	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, err
		}

		filter.To = to
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		filter.Limit = limit
	}

	return filter, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.history.Execution(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionNodes(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	records, err := h.history.NodeExecutions(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"node_executions": records})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.scheduler.Cancel(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req ResumeExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.scheduler.Resume(c.Context(), id, req.Payload); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetWorkflowStatistics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.store.Get(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	stats, err := h.history.WorkflowStatistics(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"actions": h.registry.Actions()})
}
