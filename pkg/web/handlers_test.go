package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavebit/loom/pkg/actions/logaction"
	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/history"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/persistence/file"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/triggers"
	"github.com/weavebit/loom/pkg/web"
	"github.com/weavebit/loom/pkg/workflow"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	registryInstance := registry.NewRegistry(slog.Default())
	registryInstance.Register(logaction.NewActionFactory())

	store := workflow.NewStore(persistence)
	scheduler := engine.NewScheduler(persistence, registryInstance, nil, slog.Default())
	t.Cleanup(scheduler.Stop)

	manager := triggers.NewManager(persistence, scheduler, slog.Default())
	executionHistory := history.NewHistory(persistence)

	handlers := web.NewAPIHandlers(
		store,
		scheduler,
		manager,
		executionHistory,
		registryInstance,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Post("/:id/nodes", handlers.AddWorkflowNode)
	w.Post("/:id/edges", handlers.AddWorkflowEdge)
	w.Get("/:id/triggers", handlers.GetWorkflowTriggers)
	w.Post("/:id/triggers", handlers.RegisterTrigger)
	w.Get("/:id/statistics", handlers.GetWorkflowStatistics)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)

	app.Post("/webhooks/:triggerId", handlers.Webhook)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func createLinearWorkflow(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name: "Order Pipeline",
		Nodes: []*models.Node{
			{ID: "T1", Type: models.NodeTypeTrigger},
			{ID: "A1", Type: models.NodeTypeAction, Config: map[string]any{"action": "log", "message": "step"}},
			{ID: "E1", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{Source: "T1", Target: "A1"},
			{Source: "A1", Target: "E1"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	return created.ID
}

func TestCreateWorkflowValidation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "Order Pipeline"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, 1, created.Version)
}

func TestGetWorkflowNotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateRejectsInvalidGraph(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "No Graph Yet"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = doJSON(t, app, http.MethodPost, "/workflows/"+created.ID+"/activate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "graph_invalid")
}

func TestExecuteRequiresActiveWorkflow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createLinearWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+id+"/execute", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExecuteWorkflowEndToEnd(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createLinearWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+id+"/execute", web.ExecuteWorkflowRequest{
		Payload: map[string]any{"order_id": "o-42"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var execution models.Execution
	require.NoError(t, json.Unmarshal(body, &execution))
	require.NotEmpty(t, execution.ID)

	require.Eventually(t, func() bool {
		resp, body := doJSON(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		var current models.Execution
		if err := json.Unmarshal(body, &current); err != nil {
			return false
		}

		return current.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+id+"/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats history.WorkflowStatistics
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Completed)
}

func TestUpdateWorkflowBumpsVersion(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createLinearWorkflow(t, app)

	name := "Renamed Pipeline"
	resp, body := doJSON(t, app, http.MethodPatch, "/workflows/"+id, web.UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed Pipeline", updated.Name)
	assert.Equal(t, 2, updated.Version)
}

func TestWebhookRequiresMatchingSecret(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createLinearWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+id+"/triggers", web.RegisterTriggerRequest{
		Type: models.TriggerTypeWebhook,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var trigger models.Trigger
	require.NoError(t, json.Unmarshal(body, &trigger))
	require.NotEmpty(t, trigger.WebhookSecret())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+trigger.ID, bytes.NewReader([]byte(`{"k":"v"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.WebhookSecretHeader, "wrong")

	wrongResp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, wrongResp.Body.Close())
	assert.Equal(t, http.StatusUnauthorized, wrongResp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/"+trigger.ID, bytes.NewReader([]byte(`{"k":"v"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.WebhookSecretHeader, trigger.WebhookSecret())

	okResp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, okResp.Body.Close())
	assert.Equal(t, http.StatusAccepted, okResp.StatusCode)
}

func TestCancelUnknownExecution(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/executions/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}
