// Package main provides the Loom API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/eventbus"
	"github.com/weavebit/loom/pkg/history"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/triggers"
	"github.com/weavebit/loom/pkg/web"
	"github.com/weavebit/loom/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate

	scheduler      *engine.Scheduler
	triggerManager *triggers.Manager
	scheduleRunner *triggers.ScheduleRunner
}

func NewAPI(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	scheduler := engine.NewScheduler(persist, reg, eventBus, logger)
	triggerManager := triggers.NewManager(persist, scheduler, logger)

	return &API{
		logger:         logger,
		persistence:    persist,
		registry:       reg,
		eventBus:       eventBus,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		scheduler:      scheduler,
		triggerManager: triggerManager,
		scheduleRunner: triggers.NewScheduleRunner(triggerManager, logger),
	}
}

func (a *API) App() *fiber.App {
	store := workflow.NewStore(a.persistence)
	executionHistory := history.NewHistory(a.persistence)

	handlers := web.NewAPIHandlers(store, a.scheduler, a.triggerManager, executionHistory, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Loom API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/statistics", handlers.GetWorkflowStatistics)

	// Graph editing on draft versions:
	w.Post("/:id/nodes", handlers.AddWorkflowNode)
	w.Delete("/:id/nodes/:nodeId", handlers.RemoveWorkflowNode)
	w.Post("/:id/edges", handlers.AddWorkflowEdge)

	w.Get("/:id/triggers", handlers.GetWorkflowTriggers)
	w.Post("/:id/triggers", handlers.RegisterTrigger)

	tr := app.Group("/triggers")
	tr.Patch("/:id", handlers.SetTriggerEnabled)
	tr.Delete("/:id", handlers.DeleteTrigger)
	tr.Post("/:id/fire", handlers.FireTrigger)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/nodes", handlers.GetExecutionNodes)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)

	app.Post("/webhooks/:triggerId", handlers.Webhook)

	app.Get("/actions", handlers.GetActions)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	if err := a.scheduleRunner.Start(ctx); err != nil {
		return err
	}

	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	a.scheduleRunner.Stop()
	a.scheduler.Stop()

	return err
}
