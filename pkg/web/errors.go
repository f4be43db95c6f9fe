package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/weavebit/loom/pkg/engine"
	"github.com/weavebit/loom/pkg/persistence"
	"github.com/weavebit/loom/pkg/triggers"
	"github.com/weavebit/loom/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps domain errors onto RFC 7807 problem responses.
func handleError(c fiber.Ctx, err error) error {
	var graphErr *workflow.GraphError

	switch {
	case errors.As(err, &graphErr):
		problem := problems.NewStatusProblem(fiber.StatusUnprocessableEntity).
			WithInstance(c.Path()).
			WithType("graph_invalid").
			WithDetail(graphErr.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case errors.Is(err, engine.ErrWorkflowNotActive),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrNotPaused),
		errors.Is(err, triggers.ErrTriggerDisabled):
		return conflict(c, err.Error())

	case errors.Is(err, triggers.ErrSecretMismatch):
		problem := problems.NewStatusProblem(fiber.StatusUnauthorized).
			WithInstance(c.Path()).
			WithType("secret_mismatch").
			WithDetail("webhook secret mismatch")

		return c.Status(fiber.StatusUnauthorized).JSON(problem)

	case errors.Is(err, triggers.ErrUnsupportedTriggerType):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
