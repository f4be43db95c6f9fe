// Package logaction provides the structured-log action handler, used for
// workflow debugging and as the notifier in deployments without Redis.
package logaction

import (
	"context"
	"log/slog"
	"time"

	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/models"
	"github.com/weavebit/loom/pkg/registry"
	"github.com/weavebit/loom/pkg/template"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "log"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "log",
		Name:        "Log",
		Description: "Writes a templated message to the structured log.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"message": {
					Type:        "string",
					Description: "Message template rendered against the execution context.",
				},
				"level": {
					Type:        "string",
					Description: "Log level",
					Default:     "info",
					Enum:        []any{"debug", "info", "warn", "error"},
				},
			},
			Required: []string{"message"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	action := &Action{level: "info"}

	if message, ok := config["message"].(string); ok {
		action.message = message
	}

	if level, ok := config["level"].(string); ok && level != "" {
		action.level = level
	}

	return action, nil
}

// Action logs a rendered message and returns it as the node result.
type Action struct {
	message string
	level   string
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	rendered, err := template.RenderString(a.message, ectx)
	if err != nil {
		return nil, err
	}

	logger = logger.With("action_type", "log")

	switch a.level {
	case "debug":
		logger.DebugContext(ctx, rendered)
	case "warn":
		logger.WarnContext(ctx, rendered)
	case "error":
		logger.ErrorContext(ctx, rendered)
	default:
		logger.InfoContext(ctx, rendered)
	}

	return map[string]any{
		"message":   rendered,
		"logged_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
