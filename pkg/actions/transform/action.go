// Package transform provides the templating action handler backing
// TRANSFORM nodes.
package transform

import (
	"context"
	"errors"
	"log/slog"

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
	return "transform"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "transform",
		Name:        "Transform",
		Description: "Renders an expression template against the execution context and emits the result.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"expression": {
					Type:        "string",
					Description: "Template producing the node output. JSON-shaped output is decoded.",
				},
			},
			Required: []string{"expression"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	return &Action{expression: expression}, nil
}

// Action renders a template and passes the result downstream.
type Action struct {
	expression string
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	result, err := template.RenderWithContext(a.expression, ectx)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Transform rendered", "action_type", "transform")

	return result, nil
}
