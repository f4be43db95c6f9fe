// Package script provides the command-execution action handler backing
// SCRIPT nodes. The command runs under the node's context so per-node
// timeouts and cooperative cancellation apply to the child process.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

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
	return "run_script"
}

func (f *ActionFactory) Metadata() *models.RegisteredAction {
	return &models.RegisteredAction{
		ID:          "run_script",
		Name:        "Run Script",
		Description: "Runs a shell command and captures its output. Arguments support templating.",
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"command": {
					Type:        "string",
					Description: "Executable to run.",
				},
				"args": {
					Type:        "array",
					Description: "Command arguments. Each supports templating.",
					Items:       &models.Property{Type: "string"},
				},
			},
			Required: []string{"command"},
		},
	}
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	command, ok := config["command"].(string)
	if !ok || command == "" {
		return nil, errors.New("missing required field 'command'")
	}

	action := &Action{command: command}

	if args, ok := config["args"].([]any); ok {
		for _, arg := range args {
			if s, ok := arg.(string); ok {
				action.args = append(action.args, s)
			}
		}
	}

	return action, nil
}

// Action runs one external command per node visit.
type Action struct {
	command string
	args    []string
}

func (a *Action) Execute(ctx context.Context, ectx *execctx.Context, logger *slog.Logger) (any, error) {
	args := make([]string, 0, len(a.args))

	for _, arg := range a.args {
		rendered, err := template.RenderString(arg, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render argument %q: %w", arg, err)
		}

		args = append(args, rendered)
	}

	logger.InfoContext(ctx, "Running script", "action_type", "run_script", "command", a.command)

	cmd := exec.CommandContext(ctx, a.command, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	result := map[string]any{
		"stdout":    strings.TrimRight(stdout.String(), "\n"),
		"stderr":    strings.TrimRight(stderr.String(), "\n"),
		"exit_code": exitCode,
	}

	if err != nil {
		return result, fmt.Errorf("script failed: %w", err)
	}

	return result, nil
}
