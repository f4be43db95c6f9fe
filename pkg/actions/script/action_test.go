package script_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavebit/loom/pkg/actions/script"
	"github.com/weavebit/loom/pkg/execctx"
)

func TestFactoryRequiresCommand(t *testing.T) {
	t.Parallel()

	factory := script.NewActionFactory()
	assert.Equal(t, "run_script", factory.ID())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)
}

func TestExecuteCapturesOutput(t *testing.T) {
	t.Parallel()

	action, err := script.NewActionFactory().Create(map[string]any{
		"command": "echo",
		"args":    []any{"{{ .trigger_data.name }}"},
	})
	require.NoError(t, err)

	ectx := execctx.New("exec-1", "wf-1", map[string]any{"name": "ada"}, nil)

	result, err := action.Execute(t.Context(), ectx, slog.Default())
	require.NoError(t, err)

	output, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", output["stdout"])
	assert.Equal(t, 0, output["exit_code"])
}

func TestExecuteReportsFailure(t *testing.T) {
	t.Parallel()

	action, err := script.NewActionFactory().Create(map[string]any{
		"command": "false",
	})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), execctx.New("exec-1", "wf-1", nil, nil), slog.Default())
	require.Error(t, err)

	output, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, output["exit_code"])
}
