package transform_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavebit/loom/pkg/actions/transform"
	"github.com/weavebit/loom/pkg/execctx"
)

func TestFactoryRequiresExpression(t *testing.T) {
	t.Parallel()

	factory := transform.NewActionFactory()
	assert.Equal(t, "transform", factory.ID())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"expression": "{{ .trigger_data.name }}"})
	require.NoError(t, err)
	assert.NotNil(t, action)
}

func TestExecuteRendersAgainstContext(t *testing.T) {
	t.Parallel()

	factory := transform.NewActionFactory()

	tests := []struct {
		name       string
		expression string
		payload    map[string]any
		expected   any
	}{
		{
			name:       "plain field",
			expression: "{{ .trigger_data.name }}",
			payload:    map[string]any{"name": "ada"},
			expected:   "ada",
		},
		{
			name:       "json shaped output is decoded",
			expression: `{"user": "{{ .trigger_data.name }}", "ok": true}`,
			payload:    map[string]any{"name": "ada"},
			expected:   map[string]any{"user": "ada", "ok": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			action, err := factory.Create(map[string]any{"expression": tt.expression})
			require.NoError(t, err)

			ectx := execctx.New("exec-1", "wf-1", tt.payload, nil)

			result, err := action.Execute(t.Context(), ectx, slog.Default())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExecuteFailsOnBadTemplate(t *testing.T) {
	t.Parallel()

	action, err := transform.NewActionFactory().Create(map[string]any{"expression": "{{ .broken"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), execctx.New("exec-1", "wf-1", nil, nil), slog.Default())
	require.Error(t, err)
}
