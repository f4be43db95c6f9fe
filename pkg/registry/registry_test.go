package registry_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weavebit/loom/pkg/actions/logaction"
	"github.com/weavebit/loom/pkg/actions/transform"
	"github.com/weavebit/loom/pkg/execctx"
	"github.com/weavebit/loom/pkg/registry"
)

func newTestRegistry() *registry.Registry {
	r := registry.NewRegistry(slog.Default())
	r.Register(logaction.NewActionFactory())
	r.Register(transform.NewActionFactory())

	return r
}

func TestRegistry_CreateAction(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	action, err := r.CreateAction("log", map[string]any{"message": "hello"})
	require.NoError(t, err)
	require.NotNil(t, action)

	ectx := execctx.New("exec-1", "wf-1", nil, nil)

	result, err := action.Execute(context.Background(), ectx, slog.Default())
	require.NoError(t, err)

	out, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", out["message"])
}

func TestRegistry_UnknownAction(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	_, err := r.CreateAction("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_SchemaRejectsBadConfig(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	// transform requires 'expression'
	_, err := r.CreateAction("transform", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRegistry_Actions(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	actions := r.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "log", actions[0].ID)
	assert.Equal(t, "transform", actions[1].ID)
}

func TestRegistry_IsRegistered(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	assert.True(t, r.IsRegistered("log"))
	assert.False(t, r.IsRegistered("send_email"))
}
