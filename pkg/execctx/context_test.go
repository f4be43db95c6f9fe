package execctx_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weavebit/loom/pkg/execctx"
)

func TestNew_SeedsTriggerData(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", map[string]any{"to": "a@b.com"}, nil)

	assert.Equal(t, "a@b.com", ctx.TriggerData()["to"])

	_, ok := ctx.Get(execctx.VariablesKey)
	assert.False(t, ok)
}

func TestMergeNodeResult_Namespacing(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", nil, nil)
	ctx.MergeNodeResult("A1", map[string]any{"status": 200})

	value, ok := ctx.Get("node_A1_result")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": 200}, value)

	result, ok := ctx.NodeResult("A1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": 200}, result)
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", nil, nil)
	ctx.Set("k", "before")

	snap := ctx.Snapshot()

	ctx.Set("k", "after")

	assert.Equal(t, "before", snap["k"])

	value, _ := ctx.Get("k")
	assert.Equal(t, "after", value)
}

func TestRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", map[string]any{"n": 1}, nil)
	ctx.MergeNodeResult("A1", "done")

	restored := execctx.Restore("exec-1", "wf-1", ctx.Snapshot())

	result, ok := restored.NodeResult("A1")
	require.True(t, ok)
	assert.Equal(t, "done", result)
	assert.Equal(t, 1, restored.TriggerData()["n"])
}

func TestConcurrentBranchWrites(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", nil, nil)

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			ctx.MergeNodeResult(fmt.Sprintf("branch-%d", i), i)
		}()
	}

	wg.Wait()

	for i := range 16 {
		result, ok := ctx.NodeResult(fmt.Sprintf("branch-%d", i))
		require.True(t, ok)
		assert.Equal(t, i, result)
	}
}

func TestEvalData_IncludesExecutionInfo(t *testing.T) {
	t.Parallel()

	ctx := execctx.New("exec-1", "wf-1", map[string]any{"k": "v"}, nil)

	data := ctx.EvalData()

	execution, ok := data["execution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "exec-1", execution["id"])
	assert.Equal(t, "wf-1", execution["workflow_id"])
}
