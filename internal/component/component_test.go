package component

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-ai/steward/internal/snapshot"
	"github.com/calder-ai/steward/internal/types"
)

func TestFuncComponent_Lifecycle(t *testing.T) {
	c := NewFunc("comp-a", "Component A", []string{"data_processing"}, nil)
	ctx := context.Background()

	assert.Equal(t, types.StatusInactive, c.Status())
	assert.False(t, c.Healthy())

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, types.StatusInitializing, c.Status())

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, types.StatusActive, c.Status())
	assert.True(t, c.Healthy())

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, types.StatusInactive, c.Status())
}

func TestFuncComponent_NilFuncEchoesInput(t *testing.T) {
	c := NewFunc("comp-a", "Component A", nil, nil)

	out, err := c.Execute(context.Background(), map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, out)
}

func TestFuncComponent_ExecuteRunsFunc(t *testing.T) {
	c := NewFunc("comp-a", "Component A", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"doubled": input["x"].(int) * 2}, nil
	})

	out, err := c.Execute(context.Background(), map[string]any{"x": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, out["doubled"])

	failing := NewFunc("comp-b", "B", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	_, err = failing.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestFuncComponent_SnapshotRoundTrip(t *testing.T) {
	c := NewFunc("comp-a", "Component A", nil, nil)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	c.SetState("mode", "fast")
	baseline := c.CaptureState()
	assert.Equal(t, "comp-a", baseline.ComponentID())

	c.SetState("mode", "slow")
	drifted := c.CaptureState()
	assert.False(t, baseline.Equal(drifted))
	assert.Greater(t, drifted.Version(), baseline.Version())

	require.NoError(t, c.RestoreState(baseline))
	restored := c.CaptureState()
	v, _ := restored.Value("mode")
	assert.Equal(t, "fast", v)
}

func TestFuncComponent_ExecutionsTrackedInState(t *testing.T) {
	c := NewFunc("comp-a", "Component A", nil, nil)
	ctx := context.Background()

	_, err := c.Execute(ctx, nil)
	require.NoError(t, err)
	_, err = c.Execute(ctx, nil)
	require.NoError(t, err)

	snap := c.CaptureState()
	v, ok := snap.Value("executions")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestFuncComponent_CapabilitiesCopied(t *testing.T) {
	c := NewFunc("comp-a", "Component A", []string{"data_processing"}, nil)

	caps := c.Capabilities()
	caps[0] = "mutated"
	assert.Equal(t, []string{"data_processing"}, c.Capabilities())
}

func TestRuntimeProbe_Execute(t *testing.T) {
	p := NewRuntimeProbe("probe-1")
	ctx := context.Background()

	assert.Equal(t, "probe-1", p.ID())
	assert.Contains(t, p.Capabilities(), "system_monitoring")

	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.Healthy())

	out, err := p.Execute(ctx, nil)
	require.NoError(t, err)

	goroutines, ok := out["goroutines"].(int)
	require.True(t, ok)
	assert.Greater(t, goroutines, 0)
	assert.Contains(t, out, "heap_alloc_bytes")
	assert.Contains(t, out, "gc_cycles")
}

func TestRuntimeProbe_SnapshotVersionAdvances(t *testing.T) {
	p := NewRuntimeProbe("probe-1")
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	first := p.CaptureState()
	_, err := p.Execute(ctx, nil)
	require.NoError(t, err)
	second := p.CaptureState()

	assert.Greater(t, second.Version(), first.Version())
}

func TestRuntimeProbe_RestoreState(t *testing.T) {
	p := NewRuntimeProbe("probe-1")
	require.NoError(t, p.Start(context.Background()))

	baseline := snapshot.New("probe-1", 1, map[string]any{"goroutines": 1})
	require.NoError(t, p.RestoreState(baseline))

	snap := p.CaptureState()
	v, _ := snap.Value("goroutines")
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, snap.Version())
}
