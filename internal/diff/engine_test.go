package diff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/snapshot"
)

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

func newTestEngine(cfg Config) (*Engine, *capturingPublisher) {
	pub := &capturingPublisher{}
	return NewEngine(cfg, WithPublisher(pub)), pub
}

func TestEngine_NoDiffWithoutBothSnapshots(t *testing.T) {
	engine, _ := newTestEngine(Config{})
	ctx := context.Background()

	assert.Nil(t, engine.CheckDiff(ctx, "comp-a"), "no snapshots at all")

	engine.CaptureSnapshot(snapshot.New("comp-a", 1, map[string]any{"x": 1}))
	assert.Nil(t, engine.CheckDiff(ctx, "comp-a"), "expected baseline missing")

	engine.SetExpectedState(snapshot.New("comp-b", 1, map[string]any{"x": 1}))
	assert.Nil(t, engine.CheckDiff(ctx, "comp-b"), "latest snapshot missing")
}

func TestEngine_NoDiffWhenStatesMatch(t *testing.T) {
	engine, pub := newTestEngine(Config{})
	ctx := context.Background()

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"x": 1, "mode": "fast"}))
	engine.CaptureSnapshot(snapshot.New("comp-a", 5, map[string]any{"mode": "fast", "x": 1}))

	assert.Nil(t, engine.CheckDiff(ctx, "comp-a"))
	assert.Empty(t, pub.all())
}

func TestEngine_CriticalFieldMismatch(t *testing.T) {
	engine, pub := newTestEngine(Config{})
	ctx := context.Background()

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"status": "active"}))
	engine.CaptureSnapshot(snapshot.New("comp-a", 2, map[string]any{"status": "y", "extra": 1}))

	d := engine.CheckDiff(ctx, "comp-a")
	require.NotNil(t, d)

	assert.Equal(t, SeverityCritical, d.Severity, "any field name containing status is critical")
	require.Len(t, d.Fields, 2)

	assert.Equal(t, "status", d.Fields[0].FieldName)
	assert.Equal(t, KindValueMismatch, d.Fields[0].Kind)
	assert.Equal(t, "active", d.Fields[0].Expected)
	assert.Equal(t, "y", d.Fields[0].Actual)

	assert.Equal(t, "extra", d.Fields[1].FieldName)
	assert.Equal(t, KindUnexpectedField, d.Fields[1].Kind)
	assert.Nil(t, d.Fields[1].Expected)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventStateDiffDetected, published[0].Type)
	assert.Equal(t, "comp-a", published[0].ComponentID)
	assert.Equal(t, "critical", published[0].Payload["severity"])
	assert.Equal(t, 2, published[0].Payload["field_count"])
}

func TestEngine_MissingExpectedFieldIsMismatch(t *testing.T) {
	engine, _ := newTestEngine(Config{})
	ctx := context.Background()

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))
	engine.CaptureSnapshot(snapshot.New("comp-a", 2, map[string]any{}))

	d := engine.CheckDiff(ctx, "comp-a")
	require.NotNil(t, d)
	require.Len(t, d.Fields, 1)
	assert.Equal(t, KindValueMismatch, d.Fields[0].Kind)
	assert.Nil(t, d.Fields[0].Actual)
}

func TestEngine_SeverityThresholds(t *testing.T) {
	tests := []struct {
		name     string
		expected map[string]any
		actual   map[string]any
		want     Severity
	}{
		{
			name:     "single benign field is info",
			expected: map[string]any{"mode": "fast"},
			actual:   map[string]any{"mode": "slow"},
			want:     SeverityInfo,
		},
		{
			name:     "many benign fields is warning",
			expected: map[string]any{"a": 1, "b": 2, "c": 3, "d": 4},
			actual:   map[string]any{"a": 9, "b": 9, "c": 9, "d": 9},
			want:     SeverityWarning,
		},
		{
			name:     "error substring is critical regardless of count",
			expected: map[string]any{"last_error_code": 0},
			actual:   map[string]any{"last_error_code": 7},
			want:     SeverityCritical,
		},
		{
			name:     "matching is case-sensitive",
			expected: map[string]any{"STATUS": "a"},
			actual:   map[string]any{"STATUS": "b"},
			want:     SeverityInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(Config{})
			ctx := context.Background()

			engine.SetExpectedState(snapshot.New("comp-a", 1, tt.expected))
			engine.CaptureSnapshot(snapshot.New("comp-a", 2, tt.actual))

			d := engine.CheckDiff(ctx, "comp-a")
			require.NotNil(t, d)
			assert.Equal(t, tt.want, d.Severity)
		})
	}
}

func TestEngine_ThrottlesRepeatedChecks(t *testing.T) {
	engine, _ := newTestEngine(Config{ThrottleInterval: time.Minute})
	ctx := context.Background()

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))
	engine.CaptureSnapshot(snapshot.New("comp-a", 2, map[string]any{"mode": "slow"}))

	require.NotNil(t, engine.CheckDiff(ctx, "comp-a"))
	assert.Nil(t, engine.CheckDiff(ctx, "comp-a"), "second check within the interval is throttled")
}

func TestEngine_ThrottleClockStartsWithBothSnapshots(t *testing.T) {
	engine, _ := newTestEngine(Config{ThrottleInterval: time.Minute})
	ctx := context.Background()

	// Checks before the baseline exists must not start the throttle clock.
	engine.CaptureSnapshot(snapshot.New("comp-a", 1, map[string]any{"mode": "slow"}))
	assert.Nil(t, engine.CheckDiff(ctx, "comp-a"))

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))
	assert.NotNil(t, engine.CheckDiff(ctx, "comp-a"),
		"first check with both snapshots present must run immediately")
}

func TestEngine_ThrottleIsPerComponent(t *testing.T) {
	engine, _ := newTestEngine(Config{ThrottleInterval: time.Minute})
	ctx := context.Background()

	for _, id := range []string{"comp-a", "comp-b"} {
		engine.SetExpectedState(snapshot.New(id, 1, map[string]any{"mode": "fast"}))
		engine.CaptureSnapshot(snapshot.New(id, 2, map[string]any{"mode": "slow"}))
	}

	assert.NotNil(t, engine.CheckDiff(ctx, "comp-a"))
	assert.NotNil(t, engine.CheckDiff(ctx, "comp-b"), "throttling comp-a must not affect comp-b")
}

func TestEngine_BothNilValuesAreNotADiff(t *testing.T) {
	engine, _ := newTestEngine(Config{})
	ctx := context.Background()

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"opt": nil, "mode": "fast"}))
	engine.CaptureSnapshot(snapshot.New("comp-a", 2, map[string]any{"opt": nil, "mode": "slow"}))

	d := engine.CheckDiff(ctx, "comp-a")
	require.NotNil(t, d)
	require.Len(t, d.Fields, 1)
	assert.Equal(t, "mode", d.Fields[0].FieldName)
}

func TestEngine_PerformPeriodicDiffCheck(t *testing.T) {
	engine, pub := newTestEngine(Config{})
	ctx := context.Background()

	for _, id := range []string{"comp-a", "comp-b"} {
		engine.SetExpectedState(snapshot.New(id, 1, map[string]any{"mode": "fast"}))
		engine.CaptureSnapshot(snapshot.New(id, 2, map[string]any{"mode": "slow"}))
	}
	// comp-c has a latest snapshot but no baseline; it is skipped silently.
	engine.CaptureSnapshot(snapshot.New("comp-c", 1, map[string]any{"mode": "slow"}))

	engine.PerformPeriodicDiffCheck(ctx)

	published := pub.all()
	require.Len(t, published, 2)
	assert.Equal(t, "comp-a", published[0].ComponentID)
	assert.Equal(t, "comp-b", published[1].ComponentID)
}

func TestEngine_SnapshotAccessors(t *testing.T) {
	engine, _ := newTestEngine(Config{})

	_, ok := engine.LatestSnapshot("comp-a")
	assert.False(t, ok)

	engine.CaptureSnapshot(snapshot.New("comp-a", 3, map[string]any{"x": 1}))
	snap, ok := engine.LatestSnapshot("comp-a")
	require.True(t, ok)
	assert.Equal(t, 3, snap.Version())

	engine.SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"x": 1}))
	expected, ok := engine.ExpectedSnapshot("comp-a")
	require.True(t, ok)
	assert.Equal(t, 1, expected.Version())
}
