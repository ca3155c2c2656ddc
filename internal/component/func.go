package component

import (
	"context"
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/snapshot"
	"github.com/calder-ai/steward/internal/types"
)

// ExecuteFunc is the work function a FuncComponent runs per Execute call.
type ExecuteFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// FuncComponent adapts a plain function into a Component. It keeps the
// lifecycle and snapshot bookkeeping so callers only supply the work
// function. Used as a building block for simple processing stages and as a
// test double.
type FuncComponent struct {
	id           string
	name         string
	capabilities []string
	fn           ExecuteFunc

	mu        sync.Mutex
	status    types.ComponentStatus
	version   int
	state     map[string]any
	lastBeat  time.Time
	execCount int64
}

// NewFunc creates a FuncComponent. A nil fn makes Execute echo its input.
func NewFunc(id, name string, capabilities []string, fn ExecuteFunc) *FuncComponent {
	return &FuncComponent{
		id:           id,
		name:         name,
		capabilities: capabilities,
		fn:           fn,
		status:       types.StatusInactive,
		state:        make(map[string]any),
	}
}

func (c *FuncComponent) ID() string   { return c.id }
func (c *FuncComponent) Name() string { return c.name }

func (c *FuncComponent) Capabilities() []string {
	caps := make([]string, len(c.capabilities))
	copy(caps, c.capabilities)
	return caps
}

func (c *FuncComponent) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = types.StatusInitializing
	c.state["initialized"] = true
	c.version++
	return nil
}

func (c *FuncComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = types.StatusActive
	c.state["running"] = true
	c.lastBeat = time.Now()
	c.version++
	return nil
}

func (c *FuncComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = types.StatusInactive
	c.state["running"] = false
	c.version++
	return nil
}

func (c *FuncComponent) CaptureState() snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot.New(c.id, c.version, c.state)
}

func (c *FuncComponent) RestoreState(snap snapshot.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = snap.State()
	c.version = snap.Version()
	return nil
}

func (c *FuncComponent) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	c.Heartbeat()

	c.mu.Lock()
	c.execCount++
	c.state["executions"] = c.execCount
	c.version++
	fn := c.fn
	c.mu.Unlock()

	if fn == nil {
		out := make(map[string]any, len(input))
		for k, v := range input {
			out[k] = v
		}
		return out, nil
	}
	return fn(ctx, input)
}

func (c *FuncComponent) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == types.StatusActive
}

func (c *FuncComponent) Heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBeat = time.Now()
}

func (c *FuncComponent) Status() types.ComponentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetState stores a field in the component's state map, bumping the version.
// Intended for tests and for components layering on FuncComponent.
func (c *FuncComponent) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
	c.version++
}
