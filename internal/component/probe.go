package component

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/snapshot"
	"github.com/calder-ai/steward/internal/types"
)

// RuntimeProbe is a built-in monitoring component that samples Go runtime
// statistics on each execution. It fills the role a process/resource monitor
// plays in a larger deployment and gives pipelines a dependable first stage.
type RuntimeProbe struct {
	id   string
	name string

	mu       sync.Mutex
	status   types.ComponentStatus
	version  int
	state    map[string]any
	lastBeat time.Time
}

// NewRuntimeProbe creates a RuntimeProbe with the given component ID.
func NewRuntimeProbe(id string) *RuntimeProbe {
	return &RuntimeProbe{
		id:     id,
		name:   "Runtime Probe",
		status: types.StatusInactive,
		state:  make(map[string]any),
	}
}

func (p *RuntimeProbe) ID() string   { return p.id }
func (p *RuntimeProbe) Name() string { return p.name }

func (p *RuntimeProbe) Capabilities() []string {
	return []string{"system_monitoring", "state_management"}
}

func (p *RuntimeProbe) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = types.StatusInitializing
	p.version++
	return nil
}

func (p *RuntimeProbe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = types.StatusActive
	p.lastBeat = time.Now()
	p.sampleLocked()
	return nil
}

func (p *RuntimeProbe) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = types.StatusInactive
	p.version++
	return nil
}

func (p *RuntimeProbe) CaptureState() snapshot.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot.New(p.id, p.version, p.state)
}

func (p *RuntimeProbe) RestoreState(snap snapshot.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = snap.State()
	p.version = snap.Version()
	return nil
}

// Execute samples the runtime and returns the measurements as stage output.
func (p *RuntimeProbe) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	p.Heartbeat()

	p.mu.Lock()
	p.sampleLocked()
	out := make(map[string]any, len(p.state))
	for k, v := range p.state {
		out[k] = v
	}
	p.mu.Unlock()

	return out, nil
}

func (p *RuntimeProbe) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == types.StatusActive
}

func (p *RuntimeProbe) Heartbeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastBeat = time.Now()
}

func (p *RuntimeProbe) Status() types.ComponentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// sampleLocked refreshes the state map. Caller must hold p.mu.
func (p *RuntimeProbe) sampleLocked() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.state["goroutines"] = runtime.NumGoroutine()
	p.state["heap_alloc_bytes"] = mem.HeapAlloc
	p.state["heap_objects"] = mem.HeapObjects
	p.state["gc_cycles"] = mem.NumGC
	p.state["sampled_at_unix"] = time.Now().Unix()
	p.version++
}
