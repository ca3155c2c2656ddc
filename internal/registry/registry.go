// Package registry provides the component directory: registration,
// capability indexing, status tracking, and heartbeat-based liveness.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/component"
	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/types"
)

// DefaultLivenessWindow is the maximum heartbeat age for a component to be
// considered live.
const DefaultLivenessWindow = 30 * time.Second

// Publisher is the subset of the event bus the registry needs.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// RegisteredComponent is the registry's view of a component.
type RegisteredComponent struct {
	ID               string
	Name             string
	Capabilities     []string
	Status           types.ComponentStatus
	RegisteredAt     time.Time
	LastHeartbeat    time.Time
	LastStatusUpdate time.Time
	Metadata         map[string]any
}

type entry struct {
	info   RegisteredComponent
	handle component.Component // nil for metadata-only registrations
}

// Registry is the directory of orchestrated components. All mutation methods
// are safe to call concurrently; reads observe a consistent snapshot taken
// under the registry lock.
type Registry struct {
	mu           sync.RWMutex
	components   map[string]*entry
	capabilities map[string][]string // capability -> component IDs, registration order
	order        []string            // component IDs in registration order

	bus            Publisher
	logger         *slog.Logger
	livenessWindow time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher sets the event publisher. Without one, no events are emitted.
func WithPublisher(bus Publisher) RegistryOption {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithLivenessWindow overrides the heartbeat liveness window.
func WithLivenessWindow(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.livenessWindow = d
		}
	}
}

// New creates an empty Registry.
func New(opts ...RegistryOption) *Registry {
	r := &Registry{
		components:     make(map[string]*entry),
		capabilities:   make(map[string][]string),
		logger:         slog.Default(),
		livenessWindow: DefaultLivenessWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates (or overwrites) a registration with status inactive,
// indexes the component by each declared capability, and emits a
// component.registered event.
func (r *Registry) Register(ctx context.Context, id, name string, capabilities []string) {
	r.register(ctx, id, name, capabilities, nil)
}

// RegisterComponent registers a live component handle, deriving ID, name and
// capabilities from the component itself. The handle is what the scheduler
// executes pipeline stages against.
func (r *Registry) RegisterComponent(ctx context.Context, c component.Component) {
	r.register(ctx, c.ID(), c.Name(), c.Capabilities(), c)
}

func (r *Registry) register(ctx context.Context, id, name string, capabilities []string, handle component.Component) {
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	now := time.Now()

	r.mu.Lock()
	if old, exists := r.components[id]; exists {
		r.deindexLocked(id, old.info.Capabilities)
	} else {
		r.order = append(r.order, id)
	}
	r.components[id] = &entry{
		info: RegisteredComponent{
			ID:               id,
			Name:             name,
			Capabilities:     caps,
			Status:           types.StatusInactive,
			RegisteredAt:     now,
			LastHeartbeat:    now,
			LastStatusUpdate: now,
			Metadata:         make(map[string]any),
		},
		handle: handle,
	}
	for _, capability := range caps {
		r.capabilities[capability] = append(r.capabilities[capability], id)
	}
	r.mu.Unlock()

	r.logger.Info("registered component",
		"component_id", id,
		"component_name", name,
		"capabilities", len(caps),
	)

	r.publish(ctx, events.New(events.EventComponentRegistered, id, map[string]any{
		"component_name": name,
		"capabilities":   caps,
	}))
}

// Unregister removes a component and its capability index entries, then
// emits a component.unregistered event. Unknown IDs are a no-op.
func (r *Registry) Unregister(ctx context.Context, id string) {
	r.mu.Lock()
	e, exists := r.components[id]
	if exists {
		delete(r.components, id)
		r.deindexLocked(id, e.info.Capabilities)
		for i, cid := range r.order {
			if cid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	r.logger.Info("unregistered component", "component_id", id)
	r.publish(ctx, events.New(events.EventComponentUnregistered, id, nil))
}

// deindexLocked removes id from every capability list it appears in.
// Caller must hold r.mu.
func (r *Registry) deindexLocked(id string, capabilities []string) {
	for _, capability := range capabilities {
		providers := r.capabilities[capability]
		for i, cid := range providers {
			if cid == id {
				r.capabilities[capability] = append(providers[:i], providers[i+1:]...)
				break
			}
		}
		if len(r.capabilities[capability]) == 0 {
			delete(r.capabilities, capability)
		}
	}
}

// UpdateStatus mutates a component's status and emits a
// component.status.changed event. Unknown IDs are a no-op.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status types.ComponentStatus) {
	r.mu.Lock()
	e, exists := r.components[id]
	if exists {
		e.info.Status = status
		e.info.LastStatusUpdate = time.Now()
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	r.logger.Debug("component status updated", "component_id", id, "status", status)
	r.publish(ctx, events.New(events.EventComponentStatusChanged, id, map[string]any{
		"status": status.String(),
	}))
}

// UpdateHeartbeat bumps the component's heartbeat timestamp. No event is
// emitted; heartbeats are too frequent to broadcast.
func (r *Registry) UpdateHeartbeat(id string) {
	r.mu.Lock()
	if e, exists := r.components[id]; exists {
		e.info.LastHeartbeat = time.Now()
	}
	r.mu.Unlock()
}

// Get returns a copy of the registration for the given ID.
func (r *Registry) Get(id string) (RegisteredComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.components[id]
	if !exists {
		return RegisteredComponent{}, false
	}
	return copyInfo(e.info), true
}

// Handle returns the live component handle for the given ID, if one was
// registered via RegisterComponent.
func (r *Registry) Handle(id string) (component.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.components[id]
	if !exists || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// List returns all registrations in registration order.
func (r *Registry) List() []RegisteredComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]RegisteredComponent, 0, len(r.order))
	for _, id := range r.order {
		if e, exists := r.components[id]; exists {
			result = append(result, copyInfo(e.info))
		}
	}
	return result
}

// ListByStatus returns all registrations with the given status, in
// registration order.
func (r *Registry) ListByStatus(status types.ComponentStatus) []RegisteredComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []RegisteredComponent
	for _, id := range r.order {
		if e, exists := r.components[id]; exists && e.info.Status == status {
			result = append(result, copyInfo(e.info))
		}
	}
	return result
}

// ComponentsByCapability returns the IDs of all components registered with
// the given capability tag, in registration order.
func (r *Registry) ComponentsByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.capabilities[capability]
	result := make([]string, len(providers))
	copy(result, providers)
	return result
}

// SetMetadata stores a metadata value on a registration.
func (r *Registry) SetMetadata(id, key string, value any) {
	r.mu.Lock()
	if e, exists := r.components[id]; exists {
		e.info.Metadata[key] = value
	}
	r.mu.Unlock()
}

// IsComponentHealthy reports whether the component exists, is active, and
// has heartbeated within the liveness window. Unregistered components are
// treated as unhealthy.
func (r *Registry) IsComponentHealthy(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.components[id]
	if !exists {
		return false
	}

	return e.info.Status == types.StatusActive &&
		time.Since(e.info.LastHeartbeat) < r.livenessWindow
}

// LivenessWindow returns the configured heartbeat liveness window.
func (r *Registry) LivenessWindow() time.Duration {
	return r.livenessWindow
}

func (r *Registry) publish(ctx context.Context, event events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish registry event",
			"event_type", event.Type, "error", err)
	}
}

func copyInfo(info RegisteredComponent) RegisteredComponent {
	copied := info
	copied.Capabilities = make([]string, len(info.Capabilities))
	copy(copied.Capabilities, info.Capabilities)
	copied.Metadata = make(map[string]any, len(info.Metadata))
	for k, v := range info.Metadata {
		copied.Metadata[k] = v
	}
	return copied
}
