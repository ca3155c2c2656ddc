// Package health tracks component health from heartbeats, errors, and
// successes, drives per-component circuit breakers, and degrades or isolates
// components through the registry.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/breaker"
	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/registry"
	"github.com/calder-ai/steward/internal/types"
)

// Config holds the health monitor thresholds. The defaults mirror the
// behavior the rest of the system was tuned against; change them through
// configuration rather than in code.
type Config struct {
	// ConsecutiveFailureLimit is the number of consecutive errors after
	// which a component is degraded. Default: 3
	ConsecutiveFailureLimit int

	// ErrorRateThreshold is the errors/(errors+successes) ratio above which
	// the periodic sweep degrades a component. Default: 0.5
	ErrorRateThreshold float64

	// LivenessWindow is the maximum heartbeat age before the periodic sweep
	// flags an active component. Default: 30 seconds
	LivenessWindow time.Duration

	// Breaker configures the lazily-created per-component circuit breakers.
	Breaker breaker.Config
}

// DefaultConfig returns the default health thresholds.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailureLimit: 3,
		ErrorRateThreshold:      0.5,
		LivenessWindow:          30 * time.Second,
		Breaker:                 breaker.DefaultConfig(),
	}
}

// ComponentHealth is the cumulative health record for one component.
// Records are created lazily on the first heartbeat or error and live until
// process restart.
type ComponentHealth struct {
	ComponentID         string
	LastHeartbeat       time.Time
	LastError           time.Time
	ErrorCount          int
	SuccessCount        int
	ConsecutiveFailures int
	RestartCount        int
}

// ErrorRate returns errors/(errors+successes), or 0 with no observations.
func (h ComponentHealth) ErrorRate() float64 {
	total := h.ErrorCount + h.SuccessCount
	if total == 0 {
		return 0
	}
	return float64(h.ErrorCount) / float64(total)
}

// Publisher is the subset of the event bus the monitor needs.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Monitor consumes heartbeat/error/success signals from pipeline execution
// and maintains health records and circuit breakers. The periodic sweep
// (PerformHealthCheck) is externally scheduled; the orchestrator's audit
// ticker drives it.
type Monitor struct {
	cfg      Config
	registry *registry.Registry
	bus      Publisher
	logger   *slog.Logger

	onBreakerChange breaker.TransitionCallback

	mu       sync.Mutex
	records  map[string]*ComponentHealth
	breakers map[string]*breaker.CircuitBreaker
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPublisher sets the event publisher. Without one, no events are emitted.
func WithPublisher(bus Publisher) MonitorOption {
	return func(m *Monitor) {
		m.bus = bus
	}
}

// WithBreakerTransitionCallback registers a callback fired whenever any
// component breaker changes state. Used for metrics.
func WithBreakerTransitionCallback(fn breaker.TransitionCallback) MonitorOption {
	return func(m *Monitor) {
		m.onBreakerChange = fn
	}
}

// NewMonitor creates a Monitor bound to the given registry.
func NewMonitor(reg *registry.Registry, cfg Config, opts ...MonitorOption) *Monitor {
	if cfg.ConsecutiveFailureLimit <= 0 {
		cfg.ConsecutiveFailureLimit = DefaultConfig().ConsecutiveFailureLimit
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = DefaultConfig().ErrorRateThreshold
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = DefaultConfig().LivenessWindow
	}

	m := &Monitor{
		cfg:      cfg,
		registry: reg,
		logger:   slog.Default(),
		records:  make(map[string]*ComponentHealth),
		breakers: make(map[string]*breaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordHeartbeat notes that the component is live: the consecutive-failure
// counter resets and the heartbeat is forwarded to the registry.
func (m *Monitor) RecordHeartbeat(ctx context.Context, componentID string) {
	m.mu.Lock()
	record := m.recordLocked(componentID)
	record.LastHeartbeat = time.Now()
	record.ConsecutiveFailures = 0
	m.mu.Unlock()

	m.registry.UpdateHeartbeat(componentID)
}

// RecordError counts an execution failure. Reaching the consecutive-failure
// limit degrades the component; the failure is always fed into the
// component's circuit breaker.
func (m *Monitor) RecordError(ctx context.Context, componentID, errorType string) {
	m.mu.Lock()
	record := m.recordLocked(componentID)
	record.ErrorCount++
	record.ConsecutiveFailures++
	record.LastError = time.Now()
	consecutive := record.ConsecutiveFailures
	cb := m.breakerLocked(componentID)
	m.mu.Unlock()

	m.logger.Warn("error recorded",
		"component_id", componentID,
		"error_type", errorType,
		"consecutive", consecutive,
	)

	if consecutive >= m.cfg.ConsecutiveFailureLimit {
		m.degrade(ctx, componentID)
	}

	cb.RecordFailure()
}

// RecordSuccess counts a successful execution, resets the
// consecutive-failure counter, and feeds the component's breaker if one has
// been created by an earlier failure.
func (m *Monitor) RecordSuccess(ctx context.Context, componentID string) {
	m.mu.Lock()
	record := m.recordLocked(componentID)
	record.SuccessCount++
	record.ConsecutiveFailures = 0
	cb := m.breakers[componentID]
	m.mu.Unlock()

	if cb != nil {
		cb.RecordSuccess()
	}
}

// degrade marks the component degraded in the registry and publishes a
// component.degraded event.
func (m *Monitor) degrade(ctx context.Context, componentID string) {
	m.registry.UpdateStatus(ctx, componentID, types.StatusDegraded)
	m.publish(ctx, events.New(events.EventComponentDegraded, componentID, nil))
	m.logger.Warn("component degraded", "component_id", componentID)
}

// IsolateComponent removes a component from orchestration. This is an
// operator-triggered transition; the monitor never isolates on its own.
func (m *Monitor) IsolateComponent(ctx context.Context, componentID string) {
	m.registry.UpdateStatus(ctx, componentID, types.StatusIsolated)
	m.logger.Warn("component isolated", "component_id", componentID)
}

// AttemptWarmRestart marks the component initializing and increments its
// restart counter. Like isolation, this transition is requested by an
// operator or by an interpreted diagnostic remedy, never by the monitor
// itself.
func (m *Monitor) AttemptWarmRestart(ctx context.Context, componentID string) {
	m.mu.Lock()
	if record, exists := m.records[componentID]; exists {
		record.RestartCount++
	}
	m.mu.Unlock()

	m.registry.UpdateStatus(ctx, componentID, types.StatusInitializing)
	m.logger.Info("attempting warm restart", "component_id", componentID)
}

// PerformHealthCheck is the periodic sweep. For every registered component
// with a health record it (a) publishes health.check.failed when an active
// component's heartbeat has gone stale, and (b) degrades any component whose
// running error rate exceeds the threshold, regardless of recency.
func (m *Monitor) PerformHealthCheck(ctx context.Context) {
	now := time.Now()

	for _, comp := range m.registry.List() {
		m.mu.Lock()
		record, exists := m.records[comp.ID]
		if !exists {
			m.mu.Unlock()
			continue
		}
		heartbeatAge := now.Sub(record.LastHeartbeat)
		errorRate := record.ErrorRate()
		m.mu.Unlock()

		if heartbeatAge > m.cfg.LivenessWindow && comp.Status == types.StatusActive {
			m.logger.Warn("health check failed",
				"component_id", comp.ID,
				"heartbeat_age", heartbeatAge,
			)
			m.publish(ctx, events.New(events.EventHealthCheckFailed, comp.ID, map[string]any{
				"heartbeat_age_ms": heartbeatAge.Milliseconds(),
			}))
		}

		if errorRate > m.cfg.ErrorRateThreshold {
			m.degrade(ctx, comp.ID)
		}
	}
}

// Breaker returns the circuit breaker for a component, if one has been
// created by a recorded failure.
func (m *Monitor) Breaker(componentID string) (*breaker.CircuitBreaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, exists := m.breakers[componentID]
	return cb, exists
}

// ComponentHealth returns a copy of the health record for a component.
func (m *Monitor) ComponentHealth(componentID string) (ComponentHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[componentID]
	if !exists {
		return ComponentHealth{}, false
	}
	return *record, true
}

// recordLocked returns the health record, creating it lazily.
// Caller must hold m.mu.
func (m *Monitor) recordLocked(componentID string) *ComponentHealth {
	record, exists := m.records[componentID]
	if !exists {
		record = &ComponentHealth{
			ComponentID:   componentID,
			LastHeartbeat: time.Now(),
		}
		m.records[componentID] = record
	}
	return record
}

// breakerLocked returns the breaker, creating it lazily.
// Caller must hold m.mu.
func (m *Monitor) breakerLocked(componentID string) *breaker.CircuitBreaker {
	cb, exists := m.breakers[componentID]
	if !exists {
		cb = breaker.New(componentID, m.cfg.Breaker)
		if m.onBreakerChange != nil {
			cb.OnTransition(m.onBreakerChange)
		}
		m.breakers[componentID] = cb
	}
	return cb
}

func (m *Monitor) publish(ctx context.Context, event events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event); err != nil {
		m.logger.Warn("failed to publish health event",
			"event_type", event.Type, "error", err)
	}
}
