// Package orchestrator assembles the control plane: it constructs and owns
// the registry, event bus, health monitor, diff engine, problem broker and
// scheduler, runs the periodic audit, and escalates health events into
// problem tickets.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/calder-ai/steward/internal/breaker"
	"github.com/calder-ai/steward/internal/config"
	"github.com/calder-ai/steward/internal/diff"
	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/health"
	"github.com/calder-ai/steward/internal/problem"
	"github.com/calder-ai/steward/internal/registry"
	"github.com/calder-ai/steward/internal/scheduler"
	"github.com/calder-ai/steward/internal/types"
)

// DefaultAuditInterval is the default period of the orchestrator's audit
// pass (health sweep, snapshot capture, diff check).
const DefaultAuditInterval = 60 * time.Second

// escalationBufferSize bounds the orchestrator's own event subscription.
const escalationBufferSize = 256

// Metrics is the union of the instrument hooks the orchestrator threads into
// its subsystems. The observability package provides a Prometheus-backed
// implementation.
type Metrics interface {
	events.MetricsRecorder
	scheduler.ExecMetrics

	// BreakerTransition is wired as the breaker transition callback.
	BreakerTransition(componentID string, from, to breaker.State)
}

// Orchestrator is the single assembly point for the control plane. All
// subsystems are constructed here and handed their collaborators explicitly;
// nothing in the module reaches for a global.
type Orchestrator struct {
	cfg    config.Config
	logger *slog.Logger
	tracer trace.Tracer

	bus       *events.ChannelBus
	registry  *registry.Registry
	health    *health.Monitor
	diff      *diff.Engine
	broker    *problem.Broker
	scheduler *scheduler.Scheduler

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	cleanup func()
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*builder)

type builder struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// WithLogger sets the structured logger shared by all subsystems.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer enables tracing on the scheduler and the problem broker.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *builder) {
		b.tracer = tracer
	}
}

// WithMetrics wires the metrics hooks into the bus, scheduler and breakers.
func WithMetrics(m Metrics) Option {
	return func(b *builder) {
		b.metrics = m
	}
}

// New constructs the full control plane from configuration. The diagnostic
// collaborator is the only required external dependency; pass a
// problem.DiagnosticFunc in tests.
func New(cfg config.Config, diagnostic problem.Diagnostic, opts ...Option) *Orchestrator {
	b := &builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	logger := b.logger

	busOpts := []events.Option{
		events.WithErrorHandler(func(err error, ctx map[string]any) {
			logger.Warn("event bus error", "error", err, "context", ctx)
		}),
	}
	if b.metrics != nil {
		busOpts = append(busOpts, events.WithMetrics(b.metrics))
	}
	bus := events.NewBus(busOpts...)

	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithPublisher(bus),
		registry.WithLivenessWindow(cfg.Health.LivenessWindow),
	)

	healthOpts := []health.MonitorOption{
		health.WithLogger(logger),
		health.WithPublisher(bus),
	}
	if b.metrics != nil {
		healthOpts = append(healthOpts, health.WithBreakerTransitionCallback(b.metrics.BreakerTransition))
	}
	monitor := health.NewMonitor(reg, health.Config{
		ConsecutiveFailureLimit: cfg.Health.ConsecutiveFailureLimit,
		ErrorRateThreshold:      cfg.Health.ErrorRateThreshold,
		LivenessWindow:          cfg.Health.LivenessWindow,
		Breaker: breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
		},
	}, healthOpts...)

	engine := diff.NewEngine(diff.Config{
		ThrottleInterval:  cfg.Diff.ThrottleInterval,
		CriticalFields:    cfg.Diff.CriticalFields,
		WarningFieldCount: cfg.Diff.WarningFieldCount,
	}, diff.WithLogger(logger), diff.WithPublisher(bus))

	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		tracer:   b.tracer,
		bus:      bus,
		registry: reg,
		health:   monitor,
		diff:     engine,
	}

	brokerOpts := []problem.BrokerOption{
		problem.WithLogger(logger),
		problem.WithMaxConcurrent(cfg.Broker.MaxConcurrentRequests),
		problem.WithDispatcher(&remedyDispatcher{o: o}),
	}
	if b.tracer != nil {
		brokerOpts = append(brokerOpts, problem.WithTracer(b.tracer))
	}
	o.broker = problem.NewBroker(diagnostic, brokerOpts...)

	schedOpts := []scheduler.SchedulerOption{
		scheduler.WithLogger(logger),
		scheduler.WithEvalInterval(cfg.Scheduler.TriggerEvalInterval),
		scheduler.WithQueueSize(cfg.Scheduler.QueueSize),
	}
	if b.tracer != nil {
		schedOpts = append(schedOpts, scheduler.WithTracer(b.tracer))
	}
	if b.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(b.metrics))
	}
	o.scheduler = scheduler.New(reg, monitor, schedOpts...)

	return o
}

// Start launches the scheduler, the escalation subscription, and the audit
// loop. Start is idempotent.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.scheduler.Start(ctx)

	eventCh, cleanup := o.bus.Subscribe(ctx, events.Filter{
		Types: []events.EventType{
			events.EventComponentDegraded,
			events.EventComponentError,
			events.EventHealthCheckFailed,
			events.EventStateDiffDetected,
		},
	}, escalationBufferSize)
	o.mu.Lock()
	o.cleanup = cleanup
	o.mu.Unlock()

	o.wg.Add(2)
	go o.escalationLoop(ctx, eventCh)
	go o.auditLoop(ctx)

	o.logger.Info("orchestrator started", "audit_interval", o.auditInterval())
}

// Stop halts the audit and escalation loops, stops the scheduler, waits for
// outstanding diagnostic round-trips, and closes the bus. Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	cleanup := o.cleanup
	o.cleanup = nil
	o.mu.Unlock()

	o.scheduler.Stop()
	if cleanup != nil {
		cleanup()
	}
	o.wg.Wait()
	o.broker.Wait()
	_ = o.bus.Close()

	o.logger.Info("orchestrator stopped")
}

// auditLoop drives the periodic audit: capture a fresh snapshot from every
// live component handle, run the health sweep, then the throttled diff pass.
func (o *Orchestrator) auditLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.auditInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.RunAudit(ctx)
		case <-o.stopCh:
			return
		}
	}
}

// RunAudit executes one audit pass immediately. The audit loop calls this on
// a timer; tests and operators can call it directly.
func (o *Orchestrator) RunAudit(ctx context.Context) {
	for _, comp := range o.registry.List() {
		if handle, ok := o.registry.Handle(comp.ID); ok {
			o.diff.CaptureSnapshot(handle.CaptureState())
		}
	}

	o.health.PerformHealthCheck(ctx)
	o.diff.PerformPeriodicDiffCheck(ctx)
}

// escalationLoop turns health events into problem tickets. Critical state
// diffs are escalated too; info and warning diffs are left to observers.
func (o *Orchestrator) escalationLoop(ctx context.Context, eventCh <-chan events.Event) {
	defer o.wg.Done()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			o.handleEvent(ctx, event)
		case <-o.stopCh:
			return
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, event events.Event) {
	switch event.Type {
	case events.EventComponentDegraded:
		o.fileTicket(ctx, event, "degradation",
			"component degraded after repeated failures")
	case events.EventComponentError:
		o.fileTicket(ctx, event, "component_error",
			"component reported an error")
	case events.EventHealthCheckFailed:
		o.fileTicket(ctx, event, "health_check_failure",
			"component heartbeat went stale")
	case events.EventStateDiffDetected:
		if severity, _ := event.Payload["severity"].(string); severity == "critical" {
			o.fileTicket(ctx, event, "state_divergence",
				"component state diverged from expected baseline on a critical field")
		}
	}
}

// fileTicket submits a problem ticket for the event unless the component
// already has one outstanding. One ticket per component at a time keeps the
// audit timer from flooding the diagnostic service with duplicates.
func (o *Orchestrator) fileTicket(ctx context.Context, event events.Event, problemType, description string) {
	for _, t := range o.broker.TicketsByComponent(event.ComponentID) {
		if status := t.Status(); status == problem.TicketOpen || status == problem.TicketInProgress {
			o.logger.Debug("skipping ticket, one already outstanding",
				"component_id", event.ComponentID, "ticket_id", t.ID())
			return
		}
	}

	ticket := problem.NewTicket(event.ComponentID, problemType, description)
	for k, v := range event.Payload {
		ticket.SetContext(k, v)
	}
	if comp, ok := o.registry.Get(event.ComponentID); ok {
		ticket.SetContext("component_status", comp.Status.String())
	}
	if record, ok := o.health.ComponentHealth(event.ComponentID); ok {
		ticket.SetContext("error_rate", record.ErrorRate())
		ticket.SetContext("restart_count", record.RestartCount)
	}

	o.broker.SubmitProblem(ctx, ticket)
}

// ReportComponentError is the entry point for components and operators to
// report a failure outside of pipeline execution. The error is fed into the
// health monitor and broadcast as a component.error event, which the
// escalation loop may turn into a ticket.
func (o *Orchestrator) ReportComponentError(ctx context.Context, componentID, errorType string, err error) {
	o.health.RecordError(ctx, componentID, errorType)

	payload := map[string]any{"error_type": errorType}
	if err != nil {
		payload["error"] = err.Error()
	}
	if pubErr := o.bus.Publish(ctx, events.New(events.EventComponentError, componentID, payload)); pubErr != nil {
		o.logger.Warn("failed to publish component error", "error", pubErr)
	}
}

func (o *Orchestrator) auditInterval() time.Duration {
	if o.cfg.Audit.Interval > 0 {
		return o.cfg.Audit.Interval
	}
	return DefaultAuditInterval
}

// Registry returns the component registry.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Health returns the health monitor.
func (o *Orchestrator) Health() *health.Monitor { return o.health }

// Diff returns the state diff engine.
func (o *Orchestrator) Diff() *diff.Engine { return o.diff }

// Broker returns the problem broker.
func (o *Orchestrator) Broker() *problem.Broker { return o.broker }

// Scheduler returns the pipeline scheduler.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.scheduler }

// Bus returns the event bus.
func (o *Orchestrator) Bus() *events.ChannelBus { return o.bus }

// remedyDispatcher maps interpreted diagnostic remedies onto control plane
// actions.
type remedyDispatcher struct {
	o *Orchestrator
}

// RestartComponent performs a warm restart through the health monitor.
func (d *remedyDispatcher) RestartComponent(ctx context.Context, componentID string) error {
	d.o.health.AttemptWarmRestart(ctx, componentID)
	return nil
}

// ResetComponent restores the component's state from its expected baseline.
func (d *remedyDispatcher) ResetComponent(ctx context.Context, componentID string) error {
	expected, ok := d.o.diff.ExpectedSnapshot(componentID)
	if !ok {
		return types.NewError(types.COMPONENT_NOT_FOUND,
			"no expected baseline to reset component "+componentID+" from")
	}
	handle, ok := d.o.registry.Handle(componentID)
	if !ok {
		return types.NewError(types.COMPONENT_NOT_EXECUTABLE,
			"no live handle for component "+componentID)
	}
	if err := handle.RestoreState(expected); err != nil {
		return types.WrapError(types.COMPONENT_EXECUTION_ERROR,
			"state restore failed for component "+componentID, err)
	}

	d.o.logger.Info("component state reset from baseline", "component_id", componentID)
	return nil
}

// IncreaseTimeout records the guidance. Per-component timeouts are owned by
// the components themselves, so this remedy is advisory only.
func (d *remedyDispatcher) IncreaseTimeout(ctx context.Context, componentID string) error {
	d.o.logger.Info("timeout increase requested for component", "component_id", componentID)
	return nil
}

var _ problem.ActionDispatcher = (*remedyDispatcher)(nil)
