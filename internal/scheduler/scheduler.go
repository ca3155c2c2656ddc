// Package scheduler owns named multi-stage pipelines and time-boxed trigger
// rules, executing pipelines against the component registry while respecting
// health and circuit-breaker gating.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/calder-ai/steward/internal/health"
	"github.com/calder-ai/steward/internal/registry"
	"github.com/calder-ai/steward/internal/types"
)

// DefaultEvalInterval is the default period of the trigger-evaluation pass.
const DefaultEvalInterval = 10 * time.Second

// defaultQueueSize bounds the sequential worker's job queue.
const defaultQueueSize = 64

// ExecMetrics records stage execution outcomes. The observability package
// provides a Prometheus-backed implementation.
type ExecMetrics interface {
	// RecordStageExecution is called once per stage attempt with outcome
	// "success", "error", or "skipped".
	RecordStageExecution(pipeline, componentID, outcome string)
}

type noopExecMetrics struct{}

func (noopExecMetrics) RecordStageExecution(pipeline, componentID, outcome string) {}

type seqJob struct {
	ctx      context.Context
	pipeline *Pipeline
	data     map[string]any
}

// Scheduler executes pipelines and evaluates trigger rules. Sequential
// pipelines run on a single dedicated worker goroutine, guaranteeing
// in-order, non-overlapping stage execution within one run; parallel
// pipelines fan stages out onto fresh goroutines.
type Scheduler struct {
	registry *registry.Registry
	health   *health.Monitor
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  ExecMetrics

	evalInterval time.Duration
	queueSize    int

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	rules     map[string]*TriggerRule
	running   bool

	seqCh  chan seqJob
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer enables span creation around pipeline and stage execution.
func WithTracer(tracer trace.Tracer) SchedulerOption {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// WithMetrics sets the stage execution metrics recorder.
func WithMetrics(metrics ExecMetrics) SchedulerOption {
	return func(s *Scheduler) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithEvalInterval overrides the trigger-evaluation period.
func WithEvalInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.evalInterval = d
		}
	}
}

// WithQueueSize overrides the sequential worker's queue capacity.
func WithQueueSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// New creates a Scheduler bound to the given registry and health monitor.
func New(reg *registry.Registry, monitor *health.Monitor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry:     reg,
		health:       monitor,
		logger:       slog.Default(),
		metrics:      noopExecMetrics{},
		evalInterval: DefaultEvalInterval,
		queueSize:    defaultQueueSize,
		pipelines:    make(map[string]*Pipeline),
		rules:        make(map[string]*TriggerRule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sequential worker and the trigger-evaluation loop.
// Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.seqCh = make(chan seqJob, s.queueSize)
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(2)
	go s.sequentialWorker()
	go s.triggerLoop(ctx)

	s.logger.Info("scheduler started", "eval_interval", s.evalInterval)
}

// Stop halts the worker and trigger loop and waits for them to exit.
// Queued sequential jobs that have not started are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RegisterPipeline adds or replaces a pipeline in the catalog.
func (s *Scheduler) RegisterPipeline(p *Pipeline) {
	s.mu.Lock()
	s.pipelines[p.Name] = p
	s.mu.Unlock()
	s.logger.Info("registered pipeline",
		"pipeline", p.Name, "stages", len(p.Stages), "mode", p.Mode)
}

// RegisterTriggerRule adds or replaces a trigger rule under the given ID.
func (s *Scheduler) RegisterTriggerRule(ruleID string, rule *TriggerRule) {
	s.mu.Lock()
	s.rules[ruleID] = rule
	s.mu.Unlock()
	s.logger.Info("registered trigger rule",
		"rule_id", ruleID, "pipeline", rule.PipelineName)
}

// Pipeline returns the named pipeline from the catalog.
func (s *Scheduler) Pipeline(name string) (*Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[name]
	return p, ok
}

// ExecutePipeline runs the named pipeline with the given input data.
// Sequential pipelines are enqueued to the dedicated worker (two
// invocations may queue back-to-back but never overlap); parallel
// pipelines fan out immediately. The call itself does not wait for stage
// execution.
func (s *Scheduler) ExecutePipeline(ctx context.Context, name string, data map[string]any) error {
	s.mu.RLock()
	p, ok := s.pipelines[name]
	running := s.running
	seqCh := s.seqCh
	s.mu.RUnlock()

	if !ok {
		return types.NewError(types.PIPELINE_NOT_FOUND,
			fmt.Sprintf("pipeline not found: %s", name))
	}

	s.logger.Info("executing pipeline", "pipeline", name, "mode", p.Mode)

	if p.Mode == ModeParallel {
		s.executeParallel(ctx, p, data)
		return nil
	}

	if !running {
		return types.NewError(types.SCHEDULER_NOT_RUNNING,
			"scheduler is not running; sequential pipelines need the worker")
	}

	select {
	case seqCh <- seqJob{ctx: ctx, pipeline: p, data: cloneData(data)}:
		return nil
	case <-s.stopCh:
		return types.NewError(types.SCHEDULER_NOT_RUNNING, "scheduler stopping")
	}
}

// sequentialWorker drains the sequential job queue one pipeline at a time.
func (s *Scheduler) sequentialWorker() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.seqCh:
			s.executeSequential(job.ctx, job.pipeline, job.data)
		case <-s.stopCh:
			return
		}
	}
}

// executeSequential runs stages in order, merging each stage's output into
// the accumulating data map. A skipped stage (unhealthy component or open
// breaker) is not a failure. A failing stage records an error and stops the
// pipeline only when the stage is critical.
func (s *Scheduler) executeSequential(ctx context.Context, p *Pipeline, data map[string]any) {
	ctx, span := s.startSpan(ctx, p, "sequential")
	if span != nil {
		defer span.End()
	}

	start := time.Now()
	stageData := data
	if stageData == nil {
		stageData = make(map[string]any)
	}

	for _, stage := range p.Stages {
		if !s.stageAllowed(p, stage) {
			continue
		}

		output, err := s.executeStage(ctx, p, stage, stageData)
		if err != nil {
			s.health.RecordError(ctx, stage.ComponentID, "execution_error")
			s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "error")
			s.logger.Error("stage execution failed",
				"pipeline", p.Name, "component_id", stage.ComponentID, "error", err)

			if stage.Critical {
				s.logger.Warn("stopping pipeline after critical stage failure",
					"pipeline", p.Name, "component_id", stage.ComponentID)
				break
			}
			continue
		}

		for k, v := range output {
			stageData[k] = v
		}
		s.health.RecordSuccess(ctx, stage.ComponentID)
		s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "success")
	}

	s.logger.Debug("pipeline completed",
		"pipeline", p.Name, "duration", time.Since(start))
}

// executeParallel submits every stage concurrently against the same input.
// Each stage gets its own copy of the input so components never share a map.
func (s *Scheduler) executeParallel(ctx context.Context, p *Pipeline, data map[string]any) {
	ctx, span := s.startSpan(ctx, p, "parallel")

	var wg sync.WaitGroup
	for _, stage := range p.Stages {
		stage := stage
		wg.Add(1)
		go func() {
			defer wg.Done()

			if !s.stageAllowed(p, stage) {
				return
			}

			if _, err := s.executeStage(ctx, p, stage, cloneData(data)); err != nil {
				s.health.RecordError(ctx, stage.ComponentID, "execution_error")
				s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "error")
				s.logger.Error("stage execution failed",
					"pipeline", p.Name, "component_id", stage.ComponentID, "error", err)
				return
			}
			s.health.RecordSuccess(ctx, stage.ComponentID)
			s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "success")
		}()
	}

	if span != nil {
		go func() {
			wg.Wait()
			span.End()
		}()
	}
}

// stageAllowed applies health and circuit-breaker gating. Skips are logged
// and counted but never treated as failures.
func (s *Scheduler) stageAllowed(p *Pipeline, stage PipelineStage) bool {
	if !s.registry.IsComponentHealthy(stage.ComponentID) {
		s.logger.Warn("skipping unhealthy component",
			"pipeline", p.Name, "component_id", stage.ComponentID)
		s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "skipped")
		return false
	}

	if cb, ok := s.health.Breaker(stage.ComponentID); ok && !cb.Allow() {
		s.logger.Warn("circuit breaker blocking execution",
			"pipeline", p.Name, "component_id", stage.ComponentID)
		s.metrics.RecordStageExecution(p.Name, stage.ComponentID, "skipped")
		return false
	}

	return true
}

// executeStage records a heartbeat (an executing stage is, by definition,
// live) and invokes the component.
func (s *Scheduler) executeStage(ctx context.Context, p *Pipeline, stage PipelineStage, data map[string]any) (map[string]any, error) {
	s.logger.Debug("executing stage",
		"pipeline", p.Name, "component_id", stage.ComponentID)

	s.health.RecordHeartbeat(ctx, stage.ComponentID)

	handle, ok := s.registry.Handle(stage.ComponentID)
	if !ok {
		return nil, types.NewError(types.COMPONENT_NOT_EXECUTABLE,
			fmt.Sprintf("no executable handle for component %s", stage.ComponentID))
	}

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "pipeline.stage",
			trace.WithAttributes(
				attribute.String("pipeline.name", p.Name),
				attribute.String("component.id", stage.ComponentID),
				attribute.Bool("stage.critical", stage.Critical),
			),
		)
		defer span.End()
	}

	output, err := handle.Execute(ctx, data)
	if err != nil {
		return nil, types.WrapError(types.COMPONENT_EXECUTION_ERROR,
			fmt.Sprintf("component %s execution failed", stage.ComponentID), err)
	}
	return output, nil
}

// triggerLoop periodically evaluates every registered trigger rule. The
// interval is fixed and independent of pipeline execution time.
func (s *Scheduler) triggerLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evaluateTriggerRules(ctx)
		case <-s.stopCh:
			return
		}
	}
}

// evaluateTriggerRules fires every rule that is due and whose condition
// holds, passing the rule's stored trigger data to the pipeline.
func (s *Scheduler) evaluateTriggerRules(ctx context.Context) {
	s.mu.RLock()
	rules := make([]*TriggerRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	s.mu.RUnlock()

	for _, rule := range rules {
		if !rule.ShouldTrigger() {
			continue
		}
		if err := s.ExecutePipeline(ctx, rule.PipelineName, rule.Data); err != nil {
			s.logger.Warn("triggered pipeline execution failed",
				"pipeline", rule.PipelineName, "error", err)
		}
	}
}

func (s *Scheduler) startSpan(ctx context.Context, p *Pipeline, mode string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("pipeline.name", p.Name),
			attribute.String("pipeline.mode", mode),
			attribute.Int("pipeline.stage_count", len(p.Stages)),
		),
	)
}

func cloneData(data map[string]any) map[string]any {
	cloned := make(map[string]any, len(data))
	for k, v := range data {
		cloned[k] = v
	}
	return cloned
}
