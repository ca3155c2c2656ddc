package scheduler

import (
	"sync"
	"time"
)

// ExecutionMode selects how a pipeline's stages run.
type ExecutionMode string

const (
	// ModeSequential runs stages in order on the dedicated sequential
	// worker, threading an accumulating data map from stage to stage.
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel submits every stage concurrently against the same input.
	ModeParallel ExecutionMode = "parallel"
)

// PipelineStage is one step of a pipeline. A failing critical stage stops a
// sequential pipeline; a failing non-critical stage does not.
type PipelineStage struct {
	ComponentID string `yaml:"component_id"`
	Critical    bool   `yaml:"critical"`
}

// Pipeline is a named, ordered list of component stages with an execution
// mode.
type Pipeline struct {
	Name   string          `yaml:"name"`
	Stages []PipelineStage `yaml:"stages"`
	Mode   ExecutionMode   `yaml:"mode"`
}

// NewPipeline creates a sequential pipeline with no stages.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		Name: name,
		Mode: ModeSequential,
	}
}

// AddStage appends a stage and returns the pipeline for chaining.
func (p *Pipeline) AddStage(componentID string, critical bool) *Pipeline {
	p.Stages = append(p.Stages, PipelineStage{
		ComponentID: componentID,
		Critical:    critical,
	})
	return p
}

// Parallel switches the pipeline to parallel execution and returns the
// pipeline for chaining.
func (p *Pipeline) Parallel() *Pipeline {
	p.Mode = ModeParallel
	return p
}

// Condition is a predicate over current system state, evaluated when a
// trigger rule is due.
type Condition func() bool

// TriggerRule invokes a pipeline automatically when its condition holds and
// its own minimum re-trigger interval has passed. The rule interval is
// distinct from, and in addition to, the scheduler's evaluation interval.
type TriggerRule struct {
	// PipelineName is the pipeline to execute when the rule fires.
	PipelineName string

	// Condition gates firing. A nil condition always passes.
	Condition Condition

	// MinInterval is the minimum time between two firings of this rule.
	MinInterval time.Duration

	// Data is passed to the pipeline as input on every firing.
	Data map[string]any

	mu          sync.Mutex
	lastTrigger time.Time
}

// NewTriggerRule creates a rule targeting the named pipeline.
func NewTriggerRule(pipelineName string, condition Condition, minInterval time.Duration) *TriggerRule {
	return &TriggerRule{
		PipelineName: pipelineName,
		Condition:    condition,
		MinInterval:  minInterval,
		Data:         make(map[string]any),
	}
}

// ShouldTrigger reports whether the rule is due and its condition holds.
// A positive result resets the rule's last-trigger clock.
func (r *TriggerRule) ShouldTrigger() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastTrigger) < r.MinInterval {
		return false
	}

	if r.Condition != nil && !r.Condition() {
		return false
	}

	r.lastTrigger = time.Now()
	return true
}
