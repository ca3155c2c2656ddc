package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Builder(t *testing.T) {
	p := NewPipeline("ingest").
		AddStage("comp-a", true).
		AddStage("comp-b", false)

	assert.Equal(t, "ingest", p.Name)
	assert.Equal(t, ModeSequential, p.Mode, "pipelines default to sequential")
	require.Len(t, p.Stages, 2)
	assert.Equal(t, PipelineStage{ComponentID: "comp-a", Critical: true}, p.Stages[0])
	assert.Equal(t, PipelineStage{ComponentID: "comp-b", Critical: false}, p.Stages[1])

	p.Parallel()
	assert.Equal(t, ModeParallel, p.Mode)
}

func TestTriggerRule_MinInterval(t *testing.T) {
	rule := NewTriggerRule("chain", nil, 50*time.Millisecond)

	assert.True(t, rule.ShouldTrigger(), "a fresh rule is immediately due")
	assert.False(t, rule.ShouldTrigger(), "firing resets the clock")

	time.Sleep(70 * time.Millisecond)
	assert.True(t, rule.ShouldTrigger())
}

func TestTriggerRule_Condition(t *testing.T) {
	allowed := false
	rule := NewTriggerRule("chain", func() bool { return allowed }, time.Millisecond)

	assert.False(t, rule.ShouldTrigger())

	time.Sleep(2 * time.Millisecond)
	allowed = true
	assert.True(t, rule.ShouldTrigger())
}

func TestTriggerRule_FailedConditionDoesNotResetClock(t *testing.T) {
	calls := 0
	rule := NewTriggerRule("chain", func() bool {
		calls++
		return calls > 1
	}, time.Hour)

	assert.False(t, rule.ShouldTrigger(), "condition fails on the first call")
	assert.True(t, rule.ShouldTrigger(),
		"the interval clock only starts on an actual firing")
	assert.False(t, rule.ShouldTrigger(), "now the hour-long interval applies")
}
