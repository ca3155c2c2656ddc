package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-ai/steward/internal/component"
	"github.com/calder-ai/steward/internal/config"
	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/problem"
	"github.com/calder-ai/steward/internal/snapshot"
	"github.com/calder-ai/steward/internal/types"
)

func testConfig() config.Config {
	cfg := *config.Default()
	// Keep the audit timer out of the way; tests drive RunAudit directly.
	cfg.Audit.Interval = time.Hour
	cfg.Scheduler.TriggerEvalInterval = time.Hour
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, diagnostic problem.Diagnostic) *Orchestrator {
	t.Helper()
	orch := New(testConfig(), diagnostic, WithLogger(quietLogger()))
	t.Cleanup(orch.Stop)
	return orch
}

// addActiveComponent registers a started FuncComponent and marks it active.
func addActiveComponent(t *testing.T, orch *Orchestrator, id string) *component.FuncComponent {
	t.Helper()
	ctx := context.Background()

	c := component.NewFunc(id, id, nil, nil)
	require.NoError(t, c.Start(ctx))
	orch.Registry().RegisterComponent(ctx, c)
	orch.Registry().UpdateStatus(ctx, id, types.StatusActive)
	return c
}

func ticketCount(orch *Orchestrator, componentID string) int {
	return len(orch.Broker().TicketsByComponent(componentID))
}

func TestOrchestrator_EscalatesDegradedEventIntoTicket(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "check the upstream dependency", nil
		}))
	ctx := context.Background()
	addActiveComponent(t, orch, "comp-a")
	orch.Start(ctx)

	require.NoError(t, orch.Bus().Publish(ctx,
		events.New(events.EventComponentDegraded, "comp-a", nil)))

	require.Eventually(t, func() bool {
		tickets := orch.Broker().TicketsByComponent("comp-a")
		return len(tickets) == 1 && tickets[0].Status() == problem.TicketResolved
	}, 2*time.Second, 5*time.Millisecond)

	ticket := orch.Broker().TicketsByComponent("comp-a")[0]
	assert.Equal(t, "degradation", ticket.ProblemType())
	assert.Equal(t, "check the upstream dependency", ticket.Resolution())
	assert.Equal(t, "active", ticket.Context()["component_status"])
}

func TestOrchestrator_OneOutstandingTicketPerComponent(t *testing.T) {
	gate := make(chan struct{})
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			<-gate
			return "no action", nil
		}))
	ctx := context.Background()
	addActiveComponent(t, orch, "comp-a")
	orch.Start(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, orch.Bus().Publish(ctx,
			events.New(events.EventComponentDegraded, "comp-a", nil)))
	}

	require.Eventually(t, func() bool {
		return ticketCount(orch, "comp-a") == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ticketCount(orch, "comp-a"),
		"repeat events while a ticket is outstanding are absorbed")

	close(gate)
	require.Eventually(t, func() bool {
		tickets := orch.Broker().TicketsByComponent("comp-a")
		return tickets[0].Status() == problem.TicketResolved
	}, 2*time.Second, 5*time.Millisecond)

	// With the ticket resolved, a new event files a new ticket.
	require.NoError(t, orch.Bus().Publish(ctx,
		events.New(events.EventComponentDegraded, "comp-a", nil)))
	require.Eventually(t, func() bool {
		return ticketCount(orch, "comp-a") == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_ConsecutiveErrorsDegradeAndTicket(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}))
	ctx := context.Background()
	addActiveComponent(t, orch, "comp-a")
	orch.Start(ctx)

	for i := 0; i < 3; i++ {
		orch.ReportComponentError(ctx, "comp-a", "timeout", nil)
	}

	require.Eventually(t, func() bool {
		comp, _ := orch.Registry().Get("comp-a")
		return comp.Status == types.StatusDegraded
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return ticketCount(orch, "comp-a") >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_RestartRemedy(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "Restart the component to recover.", nil
		}))
	ctx := context.Background()
	addActiveComponent(t, orch, "comp-a")
	orch.Health().RecordHeartbeat(ctx, "comp-a")
	orch.Start(ctx)

	require.NoError(t, orch.Bus().Publish(ctx,
		events.New(events.EventComponentDegraded, "comp-a", nil)))

	require.Eventually(t, func() bool {
		comp, _ := orch.Registry().Get("comp-a")
		return comp.Status == types.StatusInitializing
	}, 2*time.Second, 5*time.Millisecond)

	record, ok := orch.Health().ComponentHealth("comp-a")
	require.True(t, ok)
	assert.Equal(t, 1, record.RestartCount)
}

func TestOrchestrator_ResetRemedyRestoresBaseline(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "Reset the component state.", nil
		}))
	ctx := context.Background()
	c := addActiveComponent(t, orch, "comp-a")
	c.SetState("mode", "drifted")
	orch.Diff().SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))
	orch.Start(ctx)

	require.NoError(t, orch.Bus().Publish(ctx,
		events.New(events.EventComponentDegraded, "comp-a", nil)))

	require.Eventually(t, func() bool {
		v, _ := c.CaptureState().Value("mode")
		return v == "fast"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_AuditDetectsCriticalDrift(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}))
	ctx := context.Background()
	c := addActiveComponent(t, orch, "comp-a")
	c.SetState("status", "failing")
	orch.Start(ctx)

	// The baseline says healthy; the component's own state disagrees on a
	// critical field.
	orch.Diff().SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"status": "ok"}))

	orch.RunAudit(ctx)

	require.Eventually(t, func() bool {
		tickets := orch.Broker().TicketsByComponent("comp-a")
		return len(tickets) == 1 && tickets[0].ProblemType() == "state_divergence"
	}, 2*time.Second, 5*time.Millisecond)

	ticket := orch.Broker().TicketsByComponent("comp-a")[0]
	assert.Equal(t, "critical", ticket.Context()["severity"])
}

func TestOrchestrator_BenignDriftDoesNotEscalate(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}))
	ctx := context.Background()
	c := addActiveComponent(t, orch, "comp-a")
	c.SetState("mode", "slow")
	orch.Start(ctx)

	orch.Diff().SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))

	orch.RunAudit(ctx)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, ticketCount(orch, "comp-a"),
		"info-level drift is observable but never escalated")
}

func TestOrchestrator_AuditFlagsStaleHeartbeat(t *testing.T) {
	cfg := testConfig()
	cfg.Health.LivenessWindow = 10 * time.Millisecond

	orch := New(cfg, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}), WithLogger(quietLogger()))
	t.Cleanup(orch.Stop)

	ctx := context.Background()
	addActiveComponent(t, orch, "comp-a")
	orch.Start(ctx)

	orch.Health().RecordHeartbeat(ctx, "comp-a")
	time.Sleep(25 * time.Millisecond)

	orch.RunAudit(ctx)

	require.Eventually(t, func() bool {
		tickets := orch.Broker().TicketsByComponent("comp-a")
		return len(tickets) == 1 && tickets[0].ProblemType() == "health_check_failure"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestrator_StartStopIdempotent(t *testing.T) {
	orch := New(testConfig(), problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}), WithLogger(quietLogger()))
	ctx := context.Background()

	orch.Start(ctx)
	orch.Start(ctx)
	orch.Stop()
	orch.Stop()
}

func TestRemedyDispatcher_ResetWithoutBaseline(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}))
	dispatcher := &remedyDispatcher{o: orch}

	err := dispatcher.ResetComponent(context.Background(), "comp-a")
	require.Error(t, err)
	assert.Equal(t, types.COMPONENT_NOT_FOUND, types.GetErrorCode(err))
}

func TestRemedyDispatcher_ResetWithoutHandle(t *testing.T) {
	orch := newTestOrchestrator(t, problem.DiagnosticFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "no action", nil
		}))
	orch.Registry().Register(context.Background(), "comp-a", "A", nil)
	orch.Diff().SetExpectedState(snapshot.New("comp-a", 1, map[string]any{"mode": "fast"}))
	dispatcher := &remedyDispatcher{o: orch}

	err := dispatcher.ResetComponent(context.Background(), "comp-a")
	require.Error(t, err)
	assert.Equal(t, types.COMPONENT_NOT_EXECUTABLE, types.GetErrorCode(err))
}
