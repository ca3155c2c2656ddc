// Package problem models open problems against components and brokers them
// to an external diagnostic text-completion service under a concurrency
// limit. Free-text guidance is translated to component actions through a
// deliberately narrow substring heuristic.
package problem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/calder-ai/steward/internal/types"
)

// DefaultMaxConcurrent is the default number of simultaneous outstanding
// diagnostic requests.
const DefaultMaxConcurrent = 3

// ActionDispatcher receives the remedial actions parsed out of diagnostic
// guidance. The orchestrator supplies an implementation wired to the health
// monitor and registry.
type ActionDispatcher interface {
	// RestartComponent requests a warm restart of the component.
	RestartComponent(ctx context.Context, componentID string) error

	// ResetComponent requests a reset of the component's state.
	ResetComponent(ctx context.Context, componentID string) error

	// IncreaseTimeout requests a timeout increase for the component.
	IncreaseTimeout(ctx context.Context, componentID string) error
}

// Broker dispatches problem tickets to the diagnostic service. At most
// maxConcurrent requests are outstanding at once; workers past the limit
// block on the semaphore rather than failing, which backpressures callers.
type Broker struct {
	diagnostic Diagnostic
	dispatcher ActionDispatcher
	sem        *semaphore.Weighted
	logger     *slog.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	tickets map[types.ID]*Ticket

	wg sync.WaitGroup
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithDispatcher sets the action dispatcher for interpreted remedies.
// Without one, matched remedies are logged but not dispatched.
func WithDispatcher(dispatcher ActionDispatcher) BrokerOption {
	return func(b *Broker) {
		b.dispatcher = dispatcher
	}
}

// WithTracer enables span creation around diagnostic requests.
func WithTracer(tracer trace.Tracer) BrokerOption {
	return func(b *Broker) {
		b.tracer = tracer
	}
}

// WithMaxConcurrent overrides the diagnostic concurrency limit.
func WithMaxConcurrent(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewBroker creates a Broker that sends prompts to the given diagnostic
// collaborator.
func NewBroker(diagnostic Diagnostic, opts ...BrokerOption) *Broker {
	b := &Broker{
		diagnostic: diagnostic,
		sem:        semaphore.NewWeighted(DefaultMaxConcurrent),
		logger:     slog.Default(),
		tickets:    make(map[types.ID]*Ticket),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SubmitProblem stores the ticket, marks it in-progress, and dispatches the
// diagnostic request on a worker goroutine. The worker blocks on the
// concurrency semaphore when the limit is saturated; its slot is released
// exactly once whether diagnosis succeeds or fails.
func (b *Broker) SubmitProblem(ctx context.Context, ticket *Ticket) {
	b.mu.Lock()
	b.tickets[ticket.ID()] = ticket
	b.mu.Unlock()

	ticket.setStatus(TicketInProgress)

	b.logger.Info("problem ticket submitted",
		"ticket_id", ticket.ID(),
		"component_id", ticket.ComponentID(),
		"problem_type", ticket.ProblemType(),
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.solve(ctx, ticket)
	}()
}

func (b *Broker) solve(ctx context.Context, ticket *Ticket) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		// Context cancelled while waiting for a slot.
		b.logger.Error("abandoned ticket while waiting for diagnostic slot",
			"ticket_id", ticket.ID(), "error", err)
		ticket.setStatus(TicketFailed)
		ticket.setStatus(TicketEscalated)
		return
	}
	defer b.sem.Release(1)

	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "problem.diagnose",
			trace.WithAttributes(
				attribute.String("ticket.id", ticket.ID().String()),
				attribute.String("component.id", ticket.ComponentID()),
				attribute.String("problem.type", ticket.ProblemType()),
			),
		)
		defer span.End()
	}

	prompt := buildPrompt(ticket)

	response, err := b.diagnostic.Complete(ctx, prompt)
	if err != nil {
		b.handleError(ticket, err)
		return
	}
	b.handleSolution(ctx, ticket, response)
}

// handleSolution resolves the ticket and translates the guidance to an
// action.
func (b *Broker) handleSolution(ctx context.Context, ticket *Ticket, solution string) {
	b.logger.Info("diagnostic solution received",
		"ticket_id", ticket.ID(), "component_id", ticket.ComponentID())

	ticket.resolve(solution)
	b.translateAndDispatch(ctx, ticket, solution)
}

// handleError fails then escalates the ticket. The broker never retries;
// resubmitting a new ticket is the caller's decision.
func (b *Broker) handleError(ticket *Ticket, err error) {
	b.logger.Error("diagnostic request failed",
		"ticket_id", ticket.ID(),
		"component_id", ticket.ComponentID(),
		"error", err,
	)

	ticket.setStatus(TicketFailed)
	ticket.setStatus(TicketEscalated)
}

// translateAndDispatch scans the guidance for known remedy keywords and
// dispatches the first match. This is a deliberately simple translation
// layer from natural language to action, not a parser: the exact substrings
// are load-bearing, and no match at all is a valid outcome since the ticket
// is already resolved either way.
func (b *Broker) translateAndDispatch(ctx context.Context, ticket *Ticket, solution string) {
	componentID := ticket.ComponentID()
	lowered := strings.ToLower(solution)

	switch {
	case strings.Contains(lowered, "restart"):
		b.dispatch(ctx, "restart", componentID, func() error {
			return b.dispatcher.RestartComponent(ctx, componentID)
		})
	case strings.Contains(lowered, "reset"):
		b.dispatch(ctx, "reset", componentID, func() error {
			return b.dispatcher.ResetComponent(ctx, componentID)
		})
	case strings.Contains(lowered, "increase") && strings.Contains(lowered, "timeout"):
		b.dispatch(ctx, "increase_timeout", componentID, func() error {
			return b.dispatcher.IncreaseTimeout(ctx, componentID)
		})
	}
}

func (b *Broker) dispatch(ctx context.Context, action, componentID string, fn func() error) {
	b.logger.Info("dispatching remedial action",
		"action", action, "component_id", componentID)

	if b.dispatcher == nil {
		return
	}
	if err := fn(); err != nil {
		b.logger.Warn("remedial action failed",
			"action", action, "component_id", componentID, "error", err)
	}
}

// buildPrompt formats the structured diagnostic prompt.
func buildPrompt(ticket *Ticket) string {
	var sb strings.Builder
	sb.WriteString("You are an expert system troubleshooter. ")
	sb.WriteString("Analyze this problem and provide a concise, actionable solution.\n\n")

	sb.WriteString("Component: ")
	sb.WriteString(ticket.ComponentID())
	sb.WriteString("\nProblem Type: ")
	sb.WriteString(ticket.ProblemType())
	sb.WriteString("\nDescription: ")
	sb.WriteString(ticket.Description())
	sb.WriteString("\n\n")

	if remedies := ticket.AttemptedRemedies(); len(remedies) > 0 {
		sb.WriteString("Attempted Remedies:\n")
		for _, remedy := range remedies {
			sb.WriteString("- ")
			sb.WriteString(remedy)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if tctx := ticket.Context(); len(tctx) > 0 {
		sb.WriteString("Context:\n")
		for _, key := range sortedContextKeys(tctx) {
			sb.WriteString("- ")
			sb.WriteString(key)
			sb.WriteString(": ")
			sb.WriteString(stringify(tctx[key]))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Provide:\n")
	sb.WriteString("1. Root cause analysis\n")
	sb.WriteString("2. Recommended solution\n")
	sb.WriteString("3. Preventive measures\n")
	sb.WriteString("\nKeep your response concise and actionable.")

	return sb.String()
}

func sortedContextKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Ticket returns the ticket with the given ID.
func (b *Broker) Ticket(id types.ID) (*Ticket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tickets[id]
	return t, ok
}

// TicketsByComponent returns all tickets filed against a component.
func (b *Broker) TicketsByComponent(componentID string) []*Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []*Ticket
	for _, t := range b.tickets {
		if t.ComponentID() == componentID {
			result = append(result, t)
		}
	}
	return result
}

// OpenTickets returns all tickets that are open or in progress.
func (b *Broker) OpenTickets() []*Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []*Ticket
	for _, t := range b.tickets {
		if status := t.Status(); status == TicketOpen || status == TicketInProgress {
			result = append(result, t)
		}
	}
	return result
}

// Wait blocks until all submitted tickets have completed their diagnostic
// round-trip. Intended for shutdown and tests.
func (b *Broker) Wait() {
	b.wg.Wait()
}
