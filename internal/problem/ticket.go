package problem

import (
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/types"
)

// TicketStatus represents the lifecycle status of a problem ticket.
type TicketStatus string

const (
	// TicketOpen is the initial status of a new ticket.
	TicketOpen TicketStatus = "open"

	// TicketInProgress means the ticket has been submitted for diagnosis.
	TicketInProgress TicketStatus = "in_progress"

	// TicketResolved means the diagnostic service returned guidance.
	TicketResolved TicketStatus = "resolved"

	// TicketEscalated means diagnosis failed and the ticket needs an
	// external watcher.
	TicketEscalated TicketStatus = "escalated"

	// TicketFailed means the diagnostic request errored.
	TicketFailed TicketStatus = "failed"
)

// String returns the string representation of the status.
func (s TicketStatus) String() string {
	return string(s)
}

// Ticket records a component malfunction routed to the external diagnostic
// service. Tickets are mutated through status transitions and never deleted
// by the control plane; retention is an external concern.
type Ticket struct {
	id          types.ID
	componentID string
	problemType string
	description string
	createdAt   time.Time

	mu         sync.Mutex
	context    map[string]any
	remedies   []string
	status     TicketStatus
	resolution string
	resolvedAt time.Time
}

// NewTicket creates an open ticket with a generated unique ID.
func NewTicket(componentID, problemType, description string) *Ticket {
	return &Ticket{
		id:          types.NewID(),
		componentID: componentID,
		problemType: problemType,
		description: description,
		createdAt:   time.Now(),
		context:     make(map[string]any),
		status:      TicketOpen,
	}
}

// ID returns the ticket's unique identifier.
func (t *Ticket) ID() types.ID { return t.id }

// ComponentID returns the component the ticket is filed against.
func (t *Ticket) ComponentID() string { return t.componentID }

// ProblemType returns the ticket's problem classification.
func (t *Ticket) ProblemType() string { return t.problemType }

// Description returns the free-text problem description.
func (t *Ticket) Description() string { return t.description }

// CreatedAt returns the ticket creation time.
func (t *Ticket) CreatedAt() time.Time { return t.createdAt }

// SetContext stores a context value on the ticket.
func (t *Ticket) SetContext(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.context[key] = value
}

// Context returns a copy of the ticket's context mapping.
func (t *Ticket) Context() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := make(map[string]any, len(t.context))
	for k, v := range t.context {
		copied[k] = v
	}
	return copied
}

// AddRemedy appends a remedy that was already attempted before filing.
func (t *Ticket) AddRemedy(remedy string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remedies = append(t.remedies, remedy)
}

// AttemptedRemedies returns a copy of the remedies list.
func (t *Ticket) AttemptedRemedies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	remedies := make([]string, len(t.remedies))
	copy(remedies, t.remedies)
	return remedies
}

// Status returns the ticket's current status.
func (t *Ticket) Status() TicketStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Resolution returns the stored diagnostic guidance, if resolved.
func (t *Ticket) Resolution() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolution
}

// ResolvedAt returns when the ticket was resolved (zero if not resolved).
func (t *Ticket) ResolvedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolvedAt
}

func (t *Ticket) setStatus(status TicketStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// resolve stores the diagnostic guidance and marks the ticket resolved.
func (t *Ticket) resolve(resolution string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TicketResolved
	t.resolution = resolution
	t.resolvedAt = time.Now()
}
