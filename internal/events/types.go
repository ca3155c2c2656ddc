package events

import (
	"time"
)

// EventType identifies the category and nature of an event published by the
// orchestration control plane.
type EventType string

// Component lifecycle events
// These events track registration and status transitions in the registry.
const (
	EventComponentRegistered    EventType = "component.registered"
	EventComponentUnregistered  EventType = "component.unregistered"
	EventComponentStatusChanged EventType = "component.status.changed"
	EventComponentDegraded      EventType = "component.degraded"
	EventComponentError         EventType = "component.error"
)

// Health events
// These events surface liveness failures detected by the periodic sweep.
const (
	EventHealthCheckFailed EventType = "health.check.failed"
)

// State reconciliation events
const (
	EventStateDiffDetected EventType = "state.diff.detected"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event represents a single orchestration event. Delivery is fire-and-forget:
// no acknowledgment, and no ordering guarantee across event types.
type Event struct {
	// Type identifies the category and nature of the event
	Type EventType `json:"type"`

	// ComponentID identifies the component the event concerns
	ComponentID string `json:"component_id"`

	// Timestamp records when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Payload contains event-specific data, free-form by design
	Payload map[string]any `json:"payload,omitempty"`
}

// New constructs an Event with the timestamp set to now.
func New(eventType EventType, componentID string, payload map[string]any) Event {
	return Event{
		Type:        eventType,
		ComponentID: componentID,
		Timestamp:   time.Now(),
		Payload:     payload,
	}
}

// Filter defines criteria for filtering events in subscriptions.
// All filter fields use AND logic; empty fields act as wildcards.
type Filter struct {
	// Types filters by event types (empty = all types)
	Types []EventType `json:"types,omitempty"`

	// ComponentID filters by component (empty = all components)
	ComponentID string `json:"component_id,omitempty"`
}

// Matches determines if the given event matches this filter's criteria.
// Empty filter fields act as wildcards that match any value.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.ComponentID != "" && event.ComponentID != f.ComponentID {
		return false
	}

	return true
}
