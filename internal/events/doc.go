// Package events provides the orchestration event model and a channel-based
// event bus. Publication is fire-and-forget: publishers never block on slow
// subscribers, and no delivery ordering is guaranteed across event types.
package events
