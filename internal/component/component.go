// Package component defines the collaborator contract that units of
// orchestration implement, plus a few concrete components used by the CLI
// and tests. The control plane calls this interface and never assumes a
// particular implementation.
package component

import (
	"context"

	"github.com/calder-ai/steward/internal/snapshot"
	"github.com/calder-ai/steward/internal/types"
)

// Component is an independently-lifecycled unit participating in
// orchestration. Implementations own their internal storage; the control
// plane only sees the capture/restore contract.
type Component interface {
	// ID returns the unique component identifier.
	ID() string

	// Name returns the human-readable component name.
	Name() string

	// Capabilities returns the component's capability tags.
	Capabilities() []string

	// Initialize prepares the component for use.
	Initialize(ctx context.Context) error

	// Start activates the component.
	Start(ctx context.Context) error

	// Stop deactivates the component.
	Stop(ctx context.Context) error

	// CaptureState returns a snapshot of the component's observable state.
	CaptureState() snapshot.Snapshot

	// RestoreState replaces the component's state from a snapshot.
	RestoreState(snap snapshot.Snapshot) error

	// Execute runs one unit of work against the input data and returns the
	// component's output, which a sequential pipeline merges into the data
	// passed to subsequent stages.
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)

	// Healthy reports the component's own view of its health.
	Healthy() bool

	// Heartbeat signals that the component is live.
	Heartbeat()

	// Status returns the component's current lifecycle status.
	Status() types.ComponentStatus
}
