// Package diff detects drift between a component's expected state baseline
// and its latest observed snapshot, classifies the severity of the
// divergence, and throttles repeated checks per component.
package diff

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/snapshot"
)

// Config holds diff engine tuning.
type Config struct {
	// ThrottleInterval is the minimum time between diff checks for the same
	// component. Default: 5 seconds
	ThrottleInterval time.Duration

	// CriticalFields are substrings that mark a field name as critical.
	// Matching is case-sensitive; see the note on determineSeverity.
	// Default: error, critical, health, status
	CriticalFields []string

	// WarningFieldCount is the number of differing fields above which a
	// non-critical diff is a warning rather than info. Default: 3
	WarningFieldCount int
}

// DefaultConfig returns the default diff engine tuning.
func DefaultConfig() Config {
	return Config{
		ThrottleInterval:  5 * time.Second,
		CriticalFields:    []string{"error", "critical", "health", "status"},
		WarningFieldCount: 3,
	}
}

// Publisher is the subset of the event bus the engine needs.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Engine stores the latest and expected snapshots per component and computes
// field-level diffs between them. Snapshot storage is last-write-wins.
type Engine struct {
	cfg    Config
	bus    Publisher
	logger *slog.Logger

	mu        sync.Mutex
	latest    map[string]snapshot.Snapshot
	expected  map[string]snapshot.Snapshot
	lastCheck map[string]time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher sets the event publisher. Without one, no events are emitted.
func WithPublisher(bus Publisher) EngineOption {
	return func(e *Engine) {
		e.bus = bus
	}
}

// NewEngine creates a diff engine.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultConfig().ThrottleInterval
	}
	if len(cfg.CriticalFields) == 0 {
		cfg.CriticalFields = DefaultConfig().CriticalFields
	}
	if cfg.WarningFieldCount <= 0 {
		cfg.WarningFieldCount = DefaultConfig().WarningFieldCount
	}

	e := &Engine{
		cfg:       cfg,
		logger:    slog.Default(),
		latest:    make(map[string]snapshot.Snapshot),
		expected:  make(map[string]snapshot.Snapshot),
		lastCheck: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CaptureSnapshot stores snap as the latest observed state for its
// component. Last write wins.
func (e *Engine) CaptureSnapshot(snap snapshot.Snapshot) {
	e.mu.Lock()
	e.latest[snap.ComponentID()] = snap
	e.mu.Unlock()

	e.logger.Debug("captured snapshot",
		"component_id", snap.ComponentID(), "version", snap.Version())
}

// SetExpectedState stores snap as the expected baseline for its component.
// Last write wins.
func (e *Engine) SetExpectedState(snap snapshot.Snapshot) {
	e.mu.Lock()
	e.expected[snap.ComponentID()] = snap
	e.mu.Unlock()

	e.logger.Debug("set expected state",
		"component_id", snap.ComponentID(), "version", snap.Version())
}

// CheckDiff compares the expected baseline against the latest snapshot for
// a component. It returns nil when no diff is produced: because the check
// was throttled, because either snapshot is missing, or because the hashes
// match. Callers cannot distinguish these cases.
//
// A non-nil result has at least one FieldDiff and has been published as a
// state.diff.detected event.
func (e *Engine) CheckDiff(ctx context.Context, componentID string) *StateDiff {
	now := time.Now()

	e.mu.Lock()
	if last, checked := e.lastCheck[componentID]; checked && now.Sub(last) < e.cfg.ThrottleInterval {
		e.mu.Unlock()
		e.logger.Debug("throttling diff check", "component_id", componentID)
		return nil
	}

	expected, hasExpected := e.expected[componentID]
	actual, hasActual := e.latest[componentID]
	if !hasExpected || !hasActual {
		e.mu.Unlock()
		return nil
	}

	// The throttle clock only starts once both snapshots exist, so a
	// component waiting for its baseline is not penalized.
	e.lastCheck[componentID] = now
	e.mu.Unlock()

	if expected.Equal(actual) {
		return nil
	}

	d := e.computeDiff(expected, actual)
	if d == nil {
		return nil
	}

	e.publish(ctx, events.New(events.EventStateDiffDetected, componentID, map[string]any{
		"diff":        d,
		"severity":    d.Severity.String(),
		"field_count": len(d.Fields),
	}))

	return d
}

// computeDiff walks every expected field, reporting missing or unequal
// actual values as value_mismatch, then reports actual-only fields as
// unexpected_field. Fields are visited in sorted order so results are
// deterministic.
func (e *Engine) computeDiff(expected, actual snapshot.Snapshot) *StateDiff {
	expectedState := expected.State()
	actualState := actual.State()

	var fields []FieldDiff

	expectedKeys := sortedKeys(expectedState)
	for _, name := range expectedKeys {
		expectedValue := expectedState[name]
		actualValue, present := actualState[name]

		if expectedValue == nil && (!present || actualValue == nil) {
			continue
		}

		if !present || !reflect.DeepEqual(expectedValue, actualValue) {
			fields = append(fields, FieldDiff{
				FieldName: name,
				Expected:  expectedValue,
				Actual:    actualValue,
				Kind:      KindValueMismatch,
			})
		}
	}

	actualKeys := sortedKeys(actualState)
	for _, name := range actualKeys {
		if _, present := expectedState[name]; !present {
			fields = append(fields, FieldDiff{
				FieldName: name,
				Expected:  nil,
				Actual:    actualState[name],
				Kind:      KindUnexpectedField,
			})
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return &StateDiff{
		ComponentID: expected.ComponentID(),
		Severity:    e.determineSeverity(fields),
		Description: fmt.Sprintf("state mismatch detected: %d field(s) differ", len(fields)),
		Fields:      fields,
		Expected:    expected,
		Actual:      actual,
	}
}

// determineSeverity is critical when any differing field name contains a
// critical substring, warning when more fields differ than the configured
// count, info otherwise. The substring match is case-sensitive.
func (e *Engine) determineSeverity(fields []FieldDiff) Severity {
	for _, f := range fields {
		for _, critical := range e.cfg.CriticalFields {
			if strings.Contains(f.FieldName, critical) {
				return SeverityCritical
			}
		}
	}

	if len(fields) > e.cfg.WarningFieldCount {
		return SeverityWarning
	}
	return SeverityInfo
}

// PerformPeriodicDiffCheck runs CheckDiff for every component with a latest
// snapshot. The per-component throttle keeps this cheap to call on a timer.
func (e *Engine) PerformPeriodicDiffCheck(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.latest))
	for id := range e.latest {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		e.CheckDiff(ctx, id)
	}
}

// LatestSnapshot returns the latest observed snapshot for a component.
func (e *Engine) LatestSnapshot(componentID string) (snapshot.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.latest[componentID]
	return snap, ok
}

// ExpectedSnapshot returns the expected baseline for a component.
func (e *Engine) ExpectedSnapshot(componentID string) (snapshot.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.expected[componentID]
	return snap, ok
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish diff event",
			"event_type", event.Type, "error", err)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
