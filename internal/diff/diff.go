package diff

import (
	"fmt"

	"github.com/calder-ai/steward/internal/snapshot"
)

// Severity classifies how serious a detected state divergence is.
type Severity string

const (
	// SeverityInfo is a small, non-critical divergence.
	SeverityInfo Severity = "info"

	// SeverityWarning indicates many fields differ.
	SeverityWarning Severity = "warning"

	// SeverityCritical indicates a divergence touching a critical field.
	SeverityCritical Severity = "critical"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// FieldDiff kinds.
const (
	// KindValueMismatch marks a field present in the expected state whose
	// actual value is missing or different.
	KindValueMismatch = "value_mismatch"

	// KindUnexpectedField marks a field present only in the actual state.
	KindUnexpectedField = "unexpected_field"
)

// FieldDiff describes a single diverging field.
type FieldDiff struct {
	FieldName string `json:"field_name"`
	Expected  any    `json:"expected"`
	Actual    any    `json:"actual"`
	Kind      string `json:"kind"`
}

// StateDiff is the result of comparing an expected snapshot against the
// latest observed snapshot for one component. It is produced on demand and
// never persisted by the control plane.
type StateDiff struct {
	ComponentID string
	Severity    Severity
	Description string
	Fields      []FieldDiff
	Expected    snapshot.Snapshot
	Actual      snapshot.Snapshot
}

// String summarizes the diff for logs.
func (d *StateDiff) String() string {
	return fmt.Sprintf("state diff for %s: %d field(s) differ, severity %s",
		d.ComponentID, len(d.Fields), d.Severity)
}
