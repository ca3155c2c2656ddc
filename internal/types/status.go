package types

import (
	"encoding/json"
	"fmt"
)

// ComponentStatus represents the lifecycle status of a registered component.
type ComponentStatus string

const (
	// StatusInactive indicates the component is registered but not running.
	StatusInactive ComponentStatus = "inactive"

	// StatusInitializing indicates the component is starting up, including
	// after a warm restart.
	StatusInitializing ComponentStatus = "initializing"

	// StatusActive indicates the component is running and serving requests.
	StatusActive ComponentStatus = "active"

	// StatusDegraded indicates the component is running but accumulating
	// failures; the health monitor sets this status automatically.
	StatusDegraded ComponentStatus = "degraded"

	// StatusError indicates the component is in an error state.
	StatusError ComponentStatus = "error"

	// StatusIsolated indicates the component has been removed from
	// orchestration by an operator or remediation action.
	StatusIsolated ComponentStatus = "isolated"
)

// String returns the string representation of the status.
func (s ComponentStatus) String() string {
	return string(s)
}

// IsValid checks if the ComponentStatus is a known value.
func (s ComponentStatus) IsValid() bool {
	switch s {
	case StatusInactive, StatusInitializing, StatusActive,
		StatusDegraded, StatusError, StatusIsolated:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s ComponentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ComponentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := ComponentStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid component status: %s", str)
	}

	*s = status
	return nil
}
