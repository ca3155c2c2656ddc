// Package snapshot provides immutable, versioned, hashed captures of a
// component's observable state. Snapshots are used both as the "latest
// observed" state and as the "expected" baseline for drift detection.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot is an immutable capture of a component's key/value state at a
// point in time. The version is monotonically increasing per component and
// assigned by the component itself.
//
// Two snapshots are equal iff their hashes match. The hash is a pure function
// of the state map content and is independent of insertion order.
type Snapshot struct {
	componentID string
	version     int
	takenAt     time.Time
	state       map[string]any
	hash        string
}

// New creates a snapshot of the given state map. The map is copied, so the
// caller may mutate its own copy afterwards without affecting the snapshot.
func New(componentID string, version int, state map[string]any) Snapshot {
	copied := make(map[string]any, len(state))
	for k, v := range state {
		copied[k] = v
	}

	return Snapshot{
		componentID: componentID,
		version:     version,
		takenAt:     time.Now(),
		state:       copied,
		hash:        hashState(copied),
	}
}

// ComponentID returns the ID of the component the snapshot belongs to.
func (s Snapshot) ComponentID() string {
	return s.componentID
}

// Version returns the component-assigned version of the snapshot.
func (s Snapshot) Version() int {
	return s.version
}

// TakenAt returns the wall-clock time the snapshot was created.
func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Hash returns the deterministic, order-independent hash of the state map.
func (s Snapshot) Hash() string {
	return s.hash
}

// State returns a copy of the state map. Mutating the returned map does not
// affect the snapshot.
func (s Snapshot) State() map[string]any {
	copied := make(map[string]any, len(s.state))
	for k, v := range s.state {
		copied[k] = v
	}
	return copied
}

// Value returns the value stored under the given field name.
func (s Snapshot) Value(field string) (any, bool) {
	v, ok := s.state[field]
	return v, ok
}

// Len returns the number of fields in the state map.
func (s Snapshot) Len() int {
	return len(s.state)
}

// IsZero reports whether the snapshot is the zero value.
func (s Snapshot) IsZero() bool {
	return s.componentID == "" && s.state == nil
}

// Equal reports whether two snapshots carry identical state, by hash.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.hash == other.hash
}

// hashState computes a SHA-256 over the sorted (key, value) pairs of the
// state map. Sorting the keys makes the hash a function of the set of pairs
// rather than of insertion order. Values are canonicalized through JSON;
// values that cannot be marshaled fall back to their fmt representation.
func hashState(state map[string]any) string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(encodeValue(state[k]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

func encodeValue(v any) []byte {
	encoded, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return encoded
}
