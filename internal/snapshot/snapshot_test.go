package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_HashIsOrderIndependent(t *testing.T) {
	a := New("comp-a", 1, map[string]any{"x": 1, "y": "two", "z": true})
	b := New("comp-a", 2, map[string]any{"z": true, "y": "two", "x": 1})

	assert.Equal(t, a.Hash(), b.Hash(), "hash must depend only on the set of pairs")
	assert.True(t, a.Equal(b))
}

func TestSnapshot_HashChangesWithContent(t *testing.T) {
	base := New("comp-a", 1, map[string]any{"x": 1, "y": "two"})

	changedValue := New("comp-a", 1, map[string]any{"x": 2, "y": "two"})
	assert.NotEqual(t, base.Hash(), changedValue.Hash())

	extraField := New("comp-a", 1, map[string]any{"x": 1, "y": "two", "z": 0})
	assert.NotEqual(t, base.Hash(), extraField.Hash())

	assert.False(t, base.Equal(changedValue))
}

func TestSnapshot_StateIsCopied(t *testing.T) {
	source := map[string]any{"x": 1}
	snap := New("comp-a", 1, source)

	source["x"] = 99
	v, ok := snap.Value("x")
	require.True(t, ok)
	assert.Equal(t, 1, v, "mutating the source map must not affect the snapshot")

	out := snap.State()
	out["x"] = 42
	v, _ = snap.Value("x")
	assert.Equal(t, 1, v, "mutating the returned state must not affect the snapshot")
}

func TestSnapshot_Accessors(t *testing.T) {
	snap := New("comp-a", 7, map[string]any{"x": 1, "y": 2})

	assert.Equal(t, "comp-a", snap.ComponentID())
	assert.Equal(t, 7, snap.Version())
	assert.Equal(t, 2, snap.Len())
	assert.False(t, snap.TakenAt().IsZero())
	assert.False(t, snap.IsZero())

	_, ok := snap.Value("missing")
	assert.False(t, ok)
}

func TestSnapshot_ZeroValue(t *testing.T) {
	var snap Snapshot
	assert.True(t, snap.IsZero())
	assert.Equal(t, 0, snap.Len())
}

func TestSnapshot_EmptyStatesAreEqual(t *testing.T) {
	a := New("comp-a", 1, nil)
	b := New("comp-b", 2, map[string]any{})

	assert.True(t, a.Equal(b), "two empty states hash identically")
}

func TestSnapshot_UnmarshalableValueFallsBack(t *testing.T) {
	// Functions cannot be JSON-encoded; the hash falls back to the fmt
	// representation instead of failing.
	snap := New("comp-a", 1, map[string]any{"fn": func() {}})
	assert.NotEmpty(t, snap.Hash())
}
