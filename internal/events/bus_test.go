package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-ai/steward/internal/types"
)

func receiveOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestChannelBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	ch, cleanup := bus.Subscribe(ctx, Filter{}, 10)
	defer cleanup()

	err := bus.Publish(ctx, New(EventComponentRegistered, "comp-a", map[string]any{"component_name": "A"}))
	require.NoError(t, err)

	received := receiveOne(t, ch)
	assert.Equal(t, EventComponentRegistered, received.Type)
	assert.Equal(t, "comp-a", received.ComponentID)
	assert.Equal(t, "A", received.Payload["component_name"])
	assert.False(t, received.Timestamp.IsZero())
}

func TestChannelBus_FilterByType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	ch, cleanup := bus.Subscribe(ctx, Filter{
		Types: []EventType{EventComponentDegraded},
	}, 10)
	defer cleanup()

	bus.Publish(ctx, New(EventComponentRegistered, "comp-a", nil))
	bus.Publish(ctx, New(EventComponentDegraded, "comp-a", nil))

	received := receiveOne(t, ch)
	assert.Equal(t, EventComponentDegraded, received.Type)

	select {
	case unexpected := <-ch:
		t.Fatalf("received filtered-out event: %v", unexpected.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus_FilterByComponentID(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	ch, cleanup := bus.Subscribe(ctx, Filter{ComponentID: "comp-b"}, 10)
	defer cleanup()

	bus.Publish(ctx, New(EventComponentDegraded, "comp-a", nil))
	bus.Publish(ctx, New(EventComponentDegraded, "comp-b", nil))

	received := receiveOne(t, ch)
	assert.Equal(t, "comp-b", received.ComponentID)
}

func TestChannelBus_SlowSubscriberDropsEvents(t *testing.T) {
	var (
		mu      sync.Mutex
		dropped int
	)
	bus := NewBus(WithErrorHandler(func(err error, ctx map[string]any) {
		mu.Lock()
		dropped++
		mu.Unlock()
	}))
	defer bus.Close()
	ctx := context.Background()

	ch, cleanup := bus.Subscribe(ctx, Filter{}, 1)
	defer cleanup()

	// Buffer of one: the second publish must be dropped, not block.
	require.NoError(t, bus.Publish(ctx, New(EventComponentRegistered, "comp-a", nil)))
	require.NoError(t, bus.Publish(ctx, New(EventComponentRegistered, "comp-b", nil)))

	received := receiveOne(t, ch)
	assert.Equal(t, "comp-a", received.ComponentID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, dropped)
}

func TestChannelBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	ch1, cleanup1 := bus.Subscribe(ctx, Filter{}, 10)
	defer cleanup1()
	ch2, cleanup2 := bus.Subscribe(ctx, Filter{}, 10)
	defer cleanup2()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(ctx, New(EventComponentDegraded, "comp-a", nil))

	assert.Equal(t, "comp-a", receiveOne(t, ch1).ComponentID)
	assert.Equal(t, "comp-a", receiveOne(t, ch2).ComponentID)
}

func TestChannelBus_CleanupRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	_, cleanup := bus.Subscribe(ctx, Filter{}, 10)
	require.Equal(t, 1, bus.SubscriberCount())

	cleanup()
	assert.Equal(t, 0, bus.SubscriberCount())

	// Calling cleanup twice is safe.
	cleanup()
}

func TestChannelBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	ch, _ := bus.Subscribe(ctx, Filter{}, 10)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	err := bus.Publish(ctx, New(EventComponentRegistered, "comp-a", nil))
	require.Error(t, err)
	assert.Equal(t, types.EVENT_BUS_CLOSED, types.GetErrorCode(err))

	_, open := <-ch
	assert.False(t, open, "subscriber channels are closed with the bus")
}

func TestChannelBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx := context.Background()

	ch, cleanup := bus.Subscribe(ctx, Filter{}, 1000)
	defer cleanup()

	const publishers = 10
	const perPublisher = 50

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				bus.Publish(ctx, New(EventComponentStatusChanged, "comp-a", nil))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < publishers*perPublisher; i++ {
		receiveOne(t, ch)
	}
}

func TestFilter_Matches(t *testing.T) {
	event := New(EventComponentDegraded, "comp-a", nil)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches everything", Filter{}, true},
		{"matching type", Filter{Types: []EventType{EventComponentDegraded}}, true},
		{"non-matching type", Filter{Types: []EventType{EventComponentRegistered}}, false},
		{"matching component", Filter{ComponentID: "comp-a"}, true},
		{"non-matching component", Filter{ComponentID: "comp-b"}, false},
		{
			"type and component must both match",
			Filter{Types: []EventType{EventComponentDegraded}, ComponentID: "comp-b"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}
