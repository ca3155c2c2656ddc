package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calder-ai/steward/internal/types"
)

// Bus distributes orchestration events to subscribers with filtering support.
//
// Thread Safety:
//   - All methods are safe for concurrent use
//   - Multiple goroutines can publish and subscribe simultaneously
//   - Non-blocking publish prevents slow subscribers from affecting publishers
//
// Slow Consumer Handling:
//   - Subscribers receive events through buffered channels
//   - If a subscriber's buffer is full, events are dropped for that subscriber
//   - Other subscribers are not affected by slow consumers
//   - Dropped events are reported via the error handler
type Bus interface {
	// Publish sends an event to all matching subscribers.
	// Returns an error only if the bus is closed.
	// Never blocks on slow subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription with optional filtering.
	// Returns a channel for receiving events and a cleanup function.
	// The cleanup function must be called to prevent resource leaks.
	Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func())

	// Close shuts down the bus and all subscriptions.
	// After Close returns, Publish will return an error.
	Close() error
}

// subscription represents a single subscriber with filtering and lifecycle
// management.
type subscription struct {
	id       string
	ch       chan Event
	filter   Filter
	ctx      context.Context
	cancel   context.CancelFunc
	created  time.Time
	received atomic.Int64
	dropped  atomic.Int64
}

// ErrorHandler is called when an error occurs during bus operations,
// most commonly a dropped event for a slow subscriber.
type ErrorHandler func(err error, context map[string]any)

// MetricsRecorder records metrics about bus operations. The observability
// package provides a Prometheus-backed implementation.
type MetricsRecorder interface {
	// RecordEventPublished is called when an event is delivered to subscribers.
	RecordEventPublished(eventType string, subscriberCount int)

	// RecordEventDropped is called when an event is dropped for a slow subscriber.
	RecordEventDropped(eventType string, subscriberID string)

	// RecordSubscriberAdded is called when a new subscriber is created.
	RecordSubscriberAdded(subscriberID string)

	// RecordSubscriberRemoved is called when a subscriber is removed.
	RecordSubscriberRemoved(subscriberID string, duration time.Duration)
}

type busOptions struct {
	defaultBufferSize int
	errorHandler      ErrorHandler
	metricsRecorder   MetricsRecorder
}

// Option is a functional option for configuring the bus.
type Option func(*busOptions)

// WithDefaultBufferSize sets the default buffer size for subscriber channels.
// Used when Subscribe is called with bufferSize <= 0. Default: 100 events.
func WithDefaultBufferSize(size int) Option {
	return func(opts *busOptions) {
		if size > 0 {
			opts.defaultBufferSize = size
		}
	}
}

// WithErrorHandler sets the error handler for bus operations.
// Default: no-op handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(opts *busOptions) {
		if handler != nil {
			opts.errorHandler = handler
		}
	}
}

// WithMetrics sets the metrics recorder for bus operations.
// Default: no-op recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(opts *busOptions) {
		if recorder != nil {
			opts.metricsRecorder = recorder
		}
	}
}

// ChannelBus implements Bus with buffered channels and non-blocking sends.
// Publishers iterate the subscriber map under a read lock and use a
// select/default send so a stuck consumer can never stall orchestration.
type ChannelBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	options     *busOptions
	closed      bool
	subCounter  uint64
}

// NewBus creates a new ChannelBus with the given options.
//
// Example:
//
//	bus := NewBus(
//		WithDefaultBufferSize(500),
//		WithErrorHandler(func(err error, ctx map[string]any) {
//			logger.Warn("event bus error", "error", err)
//		}),
//	)
//	defer bus.Close()
func NewBus(opts ...Option) *ChannelBus {
	options := &busOptions{
		defaultBufferSize: 100,
		errorHandler:      noopErrorHandler,
		metricsRecorder:   noopMetricsRecorder{},
	}

	for _, opt := range opts {
		opt(options)
	}

	return &ChannelBus{
		subscribers: make(map[string]*subscription),
		options:     options,
	}
}

// Publish sends an event to all subscribers whose filters match.
// If a subscriber's channel is full the event is dropped for that subscriber
// to prevent blocking the publisher or other subscribers.
func (b *ChannelBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return types.NewError(types.EVENT_BUS_CLOSED, "event bus is closed")
	}

	sent := 0
	for _, sub := range b.subscribers {
		select {
		case <-sub.ctx.Done():
			// Subscriber disconnected; cleanup happens in unsubscribe.
			continue
		default:
		}

		if !sub.filter.Matches(event) {
			continue
		}

		select {
		case sub.ch <- event:
			sent++
			sub.received.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Channel is full, drop the event for this slow subscriber.
			sub.dropped.Add(1)
			b.options.metricsRecorder.RecordEventDropped(string(event.Type), sub.id)
			b.options.errorHandler(
				fmt.Errorf("dropped event for slow subscriber"),
				map[string]any{
					"subscriber_id": sub.id,
					"event_type":    event.Type,
					"component_id":  event.ComponentID,
				},
			)
		}
	}

	if sent > 0 {
		b.options.metricsRecorder.RecordEventPublished(string(event.Type), sent)
	}

	return nil
}

// Subscribe creates a new subscription with optional filtering.
//
// The returned channel receives events matching the filter criteria. The
// cleanup function must be called to unsubscribe and release resources.
// Pass Filter{} to receive all events and bufferSize <= 0 for the default
// buffer size.
func (b *ChannelBus) Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bufferSize <= 0 {
		bufferSize = b.options.defaultBufferSize
	}

	b.subCounter++
	subscriberID := fmt.Sprintf("sub-%d-%d", time.Now().UnixNano(), b.subCounter)

	subCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		id:      subscriberID,
		ch:      make(chan Event, bufferSize),
		filter:  filter,
		ctx:     subCtx,
		cancel:  cancel,
		created: time.Now(),
	}

	b.subscribers[subscriberID] = sub
	b.options.metricsRecorder.RecordSubscriberAdded(subscriberID)

	cleanup := func() {
		b.unsubscribe(subscriberID)
	}

	return sub.ch, cleanup
}

// unsubscribe removes a subscription and closes its channel.
func (b *ChannelBus) unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[subscriberID]
	if !exists {
		return
	}

	duration := time.Since(sub.created)
	sub.cancel()
	close(sub.ch)
	delete(b.subscribers, subscriberID)

	b.options.metricsRecorder.RecordSubscriberRemoved(subscriberID, duration)
}

// Close shuts down the bus and closes all subscriber channels.
// Close is idempotent; multiple calls are safe.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for id, sub := range b.subscribers {
		sub.cancel()
		close(sub.ch)
		b.options.metricsRecorder.RecordSubscriberRemoved(id, time.Since(sub.created))
		delete(b.subscribers, id)
	}

	return nil
}

// SubscriberCount returns the current number of active subscribers.
// Useful for monitoring and testing.
func (b *ChannelBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func noopErrorHandler(err error, context map[string]any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordEventPublished(eventType string, subscriberCount int)          {}
func (noopMetricsRecorder) RecordEventDropped(eventType string, subscriberID string)            {}
func (noopMetricsRecorder) RecordSubscriberAdded(subscriberID string)                           {}
func (noopMetricsRecorder) RecordSubscriberRemoved(subscriberID string, duration time.Duration) {}

// Ensure ChannelBus implements Bus at compile time.
var _ Bus = (*ChannelBus)(nil)
