package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/calder-ai/steward/internal/breaker"
	"github.com/calder-ai/steward/internal/events"
	"github.com/calder-ai/steward/internal/scheduler"
)

// Metrics holds the Prometheus instruments for the control plane. A single
// Metrics value serves the event bus, the scheduler and the circuit
// breakers.
type Metrics struct {
	eventsPublished    *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	subscribersActive  prometheus.Gauge
	subscriberLifetime prometheus.Histogram
	stageExecutions    *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

// NewMetrics registers the control plane instruments on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events delivered to at least zero subscribers, by event type.",
		}, []string{"event_type"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber channel was full.",
		}, []string{"event_type"}),
		subscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "steward",
			Subsystem: "events",
			Name:      "subscribers_active",
			Help:      "Currently registered event bus subscribers.",
		}),
		subscriberLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steward",
			Subsystem: "events",
			Name:      "subscriber_lifetime_seconds",
			Help:      "How long subscribers stayed registered before unsubscribing.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		stageExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "scheduler",
			Name:      "stage_executions_total",
			Help:      "Pipeline stage attempts by pipeline, component and outcome.",
		}, []string{"pipeline", "component_id", "outcome"}),
		breakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions by component and target state.",
		}, []string{"component_id", "to_state"}),
	}
}

// RecordEventPublished implements events.MetricsRecorder.
func (m *Metrics) RecordEventPublished(eventType string, subscriberCount int) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped implements events.MetricsRecorder.
func (m *Metrics) RecordEventDropped(eventType string, subscriberID string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// RecordSubscriberAdded implements events.MetricsRecorder.
func (m *Metrics) RecordSubscriberAdded(subscriberID string) {
	m.subscribersActive.Inc()
}

// RecordSubscriberRemoved implements events.MetricsRecorder.
func (m *Metrics) RecordSubscriberRemoved(subscriberID string, duration time.Duration) {
	m.subscribersActive.Dec()
	m.subscriberLifetime.Observe(duration.Seconds())
}

// RecordStageExecution implements scheduler.ExecMetrics.
func (m *Metrics) RecordStageExecution(pipeline, componentID, outcome string) {
	m.stageExecutions.WithLabelValues(pipeline, componentID, outcome).Inc()
}

// BreakerTransition satisfies breaker.TransitionCallback.
func (m *Metrics) BreakerTransition(componentID string, from, to breaker.State) {
	m.breakerTransitions.WithLabelValues(componentID, to.String()).Inc()
}

var (
	_ events.MetricsRecorder = (*Metrics)(nil)
	_ scheduler.ExecMetrics  = (*Metrics)(nil)
)
