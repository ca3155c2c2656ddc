package config

import (
	"time"
)

// Default returns the default configuration. All thresholds mirror the
// values the control plane's behavior was tuned against.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			ConsecutiveFailureLimit: 3,
			ErrorRateThreshold:      0.5,
			LivenessWindow:          30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
		},
		Diff: DiffConfig{
			ThrottleInterval:  5 * time.Second,
			CriticalFields:    []string{"error", "critical", "health", "status"},
			WarningFieldCount: 3,
		},
		Broker: BrokerConfig{
			MaxConcurrentRequests: 3,
		},
		Scheduler: SchedulerConfig{
			TriggerEvalInterval: 10 * time.Second,
			QueueSize:           64,
		},
		Audit: AuditConfig{
			Interval: 60 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}
