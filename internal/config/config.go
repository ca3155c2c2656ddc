// Package config defines the Steward configuration model and its YAML
// loading and validation. Every threshold the control plane uses is
// configurable here; the defaults are the values the system was tuned
// against.
package config

import (
	"time"
)

// Config is the root configuration for Steward.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Breaker   BreakerConfig   `mapstructure:"breaker" yaml:"breaker"`
	Diff      DiffConfig      `mapstructure:"diff" yaml:"diff"`
	Broker    BrokerConfig    `mapstructure:"broker" yaml:"broker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Pipelines PipelinesConfig `mapstructure:"pipelines" yaml:"pipelines,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// HealthConfig contains health monitor thresholds.
type HealthConfig struct {
	ConsecutiveFailureLimit int           `mapstructure:"consecutive_failure_limit" yaml:"consecutive_failure_limit" validate:"min=1"`
	ErrorRateThreshold      float64       `mapstructure:"error_rate_threshold" yaml:"error_rate_threshold" validate:"gt=0,lte=1"`
	LivenessWindow          time.Duration `mapstructure:"liveness_window" yaml:"liveness_window" validate:"min=1s"`
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"min=1s"`
}

// DiffConfig contains diff engine tuning.
type DiffConfig struct {
	ThrottleInterval  time.Duration `mapstructure:"throttle_interval" yaml:"throttle_interval" validate:"min=1s"`
	CriticalFields    []string      `mapstructure:"critical_fields" yaml:"critical_fields"`
	WarningFieldCount int           `mapstructure:"warning_field_count" yaml:"warning_field_count" validate:"min=1"`
}

// BrokerConfig contains problem broker settings.
type BrokerConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests" validate:"min=1"`
}

// SchedulerConfig contains scheduler settings.
type SchedulerConfig struct {
	TriggerEvalInterval time.Duration `mapstructure:"trigger_eval_interval" yaml:"trigger_eval_interval" validate:"min=1s"`
	QueueSize           int           `mapstructure:"queue_size" yaml:"queue_size" validate:"min=1"`
}

// AuditConfig contains the orchestrator's periodic audit settings.
type AuditConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=1s"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// PipelinesConfig points at an optional YAML pipeline catalog loaded at
// startup.
type PipelinesConfig struct {
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path,omitempty"`
}
