package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/calder-ai/steward/internal/types"
)

// Loader handles loading configuration from files.
type Loader interface {
	// Load reads and validates the config at path. Missing fields take
	// their default values.
	Load(path string) (*Config, error)
}

// viperLoader implements Loader using Viper.
type viperLoader struct {
	validator Validator
}

// NewLoader creates a Loader with the given validator.
func NewLoader(validator Validator) Loader {
	return &viperLoader{validator: validator}
}

// Load reads configuration from the specified YAML file, layers it over the
// defaults, and validates the result.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
			"failed to unmarshal config", err)
	}

	if err := l.validator.Validate(cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
			"configuration validation failed", err)
	}

	return cfg, nil
}
