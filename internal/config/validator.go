package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates a loaded configuration.
type Validator interface {
	Validate(cfg *Config) error
}

// structValidator validates configs with struct tags.
type structValidator struct {
	validate *validator.Validate
}

// NewValidator creates the default struct-tag validator.
func NewValidator() Validator {
	return &structValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks the config against its validate tags and reports the
// first set of violations found.
func (v *structValidator) Validate(cfg *Config) error {
	if err := v.validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				return fmt.Errorf("field %s failed validation rule %q", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}
	return nil
}
