// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Validator is implemented by config structs that check their own values
// after parsing.
type Validator interface {
	Validate() error
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate runs target's Validate method when it has one.
func Validate(target any) error {
	v, ok := target.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
