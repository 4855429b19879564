package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port    int           `env:"CENPHI_INTELLIGENCE_TEST_PORT" envDefault:"123"`
	Timeout time.Duration `env:"CENPHI_INTELLIGENCE_TEST_TIMEOUT" envDefault:"2s"`
}

type validatedConfig struct {
	Workers int
}

func (c *validatedConfig) Validate() error {
	if c.Workers < 1 {
		return errors.New("workers must be positive")
	}
	return nil
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("expected default timeout 2s, got %v", cfg.Timeout)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CENPHI_INTELLIGENCE_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(&envTestConfig{}); err != nil {
		t.Fatalf("expected no-op for config without Validate, got %v", err)
	}
	if err := Validate(&validatedConfig{Workers: 1}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	err := Validate(&validatedConfig{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validate config:") {
		t.Fatalf("expected validate config prefix, got %v", err)
	}
}
