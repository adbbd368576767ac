// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var configValidate = validator.New()

// Config holds assistant service configuration.
//
// # Description
//
// Values can come from a YAML file via LoadConfig, from environment
// variables, or be set programmatically for tests. Zero values get
// defaults applied by New().
//
// # Examples
//
//	// Minimal (all defaults, local Ollama backend)
//	cfg := Config{}
//
//	// Hosted provider with auth
//	cfg := Config{
//	    Port:       8080,
//	    LLMBackend: "openai",
//	    AuthToken:  os.Getenv("QUAY_AUTH_TOKEN"),
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// LLMBackend selects the generation provider.
	// Valid values: "openai", "ollama". Default: "ollama"
	LLMBackend string `yaml:"llm_backend" validate:"omitempty,oneof=openai ollama"`

	// SandboxRoot is the directory confining all file operations.
	// Default: "./sandbox"
	SandboxRoot string `yaml:"sandbox_root"`

	// SandboxInterpreter runs generated code. Default: "python3"
	SandboxInterpreter string `yaml:"sandbox_interpreter"`

	// AuthToken is the static bearer secret for the API.
	// Empty disables authentication (single-user local mode).
	AuthToken string `yaml:"auth_token"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Empty disables tracing.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Default: true
	EnableMetrics bool `yaml:"enable_metrics"`

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`
}

// LoadConfig reads a YAML config file.
//
// Environment variables referenced by individual components (API keys,
// provider URLs) are not part of this file; it only carries service-level
// settings.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := configValidate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = "./sandbox"
	}
	if cfg.SandboxInterpreter == "" {
		cfg.SandboxInterpreter = "python3"
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("QUAY_AUTH_TOKEN")
	}
	// No YAML flag to disable metrics; always on.
	cfg.EnableMetrics = true

	return cfg
}
