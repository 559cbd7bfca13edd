// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the noema.yaml configuration.
//
// Backend descriptors are resolved once at load time and are immutable
// afterwards; a config reload builds a whole new engine rather than
// mutating a live one. API keys never appear in the file itself, only
// environment variable names do.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noema-ai/noema/pkg/fault"
)

// ServerConfig is the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the bind address, e.g. ":8420".
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

// EngineConfig holds evaluation defaults.
type EngineConfig struct {
	// MaxAttempts bounds transient retries per operator invocation.
	// 0 falls back to the engine default.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,gte=1,lte=10"`

	// BackoffBaseMillis is the first retry delay in milliseconds.
	BackoffBaseMillis int `yaml:"backoff_base_ms" validate:"omitempty,gte=1"`

	// TimeoutMillis is the implicit per-evaluation deadline. 0 disables.
	TimeoutMillis int `yaml:"timeout_ms" validate:"gte=0"`
}

// SessionConfig holds session runtime knobs.
type SessionConfig struct {
	// TTLMillis is the idle lifetime before the reaper collects a
	// session. 0 disables reaping.
	TTLMillis int `yaml:"ttl_ms" validate:"gte=0"`

	// HistoryWindow bounds the per-session context log. 0 is unbounded.
	HistoryWindow int `yaml:"history_window" validate:"gte=0"`
}

// CacheConfig holds the optional shared result cache.
type CacheConfig struct {
	// Shared enables the process-wide badger cache. When false each
	// evaluation memoizes privately.
	Shared bool `yaml:"shared"`

	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps the shared cache off disk.
	InMemory bool `yaml:"in_memory"`

	// TTLMillis expires cached results. 0 keeps them indefinitely.
	TTLMillis int `yaml:"ttl_ms" validate:"gte=0"`
}

// BackendConfig describes one inference backend.
type BackendConfig struct {
	// Name is the descriptor name referenced by routes and sessions.
	Name string `yaml:"name" validate:"required"`

	// Provider selects the implementation: openai, ollama, or
	// deterministic.
	Provider string `yaml:"provider" validate:"required,oneof=openai ollama deterministic"`

	// Model is the provider model identifier.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint (openai-compatible
	// servers, non-default ollama hosts).
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the key. The key
	// itself never lives in the file.
	APIKeyEnv string `yaml:"api_key_env"`

	// Fallback names the backend substituted when this one stays
	// unavailable after retries.
	Fallback string `yaml:"fallback"`

	// Default marks the global default backend.
	Default bool `yaml:"default"`
}

// TelemetryConfig holds the OTLP trace exporter target.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC collector address. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Config is the full noema.yaml schema.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Engine    EngineConfig      `yaml:"engine"`
	Session   SessionConfig     `yaml:"session"`
	Cache     CacheConfig       `yaml:"cache"`
	Backends  []BackendConfig   `yaml:"backends" validate:"min=1,dive"`
	Routes    map[string]string `yaml:"routes"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	LogLevel  string            `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration written on first run: a local
// ollama backend with the deterministic embedder as similarity route.
func Default() Config {
	return Config{
		Server: ServerConfig{ListenAddr: ":8420"},
		Engine: EngineConfig{
			MaxAttempts:       3,
			BackoffBaseMillis: 100,
			TimeoutMillis:     60000,
		},
		Session: SessionConfig{
			TTLMillis:     int(10 * time.Minute / time.Millisecond),
			HistoryWindow: 64,
		},
		Backends: []BackendConfig{
			{
				Name:     "local",
				Provider: "ollama",
				Model:    "llama3.1",
				Default:  true,
			},
			{
				Name:     "hash-embed",
				Provider: "deterministic",
			},
		},
		Routes:   map[string]string{"similarity": "hash-embed"},
		LogLevel: "info",
	}
}

// DefaultPath returns ~/.noema/noema.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".noema", "noema.yaml"), nil
}

// Load reads, parses, and validates the config at path. A missing file
// is created from Default first, so first runs work out of the box.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fault.Wrap(fault.KindConfiguration, err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates raw yaml.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fault.Wrap(fault.KindConfiguration, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies struct tags plus the cross-field rules tags cannot
// express: unique names, one default, resolvable fallbacks and routes.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fault.Wrap(fault.KindConfiguration, err, "invalid config")
	}

	names := make(map[string]bool, len(c.Backends))
	defaults := 0
	for _, b := range c.Backends {
		if names[b.Name] {
			return fault.Configuration("duplicate backend name %q", b.Name)
		}
		names[b.Name] = true
		if b.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fault.Configuration("more than one backend is marked default")
	}
	for _, b := range c.Backends {
		if b.Fallback != "" && !names[b.Fallback] {
			return fault.Configuration("backend %q names unknown fallback %q", b.Name, b.Fallback)
		}
		if b.Fallback == b.Name {
			return fault.Configuration("backend %q is its own fallback", b.Name)
		}
	}
	for operator, backendName := range c.Routes {
		if !names[backendName] {
			return fault.Configuration("route for %q names unknown backend %q", operator, backendName)
		}
	}
	return nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.Wrap(fault.KindConfiguration, err, "create config directory")
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
