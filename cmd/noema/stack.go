// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/config"
	"github.com/noema-ai/noema/pkg/engine"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/ops"
)

// buildEngine assembles registry, backend set, and engine from loaded
// configuration. The returned cleanup closes the shared cache, if any.
func buildEngine(cfg config.Config, logger *slog.Logger) (*engine.Engine, *backend.Set, func(), error) {
	registry := ops.NewRegistry(logger)
	set := backend.NewSet(logger)
	for _, bc := range cfg.Backends {
		descriptor, provider, err := buildBackend(bc, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := set.Add(descriptor, provider); err != nil {
			return nil, nil, nil, err
		}
		if bc.Default {
			if err := set.SetDefault(bc.Name); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	for operator, backendName := range cfg.Routes {
		if !registry.Has(operator) {
			return nil, nil, nil, fault.Configuration(
				"route for unknown operator %q", operator)
		}
		if err := set.Route(operator, backendName); err != nil {
			return nil, nil, nil, err
		}
	}

	cleanup := func() {}
	var opts []engine.Option
	opts = append(opts, engine.WithLogger(logger))
	if cfg.Cache.Shared {
		shared, err := engine.NewSharedCache(engine.SharedCacheConfig{
			Path:     cfg.Cache.Path,
			InMemory: cfg.Cache.InMemory,
			TTL:      time.Duration(cfg.Cache.TTLMillis) * time.Millisecond,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, engine.WithSharedCache(shared))
		cleanup = func() {
			if err := shared.Close(); err != nil {
				logger.Error("closing shared cache", "error", err)
			}
		}
	}

	eng, err := engine.New(registry, set, engine.Defaults{
		MaxAttempts: cfg.Engine.MaxAttempts,
		BackoffBase: time.Duration(cfg.Engine.BackoffBaseMillis) * time.Millisecond,
		Timeout:     time.Duration(cfg.Engine.TimeoutMillis) * time.Millisecond,
	}, opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return eng, set, cleanup, nil
}

func buildBackend(bc config.BackendConfig, logger *slog.Logger) (backend.Descriptor, backend.Provider, error) {
	descriptor := backend.Descriptor{
		Name:     bc.Name,
		Provider: bc.Provider,
		Model:    bc.Model,
		BaseURL:  bc.BaseURL,
		Fallback: bc.Fallback,
	}

	switch bc.Provider {
	case "openai":
		descriptor.Kind = backend.KindCompletion
		if bc.APIKeyEnv != "" {
			key := os.Getenv(bc.APIKeyEnv)
			if key == "" {
				return backend.Descriptor{}, nil, fault.Configuration(
					"backend %q: environment variable %s is empty", bc.Name, bc.APIKeyEnv)
			}
			descriptor.SetAPIKey([]byte(key))
		}
		provider, err := backend.NewOpenAI(descriptor, logger)
		if err != nil {
			return backend.Descriptor{}, nil, err
		}
		return descriptor, provider, nil

	case "ollama":
		descriptor.Kind = backend.KindCompletion
		provider, err := backend.NewOllama(descriptor, logger)
		if err != nil {
			return backend.Descriptor{}, nil, err
		}
		return descriptor, provider, nil

	case "deterministic":
		descriptor.Kind = backend.KindDeterministic
		return descriptor, backend.NewDeterministic(descriptor), nil

	default:
		return backend.Descriptor{}, nil, fault.Configuration(
			"backend %q has unknown provider %q", bc.Name, bc.Provider)
	}
}
