// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/noema-ai/noema/pkg/fault"
)

// Descriptor identifies a concrete backend: which provider kind, which
// model, where it lives and which descriptor to fall back to when the
// primary is unavailable.
//
// API keys are held in a memguard enclave so the plaintext secret never
// sits in long-lived heap memory; it is opened only for the duration of
// provider construction.
type Descriptor struct {
	// Name uniquely identifies the descriptor within a Set.
	Name string `json:"name"`

	// Kind selects the provider class (completion, embedding, deterministic).
	Kind Kind `json:"kind"`

	// Provider selects the implementation ("openai", "ollama", "deterministic").
	Provider string `json:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// Fallback names the descriptor substituted when this backend is
	// unavailable. Results produced through the fallback are tagged as
	// degraded. Empty means no fallback.
	Fallback string `json:"fallback,omitempty"`

	apiKey *memguard.Enclave
}

// SetAPIKey seals the secret into an enclave and wipes the input slice.
func (d *Descriptor) SetAPIKey(secret []byte) {
	if len(secret) == 0 {
		return
	}
	d.apiKey = memguard.NewEnclave(secret)
}

// APIKey opens the enclave and returns a copy of the secret.
//
// Returns "" when no key is configured (local backends need none).
func (d *Descriptor) APIKey() (string, error) {
	if d.apiKey == nil {
		return "", nil
	}
	buf, err := d.apiKey.Open()
	if err != nil {
		return "", fault.Configuration("open credential enclave for backend %q: %v", d.Name, err)
	}
	defer buf.Destroy()
	return buf.String(), nil
}

// HasAPIKey reports whether a credential is configured.
func (d *Descriptor) HasAPIKey() bool { return d.apiKey != nil }

// Set is the resolved backend configuration for an execution context:
// descriptors, their live providers, and the operator-class routing map.
//
// A Set is mutable while being built (configuration load time) and
// frozen before the engine starts; reads after Freeze need no locking.
type Set struct {
	mu          sync.Mutex
	frozen      bool
	descriptors map[string]Descriptor
	providers   map[string]Provider
	routes      map[string]string
	defaultName string
	logger      *slog.Logger
}

// NewSet creates an empty backend set.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		descriptors: map[string]Descriptor{},
		providers:   map[string]Provider{},
		routes:      map[string]string{},
		logger:      logger,
	}
}

// Add registers a descriptor with its live provider.
func (s *Set) Add(d Descriptor, p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fault.Configuration("backend set is frozen")
	}
	if d.Name == "" {
		return fault.Configuration("backend descriptor has no name")
	}
	if _, exists := s.descriptors[d.Name]; exists {
		return fault.Configuration("duplicate backend descriptor %q", d.Name)
	}
	s.descriptors[d.Name] = d
	s.providers[d.Name] = p
	s.logger.Debug("registered backend", "name", d.Name, "kind", d.Kind, "model", d.Model)
	return nil
}

// Route maps an operator name to a descriptor.
func (s *Set) Route(operator, descriptorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fault.Configuration("backend set is frozen")
	}
	if _, exists := s.descriptors[descriptorName]; !exists {
		return fault.Configuration("route for operator %q references unknown backend %q", operator, descriptorName)
	}
	s.routes[operator] = descriptorName
	return nil
}

// SetDefault names the descriptor used when no route matches.
func (s *Set) SetDefault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fault.Configuration("backend set is frozen")
	}
	if _, exists := s.descriptors[name]; !exists {
		return fault.Configuration("default backend %q is not registered", name)
	}
	s.defaultName = name
	return nil
}

// Freeze marks the set immutable. Subsequent mutation attempts fail and
// reads are lock-free.
func (s *Set) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Lookup returns the provider and descriptor registered under name.
func (s *Set) Lookup(name string) (Provider, Descriptor, error) {
	d, ok := s.descriptors[name]
	if !ok {
		return nil, Descriptor{}, fault.Configuration("unknown backend %q", name)
	}
	return s.providers[d.Name], d, nil
}

// RouteFor returns the descriptor name routed for an operator.
func (s *Set) RouteFor(operator string) (string, bool) {
	name, ok := s.routes[operator]
	return name, ok
}

// Default returns the default descriptor name ("" when unset).
func (s *Set) Default() string { return s.defaultName }

// Names returns the registered descriptor names.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.descriptors))
	for name := range s.descriptors {
		out = append(out, name)
	}
	return out
}
