// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/noema-ai/noema/pkg/fault"
)

// Registry maps operator names to capability implementations.
//
// Extension packages may register additional operators at runtime;
// duplicate names are rejected unless the override flag is set, so a
// community package cannot silently shadow a built-in.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
	logger       *slog.Logger
}

// NewRegistry creates a registry pre-populated with the built-in
// operator catalog.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		capabilities: map[string]Capability{},
		logger:       logger,
	}
	for name, cap := range builtinCatalog() {
		r.capabilities[name] = cap
	}
	return r
}

// Register adds a capability under name. Duplicate names fail with a
// configuration error.
func (r *Registry) Register(name string, cap Capability) error {
	return r.register(name, cap, false)
}

// RegisterOverride adds a capability under name, replacing any existing
// registration. Use from extension packages that intentionally reshape
// a built-in operator.
func (r *Registry) RegisterOverride(name string, cap Capability) error {
	return r.register(name, cap, true)
}

func (r *Registry) register(name string, cap Capability, override bool) error {
	if name == "" {
		return fault.Configuration("operator name must not be empty")
	}
	if cap == nil {
		return fault.Configuration("operator %q registered with nil capability", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[name]; exists && !override {
		return fault.Configuration("operator %q is already registered", name)
	}
	r.capabilities[name] = cap
	r.logger.Debug("registered operator", "operator", name, "override", override)
	return nil
}

// Resolve returns the capability for an operator name.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, exists := r.capabilities[name]
	if !exists {
		return nil, fault.OperatorUnavailable(name)
	}
	return cap, nil
}

// Has reports whether an operator name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.capabilities[name]
	return exists
}

// ValidateOperators rejects unknown names ahead of evaluation, so a
// tree referencing a missing operator fails before any inference call.
func (r *Registry) ValidateOperators(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if _, exists := r.capabilities[name]; !exists {
			return fault.OperatorUnavailable(name)
		}
	}
	return nil
}

// Names returns the sorted registered operator names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
