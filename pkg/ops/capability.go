// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ops defines the operator capability contract and the registry
// mapping operator names to capability implementations.
//
// A capability turns concrete operand Symbols plus keyword options into a
// new Symbol via a pluggable backend: an LLM completion call, an embedding
// similarity computation, a deterministic rule, or a user-defined
// implementation registered at runtime.
//
// Operator dispatch is explicit: the registry is resolved at configuration
// time and unknown names are rejected before any inference cost is paid.
package ops

import (
	"context"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// Call is one operator invocation over concrete operands.
type Call struct {
	// Operator is the registered operator name.
	Operator string

	// Operands are the already-evaluated input Symbols, in order.
	// Must be non-empty.
	Operands []symbol.Symbol

	// Options is the validated keyword configuration for this call.
	Options Options
}

// Validate checks the structural invariants of a call.
func (c Call) Validate() error {
	if c.Operator == "" {
		return fault.Configuration("call has no operator name")
	}
	if len(c.Operands) == 0 {
		return fault.Configuration("operator %q invoked without operands", c.Operator)
	}
	return c.Options.Validate()
}

// Capability is the contract every symbolic operator satisfies.
//
// Invoke receives the provider selected by the engine's backend
// precedence rules; implementations type-assert the provider to the
// ability they need (backend.Completer, backend.Embedder) and return
// an operator-unavailable fault when it doesn't match.
//
// Implementations must be safe for concurrent use and must surface
// usage accounting in the returned Symbol's metadata.
type Capability interface {
	Invoke(ctx context.Context, call Call, provider backend.Provider) (symbol.Symbol, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, call Call, provider backend.Provider) (symbol.Symbol, error)

// Invoke implements Capability.
func (f CapabilityFunc) Invoke(ctx context.Context, call Call, provider backend.Provider) (symbol.Symbol, error) {
	return f(ctx, call, provider)
}
