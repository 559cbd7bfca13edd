// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine evaluates symbolic expression trees into concrete
// Symbols.
//
// Evaluation is recursive post-order: operands are resolved before their
// operator executes, so every capability sees concrete Symbols. Each
// node's result is memoized under a content-addressed key so identical
// sub-expressions within one cache scope pay inference cost once.
//
// # Determinism contract
//
// Within one cache scope, identical (operator, operand hashes, options)
// triples return the cached Symbol. Across cache scopes no determinism
// is promised: model outputs may vary, and nothing here assumes
// idempotence beyond the explicit cache.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/ops"
	"github.com/noema-ai/noema/pkg/symbol"
)

var tracer = otel.Tracer("noema.engine")

// Defaults are the global evaluation knobs supplied by configuration.
type Defaults struct {
	// MaxAttempts bounds transient-error retries per node. Minimum 1.
	MaxAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// Timeout applies when the caller's context has no deadline.
	// 0 disables the implicit deadline.
	Timeout time.Duration
}

// sane fallbacks when configuration leaves fields zero
const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 100 * time.Millisecond
)

func (d Defaults) withFallbacks() Defaults {
	if d.MaxAttempts < 1 {
		d.MaxAttempts = defaultMaxAttempts
	}
	if d.BackoffBase <= 0 {
		d.BackoffBase = defaultBackoffBase
	}
	return d
}

// Engine evaluates expression trees against a frozen backend set.
//
// # Thread Safety
//
// Engine is safe for concurrent use; each Evaluate call owns its own
// memo scope unless a shared cache is configured.
type Engine struct {
	registry *ops.Registry
	backends *backend.Set
	defaults Defaults
	shared   Cache
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSharedCache switches the engine from per-evaluation memoization
// to the given process-wide cache.
func WithSharedCache(c Cache) Option {
	return func(e *Engine) { e.shared = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. The backend set is frozen here: descriptors are
// immutable for the lifetime of the execution context.
func New(registry *ops.Registry, backends *backend.Set, defaults Defaults, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fault.Configuration("engine requires an operator registry")
	}
	if backends == nil {
		return nil, fault.Configuration("engine requires a backend set")
	}
	backends.Freeze()
	e := &Engine{
		registry: registry,
		backends: backends,
		defaults: defaults.withFallbacks(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Registry exposes the operator registry for runtime extension.
func (e *Engine) Registry() *ops.Registry { return e.registry }

// EvalOption configures a single Evaluate call.
type EvalOption func(*evalConfig)

type evalConfig struct {
	sessionBackend string
	cache          Cache
}

// WithSessionBackend sets the session-default backend for this
// evaluation. Precedence: per-call option > session default > routed or
// global default.
func WithSessionBackend(name string) EvalOption {
	return func(c *evalConfig) { c.sessionBackend = name }
}

// WithCache overrides the cache scope for this evaluation.
func WithCache(cache Cache) EvalOption {
	return func(c *evalConfig) { c.cache = cache }
}

// Evaluate resolves an expression tree into a concrete Symbol.
//
// The whole tree is validated before any backend call: structure
// (no cycles, no empty operand lists), operator names against the
// registry, and option key sets. Transient inference errors retry with
// exponential backoff against the caller's deadline budget.
func (e *Engine) Evaluate(ctx context.Context, expr *symbol.Expr, opts ...EvalOption) (symbol.Symbol, error) {
	if expr == nil {
		return symbol.Symbol{}, fault.Configuration("cannot evaluate a nil expression")
	}

	var cfg evalConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := expr.Validate(); err != nil {
		return symbol.Symbol{}, err
	}
	if err := e.registry.ValidateOperators(expr.Operators()); err != nil {
		return symbol.Symbol{}, err
	}
	if err := validateTreeOptions(expr); err != nil {
		return symbol.Symbol{}, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.defaults.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.defaults.Timeout)
		defer cancel()
	}

	cache := cfg.cache
	if cache == nil {
		cache = e.shared
	}
	if cache == nil {
		cache = newMemoCache()
	}

	ctx, span := tracer.Start(ctx, "engine.evaluate")
	defer span.End()

	result, err := e.eval(ctx, expr, cache, cfg.sessionBackend)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fault.KindOf(err)))
		evaluationsTotal.WithLabelValues("error").Inc()
		return symbol.Symbol{}, err
	}
	evaluationsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// validateTreeOptions rejects unrecognized options anywhere in the tree
// before inference cost is paid for sibling nodes.
func validateTreeOptions(expr *symbol.Expr) error {
	if expr.IsLiteral() {
		return nil
	}
	if err := ops.Options(expr.Options()).Validate(); err != nil {
		return err
	}
	for _, operand := range expr.Operands() {
		if err := validateTreeOptions(operand); err != nil {
			return err
		}
	}
	return nil
}

// eval resolves one node post-order.
func (e *Engine) eval(ctx context.Context, node *symbol.Expr, cache Cache, sessionBackend string) (symbol.Symbol, error) {
	if err := ctxFault(ctx); err != nil {
		return symbol.Symbol{}, err
	}
	if node.IsLiteral() {
		return node.Literal(), nil
	}

	operandExprs := node.Operands()
	operands := make([]symbol.Symbol, len(operandExprs))
	hashes := make([]string, len(operandExprs))
	for i, operandExpr := range operandExprs {
		operand, err := e.eval(ctx, operandExpr, cache, sessionBackend)
		if err != nil {
			return symbol.Symbol{}, err
		}
		operands[i] = operand
		hashes[i] = operand.Hash()
	}

	options := ops.Options(node.Options())
	key := cacheKey(node.Op(), hashes, options.Canonical())
	if cached, ok := cache.Get(key); ok {
		cacheHitsTotal.WithLabelValues(node.Op()).Inc()
		meta := cached.Meta()
		meta.CacheHit = true
		return symbol.WithMeta(cached.Text(), meta), nil
	}

	capability, err := e.registry.Resolve(node.Op())
	if err != nil {
		return symbol.Symbol{}, err
	}

	call := ops.Call{Operator: node.Op(), Operands: operands, Options: options}
	result, err := e.dispatch(ctx, call, capability, sessionBackend)
	if err != nil {
		return symbol.Symbol{}, err
	}

	cache.Set(key, result)
	return result, nil
}

// dispatch selects a backend by precedence, invokes the capability with
// retry, and substitutes the configured fallback backend when the
// primary stays unavailable.
func (e *Engine) dispatch(ctx context.Context, call ops.Call, capability ops.Capability, sessionBackend string) (symbol.Symbol, error) {
	name := call.Options.Backend()
	explicit := name != ""
	if name == "" {
		name = sessionBackend
	}
	if name == "" {
		if routed, ok := e.backends.RouteFor(call.Operator); ok {
			name = routed
		} else {
			name = e.backends.Default()
		}
	}
	if name == "" {
		return symbol.Symbol{}, fault.OperatorUnavailable(call.Operator)
	}

	provider, descriptor, err := e.backends.Lookup(name)
	if err != nil {
		if explicit {
			// A per-call override naming a missing backend is a caller
			// mistake, not an unavailable operator.
			return symbol.Symbol{}, err
		}
		return symbol.Symbol{}, fault.OperatorUnavailable(call.Operator)
	}

	result, retries, err := e.invokeWithRetry(ctx, call, capability, provider)
	if err != nil && descriptor.Fallback != "" && fault.IsKind(err, fault.KindInference) {
		fbProvider, _, fbErr := e.backends.Lookup(descriptor.Fallback)
		if fbErr != nil {
			e.logger.Error("fallback backend is not registered",
				"operator", call.Operator, "primary", name, "fallback", descriptor.Fallback)
			return symbol.Symbol{}, err
		}
		e.logger.Warn("substituting fallback backend",
			"operator", call.Operator, "primary", name, "fallback", descriptor.Fallback, "error", err)
		var fbRetries int
		result, fbRetries, err = e.invokeWithRetry(ctx, call, capability, fbProvider)
		if err != nil {
			return symbol.Symbol{}, err
		}
		meta := result.Meta()
		meta.Degraded = true
		meta.Backend = fbProvider.Name()
		meta.Retries = retries + fbRetries
		return symbol.WithMeta(result.Text(), meta), nil
	}
	if err != nil {
		return symbol.Symbol{}, err
	}

	meta := result.Meta()
	meta.Backend = provider.Name()
	meta.Retries = retries
	return symbol.WithMeta(result.Text(), meta), nil
}

// invokeWithRetry runs one capability invocation with bounded retry on
// transient inference errors. Backoff doubles per attempt and the
// caller's deadline budget covers retries too.
func (e *Engine) invokeWithRetry(ctx context.Context, call ops.Call, capability ops.Capability, provider backend.Provider) (symbol.Symbol, int, error) {
	ctx, span := tracer.Start(ctx, "engine.invoke")
	span.SetAttributes(
		attribute.String("operator", call.Operator),
		attribute.String("backend", provider.Name()),
	)
	defer span.End()

	start := time.Now()
	backoff := e.defaults.BackoffBase
	retries := 0
	var result symbol.Symbol
	var err error

	for attempt := 1; attempt <= e.defaults.MaxAttempts; attempt++ {
		result, err = capability.Invoke(ctx, call, provider)
		if err == nil || !fault.IsTransient(err) {
			break
		}
		if attempt == e.defaults.MaxAttempts {
			break
		}
		retriesTotal.WithLabelValues(call.Operator, provider.Name()).Inc()
		e.logger.Warn("transient inference error, retrying",
			"operator", call.Operator,
			"backend", provider.Name(),
			"attempt", attempt,
			"max_attempts", e.defaults.MaxAttempts,
			"backoff", backoff,
			"error", err)
		select {
		case <-ctx.Done():
			invokeDuration.WithLabelValues(call.Operator, provider.Name()).Observe(time.Since(start).Seconds())
			invocationsTotal.WithLabelValues(call.Operator, provider.Name(), "error").Inc()
			return symbol.Symbol{}, retries, ctxFault(ctx)
		case <-time.After(backoff):
		}
		backoff *= 2
		retries++
	}

	invokeDuration.WithLabelValues(call.Operator, provider.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		// A transient failure that exhausted the deadline reports as
		// timeout/cancellation, matching what the caller observed.
		if ctxErr := ctxFault(ctx); ctxErr != nil && fault.IsTransient(err) {
			err = ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fault.KindOf(err)))
		invocationsTotal.WithLabelValues(call.Operator, provider.Name(), "error").Inc()
		return symbol.Symbol{}, retries, err
	}

	invocationsTotal.WithLabelValues(call.Operator, provider.Name(), "success").Inc()
	usage := result.Meta().Usage
	if usage.PromptTokens > 0 {
		tokensTotal.WithLabelValues("input", provider.Name()).Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		tokensTotal.WithLabelValues("output", provider.Name()).Add(float64(usage.CompletionTokens))
	}
	return result, retries, nil
}

// ctxFault maps a context error to the protocol-visible fault kind.
func ctxFault(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return fault.Timeout("evaluation deadline expired")
	case context.Canceled:
		return fault.Cancelled("evaluation cancelled")
	default:
		return nil
	}
}
