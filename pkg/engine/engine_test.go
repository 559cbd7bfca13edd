// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/ops"
	"github.com/noema-ai/noema/pkg/symbol"
)

// newTestEngine builds an engine over the given providers. The first
// name becomes the global default.
func newTestEngine(t *testing.T, defaults Defaults, providers map[string]backend.Provider, defaultName string, fallbacks map[string]string) *Engine {
	t.Helper()
	set := backend.NewSet(nil)
	for name, provider := range providers {
		d := backend.Descriptor{Name: name, Kind: backend.KindCompletion}
		if fb, ok := fallbacks[name]; ok {
			d.Fallback = fb
		}
		require.NoError(t, set.Add(d, provider))
	}
	if defaultName != "" {
		require.NoError(t, set.SetDefault(defaultName))
	}
	eng, err := New(ops.NewRegistry(nil), set, defaults)
	require.NoError(t, err)
	return eng
}

func fastDefaults() Defaults {
	return Defaults{MaxAttempts: 3, BackoffBase: time.Millisecond}
}

// TestEvaluateDeterministicCompare runs the rule path end to end and
// checks result provenance.
func TestEvaluateDeterministicCompare(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"det": det}, "det", nil)

	expr := symbol.Lit("3").Compare("<", symbol.Lit("12"))
	result, err := eng.Evaluate(context.Background(), expr)
	require.NoError(t, err)

	assert.Equal(t, "true", result.Text())
	assert.Equal(t, symbol.OpCompare, result.Meta().Origin)
	assert.Equal(t, "det", result.Meta().Backend)
	assert.Zero(t, result.Meta().Retries)
	assert.False(t, result.Meta().Degraded)
}

// TestEvaluatePromptPath routes a completion-capable stub through the
// prompt template and aggregates usage into metadata.
func TestEvaluatePromptPath(t *testing.T) {
	stub := &backend.StubProvider{
		ProviderName: "stub",
		Response:     "Good morning",
		Usage:        symbol.Usage{PromptTokens: 12, CompletionTokens: 2, TotalTokens: 14},
	}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	result, err := eng.Evaluate(context.Background(),
		symbol.Lit("guten morgen").Translate("English"))
	require.NoError(t, err)

	assert.Equal(t, "Good morning", result.Text())
	assert.Equal(t, "stub", result.Meta().Backend)
	assert.Equal(t, 14, result.Meta().Usage.TotalTokens)
	assert.Equal(t, 1, stub.Calls())
}

// TestRetryRecordsAttempts fails twice transiently and succeeds on the
// third attempt; metadata reports the retries.
func TestRetryRecordsAttempts(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "flaky", Response: "ok", FailTimes: 2}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"flaky": stub}, "flaky", nil)

	result, err := eng.Evaluate(context.Background(), symbol.Lit("x").Summarize())
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Text())
	assert.Equal(t, 2, result.Meta().Retries)
	assert.Equal(t, 3, stub.Calls())
}

// TestRetriesExhausted verifies a persistently failing backend
// surfaces the inference error after the attempt budget.
func TestRetriesExhausted(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "down", FailTimes: 100}
	eng := newTestEngine(t, Defaults{MaxAttempts: 2, BackoffBase: time.Millisecond},
		map[string]backend.Provider{"down": stub}, "down", nil)

	_, err := eng.Evaluate(context.Background(), symbol.Lit("x").Summarize())
	require.Error(t, err)
	assert.Equal(t, fault.KindInference, fault.KindOf(err))
	assert.Equal(t, 2, stub.Calls())
}

// TestDeadlineProducesTimeout verifies a hanging backend is cut off by
// the context deadline with the timeout kind.
func TestDeadlineProducesTimeout(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stuck", Hang: true}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stuck": stub}, "stuck", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := eng.Evaluate(ctx, symbol.Lit("x").Summarize())
	require.Error(t, err)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
}

// TestCancellation verifies caller cancellation maps to the cancelled
// kind, distinct from timeout.
func TestCancellation(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stuck", Hang: true}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stuck": stub}, "stuck", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := eng.Evaluate(ctx, symbol.Lit("x").Summarize())
	require.Error(t, err)
	assert.Equal(t, fault.KindCancelled, fault.KindOf(err))
}

// TestUnknownOperatorFailsBeforeInference verifies validation rejects
// the tree without paying any backend cost.
func TestUnknownOperatorFailsBeforeInference(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stub", Response: "ok"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	expr := symbol.Apply("conjure", []*symbol.Expr{symbol.Lit("x").Summarize()})
	_, err := eng.Evaluate(context.Background(), expr)
	require.Error(t, err)
	assert.Equal(t, fault.KindOperatorUnavailable, fault.KindOf(err))
	assert.Zero(t, stub.Calls(), "no operand may be evaluated for an invalid tree")
}

// TestUnknownOptionFailsBeforeInference verifies option typos anywhere
// in the tree reject the whole evaluation up front.
func TestUnknownOptionFailsBeforeInference(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stub", Response: "ok"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	expr := symbol.Lit("x").Summarize(symbol.WithOption("temprature", 0.7))
	_, err := eng.Evaluate(context.Background(), expr)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfiguration, fault.KindOf(err))
	assert.Zero(t, stub.Calls())
}

// TestMemoizationWithinEvaluation verifies identical sub-expressions
// cost one inference call inside a single Evaluate.
func TestMemoizationWithinEvaluation(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stub", Response: "S"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	left := symbol.Lit("report").Summarize()
	right := symbol.Lit("report").Summarize()
	expr := left.Combine(right)

	_, err := eng.Evaluate(context.Background(), expr)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Calls(), "summarize once (memoized), combine once")

	// A fresh evaluation owns a fresh memo scope.
	_, err = eng.Evaluate(context.Background(), expr)
	require.NoError(t, err)
	assert.Equal(t, 4, stub.Calls())
}

// TestSharedCacheAcrossEvaluations verifies the badger-backed cache
// carries results between evaluations and marks hits.
func TestSharedCacheAcrossEvaluations(t *testing.T) {
	shared, err := NewSharedCache(SharedCacheConfig{InMemory: true})
	require.NoError(t, err)
	defer shared.Close()

	stub := &backend.StubProvider{ProviderName: "stub", Response: "S"}
	set := backend.NewSet(nil)
	require.NoError(t, set.Add(backend.Descriptor{Name: "stub"}, stub))
	require.NoError(t, set.SetDefault("stub"))
	eng, err := New(ops.NewRegistry(nil), set, fastDefaults(), WithSharedCache(shared))
	require.NoError(t, err)

	expr := symbol.Lit("report").Summarize()

	first, err := eng.Evaluate(context.Background(), expr)
	require.NoError(t, err)
	assert.False(t, first.Meta().CacheHit)

	second, err := eng.Evaluate(context.Background(), expr)
	require.NoError(t, err)
	assert.True(t, second.Meta().CacheHit)
	assert.True(t, first.Equal(second), "cached result must be hash-identical")
	assert.Equal(t, 1, stub.Calls())
}

// TestFallbackSubstitution verifies a failed primary hands off to its
// configured fallback and the result is flagged degraded.
func TestFallbackSubstitution(t *testing.T) {
	primary := &backend.StubProvider{ProviderName: "primary", FailTimes: 100}
	backup := &backend.StubProvider{ProviderName: "backup", Response: "from backup"}
	eng := newTestEngine(t, Defaults{MaxAttempts: 2, BackoffBase: time.Millisecond},
		map[string]backend.Provider{"primary": primary, "backup": backup},
		"primary", map[string]string{"primary": "backup"})

	result, err := eng.Evaluate(context.Background(), symbol.Lit("x").Summarize())
	require.NoError(t, err)

	assert.Equal(t, "from backup", result.Text())
	assert.True(t, result.Meta().Degraded)
	assert.Equal(t, "backup", result.Meta().Backend)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 1, backup.Calls())
}

// TestBackendPrecedence verifies per-call override beats the session
// default, which beats the global default.
func TestBackendPrecedence(t *testing.T) {
	a := &backend.StubProvider{ProviderName: "a", Response: "from a"}
	b := &backend.StubProvider{ProviderName: "b", Response: "from b"}
	c := &backend.StubProvider{ProviderName: "c", Response: "from c"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"a": a, "b": b, "c": c}, "a", nil)

	// Global default.
	result, err := eng.Evaluate(context.Background(), symbol.Lit("x").Summarize())
	require.NoError(t, err)
	assert.Equal(t, "from a", result.Text())

	// Session default wins over global.
	result, err = eng.Evaluate(context.Background(), symbol.Lit("x").Summarize(),
		WithSessionBackend("b"))
	require.NoError(t, err)
	assert.Equal(t, "from b", result.Text())

	// Per-call option wins over session.
	result, err = eng.Evaluate(context.Background(),
		symbol.Lit("x").Summarize(symbol.WithBackend("c")),
		WithSessionBackend("b"))
	require.NoError(t, err)
	assert.Equal(t, "from c", result.Text())
}

// TestExplicitUnknownBackend verifies a per-call override naming a
// missing backend is a caller error, not silent fallback.
func TestExplicitUnknownBackend(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stub", Response: "ok"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	_, err := eng.Evaluate(context.Background(),
		symbol.Lit("x").Summarize(symbol.WithBackend("nope")))
	require.Error(t, err)
	assert.Equal(t, fault.KindConfiguration, fault.KindOf(err))
}

// TestNilExpression verifies the degenerate input is rejected.
func TestNilExpression(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"det": det}, "det", nil)

	_, err := eng.Evaluate(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfiguration, fault.KindOf(err))
}

// TestLiteralShortCircuit verifies a bare literal evaluates without
// touching any backend.
func TestLiteralShortCircuit(t *testing.T) {
	stub := &backend.StubProvider{ProviderName: "stub"}
	eng := newTestEngine(t, fastDefaults(),
		map[string]backend.Provider{"stub": stub}, "stub", nil)

	result, err := eng.Evaluate(context.Background(), symbol.Lit("just text"))
	require.NoError(t, err)
	assert.Equal(t, "just text", result.Text())
	assert.Zero(t, stub.Calls())
}
