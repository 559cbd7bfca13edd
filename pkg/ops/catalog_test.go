// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

func invoke(t *testing.T, operator string, provider backend.Provider, options Options, operands ...string) (symbol.Symbol, error) {
	t.Helper()
	r := NewRegistry(nil)
	capability, err := r.Resolve(operator)
	require.NoError(t, err)
	syms := make([]symbol.Symbol, len(operands))
	for i, text := range operands {
		syms[i] = symbol.New(text)
	}
	return capability.Invoke(context.Background(),
		Call{Operator: operator, Operands: syms, Options: options}, provider)
}

// TestRulePathWithoutCompleter verifies deterministic rules service the
// boolean operators when no completion backend is selected.
func TestRulePathWithoutCompleter(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})

	tests := []struct {
		name     string
		operator string
		options  Options
		operands []string
		want     string
	}{
		{"equals case-insensitive", symbol.OpEquals, nil, []string{"Hello", "hello"}, "true"},
		{"equals different", symbol.OpEquals, nil, []string{"a", "b"}, "false"},
		{"contains hit", symbol.OpContains, nil, []string{"the quick brown fox", "quick"}, "true"},
		{"contains miss", symbol.OpContains, nil, []string{"abc", "xyz"}, "false"},
		{"compare numeric", symbol.OpCompare, Options{OptComparator: "<"}, []string{"3", "12"}, "true"},
		{"compare numeric not lexicographic", symbol.OpCompare, Options{OptComparator: ">"}, []string{"3", "12"}, "false"},
		{"compare lexicographic", symbol.OpCompare, Options{OptComparator: "<"}, []string{"apple", "banana"}, "true"},
		{"clean collapses whitespace", symbol.OpClean, nil, []string{"  a   b\t c  "}, "a b c"},
		{"negate prefixes", symbol.OpNegate, nil, []string{"raining"}, "not raining"},
		{"negate unwraps", symbol.OpNegate, nil, []string{"not raining"}, "raining"},
		{"combine joins", symbol.OpCombine, nil, []string{"a", "b"}, "a\nb"},
		{"classify exact", symbol.OpClassify, nil, []string{"positive", "positive\nnegative"}, "positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := invoke(t, tc.operator, det, tc.options, tc.operands...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Text())
			assert.Equal(t, tc.operator, result.Meta().Origin)
		})
	}
}

// TestPromptPathWithCompleter verifies a completion-capable provider
// routes through the prompt template and carries usage metadata.
func TestPromptPathWithCompleter(t *testing.T) {
	stub := &backend.StubProvider{
		ProviderName: "stub",
		Response:     "  Good morning\n",
		Usage:        symbol.Usage{PromptTokens: 20, CompletionTokens: 3, TotalTokens: 23},
	}

	result, err := invoke(t, symbol.OpTranslate, stub,
		Options{OptLanguage: "English"}, "guten morgen")
	require.NoError(t, err)

	assert.Equal(t, "Good morning", result.Text(), "output should be trimmed")
	assert.Equal(t, symbol.OpTranslate, result.Meta().Origin)
	assert.Equal(t, 23, result.Meta().Usage.TotalTokens)
	assert.Equal(t, 1, stub.Calls())
}

// TestPromptOnlyOperatorNeedsCompleter verifies translate has no rule
// fallback and reports unavailability on a non-completion provider.
func TestPromptOnlyOperatorNeedsCompleter(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})
	_, err := invoke(t, symbol.OpTranslate, det, nil, "bonjour")
	require.Error(t, err)
	assert.Equal(t, fault.KindOperatorUnavailable, fault.KindOf(err))
}

// TestSimilarityDeterministic verifies identical text scores 1.0 on
// the hash-embedding provider and the score parses as a float.
func TestSimilarityDeterministic(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})

	same, err := invoke(t, symbol.OpSimilarity, det, nil, "alpha", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "1.0000", same.Text())

	different, err := invoke(t, symbol.OpSimilarity, det, nil, "alpha", "omega")
	require.NoError(t, err)
	assert.NotEqual(t, "1.0000", different.Text())
}

// TestMinOperands verifies arity violations are configuration errors.
func TestMinOperands(t *testing.T) {
	det := backend.NewDeterministic(backend.Descriptor{Name: "det"})
	_, err := invoke(t, symbol.OpEquals, det, nil, "only one")
	require.Error(t, err)
	assert.Equal(t, fault.KindConfiguration, fault.KindOf(err))
}
