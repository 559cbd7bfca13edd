// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestHashStability verifies the identity contract: equal text means
// equal hash, across values and across time.
func TestHashStability(t *testing.T) {
	a := New("the quick brown fox")
	b := New("the quick brown fox")
	c := New("the quick brown fox.")

	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.Equal(b))
	assert.NotEqual(t, a.Hash(), c.Hash(), "one-character change must change the hash")
	assert.Len(t, a.Hash(), 64, "sha256 hex digest")

	// The algorithm is frozen; cached results depend on it.
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		HashText("hello"))
}

// TestMetadataDoesNotAffectIdentity verifies provenance rides along
// without participating in equality.
func TestMetadataDoesNotAffectIdentity(t *testing.T) {
	plain := New("result")
	tagged := WithMeta("result", Metadata{
		Backend: "local",
		Retries: 2,
		Elapsed: 40 * time.Millisecond,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})

	assert.True(t, plain.Equal(tagged))
	assert.Equal(t, "local", tagged.Meta().Backend)
	assert.Zero(t, plain.Meta().Backend)
}

// TestCanonical verifies non-string values normalize deterministically
// before hashing.
func TestCanonical(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string passthrough", "abc", "abc"},
		{"slice joins with newlines", []string{"a", "b"}, "a\nb"},
		{"map sorts keys", map[string]string{"z": "1", "a": "2"}, "a: 2\nz: 1"},
		{"int formats", 42, "42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Canonical(tc.value))
		})
	}

	// Same logical map, different insertion order, same Symbol.
	m1 := map[string]string{"k1": "v1", "k2": "v2"}
	m2 := map[string]string{"k2": "v2", "k1": "v1"}
	assert.True(t, New(m1).Equal(New(m2)))
}

// TestUsageAdd verifies token accounting accumulates.
func TestUsageAdd(t *testing.T) {
	total := Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14}.
		Add(Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	assert.Equal(t, Usage{PromptTokens: 13, CompletionTokens: 6, TotalTokens: 19}, total)
}

// TestZeroSymbol verifies the zero value is detectable.
func TestZeroSymbol(t *testing.T) {
	var s Symbol
	assert.True(t, s.IsZero())
	assert.False(t, New("").IsZero(), "empty text is still a value")
}
