// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/symbol"
)

// TestCacheKeyDeterminism verifies keys depend only on operator,
// operand hashes, and canonical options.
func TestCacheKeyDeterminism(t *testing.T) {
	hashes := []string{symbol.HashText("a"), symbol.HashText("b")}

	k1 := cacheKey("equals", hashes, "temperature=0.2")
	k2 := cacheKey("equals", hashes, "temperature=0.2")
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, cacheKey("contains", hashes, "temperature=0.2"))
	assert.NotEqual(t, k1, cacheKey("equals", hashes, "temperature=0.3"))
	assert.NotEqual(t, k1, cacheKey("equals", hashes[:1], "temperature=0.2"))
}

// TestMemoCache verifies the per-evaluation scope.
func TestMemoCache(t *testing.T) {
	c := newMemoCache()
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", symbol.New("v"))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Text())
}

// TestSharedCacheRoundTrip verifies values survive the badger codec
// with their metadata.
func TestSharedCacheRoundTrip(t *testing.T) {
	c, err := NewSharedCache(SharedCacheConfig{InMemory: true})
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	stored := symbol.WithMeta("result text", symbol.Metadata{
		Origin:  "summarize",
		Backend: "local",
		Usage:   symbol.Usage{TotalTokens: 9},
	})
	c.Set("key", stored)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "result text", got.Text())
	assert.Equal(t, "local", got.Meta().Backend)
	assert.Equal(t, 9, got.Meta().Usage.TotalTokens)
	assert.True(t, stored.Equal(got))
}

// TestSharedCacheClose verifies a closed cache degrades to misses
// instead of failing evaluations.
func TestSharedCacheClose(t *testing.T) {
	c, err := NewSharedCache(SharedCacheConfig{InMemory: true})
	require.NoError(t, err)

	c.Set("key", symbol.New("v"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "double close is safe")

	_, ok := c.Get("key")
	assert.False(t, ok)

	// Writes after close are dropped silently.
	c.Set("other", symbol.New("w"))
}
