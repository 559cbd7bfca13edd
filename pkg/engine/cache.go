// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/noema-ai/noema/pkg/symbol"
)

// Cache is the content-addressed result store consulted before any
// inference call. Keys are derived from (operator, operand hashes,
// canonical options); values for a given key are expected to be
// equivalent, so last-write-wins under concurrency is acceptable.
type Cache interface {
	Get(key string) (symbol.Symbol, bool)
	Set(key string, value symbol.Symbol)
}

// cacheKey derives the content-addressed key for one operator node.
func cacheKey(operator string, operandHashes []string, canonicalOpts string) string {
	sum := sha256.Sum256([]byte(operator + "\x00" + strings.Join(operandHashes, "\x00") + "\x00" + canonicalOpts))
	return hex.EncodeToString(sum[:])
}

// memoCache is the per-evaluation scope: a plain map, no locking needed
// because one evaluation pass runs on one goroutine.
type memoCache struct {
	entries map[string]symbol.Symbol
}

func newMemoCache() *memoCache {
	return &memoCache{entries: map[string]symbol.Symbol{}}
}

func (c *memoCache) Get(key string) (symbol.Symbol, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoCache) Set(key string, value symbol.Symbol) {
	c.entries[key] = value
}

// SharedCacheConfig configures the process-wide BadgerDB-backed cache.
type SharedCacheConfig struct {
	// Path is the directory for the Badger files. Ignored when InMemory.
	Path string

	// InMemory keeps the cache off disk. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// TTL expires entries after the given duration. 0 means no expiry.
	TTL time.Duration

	// Logger for cache warnings. Cache failures are never fatal.
	Logger *slog.Logger
}

// SharedCache is the optional process-wide content-addressed store,
// shared across sessions and evaluations when enabled by configuration.
//
// Concurrent access is safe: Badger serializes writers per key and the
// values for a key are equivalent by construction.
type SharedCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSharedCache opens the Badger store.
func NewSharedCache(cfg SharedCacheConfig) (*SharedCache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open shared cache: %w", err)
	}
	return &SharedCache{db: db, ttl: cfg.TTL, logger: logger}, nil
}

// Get implements Cache. Read failures degrade to a miss.
func (c *SharedCache) Get(key string) (symbol.Symbol, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return symbol.Symbol{}, false
	}
	var entry cachedSymbol
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("shared cache entry is corrupt, dropping", "key", key, "error", err)
		return symbol.Symbol{}, false
	}
	return symbol.WithMeta(entry.Text, entry.Meta), true
}

// Set implements Cache. Write failures are logged, not propagated; the
// evaluation result is already in hand.
func (c *SharedCache) Set(key string, value symbol.Symbol) {
	raw, err := json.Marshal(cachedSymbol{Text: value.Text(), Meta: value.Meta()})
	if err != nil {
		c.logger.Warn("shared cache encode failed", "key", key, "error", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), raw)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Close releases the Badger store.
func (c *SharedCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

type cachedSymbol struct {
	Text string          `json:"text"`
	Meta symbol.Metadata `json:"meta"`
}

var _ Cache = (*memoCache)(nil)
var _ Cache = (*SharedCache)(nil)
