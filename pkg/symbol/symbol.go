// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package symbol implements the symbolic value and expression model.
//
// A Symbol wraps an arbitrary payload plus metadata describing where it
// came from (origin operator, backend, usage accounting). Symbols are
// immutable: every operator application produces a new Symbol.
//
// An Expr is a deferred operator application over operand expressions.
// Building an Expr costs nothing; evaluation happens when the execution
// engine walks the tree in post-order.
package symbol

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Usage accounts for tokens consumed by a backend call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Metadata describes the provenance of a Symbol.
//
// # Fields
//
//   - Origin: operator that produced the value ("" for literals).
//   - Backend: name of the backend descriptor that serviced the call.
//   - Degraded: true when a fallback backend was substituted for the
//     preferred one.
//   - Retries: number of transient failures before success.
//   - CacheHit: true when the value came from the content-addressed cache.
//   - Elapsed: wall time of the producing backend call.
//   - Usage: token accounting reported by the backend.
type Metadata struct {
	Origin   string        `json:"origin,omitempty"`
	Backend  string        `json:"backend,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
	Retries  int           `json:"retries,omitempty"`
	CacheHit bool          `json:"cache_hit,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Usage    Usage         `json:"usage"`
}

// Symbol is an immutable value-plus-metadata unit.
//
// Symbol has value semantics; copying is cheap and safe. The content hash
// is computed once at construction so cache lookups never re-hash.
type Symbol struct {
	text string
	hash string
	meta Metadata
}

// New creates a Symbol from an arbitrary payload.
//
// Payloads are normalized to a canonical text form so hashing is stable:
// strings pass through, string slices join with newlines, string maps
// render as sorted "key: value" lines, nested Symbols contribute their
// canonical text, anything else goes through fmt.
func New(value any) Symbol {
	text := Canonical(value)
	return Symbol{text: text, hash: HashText(text)}
}

// WithMeta creates a Symbol carrying provenance metadata.
func WithMeta(value any, meta Metadata) Symbol {
	s := New(value)
	s.meta = meta
	return s
}

// Text returns the canonical text payload.
func (s Symbol) Text() string { return s.text }

// Hash returns the content hash (64-char lowercase hex SHA256).
func (s Symbol) Hash() string { return s.hash }

// Meta returns a copy of the provenance metadata.
func (s Symbol) Meta() Metadata { return s.meta }

// IsZero reports whether s is the zero Symbol.
func (s Symbol) IsZero() bool { return s.hash == "" }

// Equal reports content equality via hash comparison.
func (s Symbol) Equal(other Symbol) bool { return s.hash == other.hash }

func (s Symbol) String() string { return s.text }

// Canonical normalizes a payload to its canonical text form.
func Canonical(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case Symbol:
		return v.text
	case *Symbol:
		if v == nil {
			return ""
		}
		return v.text
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v[k])
		}
		return b.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
