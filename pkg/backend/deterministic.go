// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"crypto/sha256"
)

// DeterministicProvider is a rule-based backend with no network access.
//
// Prompt operators routed here take their deterministic code path in the
// operator catalog (exact string equality, substring containment, ...).
// Embeddings are derived from content hashes, which makes similarity
// scores reproducible: identical texts score 1.0, different texts score
// an arbitrary but stable value. Useful offline and in tests.
type DeterministicProvider struct {
	name string
}

// NewDeterministic builds the rule-based provider.
func NewDeterministic(d Descriptor) *DeterministicProvider {
	return &DeterministicProvider{name: d.Name}
}

// Name implements Provider.
func (p *DeterministicProvider) Name() string { return p.name }

// Kind implements Provider.
func (p *DeterministicProvider) Kind() Kind { return KindDeterministic }

// Embed implements Embedder with hash-derived pseudo-embeddings.
func (p *DeterministicProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, len(sum))
		for j, b := range sum {
			vec[j] = float32(b)/255.0 - 0.5
		}
		out[i] = vec
	}
	return out, nil
}

var _ Embedder = (*DeterministicProvider)(nil)
