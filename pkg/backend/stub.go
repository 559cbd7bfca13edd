// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"sync"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// StubProvider is a scriptable backend for tests and dry runs.
//
// It can return a fixed response, fail a configured number of times with
// a transient error before succeeding, or hang until the context expires.
type StubProvider struct {
	// ProviderName defaults to "stub" when empty.
	ProviderName string

	// Response is returned by Complete on success.
	Response string

	// Usage is attached to successful completions.
	Usage symbol.Usage

	// FailTimes makes the first N calls fail with a transient
	// inference error.
	FailTimes int

	// Err, when set, is returned by every call (after FailTimes is
	// exhausted FailTimes takes precedence).
	Err error

	// Hang blocks Complete until the context is done.
	Hang bool

	// Vectors, when set, are returned by Embed (keyed by input text).
	Vectors map[string][]float32

	mu    sync.Mutex
	calls int
}

// Name implements Provider.
func (s *StubProvider) Name() string {
	if s.ProviderName == "" {
		return "stub"
	}
	return s.ProviderName
}

// Kind implements Provider.
func (s *StubProvider) Kind() Kind { return KindCompletion }

// Calls returns how many Complete calls were observed.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Complete implements Completer.
func (s *StubProvider) Complete(ctx context.Context, _ CompletionRequest) (CompletionResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.Hang {
		<-ctx.Done()
		return CompletionResult{}, classifyProviderError(ctx.Err(), s.Name())
	}
	if call <= s.FailTimes {
		return CompletionResult{}, fault.Transient(nil, "backend %q scripted failure %d", s.Name(), call)
	}
	if s.Err != nil {
		return CompletionResult{}, s.Err
	}
	return CompletionResult{Text: s.Response, Usage: s.Usage}, nil
}

// Embed implements Embedder with scripted vectors, falling back to
// hash-derived ones.
func (s *StubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	det := &DeterministicProvider{name: s.Name()}
	for i, text := range texts {
		if vec, ok := s.Vectors[text]; ok {
			out[i] = vec
			continue
		}
		vecs, err := det.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		out[i] = vecs[0]
	}
	return out, nil
}

var _ Completer = (*StubProvider)(nil)
var _ Embedder = (*StubProvider)(nil)
