// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend provides the concrete inference providers that service
// operator invocations, plus the descriptor model that routes operator
// classes to providers.
//
// A provider is one of three kinds:
//
//   - completion: chat/completion LLM endpoints (OpenAI, Ollama)
//   - embedding: vector embedding endpoints used for similarity
//   - deterministic: pure Go rules, no network, fully reproducible
//
// Descriptors are resolved once per engine configuration and are
// immutable for the lifetime of an execution context.
package backend

import (
	"context"
	"math"

	"github.com/noema-ai/noema/pkg/symbol"
)

// Kind identifies the class of work a provider can service.
type Kind string

const (
	KindCompletion    Kind = "completion"
	KindEmbedding     Kind = "embedding"
	KindDeterministic Kind = "deterministic"
)

// Provider is the minimal contract every backend satisfies. Concrete
// abilities are expressed through Completer and Embedder; capabilities
// type-assert for what they need and report the operator unavailable
// otherwise.
type Provider interface {
	Name() string
	Kind() Kind
}

// CompletionRequest carries one prepared prompt to a completion backend.
//
// Optional sampling parameters use pointers so "unset" is distinguishable
// from zero values; unset fields fall back to the provider's defaults.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	Stop        []string
}

// CompletionResult is the text output plus usage accounting.
type CompletionResult struct {
	Text  string
	Usage symbol.Usage
}

// Completer is a provider that can service prompt-based operators.
type Completer interface {
	Provider
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Embedder is a provider that can embed texts into vectors.
type Embedder interface {
	Provider
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine computes cosine similarity between two vectors, clamped to [0, 1].
//
// Mismatched lengths or zero vectors score 0; upstream embedding models
// produce non-negative similarities for natural text, so the clamp only
// guards pathological inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
