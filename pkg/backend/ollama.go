// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// OllamaProvider services completion and embedding calls through a local
// Ollama server. No credentials are required.
type OllamaProvider struct {
	llm    *ollama.LLM
	name   string
	kind   Kind
	model  string
	logger *slog.Logger
}

// NewOllama builds a provider from a descriptor.
func NewOllama(d Descriptor, logger *slog.Logger) (*OllamaProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if d.Model == "" {
		return nil, fault.Configuration("backend %q: ollama provider requires a model", d.Name)
	}
	opts := []ollama.Option{ollama.WithModel(d.Model)}
	if d.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(d.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fault.Configuration("backend %q: init ollama client: %v", d.Name, err)
	}
	logger.Info("initializing ollama backend", "backend", d.Name, "model", d.Model, "base_url", d.BaseURL)
	return &OllamaProvider{llm: llm, name: d.Name, kind: d.Kind, model: d.Model, logger: logger}, nil
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return p.name }

// Kind implements Provider.
func (p *OllamaProvider) Kind() Kind { return p.kind }

// Complete implements Completer.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	var callOpts []llms.CallOption
	if req.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		callOpts = append(callOpts, llms.WithMaxTokens(*req.MaxTokens))
	}
	if req.TopP != nil {
		callOpts = append(callOpts, llms.WithTopP(*req.TopP))
	}
	if len(req.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(req.Stop))
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}
	resp, err := p.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return CompletionResult{}, classifyProviderError(err, p.name)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, fault.Permanent(nil, "backend %q returned no choices", p.name)
	}
	choice := resp.Choices[0]
	return CompletionResult{
		Text:  choice.Content,
		Usage: usageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// Embed implements Embedder.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, classifyProviderError(err, p.name)
	}
	if len(vecs) != len(texts) {
		return nil, fault.Permanent(nil, "backend %q returned %d embeddings for %d inputs",
			p.name, len(vecs), len(texts))
	}
	return vecs, nil
}

// usageFromGenerationInfo extracts token counts from the provider's
// generation info map. Key names differ between providers, so both
// spellings are checked.
func usageFromGenerationInfo(info map[string]any) symbol.Usage {
	var u symbol.Usage
	u.PromptTokens = intFromInfo(info, "PromptTokens", "prompt_eval_count")
	u.CompletionTokens = intFromInfo(info, "CompletionTokens", "eval_count")
	u.TotalTokens = intFromInfo(info, "TotalTokens", "")
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		if key == "" {
			continue
		}
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

var _ Completer = (*OllamaProvider)(nil)
var _ Embedder = (*OllamaProvider)(nil)
