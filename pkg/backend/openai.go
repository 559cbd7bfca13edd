// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/sashabaranov/go-openai"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider services completion and embedding calls through the
// OpenAI API (or any API-compatible endpoint via Descriptor.BaseURL).
type OpenAIProvider struct {
	client *openai.Client
	name   string
	kind   Kind
	model  string
	logger *slog.Logger
}

// NewOpenAI builds a provider from a descriptor. The API key is read
// from the descriptor's enclave once, here, and handed to the client.
func NewOpenAI(d Descriptor, logger *slog.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := d.APIKey()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fault.Configuration("backend %q: openai provider requires an api key", d.Name)
	}
	model := d.Model
	if model == "" && d.Kind == KindCompletion {
		model = defaultOpenAIModel
		logger.Warn("backend has no model configured, using default", "backend", d.Name, "model", model)
	}
	cfg := openai.DefaultConfig(key)
	if d.BaseURL != "" {
		cfg.BaseURL = d.BaseURL
	}
	logger.Info("initializing openai backend", "backend", d.Name, "kind", d.Kind, "model", model)
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		name:   d.Name,
		kind:   d.Kind,
		model:  model,
		logger: logger,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Kind implements Provider.
func (p *OpenAIProvider) Kind() Kind { return p.kind }

// Complete implements Completer.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		chatReq.MaxCompletionTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	if len(req.Stop) > 0 {
		chatReq.Stop = req.Stop
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return CompletionResult{}, classifyProviderError(err, p.name)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, fault.Permanent(nil, "backend %q returned no choices", p.name)
	}
	p.logger.Debug("openai completion finished",
		"backend", p.name, "finish_reason", resp.Choices[0].FinishReason)
	return CompletionResult{
		Text: resp.Choices[0].Message.Content,
		Usage: symbol.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Embed implements Embedder.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classifyProviderError(err, p.name)
	}
	if len(resp.Data) != len(texts) {
		return nil, fault.Permanent(nil, "backend %q returned %d embeddings for %d inputs",
			p.name, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

// classifyProviderError maps a provider error to a transient or permanent
// inference fault. Rate limits, upstream outages and network timeouts are
// transient; everything else (bad request, auth) is permanent.
func classifyProviderError(err error, backendName string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fault.Transient(err, "backend %q", backendName)
		}
		return fault.Permanent(err, "backend %q", backendName)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.Transient(err, "backend %q", backendName)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimeout, err, "backend %q", backendName)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindCancelled, err, "backend %q call cancelled", backendName)
	}
	return fault.Transient(err, "backend %q", backendName)
}

var _ Completer = (*OpenAIProvider)(nil)
var _ Embedder = (*OpenAIProvider)(nil)
