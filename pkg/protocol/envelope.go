// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package protocol defines the wire contract between a worker runtime
// and its clients: versioned JSON request/response envelopes exchanged
// over a persistent, transport-agnostic connection.
//
// Every submitted correlation id yields exactly one response or an
// explicit connection-closed signal; the protocol never drops a request
// silently. Remote calls are explicit messages with an explicit error
// channel rather than transparent proxies.
package protocol

import (
	"errors"
	"time"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// Version is the current protocol version. Bump on any incompatible
// envelope change; skewed peers receive a protocol_mismatch error
// instead of corrupted state.
const Version = 1

// Request types.
const (
	TypeHello     = "hello"
	TypeEvaluate  = "evaluate"
	TypeConfigure = "configure"
	TypeCancel    = "cancel"
	TypeTeardown  = "teardown"
)

// Request is the client-to-server envelope.
type Request struct {
	// Version is the protocol version the client speaks.
	Version int `json:"version"`

	// Type selects the operation (hello, evaluate, configure, cancel,
	// teardown).
	Type string `json:"type"`

	// SessionID identifies the server-side session. Empty only for hello.
	SessionID string `json:"session_id,omitempty"`

	// CorrelationID ties the eventual response to this request.
	CorrelationID string `json:"correlation_id"`

	// Seq is the per-session sequence number. The server rejects
	// non-increasing values, which enforces submission-order processing.
	Seq uint64 `json:"seq,omitempty"`

	// Expr is the serialized expression for evaluate requests.
	Expr *symbol.Expr `json:"expr,omitempty"`

	// Backend names the session-default backend for configure requests.
	// Configuration is by name only: descriptors and their credentials
	// stay server-side.
	Backend string `json:"backend,omitempty"`

	// TimeoutMillis is the optional evaluation deadline budget.
	TimeoutMillis int64 `json:"timeout_ms,omitempty"`

	// CancelTarget is the correlation id to cancel (cancel requests).
	CancelTarget string `json:"cancel_target,omitempty"`
}

// WireError is the error half of a response.
type WireError struct {
	// Kind is the stable error code (see pkg/fault).
	Kind string `json:"kind"`

	// Message is human-readable detail.
	Message string `json:"message"`
}

// WireSymbol is the result half of a response.
type WireSymbol struct {
	Text string          `json:"text"`
	Meta symbol.Metadata `json:"meta"`
}

// Response is the server-to-client envelope. Every response is
// success-or-error: exactly one of Symbol and Error is set.
type Response struct {
	// Version is the protocol version the server speaks.
	Version int `json:"version"`

	// CorrelationID echoes the request's correlation id.
	CorrelationID string `json:"correlation_id"`

	// SessionID is set on hello responses (the allocated session).
	SessionID string `json:"session_id,omitempty"`

	// Symbol is the successful result.
	Symbol *WireSymbol `json:"symbol,omitempty"`

	// Error is the typed failure.
	Error *WireError `json:"error,omitempty"`

	// ElapsedMillis is the server-side processing time.
	ElapsedMillis int64 `json:"elapsed_ms,omitempty"`

	// Usage aggregates token accounting for the request.
	Usage symbol.Usage `json:"usage"`
}

// OK reports whether the response carries a result.
func (r Response) OK() bool { return r.Error == nil }

// Err converts the wire error back into a typed fault, or nil.
func (r Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return fault.FromWire(r.Error.Kind, r.Error.Message)
}

// ResultSymbol reconstructs the result Symbol of a successful response.
func (r Response) ResultSymbol() symbol.Symbol {
	if r.Symbol == nil {
		return symbol.Symbol{}
	}
	return symbol.WithMeta(r.Symbol.Text, r.Symbol.Meta)
}

// Success builds a success response for a request.
func Success(correlationID string, result symbol.Symbol, elapsed time.Duration) Response {
	return Response{
		Version:       Version,
		CorrelationID: correlationID,
		Symbol:        &WireSymbol{Text: result.Text(), Meta: result.Meta()},
		ElapsedMillis: elapsed.Milliseconds(),
		Usage:         result.Meta().Usage,
	}
}

// Failure builds an error response for a request. Non-fault errors are
// reported with the unknown kind rather than leaking internals.
func Failure(correlationID string, err error, elapsed time.Duration) Response {
	kind := fault.KindOf(err)
	message := err.Error()
	var f *fault.Fault
	if errors.As(err, &f) {
		message = f.Message()
	}
	return Response{
		Version:       Version,
		CorrelationID: correlationID,
		Error:         &WireError{Kind: string(kind), Message: message},
		ElapsedMillis: elapsed.Milliseconds(),
	}
}

// CheckVersion validates a request's protocol version.
func CheckVersion(req *Request) error {
	if req.Version != Version {
		return fault.ProtocolMismatch(req.Version, Version)
	}
	return nil
}
