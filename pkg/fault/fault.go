// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fault defines the typed error surface shared by the engine,
// the remote protocol and the worker runtime.
//
// Every error that crosses a public boundary carries a Kind with a stable
// string code, so protocol responses can round-trip the error category and
// callers can distinguish "try again" (transient inference) from "fix your
// input" (configuration) from "server gone" (session/protocol).
//
// # Usage
//
//	if err != nil {
//	    return fault.Transient(err, "ollama generate")
//	}
//
//	switch fault.KindOf(err) {
//	case fault.KindTimeout:
//	    // deadline expired
//	case fault.KindSessionNotFound:
//	    // reconnect and re-handshake
//	}
//
// # Thread Safety
//
// Fault values are immutable after construction.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a stable error category code. Kind values appear verbatim in
// protocol error responses, so they must never be renamed.
type Kind string

const (
	// KindOperatorUnavailable means no backend services the operator name.
	KindOperatorUnavailable Kind = "operator_unavailable"

	// KindInference means the underlying model call failed or returned
	// malformed output. May be transient (rate limit, timeout upstream)
	// or permanent (bad request); see Fault.Transient.
	KindInference Kind = "inference_error"

	// KindConfiguration means the caller supplied invalid configuration:
	// unrecognized options, malformed descriptors, cyclic expressions.
	KindConfiguration Kind = "configuration_error"

	// KindProtocolMismatch means client and server disagree on the wire
	// protocol version.
	KindProtocolMismatch Kind = "protocol_mismatch"

	// KindSessionNotFound means the request referenced a session id the
	// server does not know (never created, torn down, or reaped).
	KindSessionNotFound Kind = "session_not_found"

	// KindTimeout means the evaluation deadline expired before the
	// backend produced a result.
	KindTimeout Kind = "timeout"

	// KindCancelled means the request was cancelled by the client.
	KindCancelled Kind = "cancelled"

	// KindUnknown is reported for errors that carry no Fault.
	KindUnknown Kind = "unknown"
)

// Fault is an error with a stable Kind and an optional transient flag.
//
// Fault implements the errors.Unwrap chain, so errors.Is/As work through
// wrapped causes.
type Fault struct {
	kind      Kind
	message   string
	transient bool
	cause     error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.kind, f.message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.kind, f.message)
}

// Unwrap returns the wrapped cause, if any.
func (f *Fault) Unwrap() error { return f.cause }

// Kind returns the error category.
func (f *Fault) Kind() Kind { return f.kind }

// Message returns the human-readable message without the kind prefix.
func (f *Fault) Message() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.message, f.cause)
	}
	return f.message
}

// IsTransient reports whether retrying the same call may succeed.
func (f *Fault) IsTransient() bool { return f.transient }

// New creates a Fault with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault wrapping cause. A nil cause yields a plain Fault.
func Wrap(kind Kind, cause error, format string, args ...any) *Fault {
	return &Fault{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// Transient creates a transient inference Fault wrapping cause.
// Transient faults are retried by the execution engine.
func Transient(cause error, format string, args ...any) *Fault {
	return &Fault{
		kind:      KindInference,
		message:   fmt.Sprintf(format, args...),
		transient: true,
		cause:     cause,
	}
}

// Permanent creates a non-retryable inference Fault wrapping cause.
func Permanent(cause error, format string, args ...any) *Fault {
	return &Fault{
		kind:    KindInference,
		message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// OperatorUnavailable creates a KindOperatorUnavailable Fault.
func OperatorUnavailable(operator string) *Fault {
	return New(KindOperatorUnavailable, "no backend satisfies operator %q", operator)
}

// Configuration creates a KindConfiguration Fault.
func Configuration(format string, args ...any) *Fault {
	return New(KindConfiguration, format, args...)
}

// SessionNotFound creates a KindSessionNotFound Fault.
func SessionNotFound(sessionID string) *Fault {
	return New(KindSessionNotFound, "session %q does not exist", sessionID)
}

// Timeout creates a KindTimeout Fault.
func Timeout(format string, args ...any) *Fault {
	return New(KindTimeout, format, args...)
}

// Cancelled creates a KindCancelled Fault.
func Cancelled(format string, args ...any) *Fault {
	return New(KindCancelled, format, args...)
}

// ProtocolMismatch creates a KindProtocolMismatch Fault.
func ProtocolMismatch(got, want int) *Fault {
	return New(KindProtocolMismatch, "protocol version %d not supported (server speaks %d)", got, want)
}

// KindOf extracts the Kind from an error chain.
//
// Returns KindUnknown for nil-safe handling of errors that carry no Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.kind
	}
	return KindUnknown
}

// IsTransient reports whether err (or any wrapped cause) is a transient
// Fault. Non-Fault errors are treated as permanent.
func IsTransient(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.transient
	}
	return false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FromWire reconstructs a Fault from a wire code and message.
//
// Unknown codes map to KindUnknown so protocol skew in error reporting
// degrades gracefully instead of misclassifying.
func FromWire(code, message string) *Fault {
	kind := Kind(code)
	switch kind {
	case KindOperatorUnavailable, KindInference, KindConfiguration,
		KindProtocolMismatch, KindSessionNotFound, KindTimeout, KindCancelled:
	default:
		kind = KindUnknown
	}
	return &Fault{kind: kind, message: message}
}
