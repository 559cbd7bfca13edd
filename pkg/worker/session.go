// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"sync"
	"time"

	"github.com/noema-ai/noema/pkg/fault"
)

// HistoryEntry is one record in a session's append-only context log.
type HistoryEntry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Operator string    `json:"operator"`
	Input    string    `json:"input"`
	Result   string    `json:"result"`
}

// Session is the server-side state scoped to one client connection:
// the ordered context log, the session-default backend, and the
// monotonically increasing request counter.
//
// Sessions are isolated from each other; nothing is shared across
// session boundaries. The runtime owns the Session exclusively; the
// connection handler holds only the id.
type Session struct {
	// ID is the uuid allocated at handshake.
	ID string

	// CreatedAt is the handshake time.
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeq  uint64
	lastSeen time.Time
	backend  string
	history  []HistoryEntry
	window   int
}

func newSession(id string, historyWindow int) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
		window:    historyWindow,
	}
}

// CheckSeq enforces the per-session ordering guarantee: sequence
// numbers must be strictly increasing. Accepted values advance the
// counter.
func (s *Session) CheckSeq(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq {
		return fault.Configuration(
			"request sequence %d is not after %d; session requests must arrive in submission order",
			seq, s.lastSeq)
	}
	s.lastSeq = seq
	return nil
}

// Touch records client activity for idle-session reaping.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the most recent client activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetBackend sets the session-default backend name.
func (s *Session) SetBackend(name string) {
	s.mu.Lock()
	s.backend = name
	s.mu.Unlock()
}

// Backend returns the session-default backend name ("" when unset).
func (s *Session) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Append adds an entry to the context log, truncating to the sliding
// window. A window of 0 keeps the log unbounded.
func (s *Session) Append(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	if s.window > 0 && len(s.history) > s.window {
		// Drop oldest; copy so the backing array doesn't pin dropped entries.
		trimmed := make([]HistoryEntry, s.window)
		copy(trimmed, s.history[len(s.history)-s.window:])
		s.history = trimmed
	}
}

// History returns a copy of the context log, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
