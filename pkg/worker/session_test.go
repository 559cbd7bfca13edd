// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionSeq verifies strict monotonicity.
func TestSessionSeq(t *testing.T) {
	s := newSession("s1", 0)

	require.NoError(t, s.CheckSeq(1))
	require.NoError(t, s.CheckSeq(2))
	assert.Error(t, s.CheckSeq(2), "replay must be rejected")
	assert.Error(t, s.CheckSeq(1), "stale must be rejected")
	require.NoError(t, s.CheckSeq(10), "gaps are fine, order is what matters")
}

// TestSessionHistoryWindow verifies the sliding window keeps the most
// recent entries.
func TestSessionHistoryWindow(t *testing.T) {
	s := newSession("s1", 3)
	for i := 1; i <= 5; i++ {
		s.Append(HistoryEntry{Seq: uint64(i), Input: fmt.Sprintf("in-%d", i)})
	}

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].Seq)
	assert.Equal(t, uint64(5), history[2].Seq)
}

// TestSessionHistoryUnbounded verifies window 0 keeps everything.
func TestSessionHistoryUnbounded(t *testing.T) {
	s := newSession("s1", 0)
	for i := 0; i < 100; i++ {
		s.Append(HistoryEntry{Seq: uint64(i)})
	}
	assert.Len(t, s.History(), 100)
}

// TestSessionBackendDefault verifies the configure round trip.
func TestSessionBackendDefault(t *testing.T) {
	s := newSession("s1", 0)
	assert.Empty(t, s.Backend())
	s.SetBackend("local")
	assert.Equal(t, "local", s.Backend())
}

// TestSessionTouch verifies activity moves the idle clock forward.
func TestSessionTouch(t *testing.T) {
	s := newSession("s1", 0)
	before := s.LastSeen()
	time.Sleep(5 * time.Millisecond)
	s.Touch()
	assert.True(t, s.LastSeen().After(before))
}
