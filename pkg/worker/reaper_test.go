// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/backend"
)

// TestReapIdleSessions verifies only sessions past the TTL are
// collected.
func TestReapIdleSessions(t *testing.T) {
	rt := newTestRuntime(t, Config{SessionTTL: time.Minute}, map[string]backend.Provider{
		"det": backend.NewDeterministic(backend.Descriptor{Name: "det"}),
	}, "det")

	idle, err := rt.createSession()
	require.NoError(t, err)
	fresh, err := rt.createSession()
	require.NoError(t, err)

	// Backdate the idle session's activity past the TTL.
	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	reaped := rt.reapIdle(time.Now())
	assert.Equal(t, 1, reaped)
	assert.Equal(t, 1, rt.SessionCount())

	_, err = rt.Session(idle.ID)
	assert.Error(t, err)
	_, err = rt.Session(fresh.ID)
	assert.NoError(t, err)
}

// TestReapNothingWhenActive verifies live sessions survive a pass.
func TestReapNothingWhenActive(t *testing.T) {
	rt := newTestRuntime(t, Config{SessionTTL: time.Minute}, map[string]backend.Provider{
		"det": backend.NewDeterministic(backend.Descriptor{Name: "det"}),
	}, "det")

	_, err := rt.createSession()
	require.NoError(t, err)

	assert.Zero(t, rt.reapIdle(time.Now()))
	assert.Equal(t, 1, rt.SessionCount())
}
