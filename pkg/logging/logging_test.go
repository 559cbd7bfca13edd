// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLevel verifies mapping and the info fallback.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"), "unknown levels fall back to info")
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

// TestFileDestination verifies LogDir writes JSON records with the
// service attribute.
func TestFileDestination(t *testing.T) {
	dir := t.TempDir()
	logger, closeFn := New(Config{
		Level:   "debug",
		Service: "test-svc",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Info("something happened", "session_id", "abc")
	closeFn()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "test-svc_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"something happened"`)
	assert.Contains(t, content, `"session_id":"abc"`)
	assert.Contains(t, content, `"service":"test-svc"`)
}

// TestLevelFilter verifies records below the minimum are dropped.
func TestLevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger, closeFn := New(Config{
		Level:   "warn",
		Service: "filter",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("loud enough")
	closeFn()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "too quiet")
	assert.Contains(t, string(data), "loud enough")
}
