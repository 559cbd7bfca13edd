// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/fault"
)

// TestOptionsClosedKeySet verifies typos are rejected, not ignored.
func TestOptionsClosedKeySet(t *testing.T) {
	err := Options{"temprature": 0.7}.Validate()
	require.Error(t, err)
	assert.Equal(t, fault.KindConfiguration, fault.KindOf(err))
	assert.Contains(t, err.Error(), "temprature")

	assert.NoError(t, Options{
		OptTemperature: 0.7,
		OptMaxTokens:   256,
		OptBackend:     "local",
		OptStop:        []string{"\n"},
	}.Validate())
}

// TestOptionsValueTypes verifies wire-decoded values are accepted and
// malformed ones rejected.
func TestOptionsValueTypes(t *testing.T) {
	// JSON decodes every number as float64.
	decoded := Options{OptMaxTokens: float64(128), OptTemperature: float64(1)}
	require.NoError(t, decoded.Validate())
	require.NotNil(t, decoded.MaxTokens())
	assert.Equal(t, 128, *decoded.MaxTokens())

	assert.Error(t, Options{OptTemperature: "hot"}.Validate())
	assert.Error(t, Options{OptMaxTokens: -1}.Validate())
	assert.Error(t, Options{OptStop: []any{"ok", 3}}.Validate())
	assert.Error(t, Options{OptBackend: 7}.Validate())
}

// TestOptionsCanonical verifies cache-key rendering is order-free.
func TestOptionsCanonical(t *testing.T) {
	a := Options{OptBackend: "local", OptTemperature: 0.2}
	b := Options{OptTemperature: 0.2, OptBackend: "local"}
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, "backend=local;temperature=0.2", a.Canonical())
	assert.Empty(t, Options{}.Canonical())
}

// TestOptionAccessors verifies unset keys read as zero values.
func TestOptionAccessors(t *testing.T) {
	o := Options{}
	assert.Nil(t, o.Temperature())
	assert.Nil(t, o.MaxTokens())
	assert.Empty(t, o.Backend())
	assert.Empty(t, o.Language())
	assert.Nil(t, o.Stop())
}
