// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/symbol"
)

// TestCheckVersion verifies skewed peers get the typed mismatch.
func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(&Request{Version: Version}))

	err := CheckVersion(&Request{Version: Version + 1})
	require.Error(t, err)
	assert.Equal(t, fault.KindProtocolMismatch, fault.KindOf(err))
}

// TestSuccessResponse verifies result and provenance survive the wire
// form.
func TestSuccessResponse(t *testing.T) {
	result := symbol.WithMeta("bonjour", symbol.Metadata{
		Backend: "local",
		Usage:   symbol.Usage{TotalTokens: 7},
	})
	resp := Success("corr-1", result, 1500*time.Millisecond)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.OK())
	assert.NoError(t, decoded.Err())
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, int64(1500), decoded.ElapsedMillis)

	revived := decoded.ResultSymbol()
	assert.Equal(t, "bonjour", revived.Text())
	assert.Equal(t, "local", revived.Meta().Backend)
	assert.True(t, result.Equal(revived))
}

// TestFailureResponse verifies fault kinds round-trip as wire codes.
func TestFailureResponse(t *testing.T) {
	resp := Failure("corr-2", fault.OperatorUnavailable("conjure"), 0)

	assert.False(t, resp.OK())
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(fault.KindOperatorUnavailable), resp.Error.Kind)

	err := resp.Err()
	require.Error(t, err)
	assert.Equal(t, fault.KindOperatorUnavailable, fault.KindOf(err))
	assert.Contains(t, err.Error(), "conjure")
}

// TestPipeRoundTrip verifies the in-process transport carries typed
// envelopes both directions.
func TestPipeRoundTrip(t *testing.T) {
	clientEnd, serverEnd := NewPipe()
	defer clientEnd.Close()
	defer serverEnd.Close()

	require.NoError(t, clientEnd.Send(Request{Type: TypeHello, CorrelationID: "c1"}))

	var req Request
	require.NoError(t, serverEnd.Receive(&req))
	assert.Equal(t, TypeHello, req.Type)

	require.NoError(t, serverEnd.Send(Response{CorrelationID: "c1", SessionID: "s1"}))

	var resp Response
	require.NoError(t, clientEnd.Receive(&resp))
	assert.Equal(t, "s1", resp.SessionID)
}

// TestPipeClose verifies a closed peer yields ErrClosed after queued
// messages drain.
func TestPipeClose(t *testing.T) {
	clientEnd, serverEnd := NewPipe()

	require.NoError(t, clientEnd.Send(Request{Type: TypeHello, CorrelationID: "c1"}))
	require.NoError(t, clientEnd.Close())

	// The message sent before close is still delivered.
	var req Request
	require.NoError(t, serverEnd.Receive(&req))
	assert.Equal(t, "c1", req.CorrelationID)

	assert.Equal(t, ErrClosed, serverEnd.Receive(&req))
	assert.Equal(t, ErrClosed, serverEnd.Send(Response{}))
	assert.Equal(t, ErrClosed, clientEnd.Send(Request{}))
}

// TestPipeTypeMismatch verifies decoding into the wrong envelope type
// is surfaced instead of corrupting state.
func TestPipeTypeMismatch(t *testing.T) {
	clientEnd, serverEnd := NewPipe()
	defer clientEnd.Close()
	defer serverEnd.Close()

	require.NoError(t, clientEnd.Send(Response{CorrelationID: "oops"}))

	var req Request
	err := serverEnd.Receive(&req)
	require.Error(t, err)
	assert.NotEqual(t, ErrClosed, err)
}
