// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package client is the session-protocol client: it opens a worker
// connection, performs the hello handshake, and correlates responses
// back to in-flight calls.
//
// All calls on one Client share one session. Evaluate is safe for
// concurrent use; sequence numbers are allocated under the send lock so
// wire order always matches sequence order.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/protocol"
	"github.com/noema-ai/noema/pkg/symbol"
)

// Client is a connected protocol session.
type Client struct {
	t         protocol.Transport
	sessionID string
	logger    *slog.Logger

	sendMu  sync.Mutex
	nextSeq uint64

	mu      sync.Mutex
	pending map[string]chan protocol.Response

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Dial connects to a worker's session websocket endpoint (for example
// ws://localhost:8420/api/v1/session) and performs the handshake.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "dial %s", url)
	}
	return connect(ctx, protocol.NewWS(ws), opts...)
}

// connect wires a transport into a Client and performs the hello
// handshake.
func connect(ctx context.Context, t protocol.Transport, opts ...Option) (*Client, error) {
	c := &Client{
		t:       t,
		logger:  slog.Default(),
		pending: make(map[string]chan protocol.Response),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()

	resp, err := c.roundTrip(ctx, protocol.Request{
		Version:       protocol.Version,
		Type:          protocol.TypeHello,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	if !resp.OK() {
		t.Close()
		return nil, resp.Err()
	}
	c.sessionID = resp.SessionID
	c.logger.Debug("session established", "session_id", c.sessionID)
	return c, nil
}

// SessionID returns the server-allocated session id.
func (c *Client) SessionID() string { return c.sessionID }

// Evaluate submits an expression and blocks for its result. Cancelling
// ctx sends an out-of-band cancel frame; the call still returns the
// server's definitive answer for the correlation id, typically a
// cancelled or timeout fault.
func (c *Client) Evaluate(ctx context.Context, expr *symbol.Expr) (symbol.Symbol, error) {
	req := protocol.Request{
		Version:       protocol.Version,
		Type:          protocol.TypeEvaluate,
		SessionID:     c.sessionID,
		CorrelationID: uuid.NewString(),
		Expr:          expr,
	}
	if deadline, ok := ctx.Deadline(); ok {
		if budget := time.Until(deadline); budget > 0 {
			req.TimeoutMillis = budget.Milliseconds()
		}
	}

	resp, err := c.roundTripCancellable(ctx, req)
	if err != nil {
		return symbol.Symbol{}, err
	}
	if !resp.OK() {
		return symbol.Symbol{}, resp.Err()
	}
	return resp.ResultSymbol(), nil
}

// Configure sets the session-default backend by descriptor name.
func (c *Client) Configure(ctx context.Context, backendName string) error {
	resp, err := c.roundTrip(ctx, protocol.Request{
		Version:       protocol.Version,
		Type:          protocol.TypeConfigure,
		SessionID:     c.sessionID,
		CorrelationID: uuid.NewString(),
		Backend:       backendName,
	})
	if err != nil {
		return err
	}
	return resp.Err()
}

// Cancel sends an out-of-band cancel frame for a correlation id. The
// target call still receives exactly one response.
func (c *Client) Cancel(correlationID string) error {
	return c.t.Send(protocol.Request{
		Version:       protocol.Version,
		Type:          protocol.TypeCancel,
		SessionID:     c.sessionID,
		CorrelationID: uuid.NewString(),
		CancelTarget:  correlationID,
	})
}

// Close tears the session down and closes the connection. Pending
// calls fail with a connection-closed error.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.sessionID != "" {
			// Best effort; the server also collects sessions whose
			// connection drops.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_, err := c.roundTrip(ctx, protocol.Request{
				Version:       protocol.Version,
				Type:          protocol.TypeTeardown,
				SessionID:     c.sessionID,
				CorrelationID: uuid.NewString(),
			})
			cancel()
			if err != nil {
				c.logger.Debug("teardown skipped", "error", err)
			}
		}
		close(c.closed)
		c.t.Close()
	})
	return nil
}

// send allocates the sequence number and writes the frame under one
// lock, keeping wire order aligned with sequence order.
func (c *Client) send(req protocol.Request) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if req.Type != protocol.TypeHello && req.Type != protocol.TypeCancel {
		c.nextSeq++
		req.Seq = c.nextSeq
	}
	return c.t.Send(req)
}

func (c *Client) register(correlationID string) chan protocol.Response {
	ch := make(chan protocol.Response, 1)
	c.mu.Lock()
	c.pending[correlationID] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) unregister(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

// roundTrip submits a request and waits for its correlated response.
func (c *Client) roundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ch := c.register(req.CorrelationID)
	defer c.unregister(req.CorrelationID)

	if err := c.send(req); err != nil {
		return protocol.Response{}, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.closed:
		return protocol.Response{}, protocol.ErrClosed
	case <-ctx.Done():
		return protocol.Response{}, ctxFault(ctx)
	}
}

// roundTripCancellable waits like roundTrip but converts a ctx expiry
// into a cancel frame and keeps waiting briefly for the server's
// definitive response.
func (c *Client) roundTripCancellable(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	ch := c.register(req.CorrelationID)
	defer c.unregister(req.CorrelationID)

	if err := c.send(req); err != nil {
		return protocol.Response{}, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.closed:
		return protocol.Response{}, protocol.ErrClosed
	case <-ctx.Done():
	}

	if err := c.Cancel(req.CorrelationID); err != nil {
		return protocol.Response{}, ctxFault(ctx)
	}
	// The server answers the cancelled evaluation promptly; don't hang
	// forever if it never does.
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.closed:
		return protocol.Response{}, protocol.ErrClosed
	case <-time.After(5 * time.Second):
		return protocol.Response{}, ctxFault(ctx)
	}
}

// readLoop is the single transport reader. Responses with no pending
// waiter are dropped with a log line; they are late answers for calls
// that already gave up.
func (c *Client) readLoop() {
	for {
		var resp protocol.Response
		if err := c.t.Receive(&resp); err != nil {
			c.failPending()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.CorrelationID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("dropping uncorrelated response",
				"correlation_id", resp.CorrelationID)
			continue
		}
		ch <- resp
	}
}

// failPending wakes every in-flight call after the connection closes.
func (c *Client) failPending() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.t.Close()
	})
}

func ctxFault(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fault.Timeout("request deadline expired")
	}
	return fault.Cancelled("request cancelled")
}
