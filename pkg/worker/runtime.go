// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package worker hosts expression evaluation behind the session
// protocol: it owns the session table, runs one connection loop per
// client, and reaps sessions whose clients went away.
//
// Requests on one session are processed strictly in submission order.
// Cancellation is the one exception: cancel frames are handled
// out-of-band by the connection reader so an in-flight evaluation can
// be interrupted. Cancellation stays best-effort: once a connection
// has a full queue of pending requests the reader blocks handing off
// the next frame and cancel frames wait behind it.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noema-ai/noema/pkg/backend"
	"github.com/noema-ai/noema/pkg/engine"
	"github.com/noema-ai/noema/pkg/fault"
	"github.com/noema-ai/noema/pkg/protocol"
	"github.com/noema-ai/noema/pkg/symbol"
)

// Config holds the runtime knobs supplied by configuration.
type Config struct {
	// SessionTTL is the idle duration after which the reaper collects a
	// session. 0 disables reaping.
	SessionTTL time.Duration

	// HistoryWindow bounds each session's context log. 0 means unbounded.
	HistoryWindow int

	// ReapInterval is how often the reaper scans. Defaults to 30s.
	ReapInterval time.Duration

	// DrainTimeout bounds how long Shutdown waits for in-flight
	// evaluations before giving up. Defaults to 10s.
	DrainTimeout time.Duration
}

func (c Config) withFallbacks() Config {
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	return c
}

// Runtime owns the session table and serves protocol connections
// against one shared engine.
//
// # Thread Safety
//
// All session-table access goes through one mutex. Individual sessions
// carry their own locks, so holding the table lock across an engine
// call is never necessary.
type Runtime struct {
	engine   *engine.Engine
	backends *backend.Set
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	draining bool

	inflight sync.WaitGroup
}

// NewRuntime creates a Runtime serving the given engine. The backend
// set is consulted only to validate configure requests against the
// registered descriptor names.
func NewRuntime(eng *engine.Engine, backends *backend.Set, cfg Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		engine:   eng,
		backends: backends,
		cfg:      cfg.withFallbacks(),
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// SessionCount returns the number of live sessions.
func (rt *Runtime) SessionCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.sessions)
}

// Session returns the live session with the given id, or a
// session_not_found fault.
func (rt *Runtime) Session(id string) (*Session, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.sessions[id]
	if !ok {
		return nil, fault.SessionNotFound(id)
	}
	return s, nil
}

func (rt *Runtime) createSession() (*Session, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.draining {
		return nil, fault.Transient(nil, "runtime is shutting down")
	}
	s := newSession(uuid.NewString(), rt.cfg.HistoryWindow)
	rt.sessions[s.ID] = s
	activeSessions.Set(float64(len(rt.sessions)))
	return s, nil
}

func (rt *Runtime) dropSession(id string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.sessions[id]; !ok {
		return false
	}
	delete(rt.sessions, id)
	activeSessions.Set(float64(len(rt.sessions)))
	return true
}

// Shutdown stops accepting new sessions and waits for in-flight
// evaluations up to the drain timeout.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	rt.draining = true
	rt.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rt.inflight.Wait()
		close(done)
	}()

	drainCtx, cancel := context.WithTimeout(ctx, rt.cfg.DrainTimeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-drainCtx.Done():
		rt.logger.Warn("shutdown drain timeout expired with evaluations in flight")
		return drainCtx.Err()
	}
}

// conn is the per-connection state: the reader goroutine feeds ordered
// requests through queue to a single worker goroutine, keeping
// per-session processing sequential while cancel frames stay
// out-of-band.
type conn struct {
	rt      *Runtime
	t       protocol.Transport
	session *Session
	queue   chan protocol.Request
	cancels sync.Map // correlation id -> context.CancelFunc
}

// ServeTransport runs the connection loop until the transport closes.
// The first request must be a hello; the session it creates is
// destroyed when the loop returns, whether by explicit teardown or by
// disconnect.
func (rt *Runtime) ServeTransport(t protocol.Transport) {
	c := &conn{rt: rt, t: t, queue: make(chan protocol.Request, 16)}
	defer t.Close()

	var workerDone sync.WaitGroup
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		for req := range c.queue {
			c.process(req)
		}
	}()

	for {
		var req protocol.Request
		err := t.Receive(&req)
		if err == protocol.ErrClosed {
			break
		}
		if err != nil {
			// Malformed frame: answer with a typed error, keep the
			// connection alive.
			requestsTotal.WithLabelValues("malformed", "error").Inc()
			c.send(protocol.Failure("", fault.Configuration("malformed request: %v", err), 0))
			continue
		}
		if !c.accept(req) {
			break
		}
	}

	close(c.queue)
	workerDone.Wait()
	if c.session != nil {
		if rt.dropSession(c.session.ID) {
			rt.logger.Info("session closed on disconnect", "session_id", c.session.ID)
		}
	}
}

// accept validates a frame in arrival order and either answers it
// inline or hands it to the worker. Returns false when the connection
// should close.
func (c *conn) accept(req protocol.Request) bool {
	if err := protocol.CheckVersion(&req); err != nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		c.send(protocol.Failure(req.CorrelationID, err, 0))
		return true
	}

	switch req.Type {
	case protocol.TypeHello:
		return c.handleHello(req)

	case protocol.TypeCancel:
		// Out-of-band: interrupt the in-flight evaluation without
		// waiting behind it in the queue.
		if cancel, ok := c.cancels.Load(req.CancelTarget); ok {
			cancel.(context.CancelFunc)()
		}
		return true

	case protocol.TypeEvaluate, protocol.TypeConfigure, protocol.TypeTeardown:
		if c.session == nil || req.SessionID != c.session.ID {
			requestsTotal.WithLabelValues(req.Type, "error").Inc()
			c.send(protocol.Failure(req.CorrelationID, fault.SessionNotFound(req.SessionID), 0))
			return true
		}
		// Torn-down sessions stay gone: the table lookup fails even
		// though the connection still remembers the id.
		if _, err := c.rt.Session(req.SessionID); err != nil {
			requestsTotal.WithLabelValues(req.Type, "error").Inc()
			c.send(protocol.Failure(req.CorrelationID, err, 0))
			return true
		}
		// Ordering is checked at arrival so a rejected frame cannot
		// reorder behind a queued one.
		if err := c.session.CheckSeq(req.Seq); err != nil {
			requestsTotal.WithLabelValues(req.Type, "error").Inc()
			c.send(protocol.Failure(req.CorrelationID, err, 0))
			return true
		}
		c.session.Touch()
		c.queue <- req
		return true

	default:
		requestsTotal.WithLabelValues("unknown", "error").Inc()
		c.send(protocol.Failure(req.CorrelationID,
			fault.Configuration("unknown request type %q", req.Type), 0))
		return true
	}
}

func (c *conn) handleHello(req protocol.Request) bool {
	if c.session != nil {
		c.send(protocol.Failure(req.CorrelationID,
			fault.Configuration("connection already has session %s", c.session.ID), 0))
		return true
	}
	s, err := c.rt.createSession()
	if err != nil {
		c.send(protocol.Failure(req.CorrelationID, err, 0))
		return false
	}
	c.session = s
	c.rt.logger.Info("session opened", "session_id", s.ID)
	requestsTotal.WithLabelValues(protocol.TypeHello, "success").Inc()
	c.send(protocol.Response{
		Version:       protocol.Version,
		CorrelationID: req.CorrelationID,
		SessionID:     s.ID,
	})
	return true
}

// process handles one ordered request on the worker goroutine.
//
// The table is checked again here: a pipelined teardown may have run
// ahead of this frame on the same connection, and anything queued
// behind it must observe the destroyed session, not evaluate against
// its corpse.
func (c *conn) process(req protocol.Request) {
	if _, err := c.rt.Session(req.SessionID); err != nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		c.send(protocol.Failure(req.CorrelationID, err, 0))
		return
	}
	switch req.Type {
	case protocol.TypeEvaluate:
		c.processEvaluate(req)
	case protocol.TypeConfigure:
		c.processConfigure(req)
	case protocol.TypeTeardown:
		c.processTeardown(req)
	}
}

func (c *conn) processEvaluate(req protocol.Request) {
	rt := c.rt
	rt.inflight.Add(1)
	defer rt.inflight.Done()

	start := time.Now()
	if req.Expr == nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		c.send(protocol.Failure(req.CorrelationID,
			fault.Configuration("evaluate request carries no expression"), time.Since(start)))
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if req.TimeoutMillis > 0 {
		ctx, cancel = context.WithTimeout(context.Background(),
			time.Duration(req.TimeoutMillis)*time.Millisecond)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.cancels.Store(req.CorrelationID, cancel)
	defer func() {
		c.cancels.Delete(req.CorrelationID)
		cancel()
	}()

	result, err := rt.engine.Evaluate(ctx, req.Expr,
		engine.WithSessionBackend(c.session.Backend()))
	elapsed := time.Since(start)
	evaluateDuration.Observe(elapsed.Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		rt.logger.Warn("evaluation failed",
			"session_id", c.session.ID,
			"correlation_id", req.CorrelationID,
			"kind", fault.KindOf(err),
			"error", err)
		c.send(protocol.Failure(req.CorrelationID, err, elapsed))
		return
	}

	c.session.Append(HistoryEntry{
		Seq:      req.Seq,
		Time:     time.Now(),
		Operator: req.Expr.Op(),
		Input:    summarizeExpr(req.Expr),
		Result:   result.Text(),
	})
	requestsTotal.WithLabelValues(req.Type, "success").Inc()
	c.send(protocol.Success(req.CorrelationID, result, elapsed))
}

func (c *conn) processConfigure(req protocol.Request) {
	start := time.Now()
	if req.Backend == "" {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		c.send(protocol.Failure(req.CorrelationID,
			fault.Configuration("configure request names no backend"), time.Since(start)))
		return
	}
	if _, _, err := c.rt.backends.Lookup(req.Backend); err != nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		c.send(protocol.Failure(req.CorrelationID, err, time.Since(start)))
		return
	}
	c.session.SetBackend(req.Backend)
	c.rt.logger.Info("session backend configured",
		"session_id", c.session.ID, "backend", req.Backend)
	requestsTotal.WithLabelValues(req.Type, "success").Inc()
	c.send(protocol.Response{
		Version:       protocol.Version,
		CorrelationID: req.CorrelationID,
		SessionID:     c.session.ID,
	})
}

func (c *conn) processTeardown(req protocol.Request) {
	c.rt.dropSession(c.session.ID)
	c.rt.logger.Info("session torn down", "session_id", c.session.ID)
	requestsTotal.WithLabelValues(req.Type, "success").Inc()
	c.send(protocol.Response{
		Version:       protocol.Version,
		CorrelationID: req.CorrelationID,
		SessionID:     c.session.ID,
	})
	// Later frames on this connection fail the table lookup in accept;
	// the reader loop keeps running so the client sees those errors
	// explicitly instead of a dropped connection.
}

func (c *conn) send(resp protocol.Response) {
	if err := c.t.Send(resp); err != nil {
		c.rt.logger.Debug("response dropped, connection closed",
			"correlation_id", resp.CorrelationID)
	}
}

// summarizeExpr renders a compact one-line form of an expression for
// the session context log.
func summarizeExpr(expr *symbol.Expr) string {
	if expr.IsLiteral() {
		return expr.Literal().Text()
	}
	operands := expr.Operands()
	parts := make([]string, 0, len(operands))
	for _, operand := range operands {
		parts = append(parts, summarizeExpr(operand))
	}
	out := expr.Op() + "("
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		if len(p) > 48 {
			p = p[:48] + "..."
		}
		out += p
	}
	return out + ")"
}
