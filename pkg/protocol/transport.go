// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClosed is the explicit connection-closed signal. Pending requests
// observing it know no response will ever arrive.
var ErrClosed = errors.New("protocol: connection closed")

// Transport moves envelopes over a persistent connection. The protocol
// is transport-agnostic; websocket and in-process implementations ship
// here, and both ends of a connection use the same interface.
//
// Send is safe for concurrent use. Receive must be called from a single
// reader goroutine.
type Transport interface {
	// Send writes one envelope (a Request or Response value).
	Send(v any) error

	// Receive decodes the next envelope into v.
	Receive(v any) error

	// Close tears the connection down; blocked Receive calls return
	// ErrClosed.
	Close() error
}

// -----------------------------------------------------------------------------
// WebSocket transport
// -----------------------------------------------------------------------------

// WSTransport adapts a gorilla websocket connection. The write mutex
// serializes frames; gorilla connections allow one concurrent writer.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWS wraps an established websocket connection.
func NewWS(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// Send implements Transport.
func (t *WSTransport) Send(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(v); err != nil {
		return ErrClosed
	}
	return nil
}

// Receive implements Transport. A failure to obtain the next frame
// means the connection is unusable and maps to ErrClosed; a frame that
// fails to decode surfaces to the caller so the server can reply with a
// typed error while the connection keeps going.
func (t *WSTransport) Receive(v any) error {
	_, r, err := t.conn.NextReader()
	if err != nil {
		return ErrClosed
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("protocol: decode frame: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// -----------------------------------------------------------------------------
// In-process transport
// -----------------------------------------------------------------------------

// pipeEnd is one side of an in-process connection: a pair of buffered
// channels carrying already-typed envelopes. Used by the local client
// and by protocol tests, where no network stack is wanted.
type pipeEnd struct {
	send chan<- any
	recv <-chan any

	closeOnce sync.Once
	closed    chan struct{}
	peer      *pipeEnd
}

// NewPipe creates a connected in-process transport pair.
func NewPipe() (Transport, Transport) {
	aToB := make(chan any, 16)
	bToA := make(chan any, 16)
	a := &pipeEnd{send: aToB, recv: bToA, closed: make(chan struct{})}
	b := &pipeEnd{send: bToA, recv: aToB, closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// Send implements Transport.
func (p *pipeEnd) Send(v any) error {
	select {
	case <-p.closed:
		return ErrClosed
	case <-p.peer.closed:
		return ErrClosed
	case p.send <- v:
		return nil
	}
}

// Receive implements Transport. Senders pass Request/Response values
// and receivers decode into the matching pointer type.
func (p *pipeEnd) Receive(v any) error {
	select {
	case <-p.closed:
		return ErrClosed
	case msg := <-p.recv:
		return assign(v, msg)
	case <-p.peer.closed:
		// Deliver anything queued before the peer closed.
		select {
		case msg := <-p.recv:
			return assign(v, msg)
		default:
			return ErrClosed
		}
	}
}

// Close implements Transport.
func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// assign copies a sent envelope into the receiver's pointer.
func assign(dst, src any) error {
	switch d := dst.(type) {
	case *Request:
		switch s := src.(type) {
		case Request:
			*d = s
			return nil
		case *Request:
			*d = *s
			return nil
		}
	case *Response:
		switch s := src.(type) {
		case Response:
			*d = s
			return nil
		case *Response:
			*d = *s
			return nil
		}
	}
	return errors.New("protocol: envelope type mismatch")
}
