// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package wsproto implements the server side of the websocket wire
// protocol the tester speaks: the upgrade handshake, the frame codec,
// and a connection wrapper that serializes concurrent writers.
//
// The implementation is deliberately a subset of RFC 6455. Text frames
// carry all command traffic, close frames end the session, pings get
// pongs. Fragmentation, extensions, and subprotocols are not
// negotiated. Interoperability with a full client implementation is
// exercised by the integration tests, which drive this server with
// gorilla/websocket on the client side.
package wsproto

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// readBufferSize matches the receive buffer the protocol was designed
// around. Frames larger than this are still read correctly, the reader
// just refills.
const readBufferSize = 4096

// ErrClosed is returned by ReadMessage when the peer sends a close
// frame. The caller should stop reading and close the connection.
var ErrClosed = errors.New("wsproto: peer sent close frame")

// Conn is a server-side websocket connection after a completed
// handshake.
//
// Reads must come from a single goroutine. Writes may come from
// several: the command handler and the cancellation listener both send
// frames during an experiment, so WriteMessage serializes under a
// mutex to keep frames from interleaving on the wire.
type Conn struct {
	raw net.Conn
	br  *bufio.Reader

	wmu sync.Mutex
}

// Upgrade performs the server side of the handshake on raw and wraps
// it in a Conn. On handshake failure the caller owns closing raw; no
// response bytes are written for a request without a key.
func Upgrade(raw net.Conn, serverHeader string) (*Conn, error) {
	br := bufio.NewReaderSize(raw, readBufferSize)
	clientKey, err := ReadUpgrade(br)
	if err != nil {
		return nil, err
	}
	if err := WriteUpgradeResponse(raw, clientKey, serverHeader); err != nil {
		return nil, err
	}
	return &Conn{raw: raw, br: br}, nil
}

// ReadMessage blocks until a text message arrives and returns its
// payload.
//
// Control frames are absorbed along the way: pings are answered with a
// pong carrying the same payload, pongs and unknown opcodes are
// skipped. A close frame surfaces as ErrClosed. Read deadline errors
// pass through unchanged so pollers can distinguish timeouts.
func (c *Conn) ReadMessage() (string, error) {
	for {
		frame, err := ReadFrame(c.br)
		if err != nil {
			return "", err
		}
		switch frame.Opcode {
		case OpcodeText:
			return string(frame.Payload), nil
		case OpcodeClose:
			return "", ErrClosed
		case OpcodePing:
			if err := c.writeFrame(OpcodePong, frame.Payload); err != nil {
				return "", err
			}
		default:
			// Pong or reserved opcode, nothing to do.
		}
	}
}

// WriteMessage sends payload as a single unmasked text frame.
func (c *Conn) WriteMessage(payload string) error {
	return c.writeFrame(OpcodeText, []byte(payload))
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.raw.Write(encodeFrame(opcode, payload)); err != nil {
		return fmt.Errorf("wsproto: writing frame: %w", err)
	}
	return nil
}

// SetReadDeadline bounds the next ReadMessage call. The cancellation
// listener uses short deadlines to poll for cancel frames while an
// experiment runs.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// frameGrace is how long PollMessage allows a frame to finish arriving
// once its first byte has been seen. Command frames are tens of bytes,
// so hitting this means a broken or stalled peer.
const frameGrace = 5 * time.Second

// PollMessage waits up to d for a text message.
//
// A quiet window returns os.ErrDeadlineExceeded without consuming
// anything, so the poll can simply be repeated. The wait peeks before
// reading: bytes buffered while the deadline expires stay buffered,
// which keeps a timeout from ever splitting a frame. Once a frame has
// started to arrive it is read to completion under frameGrace.
func (c *Conn) PollMessage(d time.Duration) (string, error) {
	if err := c.raw.SetReadDeadline(time.Now().Add(d)); err != nil {
		return "", err
	}
	if _, err := c.br.Peek(1); err != nil {
		return "", err
	}
	if err := c.raw.SetReadDeadline(time.Now().Add(frameGrace)); err != nil {
		return "", err
	}
	return c.ReadMessage()
}

// RemoteAddr reports the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
