// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers runs the per-connection command loop: welcome
// message, command dispatch, experiment execution with a concurrent
// cancellation listener.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/wsproto"
)

// errConnLost ends a session whose connection died while an experiment
// was running. The close or error frame was consumed by the
// cancellation listener, so the read loop would otherwise block on a
// dead peer.
var errConnLost = errors.New("handlers: connection lost during experiment")

// Session is the server side of one websocket connection.
//
// A session processes commands strictly in arrival order: one command,
// one response, no pipelining. During an execute the read side of the
// connection belongs to the cancellation listener; the session re-takes
// it once the listener is joined.
type Session struct {
	conn   *wsproto.Conn
	router *Router
	id     string
	log    *slog.Logger
}

// NewSession wraps an upgraded connection. Each session gets a random
// ID carried on every log line.
func NewSession(conn *wsproto.Conn, router *Router) *Session {
	id := uuid.NewString()[:12]
	return &Session{
		conn:   conn,
		router: router,
		id:     id,
		log:    router.log.With("session", id, "remote", conn.RemoteAddr().String()),
	}
}

// Run serves the connection until the client disconnects or ctx ends.
// Context cancellation closes the connection to unblock the read loop,
// so shutdown does not wait for client traffic.
func (s *Session) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	if m := s.router.metrics; m != nil {
		m.ConnectionOpened()
		defer m.ConnectionClosed()
	}
	s.log.Info("websocket client connected")

	if err := s.sendJSON(datatypes.NewWelcome()); err != nil {
		return
	}

	for {
		raw, err := s.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, wsproto.ErrClosed) {
				s.log.Info("websocket client disconnected")
			} else {
				s.log.Info("websocket read ended", "error", err)
			}
			return
		}

		if err := s.dispatch(ctx, raw); err != nil {
			if errors.Is(err, errConnLost) {
				s.log.Info("websocket client disconnected during experiment")
			} else {
				s.log.Warn("session ending", "error", err)
			}
			return
		}
	}
}

// sendJSON marshals v and writes it as one text frame.
func (s *Session) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return err
	}
	if err := s.conn.WriteMessage(string(data)); err != nil {
		s.log.Warn("failed to write websocket frame", "error", err)
		return err
	}
	return nil
}

func (s *Session) recordCommand(action string, ok bool) {
	if m := s.router.metrics; m != nil {
		m.RecordCommand(action, ok)
	}
}
