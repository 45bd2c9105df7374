// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/experiments"
	"github.com/AleutianAI/hwtester/services/tester/observability"
	"github.com/AleutianAI/hwtester/services/tester/registry"
)

var tracer = otel.Tracer("hwtester.handlers")

// Router carries what command handling resolves against: the
// experiment registry, the advertised port, logging, and metrics. One
// router serves every session and holds no per-connection state.
type Router struct {
	reg     *registry.Registry
	port    int
	log     *slog.Logger
	metrics *observability.ServerMetrics
}

// NewRouter builds a router. A nil logger falls back to
// slog.Default(); nil metrics disables instrumentation.
func NewRouter(reg *registry.Registry, port int, logger *slog.Logger, metrics *observability.ServerMetrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{reg: reg, port: port, log: logger, metrics: metrics}
}

// dispatch routes one raw frame. Protocol-level failures are answered
// on the wire and return nil; a non-nil return ends the session.
func (s *Session) dispatch(ctx context.Context, raw string) error {
	cmd, err := datatypes.ParseCommand(raw)
	if err != nil {
		s.log.Debug("rejecting malformed command", "error", err)
		s.recordCommand("unknown", false)
		return s.sendJSON(datatypes.CommandError{
			Error:   datatypes.ErrTextUnknownCommand,
			Command: raw,
		})
	}

	switch cmd.Action {
	case datatypes.ActionList:
		s.recordCommand(cmd.Action, true)
		return s.sendJSON(datatypes.FunctionList{Functions: s.router.reg.List()})

	case datatypes.ActionInfo:
		s.recordCommand(cmd.Action, true)
		return s.sendJSON(datatypes.ServerInfo{
			ServerName: datatypes.ServerName,
			Version:    datatypes.ServerVersion,
			Port:       s.router.port,
		})

	case datatypes.ActionCancel:
		// Nothing is running, but the ack is the same either way so
		// clients can fire cancels without tracking server state.
		s.recordCommand(cmd.Action, true)
		return s.sendJSON(datatypes.Cancelling())

	case datatypes.ActionExecute:
		return s.execute(ctx, cmd)
	}

	// ParseCommand validates the action set, so this is unreachable.
	return s.sendJSON(datatypes.CommandError{
		Error:   datatypes.ErrTextUnknownCommand,
		Command: raw,
	})
}

// execute runs one experiment to completion, cancellation, or fault,
// and writes exactly one response frame unless the connection died.
//
// While the routine runs, a listener goroutine owns the read side of
// the connection and polls for a cancel command. The listener is
// joined before this function returns, so the session's read loop
// never competes with it.
func (s *Session) execute(ctx context.Context, cmd datatypes.Command) error {
	if cmd.Function == "" {
		s.recordCommand(cmd.Action, false)
		return s.sendJSON(datatypes.CommandError{Error: datatypes.ErrTextNoFunctionName})
	}
	routine, ok := s.router.reg.Get(cmd.Function)
	if !ok {
		s.recordCommand(cmd.Action, false)
		return s.sendJSON(datatypes.CommandError{
			Error:        datatypes.ErrTextFunctionMissing,
			FunctionName: cmd.Function,
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runCtx, span := tracer.Start(runCtx, "experiment.execute",
		trace.WithAttributes(attribute.String("experiment", cmd.Function)))
	defer span.End()

	s.log.Info("executing experiment", "experiment", cmd.Function)
	if m := s.router.metrics; m != nil {
		m.ExperimentStarted()
	}
	start := time.Now()

	listener := newCancelListener(s, cancel)
	go listener.run(runCtx)

	result, err := s.invokeRoutine(runCtx, cmd.Function, routine, cmd.Params)

	connLost := listener.stop()
	_ = s.conn.SetReadDeadline(time.Time{})

	elapsed := time.Since(start)
	var response any
	outcome := observability.OutcomeCompleted
	cmdOK := true
	switch {
	case err == nil:
		response = result
		span.SetStatus(codes.Ok, "")
		s.log.Info("experiment completed",
			"experiment", cmd.Function, "duration", elapsed.Round(time.Millisecond))

	case errors.Is(err, context.Canceled):
		response = datatypes.NewCancelledResult()
		outcome = observability.OutcomeCancelled
		span.RecordError(err)
		span.SetStatus(codes.Error, "experiment cancelled")
		s.log.Info("experiment cancelled",
			"experiment", cmd.Function, "duration", elapsed.Round(time.Millisecond))

	default:
		var allocErr *experiments.AllocFailedError
		if errors.As(err, &allocErr) {
			response = datatypes.NewAllocError(int(allocErr.RequestedSize))
		} else {
			response = datatypes.CommandError{Error: datatypes.ErrTextInternalFault}
		}
		outcome = observability.OutcomeError
		cmdOK = false
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("experiment failed", "experiment", cmd.Function, "error", err)
	}

	if m := s.router.metrics; m != nil {
		m.ExperimentFinished(cmd.Function, outcome, elapsed.Seconds())
	}
	s.recordCommand(cmd.Action, cmdOK)

	if connLost {
		return errConnLost
	}
	return s.sendJSON(response)
}

// invokeRoutine runs one routine behind a recover boundary so a
// faulting experiment answers as a command error instead of tearing
// down the server.
func (s *Session) invokeRoutine(ctx context.Context, name string, routine registry.Routine, p datatypes.Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("experiment panicked",
				"experiment", name, "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("handlers: experiment %s panicked: %v", name, r)
		}
	}()
	return routine(ctx, p)
}
