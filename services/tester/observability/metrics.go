// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the tester
// server.
//
// # Description
//
// Metrics cover the protocol surface (connections, commands) and the
// measurement engine (runs by experiment and outcome, run duration,
// scratch memory in use). They are exposed on the ops router's
// /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/hwtester/services/tester/experiments"
)

// Namespace for all metrics
const metricsNamespace = "hwtester"

// Subsystem for the protocol server metrics
const serverSubsystem = "server"

// ServerMetrics holds all Prometheus metrics for the tester server.
//
// # Description
//
// Counters, histograms, and gauges for monitoring protocol traffic and
// experiment execution. Initialize once at startup via InitMetrics().
//
// # Fields
//
//   - ConnectionsTotal: Counter of accepted websocket connections
//   - ActiveConnections: Gauge of currently open connections
//   - CommandsTotal: Counter of commands by action and status
//   - ExperimentRunsTotal: Counter of runs by experiment and outcome
//   - ExperimentDurationSeconds: Histogram of run duration by experiment
//   - ActiveExperiments: Gauge of currently running experiments
//
// # Thread Safety
//
// All operations are thread-safe.
type ServerMetrics struct {
	// ConnectionsTotal counts every connection that completed the
	// websocket handshake.
	ConnectionsTotal prometheus.Counter

	// ActiveConnections tracks currently open sessions.
	ActiveConnections prometheus.Gauge

	// CommandsTotal counts dispatched commands.
	// Labels: action (list, execute, cancel, info, unknown),
	// status (ok, error)
	CommandsTotal *prometheus.CounterVec

	// ExperimentRunsTotal counts finished experiment runs.
	// Labels: experiment, outcome (completed, cancelled, error)
	ExperimentRunsTotal *prometheus.CounterVec

	// ExperimentDurationSeconds measures wall-clock run duration.
	// Labels: experiment
	ExperimentDurationSeconds *prometheus.HistogramVec

	// ActiveExperiments tracks experiments currently sweeping.
	ActiveExperiments prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ServerMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ServerMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics, including a gauge
// function exporting the measurement engine's live scratch byte count.
// Call once at application startup.
//
// # Outputs
//
//   - *ServerMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ServerMetrics {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "scratch_bytes_in_use",
			Help:      "Bytes of experiment scratch memory currently booked",
		},
		func() float64 { return float64(experiments.LiveScratchBytes()) },
	)

	DefaultMetrics = &ServerMetrics{
		ConnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "connections_total",
				Help:      "Total websocket connections accepted",
			},
		),

		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "active_connections",
				Help:      "Number of currently open websocket sessions",
			},
		),

		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "commands_total",
				Help:      "Total commands dispatched by action and status",
			},
			[]string{"action", "status"},
		),

		ExperimentRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "experiment_runs_total",
				Help:      "Total experiment runs by experiment and outcome",
			},
			[]string{"experiment", "outcome"},
		),

		ExperimentDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "experiment_duration_seconds",
				Help:      "Wall-clock duration of experiment runs",
				Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
			},
			[]string{"experiment"},
		),

		ActiveExperiments: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: serverSubsystem,
				Name:      "active_experiments",
				Help:      "Number of experiments currently running",
			},
		),
	}

	return DefaultMetrics
}

// Outcome categorizes how an experiment run ended, for metrics
// labeling.
type Outcome string

const (
	// OutcomeCompleted indicates the sweep ran to the end.
	OutcomeCompleted Outcome = "completed"

	// OutcomeCancelled indicates the run was aborted by a cancel
	// command or connection loss.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeError indicates an allocation refusal or internal fault.
	OutcomeError Outcome = "error"
)

// ConnectionOpened records a completed handshake.
func (m *ServerMetrics) ConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records the end of a session.
func (m *ServerMetrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}

// RecordCommand records one dispatched command.
//
// # Inputs
//
//   - action: The command action, or "unknown" for unparseable frames.
//   - ok: Whether the command produced a non-error response.
func (m *ServerMetrics) RecordCommand(action string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(action, status).Inc()
}

// ExperimentStarted increments the active experiment gauge.
func (m *ServerMetrics) ExperimentStarted() {
	m.ActiveExperiments.Inc()
}

// ExperimentFinished records the end of a run.
//
// # Inputs
//
//   - experiment: The registered experiment name.
//   - outcome: How the run ended.
//   - seconds: Wall-clock duration.
func (m *ServerMetrics) ExperimentFinished(experiment string, outcome Outcome, seconds float64) {
	m.ActiveExperiments.Dec()
	m.ExperimentRunsTotal.WithLabelValues(experiment, string(outcome)).Inc()
	m.ExperimentDurationSeconds.WithLabelValues(experiment).Observe(seconds)
}
