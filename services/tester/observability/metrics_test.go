// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a ServerMetrics instance with a custom
// registry. This avoids conflicts with the global Prometheus registry
// and allows repeated construction across tests.
func newTestMetrics(t *testing.T) *ServerMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	connectionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "connections_total",
			Help:      "Total websocket connections accepted",
		},
	)

	activeConnections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "active_connections",
			Help:      "Number of currently open websocket sessions",
		},
	)

	commandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "commands_total",
			Help:      "Total commands dispatched by action and status",
		},
		[]string{"action", "status"},
	)

	experimentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "experiment_runs_total",
			Help:      "Total experiment runs by experiment and outcome",
		},
		[]string{"experiment", "outcome"},
	)

	experimentDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "experiment_duration_seconds",
			Help:      "Wall-clock duration of experiment runs",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
		},
		[]string{"experiment"},
	)

	activeExperiments := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: serverSubsystem,
			Name:      "active_experiments",
			Help:      "Number of experiments currently running",
		},
	)

	reg.MustRegister(
		connectionsTotal,
		activeConnections,
		commandsTotal,
		experimentRunsTotal,
		experimentDurationSeconds,
		activeExperiments,
	)

	return &ServerMetrics{
		ConnectionsTotal:          connectionsTotal,
		ActiveConnections:         activeConnections,
		CommandsTotal:             commandsTotal,
		ExperimentRunsTotal:       experimentRunsTotal,
		ExperimentDurationSeconds: experimentDurationSeconds,
		ActiveExperiments:         activeExperiments,
	}
}

// Note: InitMetrics uses promauto which registers with the default
// Prometheus registry. This test must only run once per test binary
// execution since duplicate registration will panic.
var initMetricsTestOnce bool

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test run (promauto restriction)")
	}
	initMetricsTestOnce = true

	result := InitMetrics()

	if result == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics != result {
		t.Error("DefaultMetrics should equal the returned value")
	}
	if result.ConnectionsTotal == nil {
		t.Error("ConnectionsTotal should not be nil")
	}
	if result.CommandsTotal == nil {
		t.Error("CommandsTotal should not be nil")
	}
	if result.ExperimentRunsTotal == nil {
		t.Error("ExperimentRunsTotal should not be nil")
	}
	if result.ExperimentDurationSeconds == nil {
		t.Error("ExperimentDurationSeconds should not be nil")
	}

	// Verify metrics can be used
	result.ConnectionOpened()
	result.RecordCommand("list", true)
	result.ExperimentStarted()
	result.ExperimentFinished("list_vs_array", OutcomeCompleted, 1.5)
	result.ConnectionClosed()
}

func TestConstants(t *testing.T) {
	if metricsNamespace != "hwtester" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "hwtester")
	}
	if serverSubsystem != "server" {
		t.Errorf("serverSubsystem = %q, want %q", serverSubsystem, "server")
	}
}

func TestOutcomeConstants(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeCompleted, "completed"},
		{OutcomeCancelled, "cancelled"},
		{OutcomeError, "error"},
	}

	for _, tt := range tests {
		if string(tt.outcome) != tt.want {
			t.Errorf("Outcome = %q, want %q", tt.outcome, tt.want)
		}
	}
}

func TestServerMetrics_ConnectionLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.ConnectionOpened()
	m.ConnectionOpened()

	totalVal := testutil.ToFloat64(m.ConnectionsTotal)
	if totalVal != 2 {
		t.Errorf("ConnectionsTotal = %f, want 2", totalVal)
	}

	activeVal := testutil.ToFloat64(m.ActiveConnections)
	if activeVal != 2 {
		t.Errorf("ActiveConnections = %f, want 2", activeVal)
	}

	m.ConnectionClosed()

	activeVal = testutil.ToFloat64(m.ActiveConnections)
	if activeVal != 1 {
		t.Errorf("ActiveConnections after close = %f, want 1", activeVal)
	}

	// The total never decreases.
	totalVal = testutil.ToFloat64(m.ConnectionsTotal)
	if totalVal != 2 {
		t.Errorf("ConnectionsTotal after close = %f, want 2", totalVal)
	}
}

func TestServerMetrics_RecordCommand(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCommand("list", true)
	m.RecordCommand("list", true)
	m.RecordCommand("execute", false)
	m.RecordCommand("unknown", false)

	okVal := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("list", "ok"))
	if okVal != 2 {
		t.Errorf("CommandsTotal[list,ok] = %f, want 2", okVal)
	}

	errVal := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("execute", "error"))
	if errVal != 1 {
		t.Errorf("CommandsTotal[execute,error] = %f, want 1", errVal)
	}

	unknownVal := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("unknown", "error"))
	if unknownVal != 1 {
		t.Errorf("CommandsTotal[unknown,error] = %f, want 1", unknownVal)
	}
}

func TestServerMetrics_ExperimentLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.ExperimentStarted()

	activeVal := testutil.ToFloat64(m.ActiveExperiments)
	if activeVal != 1 {
		t.Errorf("ActiveExperiments = %f, want 1", activeVal)
	}

	m.ExperimentFinished("prefetch", OutcomeCompleted, 2.5)

	activeVal = testutil.ToFloat64(m.ActiveExperiments)
	if activeVal != 0 {
		t.Errorf("ActiveExperiments after finish = %f, want 0", activeVal)
	}

	runsVal := testutil.ToFloat64(m.ExperimentRunsTotal.WithLabelValues("prefetch", "completed"))
	if runsVal != 1 {
		t.Errorf("ExperimentRunsTotal[prefetch,completed] = %f, want 1", runsVal)
	}

	count := testutil.CollectAndCount(m.ExperimentDurationSeconds)
	if count == 0 {
		t.Error("Expected the duration histogram to be collected")
	}
}

func TestServerMetrics_ExperimentOutcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.ExperimentStarted()
	m.ExperimentFinished("sorting_algorithms", OutcomeCancelled, 0.5)
	m.ExperimentStarted()
	m.ExperimentFinished("sorting_algorithms", OutcomeError, 0.1)

	cancelledVal := testutil.ToFloat64(
		m.ExperimentRunsTotal.WithLabelValues("sorting_algorithms", "cancelled"))
	if cancelledVal != 1 {
		t.Errorf("ExperimentRunsTotal[cancelled] = %f, want 1", cancelledVal)
	}

	errorVal := testutil.ToFloat64(
		m.ExperimentRunsTotal.WithLabelValues("sorting_algorithms", "error"))
	if errorVal != 1 {
		t.Errorf("ExperimentRunsTotal[error] = %f, want 1", errorVal)
	}
}

func TestServerMetrics_ConcurrentSafety(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool, 60)

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordCommand("execute", true)
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.ConnectionOpened()
			m.ConnectionClosed()
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.ExperimentStarted()
			m.ExperimentFinished("cache_conflicts", OutcomeCompleted, 1.0)
			done <- true
		}()
	}

	for i := 0; i < 60; i++ {
		<-done
	}

	commandsVal := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("execute", "ok"))
	if commandsVal != 20 {
		t.Errorf("CommandsTotal[execute,ok] = %f, want 20", commandsVal)
	}

	activeVal := testutil.ToFloat64(m.ActiveConnections)
	if activeVal != 0 {
		t.Errorf("ActiveConnections = %f, want 0", activeVal)
	}
}
