// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package experiments implements the measurement routines the command
// router dispatches.
//
// Every routine follows one contract: clamp parameters to their
// documented ranges, take scratch buffers from an Arena so every exit
// path releases what was held, pin the calling goroutine to a quiet
// core, sweep one parameter while checking the context between steps,
// and return a result object whose JSON shape the plotting clients
// consume unchanged. Timed loops accumulate into a package sink so
// the compiler cannot discard the memory accesses being measured.
package experiments

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/hwtester/services/tester/registry"
	"github.com/AleutianAI/hwtester/services/tester/sysinfo"
)

// numTimingTrials is how many concurrent timing runs each sweep point
// gets; the minimum of the trials suppresses scheduler-noise outliers.
const numTimingTrials = 3

// sink receives the accumulator of every timed loop. A store the
// compiler must keep is what stops it eliding the loads under
// measurement.
var sink atomic.Int64

// Engine owns the configuration shared by all measurement routines.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// Config tunes the measurement routines.
type Config struct {
	// ScratchBudgetBytes caps the scratch memory one routine
	// invocation may hold at once. Zero selects the default budget.
	ScratchBudgetBytes int64
}

// NewEngine builds an engine. A nil logger falls back to
// slog.Default().
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, log: logger}
}

// Register adds every measurement routine to reg. Registration order
// is the order clients see in listings.
func (e *Engine) Register(reg *registry.Registry) {
	reg.Register("memory_stratification",
		"Dynamic memory stratification sweep. Params: param1 (1-128 KB max distance), param2 (4-64 B step), param3 (1-16 MB array), cacheLine (0 = auto)",
		e.memoryStratification)
	reg.Register("list_vs_array",
		"Linked list vs contiguous array traversal. Params: param1 (1-20 MB of elements), param2 (4-500 KB max fragmentation), param3 (1-10 KB step)",
		e.listVsArray)
	reg.Register("prefetch",
		"Software prefetch effectiveness. Params: param1 (1-4096 B step), param2 (4-8192 KB array)",
		e.prefetch)
	reg.Register("memory_read_optimization",
		"Scattered vs interleaved stream reads. Params: param1 (1-4 MB per stream), param2 (1-128 streams)",
		e.memoryReadOptimization)
	reg.Register("cache_conflicts",
		"Cache set conflict probing. Params: param1 (0 = auto or 1-256 KB bank), param2 (0 = auto or 1-128 B line), param3 (2-512 lines)",
		e.cacheConflicts)
	reg.Register("sorting_algorithms",
		"Quicksort vs radix sort wall-clock comparison. Params: param1 (1-20 M elements), param2 (4-1024 K size step)",
		e.sortingAlgorithms)
}

// prepare isolates the calling goroutine for timing: it pins the
// thread to the last core and raises scheduling priority, both best
// effort. The returned function undoes whatever succeeded.
func (e *Engine) prepare() func() {
	unpin, err := sysinfo.PinToLastCore()
	if err != nil {
		e.log.Debug("core pinning unavailable", "error", err)
		unpin = func() {}
	}
	lower, err := sysinfo.RaisePriority()
	if err != nil {
		e.log.Debug("priority raise unavailable", "error", err)
		lower = func() {}
	}
	return func() {
		lower()
		unpin()
	}
}

// progressLimiter paces per-step progress logging so long sweeps do
// not flood the log.
func (e *Engine) progressLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
}

// usSince reports the elapsed time since start in microseconds.
func usSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e3
}
