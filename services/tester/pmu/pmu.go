// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pmu samples hardware performance counters around timed code
// regions.
//
// On Linux the sampler opens perf events for the calling thread; on
// every other platform, and wherever the kernel denies counter access,
// it degrades to an unavailable sampler the experiments simply skip.
// Individual counters that fail to open report zero rather than
// failing the whole sample; only the core pair (instructions and
// cycles) decides availability.
package pmu

// Metrics holds counter deltas for one bracketed code region.
//
// Samples accumulate associatively: the sum of two samples equals one
// sample over the concatenated windows, which lets experiments keep a
// running total across sweep points.
type Metrics struct {
	Instructions         uint64 `json:"instructions"`
	Cycles               uint64 `json:"cycles"`
	CacheMisses          uint64 `json:"cache_misses"`
	CacheReferences      uint64 `json:"cache_references"`
	BranchMisses         uint64 `json:"branch_misses"`
	Branches             uint64 `json:"branches"`
	StalledCyclesBackend uint64 `json:"stalled_cycles_backend"`
	DTLBLoadMisses       uint64 `json:"dtlb_load_misses"`
}

// Add accumulates other into m.
func (m *Metrics) Add(other Metrics) {
	m.Instructions += other.Instructions
	m.Cycles += other.Cycles
	m.CacheMisses += other.CacheMisses
	m.CacheReferences += other.CacheReferences
	m.BranchMisses += other.BranchMisses
	m.Branches += other.Branches
	m.StalledCyclesBackend += other.StalledCyclesBackend
	m.DTLBLoadMisses += other.DTLBLoadMisses
}

// IPC derives instructions per cycle, 0 when no cycles were counted.
func (m Metrics) IPC() float64 {
	if m.Cycles == 0 {
		return 0
	}
	return float64(m.Instructions) / float64(m.Cycles)
}

// Summary is the JSON shape experiments embed as pmu_summary: the raw
// counters plus the derived IPC.
type Summary struct {
	Metrics
	IPC float64 `json:"ipc"`
}

// Summarize builds the summary view of m.
func (m Metrics) Summarize() Summary {
	return Summary{Metrics: m, IPC: m.IPC()}
}

// Measure runs fn between Start and Stop and returns the counter
// deltas for that window. fn always runs, even when the sampler is
// unavailable and the returned metrics are zero.
func (s *Sampler) Measure(fn func()) Metrics {
	s.Start()
	fn()
	return s.Stop()
}
