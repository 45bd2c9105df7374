// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pmu

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hwCacheDTLBReadMiss encodes the PERF_TYPE_HW_CACHE config for dTLB
// read misses per perf_event_open(2): cache id in bits 0-7, op in
// bits 8-15, result in bits 16-23.
const hwCacheDTLBReadMiss = unix.PERF_COUNT_HW_CACHE_DTLB |
	unix.PERF_COUNT_HW_CACHE_OP_READ<<8 |
	unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16

type counterSpec struct {
	typ    uint32
	config uint64
	apply  func(*Metrics, uint64)
}

// The first two entries are the core pair; Available reports false
// unless both opened.
const (
	idxInstructions = 0
	idxCycles       = 1
)

var counterSpecs = []counterSpec{
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS,
		func(m *Metrics, v uint64) { m.Instructions = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES,
		func(m *Metrics, v uint64) { m.Cycles = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES,
		func(m *Metrics, v uint64) { m.CacheMisses = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES,
		func(m *Metrics, v uint64) { m.CacheReferences = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES,
		func(m *Metrics, v uint64) { m.BranchMisses = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS,
		func(m *Metrics, v uint64) { m.Branches = v }},
	{unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND,
		func(m *Metrics, v uint64) { m.StalledCyclesBackend = v }},
	{unix.PERF_TYPE_HW_CACHE, hwCacheDTLBReadMiss,
		func(m *Metrics, v uint64) { m.DTLBLoadMisses = v }},
}

// Sampler brackets code regions with per-thread perf counters.
//
// Counters follow the thread that opened them, so create the sampler
// and call Start/Stop from the same locked OS thread that runs the
// measured code. Counters the kernel refuses to open stay at -1 and
// read as zero.
type Sampler struct {
	fds   []int
	avail bool
}

// NewSampler opens the counter set for the calling thread. It never
// fails; when the kernel denies the core pair the sampler reports
// unavailable and every read returns zeros.
func NewSampler() *Sampler {
	s := &Sampler{fds: make([]int, len(counterSpecs))}
	for i, spec := range counterSpecs {
		attr := unix.PerfEventAttr{
			Type:   spec.typ,
			Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Config: spec.config,
			Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		}
		fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			s.fds[i] = -1
			continue
		}
		s.fds[i] = fd
	}
	s.avail = s.fds[idxInstructions] >= 0 && s.fds[idxCycles] >= 0
	return s
}

// Available reports whether the core instruction and cycle counters
// opened.
func (s *Sampler) Available() bool { return s.avail }

// Start resets and enables every open counter.
func (s *Sampler) Start() {
	if !s.avail {
		return
	}
	for _, fd := range s.fds {
		if fd < 0 {
			continue
		}
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0)
	}
}

// Stop disables the counters and returns the deltas since Start.
// Counters that failed to open, or whose read fails, stay zero.
func (s *Sampler) Stop() Metrics {
	var m Metrics
	if !s.avail {
		return m
	}
	buf := make([]byte, 8)
	for i, fd := range s.fds {
		if fd < 0 {
			continue
		}
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
		n, err := unix.Read(fd, buf)
		if err != nil || n != len(buf) {
			continue
		}
		counterSpecs[i].apply(&m, binary.NativeEndian.Uint64(buf))
	}
	return m
}

// Close releases the counter file descriptors.
func (s *Sampler) Close() {
	for i, fd := range s.fds {
		if fd >= 0 {
			_ = unix.Close(fd)
			s.fds[i] = -1
		}
	}
	s.avail = false
}
