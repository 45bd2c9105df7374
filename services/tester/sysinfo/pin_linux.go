// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sysinfo

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToLastCore locks the calling goroutine to its OS thread and
// restricts that thread to the highest-numbered CPU. The last core
// tends to carry the least interrupt and housekeeping load, which
// keeps timing loops quieter.
//
// The returned restore function undoes both the affinity mask and the
// thread lock. Callers run it when the measurement finishes so the
// scheduler gets the thread back.
func PinToLastCore() (restore func(), err error) {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("sysinfo: reading affinity: %w", err)
	}

	var pinned unix.CPUSet
	pinned.Zero()
	pinned.Set(runtime.NumCPU() - 1)
	if err := unix.SchedSetaffinity(0, &pinned); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("sysinfo: pinning to last core: %w", err)
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}

// RaisePriority asks for realtime FIFO scheduling for the calling
// thread and falls back to the strongest nice level. Both usually
// require privileges; the caller treats failure as informational.
//
// The restore function puts the thread's scheduling back so the
// runtime does not recycle a realtime thread into the pool. Call it
// on the same locked thread that raised the priority.
func RaisePriority() (restore func(), err error) {
	prev, getErr := unix.SchedGetAttr(0, 0)

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: 1,
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err == nil {
		if getErr != nil {
			return func() {}, nil
		}
		return func() { _ = unix.SchedSetAttr(0, prev, 0) }, nil
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		return nil, fmt.Errorf("sysinfo: raising priority: %w", err)
	}
	// Linux nice is per-thread; put the recycled thread back at the
	// default level rather than whatever it started with.
	return func() { _ = unix.Setpriority(unix.PRIO_PROCESS, 0, 0) }, nil
}
