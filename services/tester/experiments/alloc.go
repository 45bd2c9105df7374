// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// DefaultScratchBudgetBytes bounds one routine invocation's scratch
// memory when the config does not say otherwise. The runtime cannot
// report allocation failure the way malloc does, so the budget is
// what turns an oversized request into a reportable error instead of
// an aborted process.
const DefaultScratchBudgetBytes = 2 << 30

// scratchAlign is the base alignment of scratch buffers. The strided
// walks derive set and bank offsets from the buffer base, which only
// means anything when the base sits on a cache-line boundary.
const scratchAlign = 64

var liveScratchBytes atomic.Int64

// LiveScratchBytes reports the bytes currently booked by all arenas.
// It returns to its prior value once a routine has released its
// scratch, including on the cancellation path.
func LiveScratchBytes() int64 { return liveScratchBytes.Load() }

// AllocFailedError reports a scratch request the budget refused.
type AllocFailedError struct {
	RequestedSize int64
}

func (e *AllocFailedError) Error() string {
	return fmt.Sprintf("experiments: scratch allocation of %d bytes refused", e.RequestedSize)
}

// Arena hands out aligned scratch buffers for one routine invocation
// and accounts for them until Release. It is owned by a single
// goroutine and is not safe for concurrent use.
type Arena struct {
	budget int64
	used   int64
}

// NewArena builds an arena with the given byte budget; non-positive
// selects DefaultScratchBudgetBytes.
func NewArena(budgetBytes int64) *Arena {
	if budgetBytes <= 0 {
		budgetBytes = DefaultScratchBudgetBytes
	}
	return &Arena{budget: budgetBytes}
}

// Int32s returns a zeroed n-element buffer on a 64-byte boundary, or
// an AllocFailedError when it would exceed the budget.
func (a *Arena) Int32s(n int) ([]int32, error) {
	if err := a.Reserve(int64(n) * 4); err != nil {
		return nil, err
	}
	return alignedSlice[int32](n), nil
}

// Uint64s is Int32s for 8-byte elements.
func (a *Arena) Uint64s(n int) ([]uint64, error) {
	if err := a.Reserve(int64(n) * 8); err != nil {
		return nil, err
	}
	return alignedSlice[uint64](n), nil
}

// Reserve books n bytes against the budget without handing out a
// buffer, for scratch shapes the typed helpers do not cover.
func (a *Arena) Reserve(n int64) error {
	if n < 0 || a.used+n > a.budget {
		return &AllocFailedError{RequestedSize: n}
	}
	a.used += n
	liveScratchBytes.Add(n)
	return nil
}

// Used reports the bytes this arena currently holds.
func (a *Arena) Used() int64 { return a.used }

// Release returns the arena's accounting. The memory itself goes back
// with the slices; releasing twice is harmless.
func (a *Arena) Release() {
	liveScratchBytes.Add(-a.used)
	a.used = 0
}

// alignedSlice over-allocates by one cache line and slices from the
// first aligned element. The element sizes in the constraint divide
// scratchAlign, so an aligned element boundary always exists.
func alignedSlice[T int32 | uint64](n int) []T {
	var zero T
	size := unsafe.Sizeof(zero)
	pad := scratchAlign / int(size)
	raw := make([]T, n+pad)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := 0
	if rem := base % scratchAlign; rem != 0 {
		off = int((scratchAlign - rem) / size)
	}
	return raw[off : off+n : off+n]
}
