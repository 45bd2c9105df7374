// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiments

import (
	"errors"
	"testing"
	"unsafe"
)

func TestArena_BudgetRefusal(t *testing.T) {
	a := NewArena(1024)
	defer a.Release()

	buf, err := a.Int32s(128) // 512 bytes, fits
	if err != nil {
		t.Fatalf("Int32s within budget: %v", err)
	}
	if len(buf) != 128 {
		t.Fatalf("len = %d, want 128", len(buf))
	}

	_, err = a.Int32s(256) // 1024 more bytes, over budget
	if err == nil {
		t.Fatal("expected refusal above budget")
	}
	var allocErr *AllocFailedError
	if !errors.As(err, &allocErr) {
		t.Fatalf("error type = %T, want *AllocFailedError", err)
	}
	if allocErr.RequestedSize != 1024 {
		t.Errorf("RequestedSize = %d, want 1024", allocErr.RequestedSize)
	}

	// A refused request must not consume budget.
	if got := a.Used(); got != 512 {
		t.Errorf("Used after refusal = %d, want 512", got)
	}
}

func TestArena_NegativeReserve(t *testing.T) {
	a := NewArena(1024)
	defer a.Release()
	if err := a.Reserve(-1); err == nil {
		t.Fatal("expected refusal of negative reservation")
	}
	if a.Used() != 0 {
		t.Errorf("Used = %d, want 0", a.Used())
	}
}

func TestArena_ReleaseAccounting(t *testing.T) {
	before := LiveScratchBytes()

	a := NewArena(1 << 20)
	if _, err := a.Uint64s(1000); err != nil {
		t.Fatalf("Uint64s: %v", err)
	}
	if got := LiveScratchBytes(); got != before+8000 {
		t.Errorf("live bytes during hold = %d, want %d", got, before+8000)
	}

	a.Release()
	if got := LiveScratchBytes(); got != before {
		t.Errorf("live bytes after release = %d, want %d", got, before)
	}

	// Releasing twice must not drive the counter negative.
	a.Release()
	if got := LiveScratchBytes(); got != before {
		t.Errorf("live bytes after double release = %d, want %d", got, before)
	}
}

func TestArena_DefaultBudget(t *testing.T) {
	a := NewArena(0)
	defer a.Release()
	if err := a.Reserve(DefaultScratchBudgetBytes); err != nil {
		t.Fatalf("full default budget should be reservable: %v", err)
	}
	if err := a.Reserve(1); err == nil {
		t.Fatal("expected refusal one byte past the default budget")
	}
}

func TestAlignedSlice_Base(t *testing.T) {
	for i := 0; i < 32; i++ {
		b32 := alignedSlice[int32](97)
		if p := uintptr(unsafe.Pointer(unsafe.SliceData(b32))); p%scratchAlign != 0 {
			t.Fatalf("int32 base %#x not %d-byte aligned", p, scratchAlign)
		}
		if len(b32) != 97 || cap(b32) != 97 {
			t.Fatalf("int32 len/cap = %d/%d, want 97/97", len(b32), cap(b32))
		}

		b64 := alignedSlice[uint64](33)
		if p := uintptr(unsafe.Pointer(unsafe.SliceData(b64))); p%scratchAlign != 0 {
			t.Fatalf("uint64 base %#x not %d-byte aligned", p, scratchAlign)
		}
		if len(b64) != 33 || cap(b64) != 33 {
			t.Fatalf("uint64 len/cap = %d/%d, want 33/33", len(b64), cap(b64))
		}
	}
}

func TestAlignedSlice_Zeroed(t *testing.T) {
	buf := alignedSlice[uint64](256)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("element %d = %d, want 0", i, v)
		}
	}
}
