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
	"math/rand"
	"slices"
	"testing"
)

func sortInputs(t *testing.T) map[string][]uint64 {
	t.Helper()
	rng := rand.New(rand.NewSource(42))

	random := make([]uint64, 4096)
	for i := range random {
		random[i] = rng.Uint64()
	}
	smallRange := make([]uint64, 4096)
	for i := range smallRange {
		smallRange[i] = uint64(rng.Intn(16))
	}
	sorted := make([]uint64, 1024)
	for i := range sorted {
		sorted[i] = uint64(i) * 3
	}
	reversed := make([]uint64, 1024)
	for i := range reversed {
		reversed[i] = uint64(len(reversed) - i)
	}
	equal := make([]uint64, 512)
	for i := range equal {
		equal[i] = 7
	}

	return map[string][]uint64{
		"random":      random,
		"small_range": smallRange, // heavy duplicates exercise partitioning and counting
		"sorted":      sorted,
		"reversed":    reversed,
		"all_equal":   equal,
		"single":      {99},
	}
}

func TestQuickSortUint64(t *testing.T) {
	for name, input := range sortInputs(t) {
		t.Run(name, func(t *testing.T) {
			got := slices.Clone(input)
			quickSortUint64(got, 0, len(got)-1)

			want := slices.Clone(input)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("quicksort output differs from reference")
			}
		})
	}
}

func TestRadixSortLSD(t *testing.T) {
	for name, input := range sortInputs(t) {
		t.Run(name, func(t *testing.T) {
			got := slices.Clone(input)
			tmp := make([]uint64, len(got))
			radixSortLSD(got, tmp)

			want := slices.Clone(input)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("radix sort output differs from reference")
			}
		})
	}
}

func TestRadixSortInterleaved(t *testing.T) {
	for name, input := range sortInputs(t) {
		t.Run(name, func(t *testing.T) {
			got := slices.Clone(input)
			tmp := make([]uint64, len(got))
			radixSortInterleaved(got, tmp)

			want := slices.Clone(input)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("interleaved radix sort output differs from reference")
			}
		})
	}
}

// TestRadixSorts_ResultInCaller verifies both radix variants leave the
// sorted data in the slice the caller passed, not the scratch buffer.
// Eight passes mean an even number of buffer swaps.
func TestRadixSorts_ResultInCaller(t *testing.T) {
	input := []uint64{1 << 63, 5, 1 << 40, 0, 1<<63 - 1, 3}
	want := slices.Clone(input)
	slices.Sort(want)

	a := slices.Clone(input)
	tmp := make([]uint64, len(a))
	radixSortLSD(a, tmp)
	if !slices.Equal(a, want) {
		t.Errorf("radixSortLSD caller slice = %v, want %v", a, want)
	}

	a = slices.Clone(input)
	tmp = make([]uint64, len(a))
	radixSortInterleaved(a, tmp)
	if !slices.Equal(a, want) {
		t.Errorf("radixSortInterleaved caller slice = %v, want %v", a, want)
	}
}

// TestSorts_HighBytes exercises values whose ordering is decided only
// by the most significant byte, which the later radix passes handle.
func TestSorts_HighBytes(t *testing.T) {
	input := make([]uint64, 256)
	for i := range input {
		input[i] = uint64(255-i) << 56
	}
	want := slices.Clone(input)
	slices.Sort(want)

	got := slices.Clone(input)
	quickSortUint64(got, 0, len(got)-1)
	if !slices.Equal(got, want) {
		t.Errorf("quicksort mishandled high-byte ordering")
	}

	got = slices.Clone(input)
	radixSortLSD(got, make([]uint64, len(got)))
	if !slices.Equal(got, want) {
		t.Errorf("radixSortLSD mishandled high-byte ordering")
	}

	got = slices.Clone(input)
	radixSortInterleaved(got, make([]uint64, len(got)))
	if !slices.Equal(got, want) {
		t.Errorf("radixSortInterleaved mishandled high-byte ordering")
	}
}
