// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"math/rand"
	"time"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/pmu"
)

type sortingParams struct {
	Param1M int `json:"param1_m"`
	Param2K int `json:"param2_k"`
}

type sortingConclusions struct {
	TotalQuicksortUs         float64 `json:"total_quicksort_us"`
	TotalRadixUs             float64 `json:"total_radix_us"`
	TotalRadixOptUs          float64 `json:"total_radix_opt_us"`
	QuicksortToRadixRatio    float64 `json:"quicksort_to_radix_ratio"`
	QuicksortToRadixOptRatio float64 `json:"quicksort_to_radix_opt_ratio"`
	RadixToRadixOptRatio     float64 `json:"radix_to_radix_opt_ratio"`
}

type sortingPoint struct {
	Elements        int     `json:"elements"`
	QuicksortTimeUs float64 `json:"quicksort_time_us"`
	RadixTimeUs     float64 `json:"radix_time_us"`
	RadixOptTimeUs  float64 `json:"radix_opt_time_us"`
}

type sortingPmuSummary struct {
	Quicksort pmu.Summary `json:"quicksort"`
	Radix     pmu.Summary `json:"radix"`
	RadixOpt  pmu.Summary `json:"radix_opt"`
}

type sortingResult struct {
	Experiment  string             `json:"experiment"`
	Parameters  sortingParams      `json:"parameters"`
	Conclusions sortingConclusions `json:"conclusions"`
	DataPoints  []sortingPoint     `json:"dataPoints"`
	PmuSummary  sortingPmuSummary  `json:"pmu_summary"`
}

// sortingAlgorithms compares the wall-clock behavior of an O(n log n)
// comparison sort against two O(n) radix variants over a swept input
// size. All three see identical random data at every size, so the
// curves differ only by how each algorithm spends memory bandwidth.
func (e *Engine) sortingAlgorithms(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.ClampedInt("param1", 1, 1, 20)     // M elements, sweep ceiling
	param2 := p.ClampedInt("param2", 100, 4, 1024) // K elements, sweep step

	maxElements := param1 * 1024 * 1024
	stepElements := param2 * 1024

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	quickBuf, err := arena.Uint64s(maxElements)
	if err != nil {
		return nil, err
	}
	radixBuf, err := arena.Uint64s(maxElements)
	if err != nil {
		return nil, err
	}
	radixTmp, err := arena.Uint64s(maxElements)
	if err != nil {
		return nil, err
	}
	radixOptBuf, err := arena.Uint64s(maxElements)
	if err != nil {
		return nil, err
	}
	radixOptTmp, err := arena.Uint64s(maxElements)
	if err != nil {
		return nil, err
	}

	restore := e.prepare()
	defer restore()

	sampler := pmu.NewSampler()
	defer sampler.Close()

	e.log.Info("sorting_algorithms sweep starting",
		"maxElements", maxElements, "stepElements", stepElements,
		"steps", maxElements/stepElements, "pmu", sampler.Available())

	points := make([]sortingPoint, 0, maxElements/stepElements)
	var quickPmu, radixPmu, radixOptPmu pmu.Metrics
	lim := e.progressLimiter()

	for numElements := stepElements; numElements <= maxElements; numElements += stepElements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := 0; i < numElements; i++ {
			v := rand.Uint64()
			quickBuf[i] = v
			radixBuf[i] = v
			radixOptBuf[i] = v
		}

		sampler.Start()
		start := time.Now()
		quickSortUint64(quickBuf, 0, numElements-1)
		quickTime := usSince(start)
		quickPmu.Add(sampler.Stop())

		sampler.Start()
		start = time.Now()
		radixSortLSD(radixBuf[:numElements], radixTmp[:numElements])
		radixTime := usSince(start)
		radixPmu.Add(sampler.Stop())

		sampler.Start()
		start = time.Now()
		radixSortInterleaved(radixOptBuf[:numElements], radixOptTmp[:numElements])
		radixOptTime := usSince(start)
		radixOptPmu.Add(sampler.Stop())

		points = append(points, sortingPoint{
			Elements:        numElements,
			QuicksortTimeUs: quickTime,
			RadixTimeUs:     radixTime,
			RadixOptTimeUs:  radixOptTime,
		})
		if lim.Allow() {
			e.log.Debug("sorting_algorithms progress",
				"elements", numElements, "of", maxElements)
		}
	}

	var totalQuick, totalRadix, totalRadixOpt float64
	for _, pt := range points {
		totalQuick += pt.QuicksortTimeUs
		totalRadix += pt.RadixTimeUs
		totalRadixOpt += pt.RadixOptTimeUs
	}
	ratio := func(a, b float64) float64 {
		if b > 0 {
			return a / b
		}
		return 0
	}

	e.log.Info("sorting_algorithms sweep done", "points", len(points))

	return sortingResult{
		Experiment: "sorting_algorithms",
		Parameters: sortingParams{Param1M: param1, Param2K: param2},
		Conclusions: sortingConclusions{
			TotalQuicksortUs:         totalQuick,
			TotalRadixUs:             totalRadix,
			TotalRadixOptUs:          totalRadixOpt,
			QuicksortToRadixRatio:    ratio(totalQuick, totalRadix),
			QuicksortToRadixOptRatio: ratio(totalQuick, totalRadixOpt),
			RadixToRadixOptRatio:     ratio(totalRadix, totalRadixOpt),
		},
		DataPoints: points,
		PmuSummary: sortingPmuSummary{
			Quicksort: quickPmu.Summarize(),
			Radix:     radixPmu.Summarize(),
			RadixOpt:  radixOptPmu.Summarize(),
		},
	}, nil
}

// quickSortUint64 is a Hoare-partition quicksort with the middle
// element as pivot, recursing on both halves.
func quickSortUint64(a []uint64, lo, hi int) {
	l, h := lo, hi
	pivot := a[(lo+hi)>>1]
	for {
		for a[l] < pivot {
			l++
		}
		for a[h] > pivot {
			h--
		}
		if l <= h {
			a[l], a[h] = a[h], a[l]
			l++
			h--
		}
		if l >= h {
			break
		}
	}
	if h > lo {
		quickSortUint64(a, lo, h)
	}
	if l < hi {
		quickSortUint64(a, l, hi)
	}
}

// radixSortLSD sorts a in eight byte-wise passes, each a counting
// sort: histogram the pass byte, prefix-sum, then redistribute into b
// from the back to keep the sort stable. The buffers swap roles each
// pass, so after the even number of passes the sorted data is back in
// the caller's a.
func radixSortLSD(a, b []uint64) {
	var counts [256]int
	for pass := 0; pass < 8; pass++ {
		shift := uint(8 * pass)
		clear(counts[:])
		for _, v := range a {
			counts[byte(v>>shift)]++
		}
		for j := 1; j < 256; j++ {
			counts[j] += counts[j-1]
		}
		for j := len(a) - 1; j >= 0; j-- {
			d := byte(a[j] >> shift)
			counts[d]--
			b[counts[d]] = a[j]
		}
		a, b = b, a
	}
}

// radixSortInterleaved builds all eight histograms in a single pass
// over the input before redistributing. The eight count lanes are
// interleaved and updated with independent unrolled statements, so a
// superscalar core can overlap them instead of serializing one
// histogram per pass.
func radixSortInterleaved(a, b []uint64) {
	var counts [256 * 8]int
	clear(counts[:])

	for _, v := range a {
		counts[int(byte(v))*8+0]++
		counts[int(byte(v>>8))*8+1]++
		counts[int(byte(v>>16))*8+2]++
		counts[int(byte(v>>24))*8+3]++
		counts[int(byte(v>>32))*8+4]++
		counts[int(byte(v>>40))*8+5]++
		counts[int(byte(v>>48))*8+6]++
		counts[int(byte(v>>56))*8+7]++
	}

	for j := 1; j < 256; j++ {
		counts[j*8+0] += counts[(j-1)*8+0]
		counts[j*8+1] += counts[(j-1)*8+1]
		counts[j*8+2] += counts[(j-1)*8+2]
		counts[j*8+3] += counts[(j-1)*8+3]
		counts[j*8+4] += counts[(j-1)*8+4]
		counts[j*8+5] += counts[(j-1)*8+5]
		counts[j*8+6] += counts[(j-1)*8+6]
		counts[j*8+7] += counts[(j-1)*8+7]
	}

	for pass := 0; pass < 8; pass++ {
		shift := uint(8 * pass)
		for j := len(a) - 1; j >= 0; j-- {
			i := int(byte(a[j]>>shift))*8 + pass
			counts[i]--
			b[counts[i]] = a[j]
		}
		a, b = b, a
	}
}
