// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"time"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
)

type prefetchParams struct {
	Param1B  int `json:"param1_b"`
	Param2KB int `json:"param2_kb"`
}

type prefetchConclusions struct {
	TotalNoPrefetchNs         float64 `json:"total_no_prefetch_ns"`
	TotalPrefetchNs           float64 `json:"total_prefetch_ns"`
	NoPrefetchToPrefetchRatio float64 `json:"no_prefetch_to_prefetch_ratio"`
}

type prefetchPoint struct {
	Offset       int     `json:"offset"`
	NoPrefetchNs float64 `json:"no_prefetch_ns"`
	PrefetchNs   float64 `json:"prefetch_ns"`
}

type prefetchResult struct {
	Experiment  string              `json:"experiment"`
	Parameters  prefetchParams      `json:"parameters"`
	Conclusions prefetchConclusions `json:"conclusions"`
	DataPoints  []prefetchPoint     `json:"dataPoints"`
}

// prefetch times individual cold reads across a buffer twice: once
// plain, once with an explicit prefetch hint issued for the next line
// before each timed access. A decoy buffer of the same size is walked
// between the passes to evict the target from cache.
func (e *Engine) prefetch(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.ClampedInt("param1", 64, 1, 4096) // B, echoed in the result
	param2 := p.ClampedInt("param2", 64, 4, 8192) // KB, array size

	// The sweep reads one word per cache line regardless of param1,
	// so every line shows up as its own data point.
	const stepSize = 64
	const maxPoints = 2000

	arraySize := param2 * 1024

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	target, err := arena.Int32s(arraySize / 4)
	if err != nil {
		return nil, err
	}
	decoy, err := arena.Int32s(arraySize / 4)
	if err != nil {
		return nil, err
	}
	fillWords(target, 0x01010101)
	fillWords(decoy, 0x02020202)

	restore := e.prepare()
	defer restore()

	e.log.Info("prefetch sweep starting",
		"stepSize", stepSize, "arraySize", arraySize, "maxPoints", maxPoints)

	evict := func() {
		var x int32
		for i := 0; i < arraySize; i += stepSize {
			x += decoy[i/4]
		}
		sink.Store(int64(x))
	}

	// Pass 1: plain reads against a cold cache.
	evict()
	noPrefetch := make([]float64, 0, maxPoints)
	var x1 int32
	for a := 0; a < arraySize && len(noPrefetch) < maxPoints; a += stepSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		x1 += target[a/4]
		noPrefetch = append(noPrefetch, float64(time.Since(start).Nanoseconds()))
	}
	sink.Store(int64(x1))

	// Pass 2: same reads, each preceded by a hint for the next line.
	// The hint itself stays outside the timed window.
	evict()
	withPrefetch := make([]float64, 0, maxPoints)
	var x2 int32
	for a := 0; a < arraySize && len(withPrefetch) < maxPoints; a += stepSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if next := a + stepSize; next < arraySize {
			prefetchHint(&target[next/4])
		}
		start := time.Now()
		x2 += target[a/4]
		withPrefetch = append(withPrefetch, float64(time.Since(start).Nanoseconds()))
	}
	sink.Store(int64(x2))

	e.log.Info("prefetch sweep done", "points", len(noPrefetch))

	points := make([]prefetchPoint, len(noPrefetch))
	var totalPlain, totalHinted float64
	for i := range noPrefetch {
		points[i] = prefetchPoint{
			Offset:       i * stepSize,
			NoPrefetchNs: noPrefetch[i],
			PrefetchNs:   withPrefetch[i],
		}
		totalPlain += noPrefetch[i]
		totalHinted += withPrefetch[i]
	}
	ratio := 0.0
	if totalHinted > 0 {
		ratio = totalPlain / totalHinted
	}

	return prefetchResult{
		Experiment: "prefetch",
		Parameters: prefetchParams{Param1B: param1, Param2KB: param2},
		Conclusions: prefetchConclusions{
			TotalNoPrefetchNs:         totalPlain,
			TotalPrefetchNs:           totalHinted,
			NoPrefetchToPrefetchRatio: ratio,
		},
		DataPoints: points,
	}, nil
}

func fillWords(buf []int32, v int32) {
	for i := range buf {
		buf[i] = v
	}
}
