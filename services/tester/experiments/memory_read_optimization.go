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
	"github.com/AleutianAI/hwtester/services/tester/pmu"
)

type readOptimizationParams struct {
	Param1MB      int `json:"param1_mb"`
	Param2Streams int `json:"param2_streams"`
}

type readOptimizationConclusions struct {
	TotalSeparateTimeUs      float64 `json:"total_separate_time_us"`
	TotalOptimizedTimeUs     float64 `json:"total_optimized_time_us"`
	SeparateToOptimizedRatio float64 `json:"separate_to_optimized_ratio"`
}

type readOptimizationPoint struct {
	Streams         int     `json:"streams"`
	SeparateTimeUs  float64 `json:"separate_time_us"`
	OptimizedTimeUs float64 `json:"optimized_time_us"`
}

type readOptimizationPmuSummary struct {
	Separate  pmu.Summary `json:"separate"`
	Optimized pmu.Summary `json:"optimized"`
}

type readOptimizationResult struct {
	Experiment  string                      `json:"experiment"`
	Parameters  readOptimizationParams      `json:"parameters"`
	Conclusions readOptimizationConclusions `json:"conclusions"`
	DataPoints  []readOptimizationPoint     `json:"dataPoints"`
	PmuSummary  readOptimizationPmuSummary  `json:"pmu_summary"`
}

// memoryReadOptimization isolates the cost of scattered memory
// streams: at each swept stream count it reads N separate equal-sized
// buffers round-robin, then reads one buffer holding the same data
// pre-interleaved, so the hardware prefetchers see one stream instead
// of N.
func (e *Engine) memoryReadOptimization(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.ClampedInt("param1", 1, 1, 4)    // MB per stream
	param2 := p.ClampedInt("param2", 32, 1, 128) // stream count

	arraySize := param1 * 1024 * 1024
	n := arraySize / 4
	maxStreams := param2

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	separate := make([][]int32, maxStreams)
	for i := range separate {
		buf, err := arena.Int32s(n)
		if err != nil {
			return nil, err
		}
		clear(buf)
		separate[i] = buf
	}
	interleaved, err := arena.Int32s(n * maxStreams)
	if err != nil {
		return nil, err
	}
	clear(interleaved)

	restore := e.prepare()
	defer restore()

	sampler := pmu.NewSampler()
	defer sampler.Close()

	e.log.Info("memory_read_optimization sweep starting",
		"arraySize", arraySize, "maxStreams", maxStreams,
		"pmu", sampler.Available())

	points := make([]readOptimizationPoint, 0, maxStreams)
	var separatePmu, interleavedPmu pmu.Metrics
	lim := e.progressLimiter()

	for streams := 1; streams <= maxStreams; streams++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sampler.Start()
		start := time.Now()
		var x1 int32
		for i := 0; i < n; i++ {
			for s := 0; s < streams; s++ {
				x1 += separate[s][i]
			}
		}
		separateTime := usSince(start)
		separatePmu.Add(sampler.Stop())
		sink.Store(int64(x1))

		sampler.Start()
		start = time.Now()
		var x2 int32
		for base := 0; base < n*streams; base += streams {
			for s := 0; s < streams; s++ {
				x2 += interleaved[base+s]
			}
		}
		optimizedTime := usSince(start)
		interleavedPmu.Add(sampler.Stop())
		sink.Store(int64(x2))

		points = append(points, readOptimizationPoint{
			Streams:         streams,
			SeparateTimeUs:  separateTime,
			OptimizedTimeUs: optimizedTime,
		})
		if lim.Allow() {
			e.log.Debug("memory_read_optimization progress",
				"streams", streams, "of", maxStreams)
		}
	}

	var totalSeparate, totalOptimized float64
	for _, pt := range points {
		totalSeparate += pt.SeparateTimeUs
		totalOptimized += pt.OptimizedTimeUs
	}
	ratio := 0.0
	if totalOptimized > 0 {
		ratio = totalSeparate / totalOptimized
	}

	e.log.Info("memory_read_optimization sweep done", "points", len(points))

	return readOptimizationResult{
		Experiment: "memory_read_optimization",
		Parameters: readOptimizationParams{
			Param1MB:      param1,
			Param2Streams: param2,
		},
		Conclusions: readOptimizationConclusions{
			TotalSeparateTimeUs:      totalSeparate,
			TotalOptimizedTimeUs:     totalOptimized,
			SeparateToOptimizedRatio: ratio,
		},
		DataPoints: points,
		PmuSummary: readOptimizationPmuSummary{
			Separate:  separatePmu.Summarize(),
			Optimized: interleavedPmu.Summarize(),
		},
	}, nil
}
