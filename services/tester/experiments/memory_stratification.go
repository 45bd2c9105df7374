// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/hwtester/services/tester/analysis"
	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/pmu"
	"github.com/AleutianAI/hwtester/services/tester/sysinfo"
)

type stratificationParams struct {
	Param1KB         int `json:"param1_kb"`
	Param2B          int `json:"param2_b"`
	Param3MB         int `json:"param3_mb"`
	CacheLine        int `json:"cacheLine"`
	MaxDistanceBytes int `json:"maxDistance_bytes"`
	StepSizeBytes    int `json:"stepSize_bytes"`
	ArraySizeBytes   int `json:"arraySize_bytes"`
}

type stratificationPoint struct {
	Step           int     `json:"step"`
	TimeUs         float64 `json:"time_us"`
	CacheMisses    uint64  `json:"cache_misses"`
	BranchMisses   uint64  `json:"branch_misses"`
	DTLBLoadMisses uint64  `json:"dtlb_load_misses"`
}

type stratificationResult struct {
	Experiment  string                  `json:"experiment"`
	Parameters  stratificationParams    `json:"parameters"`
	Analysis    analysis.Stratification `json:"analysis"`
	SeriesStats analysis.SeriesStats    `json:"series_stats"`
	DataPoints  []stratificationPoint   `json:"dataPoints"`
	PmuSummary  pmu.Summary             `json:"pmu_summary"`
}

// memoryStratification sweeps the distance between reads from one
// step up to a maximum and times a full strided walk of the buffer at
// each distance. The latency curve's discontinuities expose cache
// bank and page boundaries, which the analyzer turns into topology
// estimates.
func (e *Engine) memoryStratification(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.ClampedInt("param1", 64, 1, 128) // KB, max distance
	param2 := p.ClampedInt("param2", 4, 4, 64)   // B, distance step
	param3 := p.ClampedInt("param3", 8, 1, 16)   // MB, array size
	cacheLine := p.Int("cacheLine", 0)
	if cacheLine <= 0 {
		cacheLine = sysinfo.CacheLineSize()
	}

	maxDistance := param1 * 1024
	stepSize := param2
	arraySize := param3 * 1024 * 1024

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	buf, err := arena.Int32s(arraySize / 4)
	if err != nil {
		return nil, err
	}
	clear(buf) // fault every page in before timing starts

	restore := e.prepare()
	defer restore()

	sampler := pmu.NewSampler()
	defer sampler.Close()

	totalSteps := maxDistance / stepSize
	e.log.Info("memory_stratification sweep starting",
		"maxDistance", maxDistance, "stepSize", stepSize,
		"arraySize", arraySize, "cacheLine", cacheLine,
		"steps", totalSteps, "pmu", sampler.Available())

	points := make([]stratificationPoint, 0, totalSteps)
	series := make([]analysis.Sample, 0, totalSteps)
	var totalPmu pmu.Metrics
	lim := e.progressLimiter()

	for pgSize := stepSize; pgSize <= maxDistance; pgSize += stepSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		times := make([]float64, numTimingTrials)
		var g errgroup.Group
		for trial := 0; trial < numTimingTrials; trial++ {
			trial := trial
			g.Go(func() error {
				start := time.Now()
				x := strideWalkSum(buf, pgSize, stepSize)
				times[trial] = usSince(start)
				sink.Store(int64(x))
				return nil
			})
		}
		_ = g.Wait()
		best := slices.Min(times)

		pointPmu := sampler.Measure(func() {
			sink.Store(int64(strideWalkSum(buf, pgSize, stepSize)))
		})
		totalPmu.Add(pointPmu)

		points = append(points, stratificationPoint{
			Step:           pgSize,
			TimeUs:         best,
			CacheMisses:    pointPmu.CacheMisses,
			BranchMisses:   pointPmu.BranchMisses,
			DTLBLoadMisses: pointPmu.DTLBLoadMisses,
		})
		series = append(series, analysis.Sample{Step: pgSize, TimeUs: best})

		if lim.Allow() {
			e.log.Debug("memory_stratification progress",
				"step", len(points), "of", totalSteps)
		}
	}

	timesUs := make([]float64, len(points))
	for i, pt := range points {
		timesUs[i] = pt.TimeUs
	}

	e.log.Info("memory_stratification sweep done", "points", len(points))

	return stratificationResult{
		Experiment: "memory_stratification",
		Parameters: stratificationParams{
			Param1KB:         param1,
			Param2B:          param2,
			Param3MB:         param3,
			CacheLine:        cacheLine,
			MaxDistanceBytes: maxDistance,
			StepSizeBytes:    stepSize,
			ArraySizeBytes:   arraySize,
		},
		Analysis:    analysis.AnalyzeStratification(series, cacheLine),
		SeriesStats: analysis.SummarizeSeries(timesUs),
		DataPoints:  points,
		PmuSummary:  totalPmu.Summarize(),
	}, nil
}

// strideWalkSum reads one word every pgSize bytes across the whole
// buffer, restarting from each offset in [0, pgSize) at stepSize
// spacing. Offsets are byte-based so non-word-multiple steps land on
// the containing word, and the return value must reach the caller's
// sink.
func strideWalkSum(buf []int32, pgSize, stepSize int) int32 {
	var x int32
	arrayBytes := len(buf) * 4
	for b := 0; b < pgSize; b += stepSize {
		for a := b; a+4 <= arrayBytes; a += pgSize {
			x += buf[a/4]
		}
	}
	return x
}
