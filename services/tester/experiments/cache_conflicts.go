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
	"github.com/AleutianAI/hwtester/services/tester/sysinfo"
)

// conflictProbeIterations is how many times each line-count probe
// repeats; a single access is far below clock resolution, so the
// average over the repetitions is what gets reported.
const conflictProbeIterations = 100

type cacheConflictsParams struct {
	Param1KB    int `json:"param1_kb"`
	Param2B     int `json:"param2_b"`
	Param3Lines int `json:"param3_lines"`
}

type cacheConflictsConclusions struct {
	TotalConflictTimeUs       float64 `json:"total_conflict_time_us"`
	TotalNoConflictTimeUs     float64 `json:"total_no_conflict_time_us"`
	ConflictToNoConflictRatio float64 `json:"conflict_to_no_conflict_ratio"`
}

type cacheConflictsPoint struct {
	Line             int     `json:"line"`
	ConflictTimeUs   float64 `json:"conflict_time_us"`
	NoConflictTimeUs float64 `json:"no_conflict_time_us"`
}

type cacheConflictsResult struct {
	Experiment  string                    `json:"experiment"`
	Parameters  cacheConflictsParams      `json:"parameters"`
	Conclusions cacheConflictsConclusions `json:"conclusions"`
	DataPoints  []cacheConflictsPoint     `json:"dataPoints"`
}

// cacheConflicts reads a growing set of lines at two strides: exactly
// the bank size, which maps every access to the same cache set, and
// bank size plus one line, which spreads them across sets. The gap
// between the two curves is the eviction cost of set conflicts.
func (e *Engine) cacheConflicts(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.Int("param1", 0) // KB, bank size; 0 = detect
	if param1 <= 0 {
		param1 = sysinfo.L1DataCacheSize() / 1024
	}
	param1 = min(max(param1, 1), 256)

	param2 := p.Int("param2", 0) // B, line size; 0 = detect
	if param2 <= 0 {
		param2 = sysinfo.CacheLineSize()
	}
	param2 = min(max(param2, 1), 128)

	param3 := p.ClampedInt("param3", 64, 2, 512) // lines to read

	bankSize := param1 * 1024
	lineSize := param2
	maxLines := param3

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	// Twice the worst-case probe span, so both stride patterns stay
	// inside the buffer.
	totalBytes := (bankSize + lineSize) * maxLines * 2
	buf, err := arena.Int32s(totalBytes / 4)
	if err != nil {
		return nil, err
	}
	clear(buf)

	restore := e.prepare()
	defer restore()

	e.log.Info("cache_conflicts sweep starting",
		"bankSize", bankSize, "lineSize", lineSize, "maxLines", maxLines)

	points := make([]cacheConflictsPoint, 0, maxLines/2)
	lim := e.progressLimiter()

	for numLines := 2; numLines <= maxLines; numLines += 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conflict := averageProbeUs(buf, numLines, bankSize)
		noConflict := averageProbeUs(buf, numLines, bankSize+lineSize)

		points = append(points, cacheConflictsPoint{
			Line:             numLines,
			ConflictTimeUs:   conflict,
			NoConflictTimeUs: noConflict,
		})
		if lim.Allow() {
			e.log.Debug("cache_conflicts progress", "lines", numLines, "of", maxLines)
		}
	}

	var totalConflict, totalNoConflict float64
	for _, pt := range points {
		totalConflict += pt.ConflictTimeUs
		totalNoConflict += pt.NoConflictTimeUs
	}
	ratio := 0.0
	if totalNoConflict > 0 {
		ratio = totalConflict / totalNoConflict
	}

	e.log.Info("cache_conflicts sweep done", "points", len(points))

	return cacheConflictsResult{
		Experiment: "cache_conflicts",
		Parameters: cacheConflictsParams{
			Param1KB:    param1,
			Param2B:     param2,
			Param3Lines: param3,
		},
		Conclusions: cacheConflictsConclusions{
			TotalConflictTimeUs:       totalConflict,
			TotalNoConflictTimeUs:     totalNoConflict,
			ConflictToNoConflictRatio: ratio,
		},
		DataPoints: points,
	}, nil
}

// averageProbeUs reads one word at each of numLines stride-spaced
// offsets, repeated conflictProbeIterations times, and returns the
// mean per-repetition time in microseconds.
func averageProbeUs(buf []int32, numLines, stride int) float64 {
	total := 0.0
	for iter := 0; iter < conflictProbeIterations; iter++ {
		start := time.Now()
		var sum int32
		for line := 0; line < numLines; line++ {
			sum += buf[(line*stride)/4]
		}
		total += usSince(start)
		sink.Store(int64(sum))
	}
	return total / conflictProbeIterations
}
