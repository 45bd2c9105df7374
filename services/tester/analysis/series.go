// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import "github.com/aclements/go-moremath/stats"

// SeriesStats summarizes the timing distribution of one sweep so
// clients can judge curve quality without replotting the raw points.
type SeriesStats struct {
	MeanUs   float64 `json:"mean_us"`
	MedianUs float64 `json:"median_us"`
	P90Us    float64 `json:"p90_us"`
	MinUs    float64 `json:"min_us"`
	MaxUs    float64 `json:"max_us"`
}

// SummarizeSeries computes summary statistics over the per-point
// times of a sweep. An empty series yields the zero value rather than
// NaNs, which would not survive JSON encoding.
func SummarizeSeries(timesUs []float64) SeriesStats {
	if len(timesUs) == 0 {
		return SeriesStats{}
	}
	s := stats.Sample{Xs: timesUs}
	minUs, maxUs := stats.Bounds(timesUs)
	return SeriesStats{
		MeanUs:   stats.Mean(timesUs),
		MedianUs: s.Quantile(0.5),
		P90Us:    s.Quantile(0.9),
		MinUs:    minUs,
		MaxUs:    maxUs,
	}
}
