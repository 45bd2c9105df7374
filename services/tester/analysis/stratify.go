// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis infers physical memory topology from empirical
// latency curves.
//
// The inference is a heuristic. It scans a distance-sweep latency
// series for its first and its largest discontinuity and reads cache
// bank count and page size off their positions. Noisy curves yield
// plausible answers, not exact ones.
package analysis

// Sample is one point of a distance sweep: the access distance in
// bytes and the measured walk time in microseconds.
type Sample struct {
	Step   int
	TimeUs float64
}

// Stratification locates the two characteristic latency peaks of a
// distance sweep and the topology estimate derived from them.
//
// T1 is the first local maximum at or beyond one cache line, taken as
// the point where consecutive reads start landing in the same cache
// bank. T2 is the global maximum, taken as the page-crossing
// discontinuity. Banks and page size follow by division.
type Stratification struct {
	T1StepBytes            int     `json:"T1_step_bytes"`
	T1TimeUs               float64 `json:"T1_time_us"`
	T2StepBytes            int     `json:"T2_step_bytes"`
	T2TimeUs               float64 `json:"T2_time_us"`
	EstimatedBanks         int     `json:"estimated_banks"`
	EstimatedPageSizeBytes int     `json:"estimated_page_size_bytes"`
}

// AnalyzeStratification scans the interior of the series (endpoints
// excluded) for the global maximum and for the first strict local
// maximum whose step is at least cacheLine bytes. Plateaus are not
// special-cased: the first qualifying point wins.
//
// Banks default to 1 when no local maximum exists or the division
// rounds to zero; the page size stays 0 unless a global maximum was
// found at a positive step.
func AnalyzeStratification(series []Sample, cacheLine int) Stratification {
	var out Stratification
	foundLocal := false
	for i := 1; i+1 < len(series); i++ {
		p := series[i]
		if p.TimeUs > out.T2TimeUs {
			out.T2StepBytes = p.Step
			out.T2TimeUs = p.TimeUs
		}
		if !foundLocal &&
			p.TimeUs > series[i-1].TimeUs &&
			p.TimeUs > series[i+1].TimeUs &&
			p.Step >= cacheLine {
			foundLocal = true
			out.T1StepBytes = p.Step
			out.T1TimeUs = p.TimeUs
		}
	}

	out.EstimatedBanks = 1
	if foundLocal && cacheLine > 0 {
		if banks := out.T1StepBytes / cacheLine; banks > 1 {
			out.EstimatedBanks = banks
		}
	}
	if out.T2StepBytes > 0 {
		out.EstimatedPageSizeBytes = out.T2StepBytes / out.EstimatedBanks
	}
	return out
}
