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
	"unsafe"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/pmu"
)

type listVsArrayParams struct {
	Param1M  int `json:"param1_m"`
	Param2KB int `json:"param2_kb"`
	Param3KB int `json:"param3_kb"`
}

type listVsArrayConclusions struct {
	TotalListTimeUs  float64 `json:"total_list_time_us"`
	TotalArrayTimeUs float64 `json:"total_array_time_us"`
	ListToArrayRatio float64 `json:"list_to_array_ratio"`
}

type listVsArrayPoint struct {
	Fragmentation int     `json:"fragmentation"`
	ListTimeUs    float64 `json:"list_time_us"`
	ArrayTimeUs   float64 `json:"array_time_us"`
	CacheMisses   uint64  `json:"cache_misses"`
	BranchMisses  uint64  `json:"branch_misses"`
}

type listVsArrayPmuSummary struct {
	List  pmu.Summary `json:"list"`
	Array pmu.Summary `json:"array"`
}

type listVsArrayResult struct {
	Experiment  string                 `json:"experiment"`
	Parameters  listVsArrayParams      `json:"parameters"`
	Conclusions listVsArrayConclusions `json:"conclusions"`
	DataPoints  []listVsArrayPoint     `json:"dataPoints"`
	PmuSummary  listVsArrayPmuSummary  `json:"pmu_summary"`
}

// listNode is one element of the fragmented chain. Logical adjacency
// in the chain deliberately does not mean physical adjacency in the
// backing array.
type listNode struct {
	next *listNode
	val  int32
}

// listVsArray compares traversing a pointer chain against scanning a
// contiguous array of the same element count. The chain is rebuilt at
// each swept fragmentation distance; the array baseline is measured
// once since fragmentation cannot affect it.
func (e *Engine) listVsArray(ctx context.Context, p datatypes.Params) (any, error) {
	param1 := p.ClampedInt("param1", 1, 1, 20)    // MB of elements
	param2 := p.ClampedInt("param2", 100, 4, 500) // KB, max fragmentation
	param3 := p.ClampedInt("param3", 10, 1, 10)   // KB, fragmentation step

	numElements := param1 * 1024 * 1024 / 4
	maxFrag := param2 * 1024 / 4
	fragStep := param3 * 1024 / 4

	// Cap the sweep at 500 points so huge fragmentation ranges do not
	// produce unplottable results.
	if maxFrag/fragStep > 500 {
		fragStep = maxFrag / 500
	}

	arena := NewArena(e.cfg.ScratchBudgetBytes)
	defer arena.Release()

	if err := arena.Reserve(int64(numElements) * int64(unsafe.Sizeof(listNode{}))); err != nil {
		return nil, err
	}
	// Nodes are reached by pointer chasing, so the buffer base
	// alignment does not shape the access pattern; a plain make is
	// enough here.
	nodes := make([]listNode, numElements)

	arr, err := arena.Int32s(numElements)
	if err != nil {
		return nil, err
	}
	for i := range arr {
		arr[i] = int32(i)
	}

	restore := e.prepare()
	defer restore()

	sampler := pmu.NewSampler()
	defer sampler.Close()

	e.log.Info("list_vs_array sweep starting",
		"numElements", numElements, "maxFrag", maxFrag,
		"fragStep", fragStep, "pmu", sampler.Available())

	// Array baseline.
	start := time.Now()
	arrayMax := maxOfArray(arr)
	arrayTime := usSince(start)
	sink.Store(int64(arrayMax))

	arrayPmu := sampler.Measure(func() {
		sink.Store(int64(maxOfArray(arr)))
	})

	points := make([]listVsArrayPoint, 0, maxFrag/fragStep)
	var listPmu pmu.Metrics
	lim := e.progressLimiter()

	for frag := fragStep; frag <= maxFrag; frag += fragStep {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buildFragmentedChain(nodes, frag)

		start := time.Now()
		listMax := maxOfChain(&nodes[0])
		listTime := usSince(start)
		sink.Store(int64(listMax))

		pointPmu := sampler.Measure(func() {
			sink.Store(int64(maxOfChain(&nodes[0])))
		})
		listPmu.Add(pointPmu)

		points = append(points, listVsArrayPoint{
			Fragmentation: frag * 4,
			ListTimeUs:    listTime,
			ArrayTimeUs:   arrayTime,
			CacheMisses:   pointPmu.CacheMisses,
			BranchMisses:  pointPmu.BranchMisses,
		})
		if lim.Allow() {
			e.log.Debug("list_vs_array progress", "fragmentation", frag*4, "points", len(points))
		}
	}

	var totalList, totalArray float64
	for _, pt := range points {
		totalList += pt.ListTimeUs
		totalArray += pt.ArrayTimeUs
	}
	ratio := 0.0
	if totalArray > 0 {
		ratio = totalList / totalArray
	}

	e.log.Info("list_vs_array sweep done", "points", len(points))

	return listVsArrayResult{
		Experiment: "list_vs_array",
		Parameters: listVsArrayParams{
			Param1M:  param1,
			Param2KB: param2,
			Param3KB: param3,
		},
		Conclusions: listVsArrayConclusions{
			TotalListTimeUs:  totalList,
			TotalArrayTimeUs: totalArray,
			ListToArrayRatio: ratio,
		},
		DataPoints: points,
		PmuSummary: listVsArrayPmuSummary{
			List:  listPmu.Summarize(),
			Array: arrayPmu.Summarize(),
		},
	}, nil
}

// buildFragmentedChain links every node into one chain where each hop
// lands frag elements away, probing linearly past already-linked
// nodes. The final node terminates the chain and carries the element
// count as its value.
func buildFragmentedChain(nodes []listNode, frag int) {
	for i := range nodes {
		nodes[i].next = nil
		nodes[i].val = 0
	}
	n := len(nodes)
	prev := 0
	for i := 0; i < n; i++ {
		cur := (prev + frag) % n
		for nodes[cur].next != nil {
			cur = (cur + 1) % n
		}
		nodes[prev].next = &nodes[cur]
		nodes[prev].val = int32(i)
		prev = cur
	}
	nodes[prev].next = nil
	nodes[prev].val = int32(n)
}

// maxOfChain walks the chain to its terminator tracking the maximum
// value seen; the walk is the measured workload.
func maxOfChain(head *listNode) int32 {
	m := head.val
	for node := head; node.next != nil; {
		node = node.next
		if node.val > m {
			m = node.val
		}
	}
	return m
}

// maxOfArray is the contiguous counterpart of maxOfChain.
func maxOfArray(arr []int32) int32 {
	m := arr[0]
	for _, v := range arr {
		if v > m {
			m = v
		}
	}
	return m
}
