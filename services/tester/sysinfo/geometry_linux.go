// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sysinfo

import (
	"os"
	"strconv"
	"strings"
)

// cpu0's index0 cache entry is the L1 data cache on every topology the
// experiments target. Reading one fixed path keeps discovery trivial;
// heterogeneous big.LITTLE parts would need the full index scan.
const l1IndexPath = "/sys/devices/system/cpu/cpu0/cache/index0"

func detectCacheLineSize() (int, bool) {
	return readSysfsInt(l1IndexPath + "/coherency_line_size")
}

func detectL1DataCacheSize() (int, bool) {
	return readSysfsSize(l1IndexPath + "/size")
}

func readSysfsInt(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return v, true
}

// readSysfsSize parses the "32K" / "1M" notation cache size files use.
func readSysfsSize(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return parseSize(strings.TrimSpace(string(data)))
}

func parseSize(size string) (int, bool) {
	if size == "" {
		return 0, false
	}
	unit := map[byte]int{'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30}
	if u, ok := unit[size[len(size)-1]]; ok {
		v, err := strconv.Atoi(size[:len(size)-1])
		if err != nil {
			return 0, false
		}
		return v * u, true
	}
	v, err := strconv.Atoi(size)
	if err != nil {
		return 0, false
	}
	return v, true
}
