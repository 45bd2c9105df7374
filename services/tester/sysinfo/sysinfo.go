// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sysinfo discovers the cache geometry experiments calibrate
// against and pins measurement threads to a quiet core.
//
// Discovery is best effort. When the platform exposes nothing usable
// the package falls back to the geometry of the commodity x86 parts
// the experiments were designed on: 64 byte lines and a 32 KiB L1
// data cache.
package sysinfo

import "sync"

// Fallback geometry used when platform discovery fails.
const (
	DefaultCacheLineSize   = 64
	DefaultL1DataCacheSize = 32 * 1024
)

var cacheLineSize = sync.OnceValue(func() int {
	if v, ok := detectCacheLineSize(); ok && v > 0 {
		return v
	}
	return DefaultCacheLineSize
})

var l1DataCacheSize = sync.OnceValue(func() int {
	if v, ok := detectL1DataCacheSize(); ok && v > 0 {
		return v
	}
	return DefaultL1DataCacheSize
})

// CacheLineSize returns the L1 data cache line size in bytes. The
// value is discovered once and cached for the process lifetime.
func CacheLineSize() int {
	return cacheLineSize()
}

// L1DataCacheSize returns the L1 data cache capacity in bytes.
func L1DataCacheSize() int {
	return l1DataCacheSize()
}
