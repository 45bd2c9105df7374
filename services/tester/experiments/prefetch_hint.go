// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build amd64 || arm64

package experiments

// prefetchHint asks the CPU to pull the cache line holding p toward
// L1. It never faults and has no architectural effect beyond the
// cache state.
//
//go:noescape
func prefetchHint(p *int32)
