// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "math"

// Params carries the numeric experiment parameters from the execute
// command. JSON decoding leaves numbers as float64; the accessors
// normalize that away.
type Params map[string]any

// Int returns the integer value for key, or def when the key is
// absent or not numeric. Fractional values truncate toward zero,
// matching integer parameter semantics on the wire.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return def
		}
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return def
	}
}

// ClampedInt returns the value for key forced into [lo, hi], with def
// used when the key is absent. Out-of-range requests are silently
// clamped; the experiment result echoes the value actually used so the
// client can see what it got.
func (p Params) ClampedInt(key string, def, lo, hi int) int {
	v := p.Int(key, def)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
