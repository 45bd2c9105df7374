// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !linux && !darwin

package sysinfo

func detectCacheLineSize() (int, bool) {
	return 0, false
}

func detectL1DataCacheSize() (int, bool) {
	return 0, false
}
