// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sysinfo

import "golang.org/x/sys/unix"

func detectCacheLineSize() (int, bool) {
	v, err := unix.SysctlUint32("hw.cachelinesize")
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func detectL1DataCacheSize() (int, bool) {
	v, err := unix.SysctlUint64("hw.l1dcachesize")
	if err != nil {
		return 0, false
	}
	return int(v), true
}
