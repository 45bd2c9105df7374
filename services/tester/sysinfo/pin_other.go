// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !linux

package sysinfo

import (
	"errors"
	"runtime"
)

// PinToLastCore only locks the goroutine to its OS thread here.
// Thread-to-core affinity is not portably settable off Linux.
func PinToLastCore() (restore func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}

// RaisePriority is unsupported off Linux.
func RaisePriority() (restore func(), err error) {
	return nil, errors.ErrUnsupported
}
