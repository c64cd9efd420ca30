// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid extracts the current goroutine id for lifetime reports.
//
// Only the portable runtime.Stack path is provided: ids are read when an
// event is recorded under tracking, never on the untracked fast path, so the
// ~1.5µs cost does not matter.
package goid

import "runtime"

// ID returns the current goroutine id, or 0 if it cannot be determined.
func ID() int64 {
	// Only the first line is needed: "goroutine 123 [running]:\n..."
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine id from runtime.Stack output.
//
// Expected format: "goroutine 123 [running]:..."
// Returns 0 if the format is invalid.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
