// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stackdepot stores and deduplicates the stack traces attached to
// lifetime events (block created, payload destroyed, handle released).
//
// Every unique stack is stored once in a global depot and referenced by a
// 64-bit hash, so a tracked block costs three uint64 fields instead of three
// captured traces.
//
// Design:
//   - Fixed-size stack traces (16 frames)
//   - Hash-based deduplication (xxhash over the program counters)
//   - Global sync.Map storage (thread-safe)
//
// Usage:
//
//	hash := stackdepot.Capture(0)
//	...
//	fmt.Print(stackdepot.GetStack(hash).FormatStack())
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MaxFrames is the maximum number of stack frames to capture.
//
// Ownership bugs are usually one or two frames above the handle method that
// noticed them, but the library frames are filtered when formatting, so a
// little headroom is needed.
const MaxFrames = 16

// StackTrace is a captured stack trace with fixed size.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// depot maps hash → *StackTrace.
var depot sync.Map

// Capture captures the caller's stack and returns its hash.
//
// Parameters:
//   - skip: number of additional frames to skip above Capture's caller
//
// Returns:
//   - uint64 hash identifying the stack (0 if no stack is available)
//
// Thread Safety: Safe for concurrent calls.
func Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// runtime.Callers and Capture itself.
	n := runtime.Callers(2+skip, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])
	if _, exists := depot.Load(hash); exists {
		return hash
	}
	depot.LoadOrStore(hash, &StackTrace{PC: pcs})
	return hash
}

// GetStack retrieves a stack trace by hash.
//
// Returns nil for hash 0 or an unknown hash.
func GetStack(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}
	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}
	return val.(*StackTrace)
}

// hashStack computes the xxhash of the program counters.
func hashStack(pcs []uintptr) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(buf[:], uint64(pc))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// libraryFrames are function name fragments hidden from formatted stacks.
// Reports should start at the user's call, not inside handle plumbing.
var libraryFrames = []string{
	"runtime.",
	"github.com/kolkov/sharedref/internal/",
	"github.com/kolkov/sharedref/shared.",
}

// IsLibraryFrame reports whether fn names a runtime or sharedref-internal
// function.
func IsLibraryFrame(fn string) bool {
	for _, prefix := range libraryFrames {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}

// FormatStack formats a stack trace for reports:
//
//	main.worker()
//	    /path/to/file.go:45
//
// Runtime and library frames are filtered out. Test files of the library
// itself are kept so its own tests produce readable reports.
//
// Returns "  <unknown>\n" if the stack is nil.
func (st *StackTrace) FormatStack() string {
	if st == nil {
		return "  <unknown>\n"
	}

	frames := runtime.CallersFrames(st.PC[:])
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !IsLibraryFrame(frame.Function) || strings.HasSuffix(frame.File, "_test.go") {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <library internal>\n"
	}
	return buf.String()
}

// Reset clears the depot. Tests only; not safe for concurrent use.
func Reset() {
	depot = sync.Map{}
}

// Stats returns the number of unique stacks and their approximate memory.
//
// Performance: O(N), do not call on a hot path.
func Stats() (uniqueStacks int, totalMemory int64) {
	depot.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})
	// Trace plus sync.Map entry overhead.
	const bytesPerStack = MaxFrames*8 + 32
	return uniqueStacks, int64(uniqueStacks) * bytesPerStack
}
