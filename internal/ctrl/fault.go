// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Fault kinds. A *Fault unwraps to exactly one of these.
var (
	// ErrEmptyHandle is a dereference of a handle that owns nothing.
	ErrEmptyHandle = errors.New("sharedref: access through empty handle")

	// ErrOverRelease is a release with no matching acquire.
	ErrOverRelease = errors.New("sharedref: release without matching acquire")

	// ErrUseAfterFree is any count operation on a deallocated block.
	ErrUseAfterFree = errors.New("sharedref: control block used after deallocation")

	// ErrCountOverflow means a count field would exceed its width.
	ErrCountOverflow = errors.New("sharedref: reference count overflow")
)

// Fault describes a contract violation detected on a control block or a
// handle. It is the panic value of every fail-fast path.
type Fault struct {
	Kind   error  // One of the Err* kinds above.
	Op     string // Operation that detected the violation (e.g. "ReleaseStrong").
	Block  uint64 // Block id, 0 when no block is involved.
	Label  string // Block label, if any.
	Counts Counts // Counts observed when the violation was detected.
}

// Error implements the error interface.
//
// Format: "sharedref: release without matching acquire (ReleaseStrong on block #7 "conn", strong=0 weak=1)".
func (f *Fault) Error() string {
	if f.Block == 0 {
		if f.Label != "" {
			return fmt.Sprintf("%v (%s on %s)", f.Kind, f.Op, f.Label)
		}
		return fmt.Sprintf("%v (%s)", f.Kind, f.Op)
	}
	if f.Label != "" {
		return fmt.Sprintf("%v (%s on block #%d %q, %s)", f.Kind, f.Op, f.Block, f.Label, f.Counts)
	}
	return fmt.Sprintf("%v (%s on block #%d, %s)", f.Kind, f.Op, f.Block, f.Counts)
}

// Unwrap returns the fault kind so errors.Is matches the sentinel.
func (f *Fault) Unwrap() error {
	return f.Kind
}
