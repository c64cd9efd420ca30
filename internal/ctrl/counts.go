// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import "strconv"

// Counts is the packed lifecycle word of a control block.
// Layout: [hold:1][weak:31][strong:32]
//
// Example: 0x8000000100000002 represents hold set, weak=1, strong=2.
type Counts uint64

const (
	// StrongBits is the number of bits allocated for the strong count.
	StrongBits = 32

	// WeakBits is the number of bits allocated for the weak count.
	WeakBits = 31

	// MaxStrong is the largest representable strong count.
	MaxStrong = 1<<StrongBits - 1

	// MaxWeak is the largest representable weak count.
	MaxWeak = 1<<WeakBits - 1

	strongMask = MaxStrong
	weakShift  = StrongBits
	weakMask   = MaxWeak << weakShift
	holdBit    = 1 << (StrongBits + WeakBits)

	strongOne = 1
	weakOne   = 1 << weakShift
)

// NewCounts packs a strong count, a weak count and the hold bit.
//
// Values beyond the field widths are truncated.
//
//go:nosplit
func NewCounts(strong, weak uint32, hold bool) Counts {
	c := Counts(strong)&strongMask | Counts(weak)<<weakShift&weakMask
	if hold {
		c |= holdBit
	}
	return c
}

// initialCounts is the word of a freshly constructed block: one owner, no
// observers, payload held.
const initialCounts = Counts(strongOne | holdBit)

// Decode extracts all three fields.
//
//go:nosplit
func (c Counts) Decode() (strong, weak uint32, hold bool) {
	return c.Strong(), c.Weak(), c.Held()
}

// Strong returns the number of live owners.
//
//go:nosplit
func (c Counts) Strong() uint32 {
	return uint32(c & strongMask)
}

// Weak returns the number of live observers.
//
//go:nosplit
func (c Counts) Weak() uint32 {
	return uint32(c & weakMask >> weakShift)
}

// Held reports whether the payload has not finished being destroyed yet.
//
//go:nosplit
func (c Counts) Held() bool {
	return c&holdBit != 0
}

// Phase derives the lifecycle phase from the word.
//
// This is the only place the three-state machine is derived from raw
// counts; everything else asks for the Phase.
func (c Counts) Phase() Phase {
	switch {
	case c == 0:
		return PhaseDeallocated
	case c.Strong() > 0:
		return PhaseLive
	default:
		return PhaseExpired
	}
}

// String returns a human-readable representation of the word.
//
// Format: "strong=2 weak=1 held".
func (c Counts) String() string {
	s := "strong=" + strconv.FormatUint(uint64(c.Strong()), 10) +
		" weak=" + strconv.FormatUint(uint64(c.Weak()), 10)
	if c.Held() {
		s += " held"
	}
	return s
}
