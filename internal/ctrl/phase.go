// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

// Phase is the lifecycle state of a control block.
type Phase uint8

const (
	// PhaseLive means at least one strong owner exists and the payload is alive.
	PhaseLive Phase = iota
	// PhaseExpired means the payload has been destroyed but weak observers
	// keep the block itself around.
	PhaseExpired
	// PhaseDeallocated is terminal: no handle references the block anymore.
	PhaseDeallocated
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseLive:
		return "live"
	case PhaseExpired:
		return "expired"
	case PhaseDeallocated:
		return "deallocated"
	default:
		return "unknown"
	}
}
