// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shared provides reference-counted shared ownership with weak
// observers.
//
// Many independent owners share one payload. The payload is destroyed
// exactly when the last owner lets go, and observers can detect that
// without keeping it alive.
//
// # Handles
//
// A *Shared[T] owns the payload. Handles are pointers and ownership is
// explicit: Clone shares ownership, Move transfers it, Reset gives it up.
//
//	conn := shared.Make(Conn{Addr: "db:5432"},
//		shared.WithDestructor(func(c *Conn) { c.Close() }))
//	defer conn.Reset()
//
//	worker := conn.Clone() // UseCount() == 2
//	go serve(worker)       // serve calls worker.Reset() when done
//
// A *Weak[T] observes the payload without owning it. Lock promotes it to a
// new owner if the payload is still alive:
//
//	w := conn.Weak()
//	if s := w.Lock(); s.Valid() {
//		defer s.Reset()
//		use(s.Deref())
//	}
//
// Nil handles and zero-value handles are empty. Every method that only reads
// or releases (Get, Valid, UseCount, Expired, Reset) accepts a nil receiver.
//
// # Lifetime
//
// The payload lives in the control block, allocated once by Make or MakeWith
// together with a packed counts word. The last owner's Reset runs the
// destructor (WithDestructor, then Destroy if *T is a Destroyer) and zeroes
// the payload. The block itself is dropped when the last observer lets go.
//
// Cycles of owners never reach zero. Make back-edges Weak.
//
// # Concurrency
//
// Distinct handles sharing a payload may be cloned, locked and reset from
// different goroutines: counts are updated with atomic compare-and-swap and
// Lock never resurrects a destroyed payload. A single handle value is not
// safe for concurrent mutation, and the payload's own fields need their own
// synchronization.
//
// # Copying handle values
//
// Writing *a = *b duplicates ownership without counting it and later
// releases the block one time too many. go vet flags such copies; at run
// time they fail fast with a *ContractError (ErrOverRelease or
// ErrUseAfterFree). The refcheck command finds them statically.
//
// # Checked mode
//
// EnableTracking (or SHAREDREF_OPTIONS=track=1) records every block,
// reports contract violations with the stacks that caused them and lists
// leaked blocks when tracking is disabled:
//
//	shared.EnableTracking(shared.TrackingConfig{CaptureStacks: true})
//	defer shared.DisableTracking()
package shared
