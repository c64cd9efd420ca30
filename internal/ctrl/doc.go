// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctrl implements the control block behind every shared and weak
// handle.
//
// A control block is one heap allocation holding the payload object and a
// single 64-bit counts word. Shared handles adjust the strong count, weak
// handles adjust the weak count, and the block moves through three phases:
//
//	Live          strong > 0                payload alive
//	Expired       strong == 0, word != 0    payload destroyed, block kept
//	Deallocated   word == 0                 terminal
//
// # Counts Word
//
// Layout: [hold:1][weak:31][strong:32]
//
// The hold bit is set when the block is created and cleared only after the
// payload destructor has returned. It stands in for "some strong owner still
// exists or is still tearing the payload down", so a weak release racing
// with the last strong release can never free the block while the payload
// destructor is still running.
//
// Every transition is a single compare-and-swap on the counts word:
//   - the release that moves strong 1 → 0 is the only one that destroys
//   - the release that moves the word to 0 is the only one that frees
//   - TryAcquireStrong refuses to increment a zero strong count
//
// # Faults
//
// Operations that would break the invariants (releasing more than was
// acquired, touching a deallocated block, overflowing a count field) panic
// with a *Fault. An Observer attached to the block sees the fault first so a
// tracker can print a report with stacks before the panic unwinds.
package ctrl
