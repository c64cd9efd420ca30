// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracker implements checked mode: per-block lifetime bookkeeping,
// violation reports and leak reports.
//
// # Architecture
//
// A Tracker is attached to every control block created while tracking is
// enabled (it implements ctrl.Observer). It keeps one record per block:
//
//  1. Creation event: goroutine and stack captured by Register
//  2. Destruction event: captured when the payload destructor returned
//  3. Deallocation: the record moves from the live set to a bounded
//     graveyard so late over-releases can still point at the destruction
//
// # Reports
//
// Violations are formatted like race reports so they read the same in test
// output:
//
//	==================
//	WARNING: SHAREDREF OVER-RELEASE
//	ReleaseStrong on block #7 "conn" (main.Conn) [strong=0 weak=1] by goroutine 9:
//	  main.worker()
//	      /path/to/file.go:45
//
//	Previous destroy by goroutine 8:
//	  main.main()
//	      /path/to/file.go:30
//	==================
//
// Each distinct (kind, operation, block) is reported once.
//
// # Stack sampling
//
// Capturing a stack for every create, destroy and release is the dominant
// cost of tracking. Config.StackSampleRate keeps 1 in N of those stacks;
// the stack of the operation that violated the contract is always kept.
//
// # Event log
//
// When Config.Logger is set, lifecycle events are also emitted as structured
// logrus entries (debug for create/destroy/free, error for violations, warn
// for leaks) carrying the user call site.
//
// # Thread Safety
//
// All Tracker methods are safe for concurrent use. Report output is
// serialized so concurrent reports never interleave.
package tracker
