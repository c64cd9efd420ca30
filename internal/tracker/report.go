// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracker

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kolkov/sharedref/internal/ctrl"
	"github.com/kolkov/sharedref/internal/stackdepot"
)

// Event is one recorded lifetime event.
type Event struct {
	// What happened: "create", "destroy", "release" or the faulting operation.
	What string

	// GoroutineID is the goroutine that performed it, 0 if unknown.
	GoroutineID int64

	// Stack is the stackdepot hash of the call stack, 0 if not captured.
	Stack uint64
}

// Report describes one contract violation.
type Report struct {
	// Kind is one of the ctrl.Err* sentinels.
	Kind error

	// Block is the control block id, 0 for violations on an empty handle.
	Block uint64

	// Label and Type identify the payload.
	Label string
	Type  string

	// Counts observed at the violation.
	Counts ctrl.Counts

	// Current is the violating operation.
	Current Event

	// Previous is the event that made the operation invalid: the payload's
	// destruction for over-release and use-after-free, the handle's last
	// release for empty access, creation otherwise.
	Previous Event

	// DeduplicationKey identifies the violation site.
	// Format: "{kind}:{op}:{block}" for block faults and
	// "{kind}:{op}:{type}:{stack}" for empty-handle access.
	DeduplicationKey string
}

// KindName returns the short name of a violation kind.
func KindName(kind error) string {
	switch {
	case errors.Is(kind, ctrl.ErrOverRelease):
		return "over-release"
	case errors.Is(kind, ctrl.ErrUseAfterFree):
		return "use-after-free"
	case errors.Is(kind, ctrl.ErrEmptyHandle):
		return "empty-handle"
	case errors.Is(kind, ctrl.ErrCountOverflow):
		return "count-overflow"
	default:
		return "violation"
	}
}

func generateDeduplicationKey(kind error, op string, block uint64) string {
	return fmt.Sprintf("%s:%s:%d", KindName(kind), op, block)
}

func generateSiteKey(kind error, op, typ string, stack uint64) string {
	return fmt.Sprintf("%s:%s:%s:%x", KindName(kind), op, typ, stack)
}

// Format writes the report in race-report layout.
//
//nolint:errcheck // Report output is best effort.
func (r *Report) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: SHAREDREF %s\n", strings.ToUpper(KindName(r.Kind)))

	fmt.Fprintf(w, "%s on %s by goroutine %d:\n", r.Current.What, r.subject(), r.Current.GoroutineID)
	writeStack(w, r.Current.Stack)

	if r.Previous.What != "" {
		fmt.Fprintf(w, "\nPrevious %s by goroutine %d:\n", r.Previous.What, r.Previous.GoroutineID)
		writeStack(w, r.Previous.Stack)
	}
	fmt.Fprintf(w, "==================\n")
}

// String returns the formatted report.
func (r *Report) String() string {
	var buf strings.Builder
	r.Format(&buf)
	return buf.String()
}

func (r *Report) subject() string {
	if r.Block == 0 {
		return fmt.Sprintf("empty handle (%s)", r.Type)
	}
	s := fmt.Sprintf("block #%d", r.Block)
	if r.Label != "" {
		s += fmt.Sprintf(" %q", r.Label)
	}
	if r.Type != "" {
		s += " (" + r.Type + ")"
	}
	return s + " [" + r.Counts.String() + "]"
}

//nolint:errcheck
func writeStack(w io.Writer, hash uint64) {
	if hash == 0 {
		fmt.Fprintf(w, "  (stack not captured, enable stacks=1)\n")
		return
	}
	fmt.Fprint(w, stackdepot.GetStack(hash).FormatStack())
}
