// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracker

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/kolkov/sharedref/internal/ctrl"
)

// dumper formats leaked payloads. Depth is capped so a leaked graph node
// does not print the whole graph.
var dumper = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                2,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// writeLeak writes one leak report. Caller holds t.mu.
//
// Format:
//
//	==================
//	WARNING: SHAREDREF LEAK
//	block #3 "session" (main.Session) [strong=1 weak=0 held] is live, created by goroutine 1:
//	  main.main()
//	      /path/to/main.go:12
//	  payload: (main.Session) {...}
//	==================
//
//nolint:errcheck
func (t *Tracker) writeLeak(r *record) {
	w := t.cfg.Output
	c := r.counts()

	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: SHAREDREF LEAK\n")
	fmt.Fprintf(w, "%s is %s, created by goroutine %d:\n", r.subject(c), c.Phase(), r.created.GoroutineID)
	writeStack(w, r.created.Stack)
	if t.cfg.DumpPayloads && c.Phase() == ctrl.PhaseLive && r.payload != nil {
		dump := strings.TrimRight(dumper.Sdump(r.payload()), "\n")
		fmt.Fprintf(w, "  payload: %s\n", strings.ReplaceAll(dump, "\n", "\n  "))
	}
	fmt.Fprintf(w, "==================\n")
}

func (r *record) subject(c ctrl.Counts) string {
	s := fmt.Sprintf("block #%d", r.id)
	if r.label != "" {
		s += fmt.Sprintf(" %q", r.label)
	}
	if r.typ != "" {
		s += " (" + r.typ + ")"
	}
	return s + " [" + c.String() + "]"
}
