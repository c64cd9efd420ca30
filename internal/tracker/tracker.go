// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/sharedref/internal/ctrl"
	"github.com/kolkov/sharedref/internal/goid"
	"github.com/kolkov/sharedref/internal/stackdepot"
)

// graveyardSize bounds how many deallocated blocks are remembered for late
// violation reports.
const graveyardSize = 4096

// Config configures a Tracker.
type Config struct {
	// Output receives violation and leak reports. Defaults to os.Stderr.
	Output io.Writer

	// Logger receives structured lifecycle events. Nil disables the event log.
	Logger logrus.FieldLogger

	// CaptureStacks records a stack for every create, destroy and release.
	CaptureStacks bool

	// StackSampleRate captures lifecycle stacks for 1 in StackSampleRate
	// events only. 0 or 1 captures all. Violation stacks are always
	// captured.
	StackSampleRate uint64

	// DumpPayloads includes a dump of each leaked payload in leak reports.
	DumpPayloads bool
}

// Summary counts what a tracker observed.
type Summary struct {
	Created    int
	Destroyed  int
	Freed      int
	Live       int // still owned at the time of the summary
	Expired    int // destroyed but still observed by weak handles
	Violations int
}

// String formats the summary as one line.
func (s Summary) String() string {
	return fmt.Sprintf("sharedref: %d created, %d destroyed, %d freed, %d live, %d expired, %d violations",
		s.Created, s.Destroyed, s.Freed, s.Live, s.Expired, s.Violations)
}

// Leaks returns the number of blocks not yet deallocated.
func (s Summary) Leaks() int {
	return s.Live + s.Expired
}

// record is the per-block bookkeeping.
type record struct {
	id      uint64
	label   string
	typ     string
	counts  func() ctrl.Counts
	payload func() any

	created   Event
	destroyed atomic.Pointer[Event]
}

// Tracker observes control blocks. Create one with New, attach it to blocks
// with ctrl.Block.SetObserver and Register, and finish with Close.
type Tracker struct {
	cfg Config

	live      sync.Map   // id → *record
	graveyard *lru.Cache // id → *record, deallocated blocks
	reported  sync.Map   // dedup key → struct{}

	sampler *sampler

	created    atomic.Int64
	destroyed  atomic.Int64
	freed      atomic.Int64
	violations atomic.Int64
	closed     atomic.Bool

	// mu serializes report output.
	mu sync.Mutex
}

// New creates a tracker.
func New(cfg Config) *Tracker {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	graveyard, err := lru.New(graveyardSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Tracker{cfg: cfg, graveyard: graveyard, sampler: newSampler(cfg.StackSampleRate)}
}

// Register starts tracking a block. It is called once, after the payload has
// been constructed and before the first handle is returned.
//
// Parameters:
//   - id, label: the block identity
//   - typ: payload type name for reports
//   - counts: snapshot accessor for the block's counts word
//   - payload: accessor for the payload, used by leak dumps
func (t *Tracker) Register(id uint64, label, typ string, counts func() ctrl.Counts, payload func() any) {
	if t.closed.Load() {
		return
	}
	r := &record{
		id:      id,
		label:   label,
		typ:     typ,
		counts:  counts,
		payload: payload,
		created: t.event("create"),
	}
	t.live.Store(id, r)
	t.created.Add(1)
	t.logEvent(r, "block created")
}

// Destroyed implements ctrl.Observer.
func (t *Tracker) Destroyed(id uint64) {
	if t.closed.Load() {
		return
	}
	t.destroyed.Add(1)
	if r := t.lookup(id); r != nil {
		ev := t.event("destroy")
		r.destroyed.Store(&ev)
		t.logEvent(r, "payload destroyed")
	}
}

// Freed implements ctrl.Observer.
func (t *Tracker) Freed(id uint64) {
	if t.closed.Load() {
		return
	}
	t.freed.Add(1)
	if v, ok := t.live.LoadAndDelete(id); ok {
		r := v.(*record)
		t.graveyard.Add(id, r)
		t.logEvent(r, "block deallocated")
	}
}

// Faulted implements ctrl.Observer. It reports the violation; the block
// panics afterwards.
func (t *Tracker) Faulted(f *ctrl.Fault) {
	if t.closed.Load() {
		return
	}
	rep := &Report{
		Kind:    f.Kind,
		Block:   f.Block,
		Label:   f.Label,
		Counts:  f.Counts,
		Current: t.violationEvent(f.Op),
	}
	if r := t.lookup(f.Block); r != nil {
		rep.Type = r.typ
		rep.Previous = r.created
		if ev := r.destroyed.Load(); ev != nil {
			rep.Previous = *ev
		}
	}
	rep.DeduplicationKey = generateDeduplicationKey(f.Kind, f.Op, f.Block)
	t.report(rep)
}

// EmptyAccess reports a dereference of an empty handle.
//
// Parameters:
//   - op: the handle operation ("Deref")
//   - typ: the handle's payload type name
//   - released: stack hash of the handle's last release, 0 if unknown
func (t *Tracker) EmptyAccess(op, typ string, released uint64) {
	if t.closed.Load() {
		return
	}
	rep := &Report{
		Kind:    ctrl.ErrEmptyHandle,
		Type:    typ,
		Current: t.violationEvent(op),
	}
	if released != 0 {
		rep.Previous = Event{What: "release", Stack: released}
	}
	// Every empty handle is block 0, so key on type and call site.
	rep.DeduplicationKey = generateSiteKey(rep.Kind, op, typ, rep.Current.Stack)
	t.report(rep)
}

// CaptureRelease returns a stack hash for a handle release, or 0 when stacks
// are not being captured.
func (t *Tracker) CaptureRelease() uint64 {
	if !t.cfg.CaptureStacks || t.closed.Load() || !t.sampler.sample() {
		return 0
	}
	return stackdepot.Capture(1)
}

// SampleStats returns how many lifecycle events had their stack captured.
func (t *Tracker) SampleStats() SampleStats {
	return t.sampler.stats()
}

// Summary returns what the tracker has observed so far.
func (t *Tracker) Summary() Summary {
	s := Summary{
		Created:    int(t.created.Load()),
		Destroyed:  int(t.destroyed.Load()),
		Freed:      int(t.freed.Load()),
		Violations: int(t.violations.Load()),
	}
	t.live.Range(func(_, v any) bool {
		switch v.(*record).counts().Phase() {
		case ctrl.PhaseLive:
			s.Live++
		case ctrl.PhaseExpired:
			s.Expired++
		}
		return true
	})
	return s
}

// Close stops tracking, writes a leak report for every block not yet
// deallocated followed by the summary line, and returns the summary.
//
// Blocks created while tracking keep calling the tracker after Close; those
// calls are ignored.
func (t *Tracker) Close() Summary {
	s := t.Summary()
	if !t.closed.CompareAndSwap(false, true) {
		return s
	}

	var leaked []*record
	t.live.Range(func(_, v any) bool {
		r := v.(*record)
		if r.counts().Phase() != ctrl.PhaseDeallocated {
			leaked = append(leaked, r)
		}
		return true
	})
	sort.Slice(leaked, func(i, j int) bool { return leaked[i].id < leaked[j].id })

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range leaked {
		t.writeLeak(r)
		t.logLeak(r)
	}
	fmt.Fprintln(t.cfg.Output, s.String()) //nolint:errcheck
	return s
}

func (t *Tracker) lookup(id uint64) *record {
	if v, ok := t.live.Load(id); ok {
		return v.(*record)
	}
	if v, ok := t.graveyard.Get(id); ok {
		return v.(*record)
	}
	return nil
}

// event records a lifecycle event, with a stack if it is sampled.
func (t *Tracker) event(what string) Event {
	ev := Event{What: what, GoroutineID: goid.ID()}
	if t.cfg.CaptureStacks && t.sampler.sample() {
		ev.Stack = stackdepot.Capture(1)
	}
	return ev
}

// violationEvent records the current event of a violation report. Its
// stack is captured even without CaptureStacks and bypasses the sampler.
func (t *Tracker) violationEvent(op string) Event {
	return Event{What: op, GoroutineID: goid.ID(), Stack: stackdepot.Capture(1)}
}

// report writes rep once per deduplication key.
func (t *Tracker) report(rep *Report) {
	t.violations.Add(1)
	t.logViolation(rep)
	if _, dup := t.reported.LoadOrStore(rep.DeduplicationKey, struct{}{}); dup {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rep.Format(t.cfg.Output)
}
