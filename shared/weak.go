// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"fmt"

	"github.com/kolkov/sharedref/internal/ctrl"
)

// Weak observes a payload without owning it. It keeps the control block
// reachable but not the payload; the payload is only accessible through
// Lock.
//
// Like Shared, Weak values must not be copied; use Clone.
type Weak[T any] struct {
	noCopy noCopy

	cb *ctrl.Block[T]
}

// NewWeak returns an observer of s's payload. An empty s yields an empty
// observer.
func NewWeak[T any](s *Shared[T]) *Weak[T] {
	if !s.Valid() {
		return &Weak[T]{}
	}
	s.cb.AcquireWeak()
	return &Weak[T]{cb: s.cb}
}

// Clone returns a new observer of the same block. Cloning works after the
// payload expired; the clone is expired as well.
func (w *Weak[T]) Clone() *Weak[T] {
	if w == nil || w.cb == nil {
		return &Weak[T]{}
	}
	w.cb.AcquireWeak()
	return &Weak[T]{cb: w.cb}
}

// Move transfers the observation to a new handle and empties w.
func (w *Weak[T]) Move() *Weak[T] {
	if w == nil || w.cb == nil {
		return &Weak[T]{}
	}
	n := &Weak[T]{cb: w.cb}
	w.cb = nil
	return n
}

// Assign makes w observe src's block, releasing what w observed before.
// Assigning a handle to itself is a no-op.
func (w *Weak[T]) Assign(src *Weak[T]) {
	if w == src {
		return
	}
	var cb *ctrl.Block[T]
	if src != nil && src.cb != nil {
		cb = src.cb
		cb.AcquireWeak()
	}
	w.replace(cb)
}

// AssignShared makes w observe s's payload, releasing what w observed
// before.
func (w *Weak[T]) AssignShared(s *Shared[T]) {
	var cb *ctrl.Block[T]
	if s.Valid() {
		cb = s.cb
		cb.AcquireWeak()
	}
	w.replace(cb)
}

// MoveFrom transfers src's observation into w and empties src, releasing
// what w observed before. MoveFrom(w) is a no-op.
func (w *Weak[T]) MoveFrom(src *Weak[T]) {
	if w == src {
		return
	}
	var cb *ctrl.Block[T]
	if src != nil {
		cb, src.cb = src.cb, nil
	}
	w.replace(cb)
}

// Reset stops observing and empties the handle. The last observer of an
// expired payload lets the block go. Reset on an empty or nil handle does
// nothing.
func (w *Weak[T]) Reset() {
	if w == nil {
		return
	}
	w.replace(nil)
}

// Swap exchanges the blocks observed by w and o. Counts do not change.
func (w *Weak[T]) Swap(o *Weak[T]) {
	w.cb, o.cb = o.cb, w.cb
}

// Expired reports whether the payload is gone (or w is empty).
func (w *Weak[T]) Expired() bool {
	return w.UseCount() == 0
}

// UseCount returns the number of owners of the observed payload, 0 if w is
// empty or expired.
func (w *Weak[T]) UseCount() int {
	if w == nil || w.cb == nil {
		return 0
	}
	return w.cb.UseCount()
}

// WeakCount returns the number of observers of the block, 0 if w is empty.
func (w *Weak[T]) WeakCount() int {
	if w == nil || w.cb == nil {
		return 0
	}
	return w.cb.WeakCount()
}

// Lock promotes the observer to a new owner.
//
// If the payload is alive, Lock returns a handle holding one more strong
// count. Otherwise it returns an empty (non-nil) handle; once a payload has
// expired every later Lock fails.
//
// The liveness check and the increment are a single compare-and-swap, so
// Lock racing with the last Reset either wins a count before the payload is
// destroyed or fails.
//
// Always check the result:
//
//	if s := w.Lock(); s.Valid() {
//		defer s.Reset()
//		...
//	}
func (w *Weak[T]) Lock() *Shared[T] {
	if w == nil || w.cb == nil || !w.cb.TryAcquireStrong() {
		return &Shared[T]{}
	}
	return adopt(w.cb)
}

// String describes the handle, e.g. "Weak[main.Conn](#4 strong=0 weak=1)".
func (w *Weak[T]) String() string {
	if w == nil || w.cb == nil {
		return fmt.Sprintf("Weak[%s](empty)", typeName[T]())
	}
	return fmt.Sprintf("Weak[%s](#%d %s)", typeName[T](), w.cb.ID(), w.cb.Counts())
}

// replace installs cb (already weak-counted) and releases the old block.
func (w *Weak[T]) replace(cb *ctrl.Block[T]) {
	old := w.cb
	w.cb = cb
	if old != nil {
		old.ReleaseWeak()
	}
}
