// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"fmt"
	"reflect"

	"github.com/kolkov/sharedref/internal/ctrl"
)

// noCopy makes go vet's copylocks check flag handle values copied by
// assignment. It has no run-time cost.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Shared is an owning reference to a payload of type T.
//
// Either the handle is empty, or it owns exactly one strong count on its
// control block and ptr points at the payload inside that block.
//
// Use handles through pointers. Shared values must not be copied: use Clone
// to share ownership and Move to transfer it.
type Shared[T any] struct {
	noCopy noCopy

	ptr *T
	cb  *ctrl.Block[T]

	// released is the stack of the last Reset or Move under tracking, shown
	// when an emptied handle is dereferenced.
	released uint64
}

// adopt wraps a block whose strong count was already taken for this handle.
func adopt[T any](cb *ctrl.Block[T]) *Shared[T] {
	return &Shared[T]{ptr: cb.Object(), cb: cb}
}

// Get returns the payload address, or nil if the handle is empty.
//
// The address stays valid while this handle (or any other owner) is held.
// Writing through it is the caller's synchronization problem.
func (s *Shared[T]) Get() *T {
	if s == nil {
		return nil
	}
	return s.ptr
}

// Deref returns the payload address of a non-empty handle.
//
// Dereferencing an empty handle is a contract violation: Deref panics with a
// *ContractError wrapping ErrEmptyHandle. Under tracking, the report shows
// where the handle was last emptied.
func (s *Shared[T]) Deref() *T {
	if s == nil || s.ptr == nil {
		var released uint64
		if s != nil {
			released = s.released
		}
		emptyAccess[T]("Deref", released)
	}
	return s.ptr
}

// Valid reports whether the handle owns a payload.
func (s *Shared[T]) Valid() bool {
	return s != nil && s.cb != nil
}

// UseCount returns the number of owners of the payload, 0 if empty.
func (s *Shared[T]) UseCount() int {
	if !s.Valid() {
		return 0
	}
	return s.cb.UseCount()
}

// WeakCount returns the number of observers of the payload, 0 if empty.
func (s *Shared[T]) WeakCount() int {
	if !s.Valid() {
		return 0
	}
	return s.cb.WeakCount()
}

// IsUnique reports whether this is the only owner.
func (s *Shared[T]) IsUnique() bool {
	return s.UseCount() == 1
}

// Clone returns a new owner of the same payload. Cloning an empty handle
// returns an empty handle.
func (s *Shared[T]) Clone() *Shared[T] {
	if !s.Valid() {
		return &Shared[T]{}
	}
	s.cb.AcquireStrong()
	return &Shared[T]{ptr: s.ptr, cb: s.cb}
}

// Move transfers ownership to a new handle and empties s. Counts do not
// change.
func (s *Shared[T]) Move() *Shared[T] {
	if !s.Valid() {
		return &Shared[T]{}
	}
	n := &Shared[T]{ptr: s.ptr, cb: s.cb}
	s.ptr, s.cb = nil, nil
	s.markReleased()
	return n
}

// Assign makes s another owner of src's payload, releasing what s owned
// before. Assigning a handle to itself, or to a handle that already shares
// its payload, leaves the counts unchanged.
//
// The new ownership is taken before the old one is released, so src may live
// inside the payload s is giving up:
//
//	head.Assign(head.Deref().Next)
func (s *Shared[T]) Assign(src *Shared[T]) {
	if s == src {
		return
	}
	var ptr *T
	var cb *ctrl.Block[T]
	if src.Valid() {
		ptr, cb = src.ptr, src.cb
		cb.AcquireStrong()
	}
	old := s.cb
	s.ptr, s.cb = ptr, cb
	if old != nil {
		old.ReleaseStrong()
	}
}

// MoveFrom transfers src's ownership into s and empties src, releasing what
// s owned before. MoveFrom(s) is a no-op.
func (s *Shared[T]) MoveFrom(src *Shared[T]) {
	if s == src {
		return
	}
	var ptr *T
	var cb *ctrl.Block[T]
	if src.Valid() {
		ptr, cb = src.ptr, src.cb
		src.ptr, src.cb = nil, nil
		src.markReleased()
	}
	old := s.cb
	s.ptr, s.cb = ptr, cb
	if old != nil {
		old.ReleaseStrong()
	}
}

// Reset gives up ownership and empties the handle. The last owner's Reset
// destroys the payload. Reset on an empty or nil handle does nothing.
func (s *Shared[T]) Reset() {
	if !s.Valid() {
		return
	}
	cb := s.cb
	// Empty first: the payload destructor may reach this handle.
	s.ptr, s.cb = nil, nil
	s.markReleased()
	cb.ReleaseStrong()
}

// Swap exchanges the payloads of s and o. Counts do not change.
func (s *Shared[T]) Swap(o *Shared[T]) {
	s.ptr, o.ptr = o.ptr, s.ptr
	s.cb, o.cb = o.cb, s.cb
	s.released, o.released = o.released, s.released
}

// Weak returns a new observer of the payload. An empty handle yields an
// empty observer.
func (s *Shared[T]) Weak() *Weak[T] {
	return NewWeak(s)
}

// String describes the handle, e.g. "Shared[main.Conn](#4 strong=2 weak=1 held)".
func (s *Shared[T]) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Shared[%s](empty)", typeName[T]())
	}
	return fmt.Sprintf("Shared[%s](#%d %s)", typeName[T](), s.cb.ID(), s.cb.Counts())
}

func (s *Shared[T]) markReleased() {
	if t := current.Load(); t != nil {
		s.released = t.CaptureRelease()
	}
}

// emptyAccess reports and fails an access through an empty handle.
func emptyAccess[T any](op string, released uint64) {
	if t := current.Load(); t != nil {
		t.EmptyAccess(op, typeName[T](), released)
	}
	panic(&ContractError{Kind: ErrEmptyHandle, Op: op, Label: typeName[T]()})
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
