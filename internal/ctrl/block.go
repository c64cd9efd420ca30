// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import "sync/atomic"

// Destroyer is implemented by payloads that need to run teardown logic when
// their last owner goes away. Destroy is called on the payload's address
// inside the block, exactly once.
type Destroyer interface {
	Destroy()
}

// Observer receives lifecycle notifications from a block.
//
// Implementations must not call back into the block that notified them.
type Observer interface {
	// Destroyed is called after the payload destructor returned.
	Destroyed(id uint64)
	// Freed is called once the block reached PhaseDeallocated.
	Freed(id uint64)
	// Faulted is called right before the block panics with f.
	Faulted(f *Fault)
}

// nextID hands out block ids. Id 0 is never used.
var nextID atomic.Uint64

// Block is the control block: payload storage plus the packed counts word,
// constructed in a single allocation.
//
// A Block is created with one strong owner. It is mutated only through the
// Acquire/Release methods; nothing else writes the counts word.
//
// Thread Safety: all count operations are lock-free and safe for concurrent
// use. Access to the payload itself is the caller's responsibility.
type Block[T any] struct {
	counts  atomic.Uint64
	obj     T
	destroy func(*T)
	id      uint64
	label   string
	obs     Observer
}

// New allocates a block holding a zero payload with strong=1, weak=0.
//
// The caller constructs the payload in place through Object before handing
// the block to anyone; until then the block is private and can simply be
// dropped if construction fails.
func New[T any](destroy func(*T), label string) *Block[T] {
	b := &Block[T]{
		destroy: destroy,
		id:      nextID.Add(1),
		label:   label,
	}
	b.counts.Store(uint64(initialCounts))
	return b
}

// SetObserver attaches an observer. It must be called before the block is
// published to other goroutines.
func (b *Block[T]) SetObserver(o Observer) {
	b.obs = o
}

// ID returns the block's process-unique id.
func (b *Block[T]) ID() uint64 { return b.id }

// Label returns the diagnostic label given at construction.
func (b *Block[T]) Label() string { return b.label }

// Object returns the address of the payload inside the block.
func (b *Block[T]) Object() *T { return &b.obj }

// Counts returns a snapshot of the counts word.
func (b *Block[T]) Counts() Counts {
	return Counts(b.counts.Load())
}

// Phase returns the current lifecycle phase.
func (b *Block[T]) Phase() Phase {
	return b.Counts().Phase()
}

// UseCount returns the strong count.
func (b *Block[T]) UseCount() int {
	return int(b.Counts().Strong())
}

// WeakCount returns the weak count.
func (b *Block[T]) WeakCount() int {
	return int(b.Counts().Weak())
}

// AcquireStrong adds an owner. The caller must already own the block
// (copying an existing strong reference), so strong is expected to be > 0.
func (b *Block[T]) AcquireStrong() {
	b.update("AcquireStrong", func(c Counts) (Counts, error) {
		switch {
		case c == 0:
			return c, ErrUseAfterFree
		case c.Strong() == 0:
			// Copying an owner of a destroyed payload: the owner itself was
			// duplicated without being counted.
			return c, ErrOverRelease
		case c.Strong() == MaxStrong:
			return c, ErrCountOverflow
		}
		return c + strongOne, nil
	})
}

// TryAcquireStrong adds an owner only if the payload is still alive.
//
// This is the promotion primitive behind Weak.Lock: the check and the
// increment are one compare-and-swap, so a concurrent last release can
// never be followed by a resurrecting increment.
//
// Returns false if the payload has already been destroyed.
func (b *Block[T]) TryAcquireStrong() bool {
	acquired := false
	b.update("TryAcquireStrong", func(c Counts) (Counts, error) {
		switch {
		case c == 0:
			return c, ErrUseAfterFree
		case c.Strong() == 0:
			acquired = false
			return c, nil
		case c.Strong() == MaxStrong:
			return c, ErrCountOverflow
		}
		acquired = true
		return c + strongOne, nil
	})
	return acquired
}

// ReleaseStrong drops an owner.
//
// The release that takes strong from 1 to 0 runs the payload destructor and
// then drops the hold bit; if no observers remain that also frees the block.
//
// Returns the phase the block is in right after this release.
func (b *Block[T]) ReleaseStrong() (phase Phase) {
	_, next := b.update("ReleaseStrong", func(c Counts) (Counts, error) {
		switch {
		case c == 0:
			return c, ErrUseAfterFree
		case c.Strong() == 0:
			return c, ErrOverRelease
		}
		return c - strongOne, nil
	})
	if next.Strong() > 0 {
		return PhaseLive
	}

	// Drop the hold even if a destructor panics; the panic keeps unwinding.
	defer func() { phase = b.dropHold() }()
	b.destroyObject()
	return PhaseExpired
}

// AcquireWeak adds an observer. Observers can be added in any phase but
// Deallocated.
func (b *Block[T]) AcquireWeak() {
	b.update("AcquireWeak", func(c Counts) (Counts, error) {
		switch {
		case c == 0:
			return c, ErrUseAfterFree
		case c.Weak() == MaxWeak:
			return c, ErrCountOverflow
		}
		return c + weakOne, nil
	})
}

// ReleaseWeak drops an observer. The release that brings the whole word to
// zero frees the block.
//
// Returns the phase the block is in right after this release.
func (b *Block[T]) ReleaseWeak() Phase {
	_, next := b.update("ReleaseWeak", func(c Counts) (Counts, error) {
		switch {
		case c == 0:
			return c, ErrUseAfterFree
		case c.Weak() == 0:
			return c, ErrOverRelease
		}
		return c - weakOne, nil
	})
	if next == 0 {
		b.free()
	}
	return next.Phase()
}

// dropHold clears the hold bit after destruction finished.
func (b *Block[T]) dropHold() Phase {
	_, next := b.update("ReleaseStrong", func(c Counts) (Counts, error) {
		if !c.Held() {
			return c, ErrOverRelease
		}
		return c &^ holdBit, nil
	})
	if next == 0 {
		b.free()
	}
	return next.Phase()
}

// destroyObject runs the destructors and zeroes the payload so everything
// it referenced becomes collectable.
func (b *Block[T]) destroyObject() {
	p := &b.obj
	if b.destroy != nil {
		b.destroy(p)
	}
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
	var zero T
	b.obj = zero
	if b.obs != nil {
		b.obs.Destroyed(b.id)
	}
}

// free is reached exactly once, by whichever release moved the word to 0.
func (b *Block[T]) free() {
	b.destroy = nil
	if b.obs != nil {
		b.obs.Freed(b.id)
	}
}

// update applies f to the counts word with a CAS loop and returns the old
// and new words. If f reports a violation the block faults (panics).
func (b *Block[T]) update(op string, f func(Counts) (Counts, error)) (old, next Counts) {
	for {
		old = Counts(b.counts.Load())
		var err error
		next, err = f(old)
		if err != nil {
			b.fault(err, op, old)
		}
		if next == old {
			return old, next
		}
		if b.counts.CompareAndSwap(uint64(old), uint64(next)) {
			return old, next
		}
	}
}

// fault reports a violation to the observer and panics.
func (b *Block[T]) fault(kind error, op string, c Counts) {
	f := &Fault{
		Kind:   kind,
		Op:     op,
		Block:  b.id,
		Label:  b.label,
		Counts: c,
	}
	if b.obs != nil {
		b.obs.Faulted(f)
	}
	panic(f)
}
