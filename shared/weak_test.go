// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/sharedref/internal/ctrl"
)

func TestEmptyWeak(t *testing.T) {
	var zero Weak[int]
	var nilHandle *Weak[int]

	for name, w := range map[string]*Weak[int]{"zero": &zero, "nil": nilHandle} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, w.Expired())
			assert.Equal(t, 0, w.UseCount())
			assert.Equal(t, 0, w.WeakCount())
			assert.NotPanics(t, w.Reset)

			s := w.Lock()
			require.NotNil(t, s, "Lock never returns nil")
			assert.False(t, s.Valid())

			assert.True(t, w.Clone().Expired())
			assert.True(t, w.Move().Expired())
			assert.Equal(t, "Weak[int](empty)", w.String())
		})
	}
}

func TestNewWeakDoesNotOwn(t *testing.T) {
	s, destroyed := newWidget(t, "a")
	w := NewWeak(s)

	assert.Equal(t, 1, s.UseCount(), "observers do not change the strong count")
	assert.Equal(t, 1, s.WeakCount())
	assert.Equal(t, 1, w.UseCount())
	assert.False(t, w.Expired())

	s.Reset()
	assert.Equal(t, 1, *destroyed)
	assert.Equal(t, 0, w.UseCount())
	assert.Regexp(t, `^Weak\[shared\.widget\]\(#\d+ strong=0 weak=1\)$`, w.String())
	w.Reset()
}

func TestLock(t *testing.T) {
	s := Make(5)
	w := s.Weak()

	before := s.UseCount()
	l := w.Lock()
	require.True(t, l.Valid())
	assert.Equal(t, before+1, s.UseCount(), "Lock adds exactly one owner")
	assert.Same(t, s.Get(), l.Get())

	l.Reset()
	s.Reset()

	for i := 0; i < 3; i++ {
		l := w.Lock()
		assert.False(t, l.Valid(), "expired observers stay expired")
		assert.Equal(t, 0, w.UseCount())
	}
	w.Reset()
}

func TestWeakCloneAndMove(t *testing.T) {
	s := Make("payload")
	w := s.Weak()

	c := w.Clone()
	assert.Equal(t, 2, s.WeakCount())

	m := c.Move()
	assert.True(t, c.Expired())
	assert.Equal(t, 0, c.WeakCount())
	assert.Equal(t, 2, m.WeakCount())

	s.Reset()

	// Cloning an expired observer still counts it against the block.
	late := w.Clone()
	assert.True(t, late.Expired())
	assert.Equal(t, 3, late.WeakCount())

	cb := w.cb
	for _, h := range []*Weak[string]{w, m, late} {
		h.Reset()
	}
	assert.Equal(t, ctrl.PhaseDeallocated, cb.Phase())
}

func TestWeakAssign(t *testing.T) {
	a := Make(1)
	b := Make(2)
	wa := a.Weak()
	wb := b.Weak()

	wa.Assign(wb)
	assert.Equal(t, 0, a.WeakCount())
	assert.Equal(t, 2, b.WeakCount())
	l := wa.Lock()
	assert.Equal(t, 2, *l.Get())
	l.Reset()

	wa.Assign(wa)
	assert.Equal(t, 2, b.WeakCount(), "self-assignment is a no-op")

	wa.AssignShared(a)
	assert.Equal(t, 1, a.WeakCount())
	assert.Equal(t, 1, b.WeakCount())

	wa.AssignShared(nil)
	assert.True(t, wa.Expired())
	assert.Equal(t, 0, a.WeakCount())

	wb.Assign(nil)
	assert.Equal(t, 0, b.WeakCount())

	a.Reset()
	b.Reset()
}

func TestWeakAssignReleasesExpiredBlock(t *testing.T) {
	a := Make(1)
	w := a.Weak()
	cb := a.cb
	a.Reset()
	require.Equal(t, ctrl.PhaseExpired, cb.Phase())

	b := Make(2)
	w.AssignShared(b)
	assert.Equal(t, ctrl.PhaseDeallocated, cb.Phase(), "last observer of an expired block frees it")

	w.Reset()
	b.Reset()
}

func TestWeakMoveFrom(t *testing.T) {
	a := Make(1)
	b := Make(2)
	wa := a.Weak()
	wb := b.Weak()

	wa.MoveFrom(wb)
	assert.True(t, wb.Expired())
	assert.Equal(t, 0, a.WeakCount())
	assert.Equal(t, 1, b.WeakCount())

	wa.MoveFrom(wa)
	assert.Equal(t, 1, b.WeakCount())

	wa.MoveFrom(nil)
	assert.Equal(t, 0, b.WeakCount())

	a.Reset()
	b.Reset()
}

func TestWeakSwap(t *testing.T) {
	a := Make(1)
	w1 := a.Weak()
	var w2 Weak[int]

	w1.Swap(&w2)
	assert.True(t, w1.Expired())
	assert.False(t, w2.Expired())
	assert.Equal(t, 1, a.WeakCount(), "swap does not touch counts")

	w2.Reset()
	a.Reset()
}

// TestWeakBackEdgeBreaksCycle builds parent ⇄ child with a weak back-edge:
// dropping the parent tears the whole structure down.
func TestWeakBackEdgeBreaksCycle(t *testing.T) {
	parent := Make(treeNode{})
	kid := Make(leaf{parent: parent.Weak()})
	kcb := kid.cb
	parent.Deref().children = append(parent.Deref().children, kid.Move())
	assert.Equal(t, 1, parent.WeakCount())

	pcb := parent.cb
	parent.Reset()
	assert.Equal(t, ctrl.PhaseDeallocated, kcb.Phase())
	assert.Equal(t, ctrl.PhaseDeallocated, pcb.Phase())
}

type treeNode struct {
	children []*Shared[leaf]
}

func (n *treeNode) Destroy() {
	for _, c := range n.children {
		c.Reset()
	}
}

type leaf struct {
	parent *Weak[treeNode]
}

func (l *leaf) Destroy() { l.parent.Reset() }
