// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/sharedref/internal/ctrl"
)

type node struct {
	value int
	next  *Shared[node]
}

// Destroy releases the rest of the list.
func (n *node) Destroy() { n.next.Reset() }

func contractError(t *testing.T, fn func()) *ContractError {
	t.Helper()
	var ce *ContractError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a contract violation")
			var ok bool
			ce, ok = r.(*ContractError)
			require.True(t, ok, "panic value %T is not *ContractError", r)
		}()
		fn()
	}()
	return ce
}

func TestEmptyHandles(t *testing.T) {
	var zero Shared[int]
	var nilHandle *Shared[int]

	for name, s := range map[string]*Shared[int]{"zero": &zero, "nil": nilHandle} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, s.Valid())
			assert.Nil(t, s.Get())
			assert.Equal(t, 0, s.UseCount())
			assert.Equal(t, 0, s.WeakCount())
			assert.False(t, s.IsUnique())
			assert.NotPanics(t, s.Reset)
			assert.NotPanics(t, s.Reset)

			c := s.Clone()
			require.NotNil(t, c)
			assert.False(t, c.Valid())

			w := s.Weak()
			require.NotNil(t, w)
			assert.True(t, w.Expired())
			assert.Equal(t, "Shared[int](empty)", s.String())
		})
	}
}

func TestDerefEmptyFailsFast(t *testing.T) {
	var s *Shared[string]
	ce := contractError(t, func() { _ = s.Deref() })
	assert.True(t, errors.Is(ce, ErrEmptyHandle))
	assert.Equal(t, "Deref", ce.Op)
	assert.Contains(t, ce.Error(), "Deref on string")

	owner := Make("x")
	w := owner.Weak()
	owner.Reset()
	unchecked := w.Lock()
	assert.True(t, errors.Is(contractError(t, func() { unchecked.Deref() }), ErrEmptyHandle))
	w.Reset()
}

func TestGetAndDeref(t *testing.T) {
	s := Make(node{value: 7})
	defer s.Reset()

	assert.Same(t, s.Get(), s.Deref())
	s.Deref().value++
	assert.Equal(t, 8, s.Get().value)
	assert.True(t, s.IsUnique())
	assert.Regexp(t, `^Shared\[shared\.node\]\(#\d+ strong=1 weak=0 held\)$`, s.String())
}

func TestClone(t *testing.T) {
	s := Make(1)
	c := s.Clone()

	assert.Equal(t, 2, s.UseCount())
	assert.False(t, s.IsUnique())
	assert.Same(t, s.Get(), c.Get())

	c.Reset()
	assert.True(t, s.IsUnique())
	s.Reset()
}

func TestMove(t *testing.T) {
	s := Make(1)
	p := s.Get()

	m := s.Move()
	assert.False(t, s.Valid())
	assert.Nil(t, s.Get())
	assert.Same(t, p, m.Get())
	assert.Equal(t, 1, m.UseCount())

	assert.False(t, s.Move().Valid(), "moving an empty handle yields an empty handle")
	m.Reset()
}

func TestAssign(t *testing.T) {
	t.Run("replaces and releases", func(t *testing.T) {
		a, aDestroyed := newWidget(t, "a")
		b, bDestroyed := newWidget(t, "b")

		a.Assign(b)
		assert.Equal(t, 1, *aDestroyed, "a's old payload had no other owner")
		assert.Equal(t, 0, *bDestroyed)
		assert.Equal(t, 2, b.UseCount())
		assert.Same(t, a.Get(), b.Get())

		a.Reset()
		b.Reset()
		assert.Equal(t, 1, *bDestroyed)
	})

	t.Run("self", func(t *testing.T) {
		a, destroyed := newWidget(t, "a")
		a.Assign(a)
		assert.Equal(t, 1, a.UseCount())
		assert.Equal(t, 0, *destroyed)
		a.Reset()
	})

	t.Run("already sharing", func(t *testing.T) {
		a, destroyed := newWidget(t, "a")
		b := a.Clone()
		a.Assign(b)
		assert.Equal(t, 2, a.UseCount())
		assert.Equal(t, 0, *destroyed)
		a.Reset()
		b.Reset()
	})

	t.Run("from empty", func(t *testing.T) {
		a, destroyed := newWidget(t, "a")
		a.Assign(nil)
		assert.False(t, a.Valid())
		assert.Equal(t, 1, *destroyed)
	})

	t.Run("into empty", func(t *testing.T) {
		a, _ := newWidget(t, "a")
		var b Shared[widget]
		b.Assign(a)
		assert.Equal(t, 2, a.UseCount())
		b.Reset()
		a.Reset()
	})

	t.Run("source owned by own payload", func(t *testing.T) {
		tail := Make(node{value: 2})
		head := Make(node{value: 1, next: tail.Move()})
		tailCB := head.Deref().next.cb

		// Advancing head destroys the old head, whose Destroy resets the
		// very handle being assigned from.
		head.Assign(head.Deref().next)
		assert.Equal(t, 2, head.Deref().value)
		assert.Equal(t, 1, head.UseCount())
		assert.Same(t, tailCB, head.cb)

		head.Reset()
		assert.Equal(t, ctrl.PhaseDeallocated, tailCB.Phase())
	})
}

func TestMoveFrom(t *testing.T) {
	t.Run("steals", func(t *testing.T) {
		a, aDestroyed := newWidget(t, "a")
		b, bDestroyed := newWidget(t, "b")
		p := b.Get()

		a.MoveFrom(b)
		assert.Equal(t, 1, *aDestroyed)
		assert.False(t, b.Valid())
		assert.Same(t, p, a.Get())
		assert.Equal(t, 1, a.UseCount())

		a.Reset()
		assert.Equal(t, 1, *bDestroyed)
	})

	t.Run("self", func(t *testing.T) {
		a, destroyed := newWidget(t, "a")
		a.MoveFrom(a)
		assert.True(t, a.Valid())
		assert.Equal(t, 0, *destroyed)
		a.Reset()
	})

	t.Run("from nil", func(t *testing.T) {
		a, destroyed := newWidget(t, "a")
		a.MoveFrom(nil)
		assert.False(t, a.Valid())
		assert.Equal(t, 1, *destroyed)
	})
}

func TestResetIdempotent(t *testing.T) {
	s, destroyed := newWidget(t, "a")
	w := s.Weak()

	for i := 0; i < 3; i++ {
		s.Reset()
	}
	assert.Equal(t, 1, *destroyed)
	assert.True(t, w.Expired())
	w.Reset()
	w.Reset()
}

func TestSwap(t *testing.T) {
	a := Make(1)
	b := Make(2)
	c := a.Clone()

	a.Swap(b)
	assert.Equal(t, 2, *a.Get())
	assert.Equal(t, 1, *b.Get())
	assert.Equal(t, 1, a.UseCount())
	assert.Equal(t, 2, b.UseCount())

	var empty Shared[int]
	a.Swap(&empty)
	assert.False(t, a.Valid())
	assert.Equal(t, 2, *empty.Get())

	for _, s := range []*Shared[int]{a, b, c, &empty} {
		s.Reset()
	}
}

func TestMakeWith(t *testing.T) {
	s, err := MakeWith(func(n *node) error {
		n.value = 42
		return nil
	}, WithLabel("answer"))
	require.NoError(t, err)
	assert.Equal(t, 42, s.Deref().value)
	assert.Equal(t, "answer", s.cb.Label())
	s.Reset()

	zero, err := MakeWith[node](nil)
	require.NoError(t, err)
	assert.Equal(t, 0, zero.Deref().value)
	zero.Reset()
}

func TestMakeWithConstructionFailure(t *testing.T) {
	cause := errors.New("dial refused")
	destroyed := 0

	s, err := MakeWith(func(*node) error { return cause },
		WithDestructor(func(*node) { destroyed++ }))

	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, ErrConstruct))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "constructing shared.node")
	assert.Zero(t, destroyed, "a payload that never finished construction is not destroyed")
}

func TestDestructorOrder(t *testing.T) {
	var order []string
	s := Make(node{value: 1, next: Make(node{value: 2})},
		WithDestructor(func(n *node) {
			order = append(order, "destructor")
			assert.True(t, n.next.Valid(), "Destroy has not run yet")
		}))
	next := s.Deref().next.Clone()

	s.Reset()
	assert.Equal(t, []string{"destructor"}, order)
	assert.True(t, next.IsUnique(), "Destroy released the payload's reference")
	next.Reset()
}

func TestDestructorTypeMismatch(t *testing.T) {
	_, err := MakeWith[node](nil, WithDestructor(func(*int) {}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConstruct))
	assert.Contains(t, err.Error(), "does not accept *shared.node")

	assert.Panics(t, func() { Make(1, WithDestructor(func(*string) {})) })
}

func TestCopiedHandleFailsFast(t *testing.T) {
	a := Make(1)
	w := a.Weak()
	b := new(Shared[int])
	b.ptr, b.cb = a.ptr, a.cb // what *b = *a does

	a.Reset()
	ce := contractError(t, b.Reset)
	assert.True(t, errors.Is(ce, ErrOverRelease))
	w.Reset()
}

func BenchmarkCloneReset(b *testing.B) {
	s := Make(0)
	defer s.Reset()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := s.Clone()
		c.Reset()
	}
}

func BenchmarkMakeReset(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Make(i).Reset()
	}
}
