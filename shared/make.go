// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"github.com/cockroachdb/errors"

	"github.com/kolkov/sharedref/internal/ctrl"
)

// Option configures a payload created by Make or MakeWith.
type Option func(*options)

type options struct {
	destroy any // func(*T), checked against the payload type by MakeWith
	label   string
}

// WithDestructor registers fn to run on the payload when its last owner
// lets go, before Destroy if the payload is a Destroyer. fn's parameter
// type must be a pointer to the payload type.
func WithDestructor[T any](fn func(*T)) Option {
	return func(o *options) { o.destroy = fn }
}

// WithLabel attaches a label shown in contract violation and leak reports.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// Make stores v in a new control block and returns its first owner
// (UseCount() == 1, WeakCount() == 0). The payload and its counts share one
// allocation.
//
// Make panics if a WithDestructor option does not match T.
//
// Example:
//
//	s := shared.Make(Config{Retries: 3}, shared.WithLabel("config"))
//	defer s.Reset()
func Make[T any](v T, opts ...Option) *Shared[T] {
	s, err := MakeWith(func(p *T) error {
		*p = v
		return nil
	}, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// MakeWith allocates a control block and constructs the payload in place by
// calling init with its address. init may be nil to start from the zero
// value.
//
// Construction is all-or-nothing: if init returns an error, MakeWith returns
// a nil handle and the error marked with ErrConstruct. The block is never
// registered, tracked or reachable, and no destructor runs on the partially
// constructed payload.
//
// Example:
//
//	pool, err := shared.MakeWith(func(p *Pool) error {
//		return p.Dial(ctx, addrs)
//	}, shared.WithDestructor(func(p *Pool) { p.Close() }))
func MakeWith[T any](init func(*T) error, opts ...Option) (*Shared[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var destroy func(*T)
	if o.destroy != nil {
		fn, ok := o.destroy.(func(*T))
		if !ok {
			return nil, errors.Newf("sharedref: destructor %T does not accept *%s", o.destroy, typeName[T]())
		}
		destroy = fn
	}

	cb := ctrl.New(destroy, o.label)
	if init != nil {
		if err := init(cb.Object()); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "sharedref: constructing %s", typeName[T]()), ErrConstruct)
		}
	}

	if t := current.Load(); t != nil {
		cb.SetObserver(t)
		t.Register(cb.ID(), o.label, typeName[T](), cb.Counts, func() any { return cb.Object() })
	}
	return adopt(cb), nil
}
