// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracker

import "sync/atomic"

// SampleStats counts lifecycle stack capture decisions.
type SampleStats struct {
	Sampled uint64 // events whose stack was captured
	Skipped uint64 // events recorded without a stack
}

// sampler selects 1 in rate lifecycle events for stack capture.
//
// It uses a shared atomic position counter with modulo selection, so
// concurrent events spread the sampled slots without an RNG. A rate of 0
// or 1 samples everything.
//
// Violation reports do not go through the sampler: the current stack of a
// violation is always captured.
type sampler struct {
	rate uint64
	pos  atomic.Uint64

	sampled atomic.Uint64
	skipped atomic.Uint64
}

func newSampler(rate uint64) *sampler {
	if rate == 0 {
		rate = 1
	}
	return &sampler{rate: rate}
}

// sample reports whether the current event gets a stack.
func (s *sampler) sample() bool {
	ok := s.rate <= 1 || s.pos.Add(1)%s.rate == 0
	if ok {
		s.sampled.Add(1)
	} else {
		s.skipped.Add(1)
	}
	return ok
}

func (s *sampler) stats() SampleStats {
	return SampleStats{Sampled: s.sampled.Load(), Skipped: s.skipped.Load()}
}
