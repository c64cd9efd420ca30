// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import "testing"

// TestNewCounts tests counts word encoding.
func TestNewCounts(t *testing.T) {
	tests := []struct {
		name   string
		strong uint32
		weak   uint32
		hold   bool
		want   Counts
	}{
		{
			name: "zero word",
			want: 0,
		},
		{
			name:   "strong only",
			strong: 2,
			want:   0x0000000000000002,
		},
		{
			name: "weak only",
			weak: 1,
			want: 0x0000000100000000,
		},
		{
			name: "hold only",
			hold: true,
			want: 0x8000000000000000,
		},
		{
			name:   "initial block",
			strong: 1,
			hold:   true,
			want:   initialCounts,
		},
		{
			name:   "all fields",
			strong: 2,
			weak:   1,
			hold:   true,
			want:   0x8000000100000002,
		},
		{
			name:   "max fields",
			strong: MaxStrong,
			weak:   MaxWeak,
			hold:   true,
			want:   0xFFFFFFFFFFFFFFFF,
		},
		{
			name: "weak truncated to 31 bits",
			weak: 0xFFFFFFFF,
			want: 0x7FFFFFFF00000000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCounts(tt.strong, tt.weak, tt.hold)
			if got != tt.want {
				t.Errorf("NewCounts(%d, %d, %v) = 0x%016x, want 0x%016x",
					tt.strong, tt.weak, tt.hold, uint64(got), uint64(tt.want))
			}
		})
	}
}

// TestCountsDecode tests that Decode inverts NewCounts.
func TestCountsDecode(t *testing.T) {
	tests := []struct {
		strong uint32
		weak   uint32
		hold   bool
	}{
		{0, 0, false},
		{1, 0, true},
		{0, 3, false},
		{7, 9, true},
		{MaxStrong, MaxWeak, true},
	}

	for _, tt := range tests {
		s, w, h := NewCounts(tt.strong, tt.weak, tt.hold).Decode()
		if s != tt.strong || w != tt.weak || h != tt.hold {
			t.Errorf("Decode() = (%d, %d, %v), want (%d, %d, %v)",
				s, w, h, tt.strong, tt.weak, tt.hold)
		}
	}
}

// TestCountsPhase tests phase derivation from the counts word.
func TestCountsPhase(t *testing.T) {
	tests := []struct {
		name  string
		c     Counts
		phase Phase
	}{
		{"fresh block", initialCounts, PhaseLive},
		{"shared and observed", NewCounts(3, 2, true), PhaseLive},
		{"weakly held", NewCounts(0, 1, false), PhaseExpired},
		{"destroying", NewCounts(0, 0, true), PhaseExpired},
		{"destroying with observers", NewCounts(0, 4, true), PhaseExpired},
		{"deallocated", 0, PhaseDeallocated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Phase(); got != tt.phase {
				t.Errorf("Phase() = %v, want %v", got, tt.phase)
			}
		})
	}
}

// TestCountsString tests human-readable formatting.
func TestCountsString(t *testing.T) {
	if got := NewCounts(2, 1, true).String(); got != "strong=2 weak=1 held" {
		t.Errorf("String() = %q", got)
	}
	if got := NewCounts(0, 1, false).String(); got != "strong=0 weak=1" {
		t.Errorf("String() = %q", got)
	}
}

// TestPhaseString tests phase names.
func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		PhaseLive:        "live",
		PhaseExpired:     "expired",
		PhaseDeallocated: "deallocated",
		Phase(42):        "unknown",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}

// BenchmarkCountsPhase benchmarks the phase derivation on the release path.
func BenchmarkCountsPhase(b *testing.B) {
	c := NewCounts(1, 1, true)
	var p Phase
	for i := 0; i < b.N; i++ {
		p = c.Phase()
	}
	_ = p
}
