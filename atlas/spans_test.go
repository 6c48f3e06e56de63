// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas

import (
	"slices"
	"testing"
)

func TestSpanListFirstFit(t *testing.T) {
	var l spanList
	a := l.alloc(4)
	b := l.alloc(8)
	c := l.alloc(2)
	if a != (span{0, 4}) || b != (span{4, 12}) || c != (span{12, 14}) {
		t.Fatalf("allocations = %v %v %v", a, b, c)
	}

	l.release(a)
	if got := l.alloc(3); got != (span{0, 3}) {
		t.Errorf("reuse = %v, want [0,3)", got)
	}
	if got := l.alloc(4); got != (span{14, 18}) {
		t.Errorf("too large for the hole = %v, want [14,18)", got)
	}
}

func TestSpanListCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		release  []int
		wantFree []span
		wantUsed uint32
	}{
		{"middle then left", []int{1, 0}, []span{{0, 6}}, 12},
		{"left then middle", []int{0, 1}, []span{{0, 6}}, 12},
		{"separate holes", []int{0, 2}, []span{{0, 3}, {6, 9}}, 12},
		{"three merge", []int{0, 2, 1}, []span{{0, 9}}, 12},
		{"tail lowers mark", []int{3}, nil, 9},
		{"everything", []int{1, 3, 0, 2}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l spanList
			spans := []span{l.alloc(3), l.alloc(3), l.alloc(3), l.alloc(3)}
			for _, i := range tt.release {
				l.release(spans[i])
			}
			if !slices.Equal(l.free, tt.wantFree) {
				t.Errorf("free = %v, want %v", l.free, tt.wantFree)
			}
			if l.used != tt.wantUsed {
				t.Errorf("used = %d, want %d", l.used, tt.wantUsed)
			}
		})
	}
}
