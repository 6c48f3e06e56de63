// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas

import "slices"

// span is a half-open range [start, end) of buffer elements.
type span struct {
	start, end uint32
}

func (s span) len() uint32 { return s.end - s.start }

// spanList hands out element ranges first-fit. Freed ranges are merged
// with free neighbours; a free range touching the end lowers the
// high-water mark instead of staying on the list.
type spanList struct {
	free []span // sorted by start, never adjacent
	used uint32 // high-water mark
}

// alloc reserves n elements at the lowest offset that fits.
func (l *spanList) alloc(n uint32) span {
	for i, f := range l.free {
		if f.len() < n {
			continue
		}
		s := span{f.start, f.start + n}
		if f.len() == n {
			l.free = slices.Delete(l.free, i, i+1)
		} else {
			l.free[i].start += n
		}
		return s
	}
	s := span{l.used, l.used + n}
	l.used += n
	return s
}

// release returns s to the list.
func (l *spanList) release(s span) {
	if s.len() == 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(l.free, s.start, func(f span, start uint32) int {
		return int(int64(f.start) - int64(start))
	})
	l.free = slices.Insert(l.free, i, s)
	if i+1 < len(l.free) && l.free[i].end == l.free[i+1].start {
		l.free[i].end = l.free[i+1].end
		l.free = slices.Delete(l.free, i+1, i+2)
	}
	if i > 0 && l.free[i-1].end == l.free[i].start {
		l.free[i-1].end = l.free[i].end
		l.free = slices.Delete(l.free, i, i+1)
	}
	if n := len(l.free); n > 0 && l.free[n-1].end == l.used {
		l.used = l.free[n-1].start
		l.free = l.free[:n-1]
	}
}
