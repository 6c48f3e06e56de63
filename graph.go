// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"cmp"
	"fmt"
	"slices"
)

// backBufferHandle is the handle of the scheduler-owned back buffer. It is
// valid in every build (generation 0 is never assigned to a build).
var backBufferHandle = Resource{index: 0, generation: 0, kind: KindTexture}

func isBackBuffer(r Resource) bool {
	return r == backBufferHandle
}

// physical is one backend object owned by a graph. Aliased transient
// resources share a physical; inheritance moves it into the next build.
type physical struct {
	id        uint64
	kind      ResourceKind
	obj       Object
	label     string
	access    Access     // last access of the last submitted frame
	migration *migration // pending copy from a smaller predecessor
	destroyed bool
}

// migration is a pending copy of the first size bytes of src into the
// buffer that owns it. src is released once the copy has been submitted.
type migration struct {
	src  *physical
	size uint64
}

// entry is a resource declared in one build.
type entry struct {
	kind     ResourceKind
	texture  TextureDesc
	buffer   BufferDesc
	pipeline PipelineDesc

	phys      *physical
	inherited bool

	grownFrom *physical
	growSize  uint64

	// first and last are the indices of the first and last node that
	// declared an access, or -1.
	first, last int

	// taken is set once the entry was inherited or grown into a later build.
	taken bool
}

func newEntry(kind ResourceKind) *entry {
	return &entry{kind: kind, first: -1, last: -1}
}

func (e *entry) label() string {
	switch e.kind {
	case KindTexture:
		return e.texture.Label
	case KindBuffer:
		return e.buffer.Label
	case KindPipeline:
		return e.pipeline.Label
	}
	return ""
}

func (e *entry) transient() bool {
	switch e.kind {
	case KindTexture:
		return e.texture.Transient
	case KindBuffer:
		return e.buffer.Transient && e.grownFrom == nil
	}
	return false
}

func (e *entry) sameDesc(o *entry) bool {
	if e.kind != o.kind {
		return false
	}
	switch e.kind {
	case KindTexture:
		return e.texture.Equal(&o.texture)
	case KindBuffer:
		return e.buffer.Equal(&o.buffer)
	case KindPipeline:
		return e.pipeline.Equal(&o.pipeline)
	}
	return false
}

func (e *entry) touch(node int) {
	if e.first < 0 || node < e.first {
		e.first = node
	}
	if node > e.last {
		e.last = node
	}
}

func (e *entry) overlaps(o *entry) bool {
	if e.first < 0 || o.first < 0 {
		return false
	}
	return e.first <= o.last && o.first <= e.last
}

// node is a pass declared in one build.
type node struct {
	name   string
	run    PassFunc
	access map[uint32]Access
	order  []uint32
}

func (n *node) declare(index uint32, a Access) {
	if _, ok := n.access[index]; !ok {
		n.order = append(n.order, index)
	}
	n.access[index] |= a
}

// build is the declarative graph assembled by one round of Create/Recreate.
type build struct {
	generation uint32
	entries    []*entry // entries[0] is reserved for the back buffer
	nodes      []*node
	registry   *Registry
	sealed     bool
}

func newBuild(generation uint32) *build {
	return &build{
		generation: generation,
		entries:    []*entry{nil},
		registry:   NewRegistry(),
	}
}

func (b *build) handle(index int, kind ResourceKind) Resource {
	return Resource{index: uint32(index), generation: b.generation, kind: kind}
}

// lookup returns the entry for r if r belongs to b.
func (b *build) lookup(r Resource) (*entry, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: invalid resource handle", ErrState)
	}
	if r.generation != b.generation || r.index == 0 || int(r.index) >= len(b.entries) {
		return nil, fmt.Errorf("%w: %s (current generation %d)", ErrStaleHandle, r, b.generation)
	}
	e := b.entries[r.index]
	if e.kind != r.kind {
		return nil, fmt.Errorf("%w: %s refers to a %s", ErrState, r, e.kind)
	}
	return e, nil
}

// physicals returns every distinct object referenced by b, including
// migration sources.
func (b *build) physicals() []*physical {
	seen := make(map[*physical]bool)
	var out []*physical
	add := func(p *physical) {
		if p != nil && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, e := range b.entries[1:] {
		add(e.phys)
		add(e.grownFrom)
	}
	// Copies that were never submitted keep their sources alive.
	for i := 0; i < len(out); i++ {
		if m := out[i].migration; m != nil {
			add(m.src)
		}
	}
	return out
}

// aliasSlot is a transient object and the entries sharing it.
type aliasSlot struct {
	phys  *physical
	users []*entry
}

func (s *aliasSlot) accepts(e *entry) bool {
	if !s.users[0].sameDesc(e) {
		return false
	}
	for _, u := range s.users {
		if u.overlaps(e) || (u.first < 0 && e.first < 0) {
			return false
		}
	}
	return true
}

// compileResult summarizes what compile did.
type compileResult struct {
	created  int
	aliased  int
	released int
}

// compile creates the objects of b, aliasing transients with equal
// descriptors and disjoint node intervals, and releases the objects of
// prev that b did not carry forward. On error nothing of prev is
// released and every object created for b is destroyed again.
func (s *Scheduler) compile(prev, b *build) (compileResult, error) {
	var res compileResult
	claimed := make(map[*physical]bool)
	for _, e := range b.entries[1:] {
		if e.phys != nil {
			claimed[e.phys] = true
		}
		if e.grownFrom != nil {
			claimed[e.grownFrom] = true
		}
	}
	// A grown buffer whose own copy is still pending needs its source too.
	for p := range claimed {
		for m := p.migration; m != nil && !claimed[m.src]; m = m.src.migration {
			claimed[m.src] = true
		}
	}

	var slots []*aliasSlot
	var pending []int
	for i, e := range b.entries[1:] {
		idx := i + 1
		switch {
		case e.phys != nil && e.transient():
			slots = append(slots, &aliasSlot{phys: e.phys, users: []*entry{e}})
		case e.phys == nil && e.transient():
			pending = append(pending, idx)
		}
	}
	// Transients are placed in order of first use so that earlier
	// lifetimes claim objects first.
	slices.SortStableFunc(pending, func(a, c int) int {
		return cmp.Compare(b.entries[a].first, b.entries[c].first)
	})

	var created []*physical
	fail := func(e *entry, err error) (compileResult, error) {
		for _, p := range created {
			p.migration = nil
			s.destroyPhysical(p)
		}
		for _, x := range b.entries[1:] {
			if x.phys != nil && !claimed[x.phys] {
				x.phys = nil
			}
		}
		return compileResult{}, fmt.Errorf("rendergraph: create %s %q: %w", e.kind, e.label(), err)
	}

	for _, idx := range pending {
		e := b.entries[idx]
		placed := false
		for _, slot := range slots {
			if slot.accepts(e) {
				slot.users = append(slot.users, e)
				e.phys = slot.phys
				placed = true
				res.aliased++
				break
			}
		}
		if placed {
			continue
		}
		p, err := s.createPhysical(e)
		if err != nil {
			return fail(e, err)
		}
		created = append(created, p)
		e.phys = p
		slots = append(slots, &aliasSlot{phys: p, users: []*entry{e}})
	}

	for _, e := range b.entries[1:] {
		if e.phys != nil {
			continue
		}
		p, err := s.createPhysical(e)
		if err != nil {
			return fail(e, err)
		}
		created = append(created, p)
		e.phys = p
		if e.grownFrom != nil {
			p.migration = &migration{src: e.grownFrom, size: e.growSize}
		}
	}
	res.created = len(created)

	if prev != nil {
		for _, p := range prev.physicals() {
			if !claimed[p] && !p.destroyed {
				s.destroyPhysical(p)
				res.released++
			}
		}
	}
	b.sealed = true
	return res, nil
}

func (s *Scheduler) createPhysical(e *entry) (*physical, error) {
	var (
		obj Object
		err error
	)
	switch e.kind {
	case KindTexture:
		obj, err = s.rt.CreateTexture(&e.texture)
	case KindBuffer:
		obj, err = s.rt.CreateBuffer(&e.buffer)
	case KindPipeline:
		obj, err = s.rt.CreatePipeline(&e.pipeline)
	default:
		err = fmt.Errorf("%w: unknown resource kind %d", ErrState, e.kind)
	}
	if err != nil {
		return nil, err
	}
	s.nextObject++
	s.stats.Created++
	s.stats.Objects++
	return &physical{id: s.nextObject, kind: e.kind, obj: obj, label: e.label()}, nil
}

// destroyPhysical releases p and any pending migration sources behind it.
func (s *Scheduler) destroyPhysical(p *physical) {
	for p != nil && !p.destroyed {
		p.destroyed = true
		s.rt.Destroy(p.obj)
		s.stats.Objects--
		var next *physical
		if p.migration != nil {
			next = p.migration.src
			p.migration = nil
		}
		p = next
	}
}

// releaseBuild destroys every object referenced by b.
func (s *Scheduler) releaseBuild(b *build) {
	if b == nil {
		return
	}
	for _, p := range b.physicals() {
		s.destroyPhysical(p)
	}
}
