// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// Builder accumulates the resource and pass declarations of one build.
//
// A Builder is only valid during the Create or Recreate call it was passed
// to. Once every pass has declared itself the build is sealed and further
// declarations fail with ErrGraphSealed.
type Builder struct {
	s    *Scheduler
	g    *graphState
	prev *build
	cur  *build
}

func newBuilder(s *Scheduler, g *graphState, generation uint32) *Builder {
	return &Builder{s: s, g: g, prev: g.compiled, cur: newBuild(generation)}
}

// BackBufferSize returns the current back-buffer size.
func (b *Builder) BackBufferSize() Size {
	return b.s.size
}

// BackBuffer returns the handle of the scheduler-owned back buffer. The
// handle is valid in every build.
func (b *Builder) BackBuffer() Resource {
	return backBufferHandle
}

// BackBufferFormat returns the back-buffer texel format.
func (b *Builder) BackBufferFormat() gputypes.TextureFormat {
	return b.s.opts.format
}

// Capabilities returns the runtime capabilities.
func (b *Builder) Capabilities() Capabilities {
	return b.s.caps
}

// Registry returns the build's shared registry.
func (b *Builder) Registry() *Registry {
	return b.cur.registry
}

// Generation returns the generation of the build being declared.
func (b *Builder) Generation() uint32 {
	return b.cur.generation
}

// Frame returns the number of frames submitted so far.
func (b *Builder) Frame() uint64 {
	return b.s.stats.Frames
}

func (b *Builder) checkOpen() error {
	if b.cur.sealed {
		return ErrGraphSealed
	}
	return nil
}

func (b *Builder) add(e *entry) Resource {
	b.cur.entries = append(b.cur.entries, e)
	return b.cur.handle(len(b.cur.entries)-1, e.kind)
}

// CreateTexture declares a new texture.
func (b *Builder) CreateTexture(desc TextureDesc) (Resource, error) {
	if err := b.checkOpen(); err != nil {
		return Resource{}, err
	}
	if err := desc.Validate(); err != nil {
		return Resource{}, err
	}
	caps := b.s.caps
	if caps.MaxTextureSize > 0 && (desc.Width > caps.MaxTextureSize || desc.Height > caps.MaxTextureSize) {
		return Resource{}, fmt.Errorf("%w: texture %q is %dx%d, runtime limit is %d",
			ErrConfiguration, desc.Label, desc.Width, desc.Height, caps.MaxTextureSize)
	}
	if caps.MaxTextureLayers > 0 && desc.LayerCount() > caps.MaxTextureLayers {
		return Resource{}, fmt.Errorf("%w: texture %q has %d layers, runtime limit is %d",
			ErrConfiguration, desc.Label, desc.LayerCount(), caps.MaxTextureLayers)
	}
	if caps.MaxSampleCount > 0 && desc.Samples() > caps.MaxSampleCount {
		return Resource{}, fmt.Errorf("%w: texture %q uses %d samples, runtime limit is %d",
			ErrConfiguration, desc.Label, desc.Samples(), caps.MaxSampleCount)
	}
	e := newEntry(KindTexture)
	e.texture = desc
	return b.add(e), nil
}

// CreateBuffer declares a new buffer.
func (b *Builder) CreateBuffer(desc BufferDesc) (Resource, error) {
	if err := b.checkOpen(); err != nil {
		return Resource{}, err
	}
	if err := desc.Validate(); err != nil {
		return Resource{}, err
	}
	e := newEntry(KindBuffer)
	e.buffer = desc
	return b.add(e), nil
}

// CreateVertexBuffer declares a vertex buffer of size bytes.
func (b *Builder) CreateVertexBuffer(size uint64) (Resource, error) {
	return b.CreateBuffer(BufferDesc{Label: "vertex", Size: size, Usage: VertexBufferUsage})
}

// CreateIndexBuffer declares an index buffer of size bytes.
func (b *Builder) CreateIndexBuffer(size uint64) (Resource, error) {
	return b.CreateBuffer(BufferDesc{Label: "index", Size: size, Usage: IndexBufferUsage})
}

// CreateShaderBuffer declares a buffer usable as uniform or storage
// buffer of size bytes.
func (b *Builder) CreateShaderBuffer(size uint64) (Resource, error) {
	return b.CreateBuffer(BufferDesc{Label: "shader", Size: size, Usage: ShaderBufferUsage})
}

// CreatePipeline declares a render or compute pipeline.
func (b *Builder) CreatePipeline(desc PipelineDesc) (Resource, error) {
	if err := b.checkOpen(); err != nil {
		return Resource{}, err
	}
	if err := desc.Validate(); err != nil {
		return Resource{}, err
	}
	if desc.IsCompute() && !b.s.caps.Compute {
		return Resource{}, fmt.Errorf("%w: pipeline %q needs compute support", ErrConfiguration, desc.Label)
	}
	e := newEntry(KindPipeline)
	e.pipeline = clonePipelineDesc(desc)
	return b.add(e), nil
}

func clonePipelineDesc(d PipelineDesc) PipelineDesc {
	d.Bindings = slices.Clone(d.Bindings)
	d.ColorFormats = slices.Clone(d.ColorFormats)
	d.VertexBuffers = slices.Clone(d.VertexBuffers)
	for i := range d.VertexBuffers {
		d.VertexBuffers[i].Attributes = slices.Clone(d.VertexBuffers[i].Attributes)
	}
	if d.Blend != nil {
		blend := *d.Blend
		d.Blend = &blend
	}
	return d
}

// IsLive reports whether prev can still be inherited into this build: it
// belongs to the last compiled build and was not inherited already.
func (b *Builder) IsLive(prev Resource) bool {
	if isBackBuffer(prev) {
		return true
	}
	_, err := b.previous(prev)
	return err == nil
}

func (b *Builder) previous(prev Resource) (*entry, error) {
	if b.prev == nil {
		return nil, fmt.Errorf("%w: %s (no previous build)", ErrStaleHandle, prev)
	}
	e, err := b.prev.lookup(prev)
	if err != nil {
		return nil, err
	}
	if e.taken {
		return nil, fmt.Errorf("%w: %s was already inherited", ErrStaleHandle, prev)
	}
	return e, nil
}

// InheritResource carries prev, declared in the last compiled build, into
// this build without recreating its GPU object. Ownership moves to the
// returned handle and prev becomes invalid.
//
// Transient resources keep their object unless another inherited
// transient already claimed it in this build. Their contents are never
// guaranteed to survive.
func (b *Builder) InheritResource(prev Resource) (Resource, error) {
	if err := b.checkOpen(); err != nil {
		return Resource{}, err
	}
	if isBackBuffer(prev) {
		return prev, nil
	}
	old, err := b.previous(prev)
	if err != nil {
		return Resource{}, err
	}
	old.taken = true
	e := newEntry(old.kind)
	e.texture, e.buffer, e.pipeline = old.texture, old.buffer, old.pipeline
	e.inherited = true
	if !b.claimedByOther(old.phys) {
		e.phys = old.phys
	}
	return b.add(e), nil
}

func (b *Builder) claimedByOther(p *physical) bool {
	for _, e := range b.cur.entries[1:] {
		if e.phys == p || e.grownFrom == p {
			return true
		}
	}
	return false
}

// InheritOrCreateTexture inherits prev if it is live and its descriptor
// equals desc, and creates a new texture otherwise.
func (b *Builder) InheritOrCreateTexture(prev Resource, desc TextureDesc) (Resource, error) {
	if old, err := b.previous(prev); err == nil && old.kind == KindTexture && old.texture.Equal(&desc) {
		return b.InheritResource(prev)
	}
	return b.CreateTexture(desc)
}

// InheritOrCreateBuffer inherits prev if it is live and its descriptor
// equals desc, and creates a new buffer otherwise.
func (b *Builder) InheritOrCreateBuffer(prev Resource, desc BufferDesc) (Resource, error) {
	if old, err := b.previous(prev); err == nil && old.kind == KindBuffer && old.buffer.Equal(&desc) {
		return b.InheritResource(prev)
	}
	return b.CreateBuffer(desc)
}

// InheritOrCreatePipeline inherits prev if it is live and its descriptor
// equals desc, and creates a new pipeline otherwise.
func (b *Builder) InheritOrCreatePipeline(prev Resource, desc PipelineDesc) (Resource, error) {
	if old, err := b.previous(prev); err == nil && old.kind == KindPipeline && old.pipeline.Equal(&desc) {
		return b.InheritResource(prev)
	}
	return b.CreatePipeline(desc)
}

// GrowBuffer replaces prev with a new buffer described by desc and
// schedules a copy of prev's first prevSize bytes into it. The copy runs
// before the first pass callback of the next frame that declares an
// access to the new buffer; prev's object is released once that frame
// has been submitted.
func (b *Builder) GrowBuffer(prev Resource, prevSize uint64, desc BufferDesc) (Resource, error) {
	if err := b.checkOpen(); err != nil {
		return Resource{}, err
	}
	if err := desc.Validate(); err != nil {
		return Resource{}, err
	}
	old, err := b.previous(prev)
	if err != nil {
		return Resource{}, err
	}
	if old.kind != KindBuffer {
		return Resource{}, fmt.Errorf("%w: %s is not a buffer", ErrState, prev)
	}
	if prevSize > old.buffer.Size || prevSize > desc.Size {
		return Resource{}, fmt.Errorf("%w: cannot copy %d bytes from a %d byte buffer into %d bytes",
			ErrConfiguration, prevSize, old.buffer.Size, desc.Size)
	}
	old.taken = true
	e := newEntry(KindBuffer)
	e.buffer = desc
	if prevSize > 0 {
		e.grownFrom = old.phys
		e.growSize = prevSize
	}
	return b.add(e), nil
}

// AddPass declares a pass. run is invoked once per executed frame, in
// declaration order. AddPass on a sealed builder returns an invalid handle.
func (b *Builder) AddPass(name string, run PassFunc) PassHandle {
	if b.cur.sealed {
		b.s.log.Warn("rendergraph: AddPass on sealed graph", "pass", name)
		return PassHandle{}
	}
	b.cur.nodes = append(b.cur.nodes, &node{name: name, run: run, access: make(map[uint32]Access)})
	return PassHandle{index: len(b.cur.nodes) - 1, generation: b.cur.generation}
}

// Read declares that pass reads r.
func (b *Builder) Read(pass PassHandle, r Resource) error {
	return b.declare(pass, r, AccessRead)
}

// Write declares that pass writes r.
func (b *Builder) Write(pass PassHandle, r Resource) error {
	return b.declare(pass, r, AccessWrite)
}

// ReadWrite declares that pass reads and writes r. Passes sharing a
// read-write resource are serialized in declaration order.
func (b *Builder) ReadWrite(pass PassHandle, r Resource) error {
	return b.declare(pass, r, AccessReadWrite)
}

func (b *Builder) declare(pass PassHandle, r Resource, a Access) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if pass.generation != b.cur.generation || pass.index < 0 || pass.index >= len(b.cur.nodes) {
		return fmt.Errorf("%w: pass handle does not belong to this build", ErrState)
	}
	n := b.cur.nodes[pass.index]
	if isBackBuffer(r) {
		n.declare(0, a)
		return nil
	}
	e, err := b.cur.lookup(r)
	if err != nil {
		return err
	}
	if e.kind == KindPipeline {
		return fmt.Errorf("%w: pipelines need no access declaration (%s)", ErrState, r)
	}
	n.declare(r.index, a)
	e.touch(pass.index)
	return nil
}
