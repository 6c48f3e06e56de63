// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// RenderPassDesc describes the attachments of a render pass.
type RenderPassDesc struct {
	Label string
	Color []ColorAttachment
	Depth *DepthAttachment
}

// ColorAttachment is a color target of a render pass. A zero Load clears.
type ColorAttachment struct {
	Texture Resource
	Layer   uint32
	Load    gputypes.LoadOp
	Clear   gputypes.Color
}

// DepthAttachment is the depth target of a render pass. A zero Load clears.
type DepthAttachment struct {
	Texture Resource
	Layer   uint32
	Load    gputypes.LoadOp
	Clear   float32
}

// Context is passed to pass callbacks during execution. It resolves
// resource handles to backend objects, checks every call against the
// pass's declared accesses and the bound pipeline, and forwards it to the
// runtime encoder.
//
// The first error is sticky: every later call returns it and the frame is
// aborted even if the callback ignores it.
type Context struct {
	s   *Scheduler
	b   *build
	enc Encoder

	node  *node
	err   error
	state map[*physical]Access

	copied   []*physical
	migrated map[*physical]bool

	submitted         []func()
	draws, dispatches uint64

	inRenderPass bool
	targets      []*TextureDesc
	depth        *TextureDesc
	colorObjs    []colorRef

	pipeline      *entry
	bindings      map[uint32]BindingType
	vertexBuffers map[uint32]bool
	indexFormat   gputypes.IndexFormat
}

type colorRef struct {
	phys  *physical
	layer uint32
}

func newContext(s *Scheduler, b *build, enc Encoder) *Context {
	return &Context{
		s:        s,
		b:        b,
		enc:      enc,
		state:    make(map[*physical]Access),
		migrated: make(map[*physical]bool),
	}
}

// Err returns the sticky error of the current pass, if any.
func (c *Context) Err() error {
	return c.err
}

// BackBuffer returns the back-buffer handle.
func (c *Context) BackBuffer() Resource {
	return backBufferHandle
}

// BackBufferSize returns the back-buffer size.
func (c *Context) BackBufferSize() Size {
	return c.s.size
}

// Registry returns the registry of the executing build.
func (c *Context) Registry() *Registry {
	return c.b.registry
}

// Frame returns the index of the frame being recorded.
func (c *Context) Frame() uint64 {
	return c.s.stats.Frames
}

// PassName returns the name of the executing pass.
func (c *Context) PassName() string {
	if c.node == nil {
		return ""
	}
	return c.node.name
}

func (c *Context) fail(err error) error {
	if c.err == nil {
		c.err = err
	}
	return c.err
}

func (c *Context) failf(format string, args ...any) error {
	return c.fail(fmt.Errorf("%w: "+format, append([]any{ErrState}, args...)...))
}

// enter prepares the context for node n: pending buffer migrations for
// resources n declared are recorded and barriers for its accesses are
// emitted.
func (c *Context) enter(n *node) {
	c.node = n
	c.err = nil
	c.inRenderPass = false
	c.pipeline = nil
	c.bindings = make(map[uint32]BindingType)
	c.vertexBuffers = make(map[uint32]bool)
	c.indexFormat = gputypes.IndexFormatUndefined

	for _, idx := range n.order {
		if p := c.physical(idx); p != nil && p.migration != nil {
			c.migrate(p)
		}
	}
	var barriers []Barrier
	for _, idx := range n.order {
		if p := c.physical(idx); p != nil {
			barriers = c.hazard(barriers, p, n.access[idx])
		}
	}
	if len(barriers) > 0 {
		c.enc.Barrier(barriers)
	}
}

// leave finishes node n and returns its error, if any.
func (c *Context) leave() error {
	if c.err == nil && c.inRenderPass {
		c.failf("pass %q returned with an open render pass", c.node.name)
	}
	return c.err
}

func (c *Context) physical(idx uint32) *physical {
	if idx == 0 {
		if c.s.backBuffer == nil {
			return nil
		}
		return c.s.backBuffer.phys
	}
	return c.b.entries[idx].phys
}

// hazard appends a barrier if access a to p conflicts with the previous
// access recorded for it, and records a.
func (c *Context) hazard(barriers []Barrier, p *physical, a Access) []Barrier {
	before, ok := c.state[p]
	if !ok {
		before = p.access
	}
	if before != AccessNone && (before.Writes() || a.Writes()) {
		barriers = append(barriers, Barrier{Object: p.obj, Kind: p.kind, Before: before, After: a})
	}
	c.state[p] = a
	return barriers
}

// migrate records the pending copy into p, after any copy its source
// still waits for.
func (c *Context) migrate(p *physical) {
	if c.migrated[p] || p.migration == nil {
		return
	}
	src := p.migration.src
	c.migrate(src)
	var barriers []Barrier
	barriers = c.hazard(barriers, src, AccessRead)
	barriers = c.hazard(barriers, p, AccessWrite)
	if len(barriers) > 0 {
		c.enc.Barrier(barriers)
	}
	if err := c.enc.CopyBuffer(src.obj, 0, p.obj, 0, p.migration.size); err != nil {
		c.fail(fmt.Errorf("rendergraph: migrate %q: %w", p.label, err))
		return
	}
	c.migrated[p] = true
	c.copied = append(c.copied, p)
	c.s.log.Debug("rendergraph: buffer migrated", "buffer", p.label, "bytes", p.migration.size)
}

// OnSubmit registers fn to run once the frame has been submitted. It is
// not called for a frame that is aborted, so state that describes what
// the GPU already holds should be updated here rather than while
// recording.
func (c *Context) OnSubmit(fn func()) {
	if fn != nil {
		c.submitted = append(c.submitted, fn)
	}
}

// commit records the frame's final accesses, releases migration sources
// and runs the submit callbacks after a successful submit.
func (c *Context) commit() {
	for p, a := range c.state {
		p.access = a
	}
	c.s.stats.Draws += c.draws
	c.s.stats.Dispatches += c.dispatches
	for _, p := range c.copied {
		if p.migration == nil {
			continue
		}
		src := p.migration.src
		p.migration = nil
		c.s.destroyPhysical(src)
		c.s.stats.Migrations++
	}
	for _, fn := range c.submitted {
		fn()
	}
}

// resolve returns the entry and object for r, checking staleness, kind
// and the pass's declared access.
func (c *Context) resolve(r Resource, kind ResourceKind, need Access) (*entry, *physical, error) {
	var (
		e   *entry
		err error
	)
	if isBackBuffer(r) {
		e = c.s.backBuffer
		if e == nil {
			return nil, nil, c.failf("no back buffer")
		}
	} else {
		e, err = c.b.lookup(r)
		if err != nil {
			return nil, nil, c.fail(err)
		}
	}
	if e.kind != kind {
		return nil, nil, c.failf("%s is a %s, want %s", r, e.kind, kind)
	}
	if need != AccessNone {
		declared := c.node.access[r.index]
		if declared&need != need {
			return nil, nil, c.failf("pass %q did not declare %s access to %s %q",
				c.node.name, need, e.kind, e.label())
		}
	}
	return e, e.phys, nil
}

// BeginRenderPass starts a render pass on the given attachments. The pass
// must have declared write access to every attachment.
func (c *Context) BeginRenderPass(desc RenderPassDesc) error {
	if c.err != nil {
		return c.err
	}
	if c.inRenderPass {
		return c.failf("render pass already open")
	}
	if len(desc.Color) == 0 && desc.Depth == nil {
		return c.failf("render pass %q has no attachments", desc.Label)
	}
	targets := &RenderTargets{Label: desc.Label}
	var size [2]uint32
	checkSize := func(d *TextureDesc) bool {
		if size == [2]uint32{} {
			size = [2]uint32{d.Width, d.Height}
			return true
		}
		return size == [2]uint32{d.Width, d.Height}
	}
	c.targets = c.targets[:0]
	c.colorObjs = c.colorObjs[:0]
	c.depth = nil
	for i, a := range desc.Color {
		e, p, err := c.resolve(a.Texture, KindTexture, AccessWrite)
		if err != nil {
			return err
		}
		d := &e.texture
		switch {
		case d.Format.IsDepthStencil():
			return c.failf("color attachment %d %q has depth format %s", i, d.Label, d.Format)
		case !d.Usage.Contains(gputypes.TextureUsageRenderAttachment):
			return c.failf("color attachment %d %q lacks render attachment usage", i, d.Label)
		case a.Layer >= d.LayerCount():
			return c.failf("color attachment %d %q has no layer %d", i, d.Label, a.Layer)
		case !checkSize(d):
			return c.failf("color attachment %d %q size differs from other attachments", i, d.Label)
		}
		targets.Color = append(targets.Color, ColorTarget{Texture: p.obj, Layer: a.Layer, Load: loadOp(a.Load), Clear: a.Clear})
		c.targets = append(c.targets, d)
		c.colorObjs = append(c.colorObjs, colorRef{phys: p, layer: a.Layer})
	}
	if a := desc.Depth; a != nil {
		e, p, err := c.resolve(a.Texture, KindTexture, AccessWrite)
		if err != nil {
			return err
		}
		d := &e.texture
		switch {
		case !d.Format.HasDepth():
			return c.failf("depth attachment %q has color format %s", d.Label, d.Format)
		case a.Layer >= d.LayerCount():
			return c.failf("depth attachment %q has no layer %d", d.Label, a.Layer)
		case !checkSize(d):
			return c.failf("depth attachment %q size differs from color attachments", d.Label)
		}
		targets.Depth = &DepthTarget{Texture: p.obj, Layer: a.Layer, Load: loadOp(a.Load), Clear: a.Clear}
		c.depth = d
	}
	if err := c.enc.BeginRenderPass(targets); err != nil {
		return c.fail(fmt.Errorf("rendergraph: begin render pass %q: %w", desc.Label, err))
	}
	c.inRenderPass = true
	return nil
}

func loadOp(op gputypes.LoadOp) gputypes.LoadOp {
	if op == gputypes.LoadOpUndefined {
		return gputypes.LoadOpClear
	}
	return op
}

// EndRenderPass ends the open render pass.
func (c *Context) EndRenderPass() error {
	if c.err != nil {
		return c.err
	}
	if !c.inRenderPass {
		return c.failf("no render pass open")
	}
	c.inRenderPass = false
	c.colorObjs = c.colorObjs[:0]
	c.pipeline = nil
	if err := c.enc.EndRenderPass(); err != nil {
		return c.fail(fmt.Errorf("rendergraph: end render pass: %w", err))
	}
	return nil
}

// BindPipeline binds a render or compute pipeline. Render pipelines must
// match the open render pass's attachment formats. Shader bindings are
// reset; vertex and index buffers stay bound.
func (c *Context) BindPipeline(pipeline Resource) error {
	if c.err != nil {
		return c.err
	}
	e, p, err := c.resolve(pipeline, KindPipeline, AccessNone)
	if err != nil {
		return err
	}
	d := &e.pipeline
	if d.IsCompute() {
		if c.inRenderPass {
			return c.failf("compute pipeline %q bound inside a render pass", d.Label)
		}
	} else {
		if !c.inRenderPass {
			return c.failf("render pipeline %q bound outside a render pass", d.Label)
		}
		if len(d.ColorFormats) != len(c.targets) {
			return c.failf("pipeline %q has %d color targets, render pass has %d",
				d.Label, len(d.ColorFormats), len(c.targets))
		}
		for i, f := range d.ColorFormats {
			if c.targets[i].Format != f {
				return c.failf("pipeline %q color target %d is %s, attachment is %s",
					d.Label, i, f, c.targets[i].Format)
			}
		}
		depth := gputypes.TextureFormatUndefined
		if c.depth != nil {
			depth = c.depth.Format
		}
		if d.DepthFormat != depth {
			return c.failf("pipeline %q depth format %s does not match attachment %s", d.Label, d.DepthFormat, depth)
		}
	}
	if err := c.enc.SetPipeline(p.obj); err != nil {
		return c.fail(fmt.Errorf("rendergraph: bind pipeline %q: %w", d.Label, err))
	}
	c.pipeline = e
	clear(c.bindings)
	return nil
}

// BindVertexBuffer binds buffer to a vertex buffer slot.
func (c *Context) BindVertexBuffer(slot uint32, buffer Resource, offset uint64) error {
	if c.err != nil {
		return c.err
	}
	e, p, err := c.resolve(buffer, KindBuffer, AccessRead)
	if err != nil {
		return err
	}
	if !e.buffer.Usage.Contains(gputypes.BufferUsageVertex) {
		return c.failf("buffer %q lacks vertex usage", e.label())
	}
	if offset >= e.buffer.Size {
		return c.failf("vertex offset %d outside buffer %q (%d bytes)", offset, e.label(), e.buffer.Size)
	}
	if err := c.enc.SetVertexBuffer(slot, p.obj, offset); err != nil {
		return c.fail(fmt.Errorf("rendergraph: bind vertex buffer: %w", err))
	}
	c.vertexBuffers[slot] = true
	return nil
}

// BindIndexBuffer binds the index buffer.
func (c *Context) BindIndexBuffer(buffer Resource, format gputypes.IndexFormat, offset uint64) error {
	if c.err != nil {
		return c.err
	}
	e, p, err := c.resolve(buffer, KindBuffer, AccessRead)
	if err != nil {
		return err
	}
	if !e.buffer.Usage.Contains(gputypes.BufferUsageIndex) {
		return c.failf("buffer %q lacks index usage", e.label())
	}
	if format != gputypes.IndexFormatUint16 && format != gputypes.IndexFormatUint32 {
		return c.failf("invalid index format %s", format)
	}
	if err := c.enc.SetIndexBuffer(p.obj, format, offset); err != nil {
		return c.fail(fmt.Errorf("rendergraph: bind index buffer: %w", err))
	}
	c.indexFormat = format
	return nil
}

// Bind binds a resource to a shader slot of the bound pipeline. The
// binding's type must match the type the pipeline declares for slot.
func (c *Context) Bind(slot uint32, binding Binding) error {
	if c.err != nil {
		return c.err
	}
	if binding == nil {
		return c.failf("nil binding for slot %d", slot)
	}
	if c.pipeline == nil {
		return c.failf("bind slot %d without a pipeline", slot)
	}
	want, ok := c.pipeline.pipeline.Binding(slot)
	if !ok {
		return c.failf("pipeline %q declares no slot %d", c.pipeline.label(), slot)
	}
	if got := binding.BindingType(); got != want {
		return c.failf("pipeline %q slot %d expects %s, got %s", c.pipeline.label(), slot, want, got)
	}

	bound := BoundResource{Type: want}
	switch v := binding.(type) {
	case UniformBufferBinding:
		e, p, err := c.resolve(v.Buffer, KindBuffer, AccessRead)
		if err != nil {
			return err
		}
		if !e.buffer.Usage.Contains(gputypes.BufferUsageUniform) {
			return c.failf("buffer %q lacks uniform usage", e.label())
		}
		if bound.Offset, bound.Size, err = c.bufferRange(e, v.Offset, v.Size); err != nil {
			return err
		}
		bound.Object = p.obj
	case StorageBufferBinding:
		need := AccessRead
		if !v.ReadOnly {
			need = AccessReadWrite
		}
		e, p, err := c.resolve(v.Buffer, KindBuffer, need)
		if err != nil {
			return err
		}
		if !e.buffer.Usage.Contains(gputypes.BufferUsageStorage) {
			return c.failf("buffer %q lacks storage usage", e.label())
		}
		if bound.Offset, bound.Size, err = c.bufferRange(e, v.Offset, v.Size); err != nil {
			return err
		}
		bound.Object = p.obj
	case TextureBinding:
		e, p, err := c.resolve(v.Texture, KindTexture, AccessRead)
		if err != nil {
			return err
		}
		if err := c.sampled(e); err != nil {
			return err
		}
		if v.Layer >= e.texture.LayerCount() {
			return c.failf("texture %q has no layer %d", e.label(), v.Layer)
		}
		bound.Object, bound.Layer = p.obj, v.Layer
	case TextureArrayBinding:
		e, p, err := c.resolve(v.Texture, KindTexture, AccessRead)
		if err != nil {
			return err
		}
		if err := c.sampled(e); err != nil {
			return err
		}
		bound.Object = p.obj
	default:
		return c.failf("unsupported binding %T", binding)
	}
	if err := c.enc.SetBinding(slot, bound); err != nil {
		return c.fail(fmt.Errorf("rendergraph: bind slot %d: %w", slot, err))
	}
	c.bindings[slot] = want
	return nil
}

func (c *Context) bufferRange(e *entry, offset, size uint64) (uint64, uint64, error) {
	if size == 0 && offset < e.buffer.Size {
		size = e.buffer.Size - offset
	}
	if size == 0 || !inRange(offset, size, e.buffer.Size) {
		return 0, 0, c.failf("range %d+%d outside buffer %q (%d bytes)", offset, size, e.label(), e.buffer.Size)
	}
	return offset, size, nil
}

// inRange reports whether [offset, offset+n) lies within limit bytes
// without overflowing.
func inRange(offset, n, limit uint64) bool {
	return offset <= limit && n <= limit-offset
}

func (c *Context) sampled(e *entry) error {
	if !e.texture.Usage.Contains(gputypes.TextureUsageTextureBinding) {
		return c.failf("texture %q lacks texture binding usage", e.label())
	}
	for _, t := range c.colorObjs {
		if t.phys == e.phys {
			return c.failf("texture %q is bound while used as an attachment", e.label())
		}
	}
	return nil
}

// BindShaderBuffer binds the whole buffer to slot as the buffer type the
// bound pipeline declares there. Storage bindings are writable when the
// pass declared write access.
func (c *Context) BindShaderBuffer(slot uint32, buffer Resource) error {
	if c.err != nil {
		return c.err
	}
	if c.pipeline == nil {
		return c.failf("bind slot %d without a pipeline", slot)
	}
	switch t, _ := c.pipeline.pipeline.Binding(slot); t {
	case BindingUniformBuffer:
		return c.Bind(slot, UniformBufferBinding{Buffer: buffer})
	case BindingStorageBuffer:
		readOnly := !c.node.access[buffer.index].Writes() || isBackBuffer(buffer)
		return c.Bind(slot, StorageBufferBinding{Buffer: buffer, ReadOnly: readOnly})
	default:
		return c.failf("pipeline %q slot %d is not a buffer slot (%s)", c.pipeline.label(), slot, t)
	}
}

// BindTexture binds texture to slot as a single texture or a texture
// array, whichever the bound pipeline declares there.
func (c *Context) BindTexture(slot uint32, texture Resource) error {
	if c.err != nil {
		return c.err
	}
	if c.pipeline == nil {
		return c.failf("bind slot %d without a pipeline", slot)
	}
	switch t, _ := c.pipeline.pipeline.Binding(slot); t {
	case BindingTexture:
		return c.Bind(slot, TextureBinding{Texture: texture})
	case BindingTextureArray:
		return c.Bind(slot, TextureArrayBinding{Texture: texture})
	default:
		return c.failf("pipeline %q slot %d is not a texture slot (%s)", c.pipeline.label(), slot, t)
	}
}

// UploadBuffer writes data into buffer at offset.
func (c *Context) UploadBuffer(buffer Resource, offset uint64, data []byte) error {
	if c.err != nil {
		return c.err
	}
	if c.inRenderPass {
		return c.failf("upload inside a render pass")
	}
	e, p, err := c.resolve(buffer, KindBuffer, AccessWrite)
	if err != nil {
		return err
	}
	if !inRange(offset, uint64(len(data)), e.buffer.Size) {
		return c.failf("upload of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, e.label(), e.buffer.Size)
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.enc.WriteBuffer(p.obj, offset, data); err != nil {
		return c.fail(fmt.Errorf("rendergraph: upload buffer %q: %w", e.label(), err))
	}
	return nil
}

// UploadTexture writes tightly packed texels into a region of texture.
func (c *Context) UploadTexture(texture Resource, region TextureRegion, data []byte) error {
	if c.err != nil {
		return c.err
	}
	if c.inRenderPass {
		return c.failf("upload inside a render pass")
	}
	e, p, err := c.resolve(texture, KindTexture, AccessWrite)
	if err != nil {
		return err
	}
	d := &e.texture
	if region.Width == 0 || region.Height == 0 ||
		region.X+region.Width > d.Width || region.Y+region.Height > d.Height ||
		region.Layer >= d.LayerCount() {
		return c.failf("region %+v outside texture %q (%dx%dx%d)", region, d.Label, d.Width, d.Height, d.LayerCount())
	}
	want := int(region.Width) * int(region.Height) * BytesPerPixel(d.Format)
	if len(data) != want {
		return c.failf("texture %q upload has %d bytes, want %d", d.Label, len(data), want)
	}
	if err := c.enc.WriteTexture(p.obj, region, data); err != nil {
		return c.fail(fmt.Errorf("rendergraph: upload texture %q: %w", d.Label, err))
	}
	return nil
}

// CopyBuffer copies size bytes from src to dst.
func (c *Context) CopyBuffer(src Resource, srcOffset uint64, dst Resource, dstOffset, size uint64) error {
	if c.err != nil {
		return c.err
	}
	if c.inRenderPass {
		return c.failf("copy inside a render pass")
	}
	se, sp, err := c.resolve(src, KindBuffer, AccessRead)
	if err != nil {
		return err
	}
	de, dp, err := c.resolve(dst, KindBuffer, AccessWrite)
	if err != nil {
		return err
	}
	if !inRange(srcOffset, size, se.buffer.Size) || !inRange(dstOffset, size, de.buffer.Size) {
		return c.failf("copy of %d bytes out of range (%q %d bytes, %q %d bytes)",
			size, se.label(), se.buffer.Size, de.label(), de.buffer.Size)
	}
	if sp == dp && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return c.failf("overlapping copy within buffer %q", se.label())
	}
	if err := c.enc.CopyBuffer(sp.obj, srcOffset, dp.obj, dstOffset, size); err != nil {
		return c.fail(fmt.Errorf("rendergraph: copy buffer: %w", err))
	}
	return nil
}

// ClearColorAttachment clears color attachment index of the open render
// pass.
func (c *Context) ClearColorAttachment(index int, color gputypes.Color) error {
	if c.err != nil {
		return c.err
	}
	if !c.inRenderPass {
		return c.failf("clear outside a render pass")
	}
	if index < 0 || index >= len(c.colorObjs) {
		return c.failf("render pass has no color attachment %d", index)
	}
	t := c.colorObjs[index]
	if err := c.enc.ClearTexture(t.phys.obj, t.layer, color); err != nil {
		return c.fail(fmt.Errorf("rendergraph: clear attachment %d: %w", index, err))
	}
	return nil
}

// validateDraw checks that a render pipeline is bound with every declared
// binding and vertex buffer.
func (c *Context) validateDraw() error {
	if !c.inRenderPass {
		return c.failf("draw outside a render pass")
	}
	if c.pipeline == nil {
		return c.failf("draw without a pipeline")
	}
	d := &c.pipeline.pipeline
	if d.IsCompute() {
		return c.failf("draw with compute pipeline %q", d.Label)
	}
	if err := c.validateBindings(d); err != nil {
		return err
	}
	for slot := range d.VertexBuffers {
		if !c.vertexBuffers[uint32(slot)] {
			return c.failf("pipeline %q vertex buffer %d not bound", d.Label, slot)
		}
	}
	return nil
}

func (c *Context) validateBindings(d *PipelineDesc) error {
	for _, b := range d.Bindings {
		got, ok := c.bindings[b.Slot]
		if !ok {
			return c.failf("pipeline %q slot %d (%s) not bound", d.Label, b.Slot, b.Type)
		}
		if got != b.Type {
			return c.failf("pipeline %q slot %d expects %s, got %s", d.Label, b.Slot, b.Type, got)
		}
	}
	return nil
}

// DrawArray draws vertexCount vertices starting at firstVertex.
func (c *Context) DrawArray(firstVertex, vertexCount, instanceCount uint32) error {
	if c.err != nil {
		return c.err
	}
	if err := c.validateDraw(); err != nil {
		return err
	}
	if vertexCount == 0 || instanceCount == 0 {
		return nil
	}
	if err := c.enc.Draw(vertexCount, instanceCount, firstVertex, 0); err != nil {
		return c.fail(fmt.Errorf("rendergraph: draw: %w", err))
	}
	c.draws++
	return nil
}

// DrawIndexed draws indexCount indices starting at firstIndex, offsetting
// every index by baseVertex.
func (c *Context) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32) error {
	if c.err != nil {
		return c.err
	}
	if err := c.validateDraw(); err != nil {
		return err
	}
	if c.indexFormat == gputypes.IndexFormatUndefined {
		return c.failf("indexed draw without an index buffer")
	}
	if indexCount == 0 || instanceCount == 0 {
		return nil
	}
	if err := c.enc.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, 0); err != nil {
		return c.fail(fmt.Errorf("rendergraph: draw indexed: %w", err))
	}
	c.draws++
	return nil
}

// Dispatch runs the bound compute pipeline.
func (c *Context) Dispatch(x, y, z uint32) error {
	if c.err != nil {
		return c.err
	}
	if c.inRenderPass {
		return c.failf("dispatch inside a render pass")
	}
	if c.pipeline == nil || !c.pipeline.pipeline.IsCompute() {
		return c.failf("dispatch without a compute pipeline")
	}
	if err := c.validateBindings(&c.pipeline.pipeline); err != nil {
		return err
	}
	if x == 0 || y == 0 || z == 0 {
		return nil
	}
	if err := c.enc.Dispatch(x, y, z); err != nil {
		return c.fail(fmt.Errorf("rendergraph: dispatch: %w", err))
	}
	c.dispatches++
	return nil
}
