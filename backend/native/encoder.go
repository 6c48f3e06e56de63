// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
)

// batch is a command buffer and the queue writes that must land before it.
type batch struct {
	writes []func() error
	cmd    hal.CommandBuffer
}

type vertexBinding struct {
	buf    *Buffer
	offset uint64
}

// encoder records one frame into HAL command buffers.
//
// Queue writes are not part of a command buffer, so whenever a write
// follows recorded commands the current command buffer is ended and the
// write is queued in front of the next one. Submit replays the batches in
// order, which keeps writes and commands in recording order.
type encoder struct {
	rt    *Runtime
	label string
	enc   hal.CommandEncoder
	done  bool

	recorded bool
	batches  []batch
	writes   []func() error

	pass     *hal.RenderPassDescriptor
	rp       hal.RenderPassEncoder
	pipeline *Pipeline
	bindings map[uint32]rendergraph.BoundResource
	group    hal.BindGroup
	dirty    bool
	vertex   map[uint32]vertexBinding
	index    *Buffer
	indexFmt gputypes.IndexFormat
	indexOff uint64

	groups []hal.BindGroup
	stats  Stats
}

func newEncoder(rt *Runtime, label string) (rendergraph.Encoder, error) {
	enc, err := rt.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &encoder{
		rt:       rt,
		label:    label,
		enc:      enc,
		bindings: make(map[uint32]rendergraph.BoundResource),
		vertex:   make(map[uint32]vertexBinding),
	}, nil
}

func (e *encoder) check() error {
	if e.done {
		return fmt.Errorf("%w: frame %q already finished", ErrEncoderState, e.label)
	}
	return nil
}

func (e *encoder) outsidePass(what string) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.rp != nil {
		return fmt.Errorf("%w: %s inside a render pass", ErrEncoderState, what)
	}
	return nil
}

// cut ends the current command buffer if it holds commands, so that
// following queue writes are ordered after them.
func (e *encoder) cut() error {
	if !e.recorded {
		return nil
	}
	cmd, err := e.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	e.batches = append(e.batches, batch{writes: e.writes, cmd: cmd})
	e.writes = nil
	e.recorded = false
	if err := e.enc.BeginEncoding(e.label); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	return nil
}

func (e *encoder) Barrier(barriers []rendergraph.Barrier) {
	if e.check() != nil || e.rp != nil {
		return
	}
	var (
		bufs []hal.BufferBarrier
		texs []hal.TextureBarrier
	)
	for _, b := range barriers {
		switch o := b.Object.(type) {
		case *Buffer:
			if o.destroyed {
				continue
			}
			bufs = append(bufs, hal.BufferBarrier{
				Buffer: o.raw,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufferUsage(o.desc.Usage, b.Before),
					NewUsage: bufferUsage(o.desc.Usage, b.After),
				},
			})
		case *Texture:
			raw := o.Raw()
			if raw == nil {
				continue
			}
			texs = append(texs, hal.TextureBarrier{
				Texture: raw,
				Range:   o.fullRange(),
				Usage: hal.TextureUsageTransition{
					OldUsage: textureUsage(o.desc.Usage, b.Before),
					NewUsage: textureUsage(o.desc.Usage, b.After),
				},
			})
		}
	}
	if len(bufs) > 0 {
		e.enc.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		e.enc.TransitionTextures(texs)
	}
	e.recorded = e.recorded || len(bufs)+len(texs) > 0
	e.stats.Barriers += uint64(len(bufs) + len(texs))
}

// bufferUsage maps an access to the usages of a buffer it can be in.
func bufferUsage(usage gputypes.BufferUsage, a rendergraph.Access) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if a.Reads() {
		u |= usage & (gputypes.BufferUsageVertex | gputypes.BufferUsageIndex |
			gputypes.BufferUsageUniform | gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc)
	}
	if a.Writes() {
		u |= usage & (gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst)
	}
	return u
}

// textureUsage maps an access to the single usage a texture is in.
func textureUsage(usage gputypes.TextureUsage, a rendergraph.Access) gputypes.TextureUsage {
	pick := func(candidates ...gputypes.TextureUsage) gputypes.TextureUsage {
		for _, c := range candidates {
			if usage.Contains(c) {
				return c
			}
		}
		return 0
	}
	switch {
	case a.Writes():
		return pick(gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageStorageBinding, gputypes.TextureUsageCopyDst)
	case a.Reads():
		return pick(gputypes.TextureUsageTextureBinding, gputypes.TextureUsageCopySrc)
	}
	return 0
}

func (e *encoder) BeginRenderPass(targets *rendergraph.RenderTargets) error {
	if err := e.outsidePass("begin render pass"); err != nil {
		return err
	}
	desc := &hal.RenderPassDescriptor{Label: targets.Label}
	for i, c := range targets.Color {
		t, err := asTexture(c.Texture)
		if err != nil {
			return fmt.Errorf("color attachment %d: %w", i, err)
		}
		view, err := t.LayerView(c.Layer)
		if err != nil {
			return err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     c.Load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c.Clear,
		})
	}
	if d := targets.Depth; d != nil {
		t, err := asTexture(d.Texture)
		if err != nil {
			return fmt.Errorf("depth attachment: %w", err)
		}
		view, err := t.LayerView(d.Layer)
		if err != nil {
			return err
		}
		desc.DepthStencilAttachment = depthAttachment(view, t.desc.Format, d.Load, d.Clear)
	}
	e.begin(desc)
	return nil
}

func depthAttachment(view hal.TextureView, format gputypes.TextureFormat, load gputypes.LoadOp, clear float32) *hal.RenderPassDepthStencilAttachment {
	a := &hal.RenderPassDepthStencilAttachment{
		View:            view,
		DepthLoadOp:     load,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: clear,
	}
	if format.HasStencil() {
		a.StencilLoadOp = load
		a.StencilStoreOp = gputypes.StoreOpStore
	}
	return a
}

func (e *encoder) begin(desc *hal.RenderPassDescriptor) {
	e.rp = e.enc.BeginRenderPass(desc)
	e.pass = desc
	e.recorded = true
	e.stats.RenderPasses++
}

func (e *encoder) EndRenderPass() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.rp == nil {
		return fmt.Errorf("%w: no render pass open", ErrEncoderState)
	}
	e.rp.End()
	e.rp = nil
	e.pass = nil
	e.pipeline = nil
	e.group = nil
	clear(e.bindings)
	return nil
}

func (e *encoder) SetPipeline(obj rendergraph.Object) error {
	if err := e.check(); err != nil {
		return err
	}
	p, err := asPipeline(obj)
	if err != nil {
		return err
	}
	if p.desc.IsCompute() == (e.rp != nil) {
		return fmt.Errorf("%w: pipeline %q does not fit the current pass", ErrEncoderState, p.desc.Label)
	}
	e.pipeline = p
	e.group = nil
	e.dirty = true
	clear(e.bindings)
	if e.rp != nil {
		e.rp.SetPipeline(p.render)
	}
	return nil
}

func (e *encoder) SetBinding(slot uint32, b rendergraph.BoundResource) error {
	if err := e.check(); err != nil {
		return err
	}
	switch b.Type {
	case rendergraph.BindingUniformBuffer, rendergraph.BindingStorageBuffer:
		buf, err := asBuffer(b.Object)
		if err != nil {
			return err
		}
		if err := buf.check(b.Offset, b.Size); err != nil {
			return err
		}
	case rendergraph.BindingTexture, rendergraph.BindingTextureArray:
		t, err := asTexture(b.Object)
		if err != nil {
			return err
		}
		if b.Layer >= t.desc.LayerCount() {
			return fmt.Errorf("%w: %s has no layer %d", ErrEncoderState, t, b.Layer)
		}
	default:
		return fmt.Errorf("%w: binding type %s", ErrEncoderState, b.Type)
	}
	e.bindings[slot] = b
	e.dirty = true
	return nil
}

func (e *encoder) SetVertexBuffer(slot uint32, obj rendergraph.Object, offset uint64) error {
	if err := e.check(); err != nil {
		return err
	}
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	e.vertex[slot] = vertexBinding{b, offset}
	if e.rp != nil {
		e.rp.SetVertexBuffer(slot, b.raw, offset)
	}
	return nil
}

func (e *encoder) SetIndexBuffer(obj rendergraph.Object, format gputypes.IndexFormat, offset uint64) error {
	if err := e.check(); err != nil {
		return err
	}
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	e.index, e.indexFmt, e.indexOff = b, format, offset
	if e.rp != nil {
		e.rp.SetIndexBuffer(b.raw, format, offset)
	}
	return nil
}

// restore re-applies the bound state after a render pass was restarted.
func (e *encoder) restore() {
	if e.pipeline != nil {
		e.rp.SetPipeline(e.pipeline.render)
	}
	for _, slot := range slices.Sorted(maps.Keys(e.vertex)) {
		v := e.vertex[slot]
		e.rp.SetVertexBuffer(slot, v.buf.raw, v.offset)
	}
	if e.index != nil {
		e.rp.SetIndexBuffer(e.index.raw, e.indexFmt, e.indexOff)
	}
	if e.group != nil && !e.dirty {
		e.rp.SetBindGroup(0, e.group, nil)
	}
}

func (e *encoder) checkDraw() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.rp == nil {
		return fmt.Errorf("%w: draw outside a render pass", ErrEncoderState)
	}
	if e.pipeline == nil {
		return fmt.Errorf("%w: draw without a pipeline", ErrEncoderState)
	}
	if err := e.checkBindings(); err != nil {
		return err
	}
	for slot := range e.pipeline.desc.VertexBuffers {
		if _, ok := e.vertex[uint32(slot)]; !ok {
			return fmt.Errorf("%w: pipeline %q vertex buffer %d not bound", ErrEncoderState, e.pipeline.desc.Label, slot)
		}
	}
	return nil
}

func (e *encoder) checkBindings() error {
	for _, b := range e.pipeline.desc.Bindings {
		if got, ok := e.bindings[b.Slot]; !ok || got.Type != b.Type {
			return fmt.Errorf("%w: pipeline %q slot %d not bound as %s", ErrEncoderState, e.pipeline.desc.Label, b.Slot, b.Type)
		}
	}
	return nil
}

// bindGroup returns the bind group for the current pipeline and bindings,
// creating a new one if they changed since the last draw or dispatch.
func (e *encoder) bindGroup() (hal.BindGroup, bool, error) {
	if !e.dirty && e.group != nil {
		return e.group, false, nil
	}
	p := e.pipeline
	entries := make([]gputypes.BindGroupEntry, 0, len(p.desc.Bindings)+len(p.samplers))
	for _, slot := range p.desc.Bindings {
		b := e.bindings[slot.Slot]
		entry := gputypes.BindGroupEntry{Binding: slot.Slot}
		switch b.Type {
		case rendergraph.BindingUniformBuffer, rendergraph.BindingStorageBuffer:
			buf, err := asBuffer(b.Object)
			if err != nil {
				return nil, false, err
			}
			entry.Resource = gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Offset: b.Offset, Size: b.Size}
		case rendergraph.BindingTexture, rendergraph.BindingTextureArray:
			t, err := asTexture(b.Object)
			if err != nil {
				return nil, false, err
			}
			var view hal.TextureView
			if b.Type == rendergraph.BindingTextureArray {
				view, err = t.ArrayView()
			} else {
				view, err = t.LayerView(b.Layer)
			}
			if err != nil {
				return nil, false, err
			}
			entry.Resource = gputypes.TextureViewBinding{TextureView: view.NativeHandle()}
		}
		entries = append(entries, entry)
	}
	if len(p.samplers) > 0 {
		filtering, comparison, err := e.rt.samplers()
		if err != nil {
			return nil, false, fmt.Errorf("native: create default samplers: %w", err)
		}
		for _, s := range p.samplers {
			sampler := filtering
			if s.Comparison {
				sampler = comparison
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  s.Binding,
				Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
			})
		}
	}
	g, err := e.rt.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.desc.Label + "_group",
		Layout:  p.groupLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, false, wrapDeviceError("bind group", p.desc.Label, err)
	}
	e.groups = append(e.groups, g)
	e.group = g
	e.dirty = false
	e.stats.BindGroups++
	return g, true, nil
}

func (e *encoder) setRenderGroup() error {
	g, created, err := e.bindGroup()
	if err != nil {
		return err
	}
	if created {
		e.rp.SetBindGroup(0, g, nil)
	}
	return nil
}

func (e *encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := e.checkDraw(); err != nil {
		return err
	}
	if err := e.setRenderGroup(); err != nil {
		return err
	}
	e.rp.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	e.stats.Draws++
	return nil
}

func (e *encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := e.checkDraw(); err != nil {
		return err
	}
	if e.index == nil {
		return fmt.Errorf("%w: indexed draw without an index buffer", ErrEncoderState)
	}
	size := uint64(2)
	if e.indexFmt == gputypes.IndexFormatUint32 {
		size = 4
	}
	if end := e.indexOff + (uint64(firstIndex)+uint64(indexCount))*size; end > e.index.desc.Size {
		return fmt.Errorf("%w: indices %d+%d outside %s", ErrEncoderState, firstIndex, indexCount, e.index)
	}
	if err := e.setRenderGroup(); err != nil {
		return err
	}
	e.rp.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	e.stats.Draws++
	return nil
}

// Dispatch records one compute pass holding a single dispatch.
func (e *encoder) Dispatch(x, y, z uint32) error {
	if err := e.outsidePass("dispatch"); err != nil {
		return err
	}
	if e.pipeline == nil || !e.pipeline.desc.IsCompute() {
		return fmt.Errorf("%w: dispatch without a compute pipeline", ErrEncoderState)
	}
	if err := e.checkBindings(); err != nil {
		return err
	}
	g, _, err := e.bindGroup()
	if err != nil {
		return err
	}
	cp := e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: e.pipeline.desc.Label})
	cp.SetPipeline(e.pipeline.compute)
	cp.SetBindGroup(0, g, nil)
	cp.Dispatch(x, y, z)
	cp.End()
	e.recorded = true
	e.stats.ComputePasses++
	e.stats.Dispatches++
	return nil
}

func (e *encoder) queueWrite(write func() error) error {
	if err := e.cut(); err != nil {
		return err
	}
	e.writes = append(e.writes, write)
	e.stats.Writes++
	return nil
}

func (e *encoder) WriteBuffer(obj rendergraph.Object, offset uint64, data []byte) error {
	if err := e.outsidePass("write buffer"); err != nil {
		return err
	}
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	if err := b.check(offset, uint64(len(data))); err != nil {
		return err
	}
	payload := slices.Clone(data)
	return e.queueWrite(func() error {
		return e.rt.queue.WriteBuffer(b.raw, offset, payload)
	})
}

func (e *encoder) WriteTexture(obj rendergraph.Object, region rendergraph.TextureRegion, data []byte) error {
	if err := e.outsidePass("write texture"); err != nil {
		return err
	}
	t, err := asTexture(obj)
	if err != nil {
		return err
	}
	if region.X+region.Width > t.desc.Width || region.Y+region.Height > t.desc.Height || region.Layer >= t.desc.LayerCount() {
		return fmt.Errorf("%w: region %+v outside %s", ErrEncoderState, region, t)
	}
	row := region.Width * uint32(rendergraph.BytesPerPixel(t.desc.Format))
	if len(data) != int(row*region.Height) {
		return fmt.Errorf("%w: %s upload has %d bytes, want %d", ErrEncoderState, t, len(data), row*region.Height)
	}
	payload := slices.Clone(data)
	raw := t.raw
	return e.queueWrite(func() error {
		return e.rt.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture: raw,
				Origin:  hal.Origin3D{X: region.X, Y: region.Y, Z: region.Layer},
				Aspect:  gputypes.TextureAspectAll,
			},
			payload,
			&hal.ImageDataLayout{BytesPerRow: row, RowsPerImage: region.Height},
			&hal.Extent3D{Width: region.Width, Height: region.Height, DepthOrArrayLayers: 1},
		)
	})
}

func (e *encoder) CopyBuffer(src rendergraph.Object, srcOffset uint64, dst rendergraph.Object, dstOffset, size uint64) error {
	if err := e.outsidePass("copy buffer"); err != nil {
		return err
	}
	sb, err := asBuffer(src)
	if err != nil {
		return err
	}
	db, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if err := sb.check(srcOffset, size); err != nil {
		return err
	}
	if err := db.check(dstOffset, size); err != nil {
		return err
	}
	e.enc.CopyBufferToBuffer(sb.raw, db.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
	e.recorded = true
	e.stats.Copies++
	return nil
}

// ClearTexture clears one layer with a render pass of its own. Inside a
// render pass the current pass is ended first and restarted afterwards,
// loading what it has drawn so far.
func (e *encoder) ClearTexture(obj rendergraph.Object, layer uint32, color gputypes.Color) error {
	if err := e.check(); err != nil {
		return err
	}
	t, err := asTexture(obj)
	if err != nil {
		return err
	}
	view, err := t.LayerView(layer)
	if err != nil {
		return err
	}
	resume := e.pass
	if e.rp != nil {
		e.rp.End()
		e.rp = nil
	}

	clearPass := &hal.RenderPassDescriptor{Label: t.desc.Label + "_clear"}
	if t.desc.Format.IsDepthStencil() {
		clearPass.DepthStencilAttachment = depthAttachment(view, t.desc.Format, gputypes.LoadOpClear, float32(color.R))
	} else {
		clearPass.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: color,
		}}
	}
	e.enc.BeginRenderPass(clearPass).End()
	e.recorded = true
	e.stats.Clears++

	if resume != nil {
		e.begin(loadAll(resume))
		e.restore()
	}
	return nil
}

// loadAll returns a copy of desc that loads every attachment.
func loadAll(desc *hal.RenderPassDescriptor) *hal.RenderPassDescriptor {
	out := *desc
	out.ColorAttachments = slices.Clone(desc.ColorAttachments)
	for i := range out.ColorAttachments {
		out.ColorAttachments[i].LoadOp = gputypes.LoadOpLoad
	}
	if desc.DepthStencilAttachment != nil {
		d := *desc.DepthStencilAttachment
		d.DepthLoadOp = gputypes.LoadOpLoad
		if d.StencilLoadOp != gputypes.LoadOpUndefined {
			d.StencilLoadOp = gputypes.LoadOpLoad
		}
		out.DepthStencilAttachment = &d
	}
	return &out
}

// Submit submits every batch in order: its queue writes, then its
// command buffer.
func (e *encoder) Submit() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.rp != nil {
		return fmt.Errorf("%w: frame %q submitted with an open render pass", ErrEncoderState, e.label)
	}
	e.done = true
	cmd, err := e.enc.EndEncoding()
	if err != nil {
		e.release(0)
		return fmt.Errorf("native: end encoding: %w", err)
	}
	e.batches = append(e.batches, batch{writes: e.writes, cmd: cmd})
	e.writes = nil

	var last uint64
	for i, b := range e.batches {
		for _, w := range b.writes {
			if err := w(); err != nil {
				e.finish(last, i)
				return fmt.Errorf("native: frame %q: queue write: %w", e.label, err)
			}
		}
		idx, err := e.rt.queue.Submit([]hal.CommandBuffer{b.cmd})
		if err != nil {
			e.finish(last, i)
			return fmt.Errorf("native: frame %q: submit: %w", e.label, err)
		}
		last = idx
	}
	e.finish(last, len(e.batches))
	return nil
}

// finish records stats and retires the frame's objects. Batches from
// submitted on were never submitted and are freed at once.
func (e *encoder) finish(index uint64, submitted int) {
	r := e.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	if index > r.lastSubmit {
		r.lastSubmit = index
	}
	r.stats.Submits++
	addStats(&r.stats, &e.stats)

	cmds := make([]hal.CommandBuffer, 0, len(e.batches))
	for _, b := range e.batches[:submitted] {
		cmds = append(cmds, b.cmd)
	}
	for _, b := range e.batches[submitted:] {
		r.device.FreeCommandBuffer(b.cmd)
	}
	groups, enc := e.groups, e.enc
	r.retireLocked(func() {
		for _, c := range cmds {
			r.device.FreeCommandBuffer(c)
		}
		for _, g := range groups {
			r.device.DestroyBindGroup(g)
		}
		enc.Destroy()
	})
	e.batches, e.groups, e.enc = nil, nil, nil
	r.reclaimLocked()
}

// release frees everything of an unsubmitted frame.
func (e *encoder) release(discards uint64) {
	r := e.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Discards += discards
	for _, b := range e.batches {
		r.device.FreeCommandBuffer(b.cmd)
	}
	for _, g := range e.groups {
		r.device.DestroyBindGroup(g)
	}
	e.enc.Destroy()
	e.batches, e.groups, e.enc = nil, nil, nil
}

func (e *encoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	if e.rp != nil {
		e.rp.End()
		e.rp = nil
	}
	e.enc.DiscardEncoding()
	e.release(1)
}

func addStats(dst, src *Stats) {
	dst.RenderPasses += src.RenderPasses
	dst.ComputePasses += src.ComputePasses
	dst.Draws += src.Draws
	dst.Dispatches += src.Dispatches
	dst.Barriers += src.Barriers
	dst.Writes += src.Writes
	dst.Copies += src.Copies
	dst.Clears += src.Clears
	dst.BindGroups += src.BindGroups
}
