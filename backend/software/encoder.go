// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// encoder records a frame. Commands are validated when recorded and
// applied in order on Submit.
type encoder struct {
	rt    *Runtime
	label string
	ops   []func(*Stats) error
	done  bool

	inPass   bool
	pipeline *Pipeline
	bindings map[uint32]rendergraph.BoundResource
	vertex   map[uint32]*Buffer
	index    *Buffer
	indexFmt gputypes.IndexFormat
}

func newEncoder(rt *Runtime, label string) *encoder {
	return &encoder{
		rt:       rt,
		label:    label,
		bindings: make(map[uint32]rendergraph.BoundResource),
		vertex:   make(map[uint32]*Buffer),
	}
}

func (e *encoder) record(op func(*Stats) error) error {
	if e.done {
		return fmt.Errorf("%w: frame %q already finished", ErrEncoderState, e.label)
	}
	e.ops = append(e.ops, op)
	return nil
}

func (e *encoder) outsidePass(what string) error {
	if e.inPass {
		return fmt.Errorf("%w: %s inside a render pass", ErrEncoderState, what)
	}
	return nil
}

func (e *encoder) Barrier(barriers []rendergraph.Barrier) {
	n := uint64(len(barriers))
	_ = e.record(func(s *Stats) error {
		s.Barriers += n
		return nil
	})
}

func (e *encoder) BeginRenderPass(targets *rendergraph.RenderTargets) error {
	if err := e.outsidePass("begin render pass"); err != nil {
		return err
	}
	type clearOp struct {
		tex   *Texture
		layer uint32
		value []byte
	}
	var clears []clearOp
	for i, c := range targets.Color {
		t, err := asTexture(c.Texture)
		if err != nil {
			return fmt.Errorf("color attachment %d: %w", i, err)
		}
		if c.Load != gputypes.LoadOpClear {
			continue
		}
		px, err := encodeColor(t.desc.Format, c.Clear)
		if err != nil {
			return err
		}
		clears = append(clears, clearOp{t, c.Layer, px})
	}
	if d := targets.Depth; d != nil {
		t, err := asTexture(d.Texture)
		if err != nil {
			return fmt.Errorf("depth attachment: %w", err)
		}
		if d.Load == gputypes.LoadOpClear {
			px, err := encodeDepth(t.desc.Format, d.Clear)
			if err != nil {
				return err
			}
			clears = append(clears, clearOp{t, d.Layer, px})
		}
	}
	if err := e.record(func(s *Stats) error {
		s.RenderPasses++
		for _, c := range clears {
			if err := fillLayer(c.tex, c.layer, c.value); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	e.inPass = true
	return nil
}

func (e *encoder) EndRenderPass() error {
	if !e.inPass {
		return fmt.Errorf("%w: no render pass open", ErrEncoderState)
	}
	e.inPass = false
	e.pipeline = nil
	clear(e.bindings)
	return nil
}

func (e *encoder) SetPipeline(obj rendergraph.Object) error {
	p, err := asPipeline(obj)
	if err != nil {
		return err
	}
	if p.desc.IsCompute() == e.inPass {
		return fmt.Errorf("%w: pipeline %q does not fit the current pass", ErrEncoderState, p.desc.Label)
	}
	e.pipeline = p
	clear(e.bindings)
	return nil
}

func (e *encoder) SetBinding(slot uint32, b rendergraph.BoundResource) error {
	switch b.Type {
	case rendergraph.BindingUniformBuffer, rendergraph.BindingStorageBuffer:
		buf, err := asBuffer(b.Object)
		if err != nil {
			return err
		}
		if _, err := buf.span(b.Offset, b.Size); err != nil {
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
	return nil
}

func (e *encoder) SetVertexBuffer(slot uint32, obj rendergraph.Object, offset uint64) error {
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	e.vertex[slot] = b
	return nil
}

func (e *encoder) SetIndexBuffer(obj rendergraph.Object, format gputypes.IndexFormat, offset uint64) error {
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	e.index, e.indexFmt = b, format
	return nil
}

func (e *encoder) checkDraw() error {
	if !e.inPass {
		return fmt.Errorf("%w: draw outside a render pass", ErrEncoderState)
	}
	if e.pipeline == nil {
		return fmt.Errorf("%w: draw without a pipeline", ErrEncoderState)
	}
	for _, b := range e.pipeline.desc.Bindings {
		if got, ok := e.bindings[b.Slot]; !ok || got.Type != b.Type {
			return fmt.Errorf("%w: pipeline %q slot %d not bound as %s", ErrEncoderState, e.pipeline.desc.Label, b.Slot, b.Type)
		}
	}
	for slot := range e.pipeline.desc.VertexBuffers {
		if e.vertex[uint32(slot)] == nil {
			return fmt.Errorf("%w: pipeline %q vertex buffer %d not bound", ErrEncoderState, e.pipeline.desc.Label, slot)
		}
	}
	return nil
}

func (e *encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := e.checkDraw(); err != nil {
		return err
	}
	return e.record(func(s *Stats) error {
		s.Draws++
		return nil
	})
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
	if end := (uint64(firstIndex) + uint64(indexCount)) * size; end > e.index.desc.Size {
		return fmt.Errorf("%w: indices %d+%d outside %s", ErrEncoderState, firstIndex, indexCount, e.index)
	}
	return e.record(func(s *Stats) error {
		s.Draws++
		return nil
	})
}

func (e *encoder) Dispatch(x, y, z uint32) error {
	if err := e.outsidePass("dispatch"); err != nil {
		return err
	}
	if e.pipeline == nil || !e.pipeline.desc.IsCompute() {
		return fmt.Errorf("%w: dispatch without a compute pipeline", ErrEncoderState)
	}
	return e.record(func(s *Stats) error {
		s.Dispatches++
		return nil
	})
}

func (e *encoder) WriteBuffer(obj rendergraph.Object, offset uint64, data []byte) error {
	if err := e.outsidePass("write buffer"); err != nil {
		return err
	}
	b, err := asBuffer(obj)
	if err != nil {
		return err
	}
	if _, err := b.span(offset, uint64(len(data))); err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	return e.record(func(s *Stats) error {
		dst, err := b.span(offset, uint64(len(payload)))
		if err != nil {
			return err
		}
		copy(dst, payload)
		s.Writes++
		return nil
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
	if region.X+region.Width > t.desc.Width || region.Y+region.Height > t.desc.Height {
		return fmt.Errorf("%w: region %+v outside %s", ErrEncoderState, region, t)
	}
	row := int(region.Width) * t.bpp
	if len(data) != row*int(region.Height) {
		return fmt.Errorf("%w: %s upload has %d bytes, want %d", ErrEncoderState, t, len(data), row*int(region.Height))
	}
	payload := append([]byte(nil), data...)
	return e.record(func(s *Stats) error {
		layer, err := t.layer(region.Layer)
		if err != nil {
			return err
		}
		stride := int(t.desc.Width) * t.bpp
		for y := range int(region.Height) {
			off := (int(region.Y)+y)*stride + int(region.X)*t.bpp
			copy(layer[off:off+row], payload[y*row:(y+1)*row])
		}
		s.Writes++
		return nil
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
	if _, err := sb.span(srcOffset, size); err != nil {
		return err
	}
	if _, err := db.span(dstOffset, size); err != nil {
		return err
	}
	return e.record(func(s *Stats) error {
		from, err := sb.span(srcOffset, size)
		if err != nil {
			return err
		}
		to, err := db.span(dstOffset, size)
		if err != nil {
			return err
		}
		copy(to, from)
		s.Copies++
		return nil
	})
}

func (e *encoder) ClearTexture(obj rendergraph.Object, layer uint32, color gputypes.Color) error {
	t, err := asTexture(obj)
	if err != nil {
		return err
	}
	px, err := encodeColor(t.desc.Format, color)
	if err != nil {
		return err
	}
	return e.record(func(s *Stats) error {
		s.Clears++
		return fillLayer(t, layer, px)
	})
}

// Submit applies every recorded command. Commands after a failing one
// are not applied.
func (e *encoder) Submit() error {
	if e.done {
		return fmt.Errorf("%w: frame %q already finished", ErrEncoderState, e.label)
	}
	if e.inPass {
		return fmt.Errorf("%w: frame %q submitted with an open render pass", ErrEncoderState, e.label)
	}
	e.done = true

	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	e.rt.stats.Submits++
	for i, op := range e.ops {
		if err := op(&e.rt.stats); err != nil {
			return fmt.Errorf("software: frame %q command %d: %w", e.label, i, err)
		}
	}
	e.ops = nil
	return nil
}

func (e *encoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.ops = nil
	e.rt.mu.Lock()
	e.rt.stats.Discards++
	e.rt.mu.Unlock()
}

func fillLayer(t *Texture, layer uint32, px []byte) error {
	dst, err := t.layer(layer)
	if err != nil {
		return err
	}
	for i := 0; i+len(px) <= len(dst); i += len(px) {
		copy(dst[i:], px)
	}
	return nil
}
