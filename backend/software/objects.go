// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/shader"
)

// Texture is a texture owned by a software Runtime. Layers are stored
// back to back, rows tightly packed.
type Texture struct {
	id         uint64
	desc       rendergraph.TextureDesc
	bpp        int
	layerBytes uint64
	data       []byte
	destroyed  bool
}

// ID returns the runtime-unique object id.
func (t *Texture) ID() uint64 { return t.id }

// Desc returns the descriptor the texture was created with.
func (t *Texture) Desc() rendergraph.TextureDesc { return t.desc }

func (t *Texture) String() string {
	return fmt.Sprintf("software.Texture(%d %q)", t.id, t.desc.Label)
}

func (t *Texture) layer(i uint32) ([]byte, error) {
	if t.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, t)
	}
	if i >= t.desc.LayerCount() {
		return nil, fmt.Errorf("%w: %s has no layer %d", ErrEncoderState, t, i)
	}
	off := uint64(i) * t.layerBytes
	return t.data[off : off+t.layerBytes], nil
}

// Buffer is a buffer owned by a software Runtime.
type Buffer struct {
	id        uint64
	desc      rendergraph.BufferDesc
	data      []byte
	destroyed bool
}

// ID returns the runtime-unique object id.
func (b *Buffer) ID() uint64 { return b.id }

// Desc returns the descriptor the buffer was created with.
func (b *Buffer) Desc() rendergraph.BufferDesc { return b.desc }

func (b *Buffer) String() string {
	return fmt.Sprintf("software.Buffer(%d %q)", b.id, b.desc.Label)
}

func (b *Buffer) span(offset, size uint64) ([]byte, error) {
	if b.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, b)
	}
	if offset+size > uint64(len(b.data)) || offset+size < offset {
		return nil, fmt.Errorf("%w: range %d+%d outside %s (%d bytes)", ErrEncoderState, offset, size, b, len(b.data))
	}
	return b.data[offset : offset+size], nil
}

// Pipeline is a pipeline recorded by a software Runtime.
type Pipeline struct {
	id         uint64
	desc       rendergraph.PipelineDesc
	reflection *shader.Reflection
	destroyed  bool
}

// ID returns the runtime-unique object id.
func (p *Pipeline) ID() uint64 { return p.id }

// Desc returns the descriptor the pipeline was created with.
func (p *Pipeline) Desc() rendergraph.PipelineDesc { return p.desc }

// Reflection returns the shader reflection, or nil when the runtime does
// not validate shaders.
func (p *Pipeline) Reflection() *shader.Reflection { return p.reflection }

func asTexture(obj rendergraph.Object) (*Texture, error) {
	t, ok := obj.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a texture", ErrForeignObject, obj)
	}
	if t.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, t)
	}
	return t, nil
}

func asBuffer(obj rendergraph.Object) (*Buffer, error) {
	b, ok := obj.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a buffer", ErrForeignObject, obj)
	}
	if b.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, b)
	}
	return b, nil
}

func asPipeline(obj rendergraph.Object) (*Pipeline, error) {
	p, ok := obj.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a pipeline", ErrForeignObject, obj)
	}
	if p.destroyed {
		return nil, fmt.Errorf("%w: pipeline %q", ErrDestroyed, p.desc.Label)
	}
	return p, nil
}
