// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
)

// viewKey selects a texture view: a single layer as a 2D view, or the
// whole texture when all is set. Array views always use the 2D-array
// dimension, even for single-layer textures.
type viewKey struct {
	layer uint32
	all   bool
	array bool
}

// Texture is a HAL texture created by a Runtime.
//
// Views are created lazily and cached until the texture is destroyed. The
// default view covers every array layer; layer views are used for render
// attachments and single-layer bindings.
type Texture struct {
	mu     sync.Mutex
	id     uint64
	raw    hal.Texture
	device hal.Device
	desc   rendergraph.TextureDesc

	defaultViewOnce sync.Once
	defaultView     hal.TextureView
	defaultViewErr  error

	views     map[viewKey]hal.TextureView
	destroyed bool
}

// ID returns the runtime-unique object id.
func (t *Texture) ID() uint64 { return t.id }

// Desc returns the descriptor the texture was created with.
func (t *Texture) Desc() rendergraph.TextureDesc { return t.desc }

// Raw returns the underlying HAL texture, or nil once destroyed.
func (t *Texture) Raw() hal.Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil
	}
	return t.raw
}

func (t *Texture) String() string {
	return fmt.Sprintf("texture#%d %q", t.id, t.desc.Label)
}

// DefaultView returns the view over all layers, creating it on first use.
func (t *Texture) DefaultView() (hal.TextureView, error) {
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, t)
	}
	t.defaultViewOnce.Do(func() {
		t.defaultView, t.defaultViewErr = t.createView(viewKey{all: true})
	})
	return t.defaultView, t.defaultViewErr
}

// LayerView returns a 2D view of one array layer.
func (t *Texture) LayerView(layer uint32) (hal.TextureView, error) {
	if layer >= t.desc.LayerCount() {
		return nil, fmt.Errorf("%w: %s has no layer %d", ErrEncoderState, t, layer)
	}
	if t.desc.LayerCount() == 1 {
		return t.DefaultView()
	}
	return t.cachedView(viewKey{layer: layer})
}

// ArrayView returns a 2D-array view of every layer.
func (t *Texture) ArrayView() (hal.TextureView, error) {
	if t.desc.LayerCount() > 1 {
		return t.DefaultView()
	}
	return t.cachedView(viewKey{all: true, array: true})
}

func (t *Texture) cachedView(key viewKey) (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, t)
	}
	if v, ok := t.views[key]; ok {
		return v, nil
	}
	v, err := t.createView(key)
	if err != nil {
		return nil, err
	}
	if t.views == nil {
		t.views = make(map[viewKey]hal.TextureView)
	}
	t.views[key] = v
	return v, nil
}

func (t *Texture) createView(key viewKey) (hal.TextureView, error) {
	desc := &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s layer %d", t.desc.Label, key.layer),
		Format:          t.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		BaseArrayLayer:  key.layer,
		ArrayLayerCount: 1,
	}
	if key.all {
		desc.Label = t.desc.Label + " (default view)"
		desc.BaseArrayLayer = 0
		desc.ArrayLayerCount = t.desc.LayerCount()
		if key.array || t.desc.LayerCount() > 1 {
			desc.Dimension = gputypes.TextureViewDimension2DArray
		}
	}
	v, err := t.device.CreateTextureView(t.raw, desc)
	if err != nil {
		return nil, fmt.Errorf("native: create view of %s: %w", t, err)
	}
	return v, nil
}

// retire marks the texture destroyed. Its HAL objects stay alive until
// release, once the GPU no longer uses them. retire reports whether the
// texture was still live.
func (t *Texture) retire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return false
	}
	t.destroyed = true
	return true
}

// release destroys the views and the HAL texture of a retired texture.
func (t *Texture) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.views {
		t.device.DestroyTextureView(v)
		delete(t.views, k)
	}
	if t.defaultView != nil {
		t.device.DestroyTextureView(t.defaultView)
		t.defaultView = nil
	}
	if t.raw != nil {
		t.device.DestroyTexture(t.raw)
		t.raw = nil
	}
}

// fullRange covers every layer of the texture's single mip level.
func (t *Texture) fullRange() hal.TextureRange {
	return hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: t.desc.LayerCount(),
	}
}

// Buffer is a HAL buffer created by a Runtime.
type Buffer struct {
	id        uint64
	raw       hal.Buffer
	desc      rendergraph.BufferDesc
	destroyed bool
}

// ID returns the runtime-unique object id.
func (b *Buffer) ID() uint64 { return b.id }

// Desc returns the descriptor the buffer was created with.
func (b *Buffer) Desc() rendergraph.BufferDesc { return b.desc }

// Raw returns the underlying HAL buffer, or nil once destroyed.
func (b *Buffer) Raw() hal.Buffer {
	if b.destroyed {
		return nil
	}
	return b.raw
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d %q", b.id, b.desc.Label)
}

func (b *Buffer) check(offset, size uint64) error {
	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, b)
	}
	if offset+size > b.desc.Size {
		return fmt.Errorf("%w: range %d+%d outside %s (%d bytes)", ErrEncoderState, offset, size, b, b.desc.Size)
	}
	return nil
}

func asTexture(obj rendergraph.Object) (*Texture, error) {
	t, ok := obj.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a texture", ErrForeignObject, obj)
	}
	if t.Raw() == nil {
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
