// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// ReadTexture returns a copy of one layer of texture obj, rows tightly
// packed.
func (r *Runtime) ReadTexture(obj rendergraph.Object, layer uint32) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := asTexture(obj)
	if err != nil {
		return nil, err
	}
	data, err := t.layer(layer)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// TextureImage returns one layer of an 8-bit color texture as an image.
func (r *Runtime) TextureImage(obj rendergraph.Object, layer uint32) (*image.RGBA, error) {
	data, err := r.ReadTexture(obj, layer)
	if err != nil {
		return nil, err
	}
	t := obj.(*Texture)
	w, h := int(t.desc.Width), int(t.desc.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch t.desc.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		copy(img.Pix, data)
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		for i := 0; i < len(data); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = data[i+2], data[i+1], data[i], data[i+3]
		}
	case gputypes.TextureFormatR8Unorm:
		for i, v := range data {
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = v, v, v, 0xFF
		}
	default:
		return nil, fmt.Errorf("%w: cannot convert %s to an image", rendergraph.ErrConfiguration, t.desc.Format)
	}
	return img, nil
}

// ReadBuffer returns a copy of size bytes of buffer obj at offset.
func (r *Runtime) ReadBuffer(obj rendergraph.Object, offset, size uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := asBuffer(obj)
	if err != nil {
		return nil, err
	}
	data, err := b.span(offset, size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}
