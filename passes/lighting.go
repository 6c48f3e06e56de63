// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// LitFormat is the color format of the lighting pass outputs.
const LitFormat = gputypes.TextureFormatRGBA8Unorm

// lightingSlots are the slots the lighting shaders share.
var lightingSlots = []rendergraph.BindingSlot{
	{Slot: 0, Type: rendergraph.BindingUniformBuffer},
	{Slot: 1, Type: rendergraph.BindingStorageBuffer},
	{Slot: 2, Type: rendergraph.BindingStorageBuffer},
	{Slot: 3, Type: rendergraph.BindingTextureArray},
}

// lightingState is the part of a lighting pass that sizes its buffers
// for the light set: the frame uniform and one Light record per light.
type lightingState struct {
	lights lightTracker
	scale  float64

	count  int
	frame  rendergraph.Resource
	buffer rendergraph.Resource
	maps   *ShadowMaps
}

func (l *lightingState) shouldRebuild(cfg *RenderConfiguration) bool {
	return l.lights.changed(cfg.Lights) || cfg.scale() != l.scale
}

// LightCount returns the number of lights the light buffer was sized for.
func (l *lightingState) LightCount() int {
	return l.count
}

// LightBuffer returns the light storage buffer of the current build.
func (l *lightingState) LightBuffer() rendergraph.Resource {
	return l.buffer
}

func (l *lightingState) declare(b *rendergraph.Builder, cfg *RenderConfiguration, name string) error {
	maps, err := shadowMaps(b, name)
	if err != nil {
		return err
	}
	set := l.lights.commit(cfg.Lights)
	frame, err := b.InheritOrCreateBuffer(l.frame, rendergraph.BufferDesc{
		Label: name + " frame",
		Size:  frameSize,
		Usage: rendergraph.ShaderBufferUsage,
	})
	if err != nil {
		return err
	}
	buffer, err := b.InheritOrCreateBuffer(l.buffer, rendergraph.BufferDesc{
		Label: name + " lights",
		Size:  uint64(max(1, set.len())) * lightSize,
		Usage: rendergraph.ShaderBufferUsage,
	})
	if err != nil {
		return err
	}
	l.frame, l.buffer, l.maps = frame, buffer, maps
	l.count, l.scale = set.len(), cfg.scale()
	return nil
}

func (l *lightingState) access(b *rendergraph.Builder, pass rendergraph.PassHandle) error {
	if err := b.ReadWrite(pass, l.frame); err != nil {
		return err
	}
	if err := b.ReadWrite(pass, l.buffer); err != nil {
		return err
	}
	return l.maps.Read(b, pass)
}

// upload writes the frame uniform and the light records. It must run
// before the render pass opens.
func (l *lightingState) upload(ctx *rendergraph.Context, cfg *RenderConfiguration) error {
	layers := shadowLayers(cfg.Lights)
	n := min(len(cfg.Lights), l.count)
	data := make([]byte, 0, max(1, n)*lightSize)
	for i := range n {
		layer := layers[i]
		if layer >= int32(l.maps.Layers) {
			layer = -1
		}
		data = appendLight(data, &cfg.Lights[i], layer)
	}
	if err := ctx.UploadBuffer(l.buffer, 0, data); err != nil {
		return err
	}
	return ctx.UploadBuffer(l.frame, 0, appendFrame(nil, &cfg.Camera, n, cfg.Ambient))
}

// bind binds slots 0 to 3 of a lighting pipeline.
func (l *lightingState) bind(ctx *rendergraph.Context) error {
	if err := ctx.Bind(0, rendergraph.UniformBufferBinding{Buffer: l.frame}); err != nil {
		return err
	}
	if err := ctx.Bind(1, rendergraph.StorageBufferBinding{Buffer: l.buffer, ReadOnly: true}); err != nil {
		return err
	}
	if err := ctx.Bind(2, rendergraph.StorageBufferBinding{Buffer: l.maps.Matrices, ReadOnly: true}); err != nil {
		return err
	}
	return ctx.Bind(3, rendergraph.TextureArrayBinding{Texture: l.maps.Depth})
}
