// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// TextureDesc describes a texture or 2D array texture.
//
// Descriptors are compared structurally with Equal: a resource whose
// descriptor did not change between builds can be inherited instead of
// recreated.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  uint32
	Height uint32

	// Layers is the array layer count. Zero is treated as 1.
	Layers uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used.
	Usage gputypes.TextureUsage

	// SampleCount is the MSAA sample count. Zero is treated as 1.
	SampleCount uint32

	// Transient marks textures whose contents need not survive between the
	// passes that use them. Transient textures may alias each other.
	Transient bool
}

// LayerCount returns the effective array layer count.
func (d *TextureDesc) LayerCount() uint32 {
	if d.Layers == 0 {
		return 1
	}
	return d.Layers
}

// Samples returns the effective sample count.
func (d *TextureDesc) Samples() uint32 {
	if d.SampleCount == 0 {
		return 1
	}
	return d.SampleCount
}

// ByteSize returns the approximate memory footprint of the texture.
func (d *TextureDesc) ByteSize() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(d.LayerCount()) *
		uint64(d.Samples()) * uint64(BytesPerPixel(d.Format))
}

// Equal reports whether d and o describe the same GPU object. Labels are
// ignored.
func (d *TextureDesc) Equal(o *TextureDesc) bool {
	return d.Width == o.Width && d.Height == o.Height &&
		d.LayerCount() == o.LayerCount() && d.Format == o.Format &&
		d.Usage == o.Usage && d.Samples() == o.Samples() &&
		d.Transient == o.Transient
}

// Validate checks the descriptor and returns an error wrapping
// ErrConfiguration if it cannot be created.
func (d *TextureDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: texture %q has zero size %dx%d", ErrConfiguration, d.Label, d.Width, d.Height)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: texture %q has undefined format", ErrConfiguration, d.Label)
	}
	if BytesPerPixel(d.Format) == 0 {
		return fmt.Errorf("%w: texture %q uses unsupported format %s", ErrConfiguration, d.Label, d.Format)
	}
	if d.Usage == gputypes.TextureUsageNone {
		return fmt.Errorf("%w: texture %q has no usage", ErrConfiguration, d.Label)
	}
	return nil
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage

	// Transient marks buffers that may alias each other.
	Transient bool
}

// Equal reports whether d and o describe the same GPU object.
func (d *BufferDesc) Equal(o *BufferDesc) bool {
	return d.Size == o.Size && d.Usage == o.Usage && d.Transient == o.Transient
}

// Validate checks the descriptor.
func (d *BufferDesc) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", ErrConfiguration, d.Label)
	}
	if d.Usage == gputypes.BufferUsageNone {
		return fmt.Errorf("%w: buffer %q has no usage", ErrConfiguration, d.Label)
	}
	return nil
}

// Common buffer usages for the Create*Buffer helpers.
const (
	VertexBufferUsage = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	IndexBufferUsage  = gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	ShaderBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageUniform |
		gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
)

// PipelineDesc describes a render or compute pipeline.
//
// A pipeline with a ComputeEntry is a compute pipeline; otherwise it is a
// render pipeline and requires a VertexEntry.
type PipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Source is the WGSL source of the shader module.
	Source string

	// VertexEntry and FragmentEntry name the render entry points.
	VertexEntry   string
	FragmentEntry string

	// ComputeEntry names the compute entry point.
	ComputeEntry string

	// Bindings lists the shader binding slots and their types. The
	// context validates bound resources against this list before draws.
	Bindings []BindingSlot

	// VertexBuffers describes the vertex buffer layouts.
	VertexBuffers []gputypes.VertexBufferLayout

	// ColorFormats lists the color attachment formats.
	ColorFormats []gputypes.TextureFormat

	// DepthFormat is the depth attachment format, or Undefined.
	DepthFormat gputypes.TextureFormat

	// Topology is the primitive topology.
	Topology gputypes.PrimitiveTopology

	// Blend is the blend state for all color targets, nil for replace.
	Blend *gputypes.BlendState
}

// IsCompute reports whether d describes a compute pipeline.
func (d *PipelineDesc) IsCompute() bool {
	return d.ComputeEntry != ""
}

// Binding returns the declared type for slot.
func (d *PipelineDesc) Binding(slot uint32) (BindingType, bool) {
	for _, b := range d.Bindings {
		if b.Slot == slot {
			return b.Type, true
		}
	}
	return BindingInvalid, false
}

// Equal reports whether d and o describe the same pipeline.
func (d *PipelineDesc) Equal(o *PipelineDesc) bool {
	if d.Source != o.Source || d.VertexEntry != o.VertexEntry ||
		d.FragmentEntry != o.FragmentEntry || d.ComputeEntry != o.ComputeEntry ||
		d.DepthFormat != o.DepthFormat || d.Topology != o.Topology {
		return false
	}
	if (d.Blend == nil) != (o.Blend == nil) || (d.Blend != nil && *d.Blend != *o.Blend) {
		return false
	}
	return slices.Equal(d.Bindings, o.Bindings) &&
		slices.Equal(d.ColorFormats, o.ColorFormats) &&
		slices.EqualFunc(d.VertexBuffers, o.VertexBuffers, func(a, b gputypes.VertexBufferLayout) bool {
			return a.ArrayStride == b.ArrayStride && a.StepMode == b.StepMode &&
				slices.Equal(a.Attributes, b.Attributes)
		})
}

// Validate checks the descriptor.
func (d *PipelineDesc) Validate() error {
	if d.Source == "" {
		return fmt.Errorf("%w: pipeline %q has no shader source", ErrConfiguration, d.Label)
	}
	if d.IsCompute() {
		if d.VertexEntry != "" || d.FragmentEntry != "" {
			return fmt.Errorf("%w: pipeline %q mixes compute and render entry points", ErrConfiguration, d.Label)
		}
	} else if d.VertexEntry == "" {
		return fmt.Errorf("%w: pipeline %q has no vertex entry point", ErrConfiguration, d.Label)
	}
	seen := make(map[uint32]bool, len(d.Bindings))
	for _, b := range d.Bindings {
		if seen[b.Slot] {
			return fmt.Errorf("%w: pipeline %q declares slot %d twice", ErrConfiguration, d.Label, b.Slot)
		}
		if b.Type == BindingInvalid {
			return fmt.Errorf("%w: pipeline %q slot %d has no type", ErrConfiguration, d.Label, b.Slot)
		}
		seen[b.Slot] = true
	}
	return nil
}

// BytesPerPixel returns the texel size of format in bytes, or 0 for
// formats the graph does not allocate (compressed and undefined formats).
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRG16Float, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}
