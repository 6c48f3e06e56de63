// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "github.com/gogpu/gputypes"

// Object is a backend-owned GPU object (texture, buffer or pipeline)
// created by a Runtime. The graph never inspects it.
type Object any

// Capabilities describes what a Runtime supports. It is queried once when
// the scheduler is created.
type Capabilities struct {
	// Name identifies the backend ("software", "vulkan", "noop", ...).
	Name string

	// MaxTextureSize is the largest supported texture edge in pixels.
	MaxTextureSize uint32

	// MaxTextureLayers is the largest supported array layer count.
	MaxTextureLayers uint32

	// MaxSampleCount is the largest supported MSAA sample count.
	MaxSampleCount uint32

	// Compute reports compute pipeline support.
	Compute bool
}

// Runtime is the backend that turns compiled graphs into GPU work.
//
// Create methods must return an error wrapping ErrResourceExhausted when
// the device refuses an allocation. Destroy is called exactly once per
// object the runtime created.
type Runtime interface {
	Capabilities() Capabilities
	CreateTexture(desc *TextureDesc) (Object, error)
	CreateBuffer(desc *BufferDesc) (Object, error)
	CreatePipeline(desc *PipelineDesc) (Object, error)
	Destroy(obj Object)

	// Begin starts recording one frame.
	Begin(label string) (Encoder, error)
}

// Encoder records the commands of one frame. Nothing recorded becomes
// visible until Submit; Discard drops the whole frame.
type Encoder interface {
	Barrier(barriers []Barrier)

	BeginRenderPass(targets *RenderTargets) error
	EndRenderPass() error
	SetPipeline(pipeline Object) error
	SetBinding(slot uint32, binding BoundResource) error
	SetVertexBuffer(slot uint32, buffer Object, offset uint64) error
	SetIndexBuffer(buffer Object, format gputypes.IndexFormat, offset uint64) error
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error
	Dispatch(x, y, z uint32) error

	WriteBuffer(buffer Object, offset uint64, data []byte) error
	WriteTexture(texture Object, region TextureRegion, data []byte) error
	CopyBuffer(src Object, srcOffset uint64, dst Object, dstOffset, size uint64) error
	ClearTexture(texture Object, layer uint32, color gputypes.Color) error

	Submit() error
	Discard()
}

// Barrier orders an access to an object after a previous, conflicting
// access (read-after-write, write-after-read or write-after-write).
type Barrier struct {
	Object Object
	Kind   ResourceKind
	Before Access
	After  Access
}

// TextureRegion selects a rectangle of one texture layer. Data written to
// it is tightly packed rows of Width texels.
type TextureRegion struct {
	X, Y          uint32
	Width, Height uint32
	Layer         uint32
}

// RenderTargets are the resolved attachments of a render pass.
type RenderTargets struct {
	Label string
	Color []ColorTarget
	Depth *DepthTarget
}

// ColorTarget is a resolved color attachment.
type ColorTarget struct {
	Texture Object
	Layer   uint32
	Load    gputypes.LoadOp
	Clear   gputypes.Color
}

// DepthTarget is a resolved depth attachment.
type DepthTarget struct {
	Texture Object
	Layer   uint32
	Load    gputypes.LoadOp
	Clear   float32
}
