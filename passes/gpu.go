// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// Byte sizes of the GPU records, matching the WGSL structs of the pass
// shaders.
const (
	lightSize    = 64
	instanceSize = 80
	quadSize     = 48

	// shadowStride is the distance between shadow matrices. Each matrix is
	// bound alone as a uniform range, so it is a uniform offset alignment.
	shadowStride = 256

	// frameSize is the size of the lighting frame uniform.
	frameSize = 160
)

// MeshVertexLayout is the vertex layout of meshes drawn by the 3D passes:
// position, normal and texture coordinates, 32 bytes per vertex.
var MeshVertexLayout = gputypes.VertexBufferLayout{
	ArrayStride: 32,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
	},
}

// instanceLayout is the per-instance layout written by the Geometry pass:
// the model matrix by columns and the instance color.
var instanceLayout = gputypes.VertexBufferLayout{
	ArrayStride: instanceSize,
	StepMode:    gputypes.VertexStepModeInstance,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 3},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 4},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 5},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 6},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 64, ShaderLocation: 7},
	},
}

// quadLayout is the per-instance layout of canvas quads: the rectangle in
// pixels, the atlas scale and layer, and the color.
var quadLayout = gputypes.VertexBufferLayout{
	ArrayStride: quadSize,
	StepMode:    gputypes.VertexStepModeInstance,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
		{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 2},
	},
}

func appendFloats(buf []byte, fs ...float32) []byte {
	for _, f := range fs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func appendMat4(buf []byte, m mgl32.Mat4) []byte {
	return appendFloats(buf, m[:]...)
}

func appendVec3(buf []byte, v mgl32.Vec3) []byte {
	return appendFloats(buf, v[:]...)
}

func appendVec4(buf []byte, v mgl32.Vec4) []byte {
	return appendFloats(buf, v[:]...)
}

// appendLight appends the 64 byte Light record of the lighting shaders.
// shadowLayer is -1 for lights without a shadow map layer.
func appendLight(buf []byte, l *Light, shadowLayer int32) []byte {
	buf = appendVec3(buf, l.Position)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.Kind))
	buf = appendVec3(buf, l.Color)
	buf = appendFloats(buf, l.Intensity)
	buf = appendVec3(buf, l.Direction)
	buf = appendFloats(buf, l.Range)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(shadowLayer))
	return append(buf, make([]byte, 12)...)
}

// appendFrame appends the lighting frame uniform: camera transforms,
// camera position, light count and ambient color.
func appendFrame(buf []byte, cam *Camera, lights int, ambient mgl32.Vec3) []byte {
	vp := cam.ViewProjection()
	buf = appendMat4(buf, vp)
	buf = appendMat4(buf, vp.Inv())
	buf = appendVec3(buf, cam.Position)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(lights))
	buf = appendVec3(buf, ambient)
	return appendFloats(buf, 0)
}

// growCapacity returns the element capacity for n elements: the next
// power of two, at least minimum.
func growCapacity(n, minimum int) int {
	if n <= minimum {
		return minimum
	}
	return 1 << bits.Len(uint(n-1))
}
