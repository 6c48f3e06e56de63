// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/atlas"
)

// DefaultShadowResolution is the shadow map size used when
// RenderConfiguration.ShadowResolution is zero.
const DefaultShadowResolution = 1024

// RenderConfiguration is the scene a graph renders. The host owns it and
// may change any field between frames; passes compare it against what
// their last build was sized for and request a rebuild when needed.
type RenderConfiguration struct {
	// Camera is the viewer of the 3D passes.
	Camera Camera

	// RenderScale scales the 3D targets relative to the back buffer.
	// Zero means 1.
	RenderScale float64

	// ShadowResolution is the edge length of each shadow map layer.
	ShadowResolution uint32

	// Ambient is added to every lit surface.
	Ambient mgl32.Vec3

	// Background clears the back buffer before compositing.
	Background gputypes.Color

	Lights    []Light
	Instances []MeshInstance
	Sprites   []Sprite
	Texts     []Text
}

func (c *RenderConfiguration) scale() float64 {
	if c.RenderScale <= 0 {
		return 1
	}
	return c.RenderScale
}

func (c *RenderConfiguration) shadowResolution() uint32 {
	if c.ShadowResolution == 0 {
		return DefaultShadowResolution
	}
	return c.ShadowResolution
}

// Camera holds the view and projection of the 3D passes. Projection
// follows the OpenGL clip convention of mgl32; the passes remap depth to
// the [0, 1] range.
type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
}

// LookAt returns a camera at eye looking at center with a perspective
// projection.
func LookAt(eye, center mgl32.Vec3, fovy, aspect, near, far float32) Camera {
	return Camera{
		View:       mgl32.LookAtV(eye, center, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(fovy, aspect, near, far),
		Position:   eye,
	}
}

// depthRemap maps OpenGL clip depth [-1, 1] to [0, 1].
var depthRemap = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// ViewProjection returns the combined clip transform.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return depthRemap.Mul4(c.Projection).Mul4(c.View)
}

// LightKind is the kind of a light source.
type LightKind uint32

const (
	// LightDirectional lights have a direction and no position.
	LightDirectional LightKind = iota
	// LightPoint lights emit from a position up to Range.
	LightPoint
	// LightSpot lights emit from a position along Direction.
	LightSpot
)

// Light is a light source. ID identifies the light across frames.
type Light struct {
	ID        uint64
	Kind      LightKind
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32

	// CastsShadow gives the light a layer of the shadow map array.
	CastsShadow bool
}

// MeshInstance draws a mesh of the MeshAllocator with a model transform.
type MeshInstance struct {
	// Mesh is the URI the mesh was allocated under.
	Mesh  string
	Model mgl32.Mat4
	Color mgl32.Vec4

	// Transparent instances are left out of the G-buffer. The forward
	// pass draws them over it.
	Transparent bool
}

// Sprite draws an atlas image as a screen-space rectangle. Position and
// Size are in back-buffer pixels, origin top left.
type Sprite struct {
	Image    atlas.Handle
	Position mgl32.Vec2
	Size     mgl32.Vec2
	Color    mgl32.Vec4
	Z        int
}

// Text draws a line of text. Position is the pen start on the baseline in
// back-buffer pixels and Size the em size in pixels.
type Text struct {
	Text     string
	Position mgl32.Vec2
	Size     float32
	Color    mgl32.Vec4
	Z        int
}
