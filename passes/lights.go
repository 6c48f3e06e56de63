// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// lightKey is the part of a light that decides buffer and shadow layout.
// Position, color and the other values are uploaded every frame.
type lightKey struct {
	id   uint64
	kind LightKind
}

// lightSet is the membership of a light list, split by whether the lights
// cast shadows. Two lists with equal sets need equally sized buffers and
// the same shadow map layers.
type lightSet struct {
	shadow []lightKey
	plain  []lightKey
}

func newLightSet(lights []Light) lightSet {
	var s lightSet
	for i := range lights {
		k := lightKey{id: lights[i].ID, kind: lights[i].Kind}
		if lights[i].CastsShadow {
			s.shadow = append(s.shadow, k)
		} else {
			s.plain = append(s.plain, k)
		}
	}
	return s
}

func (s lightSet) equal(o lightSet) bool {
	return slices.Equal(s.shadow, o.shadow) && slices.Equal(s.plain, o.plain)
}

func (s lightSet) len() int {
	return len(s.shadow) + len(s.plain)
}

// lightTracker remembers the light set the last build was sized for.
// With shadowOnly set, lights that cast no shadow are ignored.
type lightTracker struct {
	shadowOnly bool
	built      lightSet
	valid      bool
}

// changed reports whether lights differ from the built set.
func (t *lightTracker) changed(lights []Light) bool {
	if !t.valid {
		return true
	}
	s := newLightSet(lights)
	if t.shadowOnly {
		return !slices.Equal(t.built.shadow, s.shadow)
	}
	return !t.built.equal(s)
}

// commit records lights as the built set.
func (t *lightTracker) commit(lights []Light) lightSet {
	t.built, t.valid = newLightSet(lights), true
	return t.built
}

// shadowLayers returns the shadow map layer of every light in lights,
// -1 for lights that cast no shadow. Layers follow list order.
func shadowLayers(lights []Light) []int32 {
	out := make([]int32, len(lights))
	var next int32
	for i := range lights {
		out[i] = -1
		if lights[i].CastsShadow {
			out[i] = next
			next++
		}
	}
	return out
}

// lightMatrix returns the clip transform of a shadow-casting light.
// Directional lights use an orthographic box of twice Range around the
// origin; point and spot lights a 90 degree frustum along Direction.
func lightMatrix(l *Light) mgl32.Mat4 {
	dir := l.Direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if abs32(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	far := l.Range
	if far <= 0 {
		far = 100
	}
	if l.Kind == LightDirectional {
		eye := dir.Mul(-far)
		view := mgl32.LookAtV(eye, mgl32.Vec3{}, up)
		return depthRemap.Mul4(mgl32.Ortho(-far, far, -far, far, 0.01, 2*far)).Mul4(view)
	}
	view := mgl32.LookAtV(l.Position, l.Position.Add(dir), up)
	return depthRemap.Mul4(mgl32.Perspective(mgl32.DegToRad(90), 1, 0.05, far)).Mul4(view)
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
