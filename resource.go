// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"math"
)

// ResourceKind identifies what a Resource handle refers to.
type ResourceKind uint8

const (
	// KindInvalid is the kind of the zero Resource.
	KindInvalid ResourceKind = iota
	// KindTexture is a texture or array texture.
	KindTexture
	// KindBuffer is a vertex, index, uniform or storage buffer.
	KindBuffer
	// KindPipeline is a render or compute pipeline.
	KindPipeline
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	case KindPipeline:
		return "pipeline"
	default:
		return "invalid"
	}
}

// Resource is an opaque handle to a texture, buffer or pipeline declared in
// one build of a render graph.
//
// A handle is only valid within the build (generation) that created or
// inherited it. Using it after a rebuild that did not inherit it fails with
// ErrStaleHandle. The zero value is never valid.
type Resource struct {
	index      uint32
	generation uint32
	kind       ResourceKind
}

// IsValid reports whether r was returned by a builder.
// It does not report whether r belongs to the current build.
func (r Resource) IsValid() bool {
	return r.kind != KindInvalid
}

// Kind returns the resource kind.
func (r Resource) Kind() ResourceKind {
	return r.kind
}

// Generation returns the build generation the handle belongs to.
func (r Resource) Generation() uint32 {
	return r.generation
}

// String returns a diagnostic representation of the handle.
func (r Resource) String() string {
	if !r.IsValid() {
		return "Resource(invalid)"
	}
	return fmt.Sprintf("Resource(%s #%d gen %d)", r.kind, r.index, r.generation)
}

// Size is an integer width/height pair (back-buffer and texture sizes).
type Size struct {
	Width  int
	Height int
}

// Scale returns s multiplied by f, rounded to the nearest pixel and
// clamped to at least 1x1.
func (s Size) Scale(f float64) Size {
	if f <= 0 {
		f = 1
	}
	w := int(math.Round(float64(s.Width) * f))
	h := int(math.Round(float64(s.Height) * f))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Size{Width: w, Height: h}
}

// IsZero reports whether either dimension is zero or negative.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// String returns "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
