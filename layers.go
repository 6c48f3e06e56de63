// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"cmp"
	"slices"
)

// CompositingLayer is a render target contributed by a pass for a later
// compositing pass to blend onto the back buffer.
type CompositingLayer struct {
	// Name identifies the layer in diagnostics.
	Name string

	// Color is the layer's color texture.
	Color Resource

	// Depth is the layer's depth texture, or the zero Resource.
	Depth Resource

	// ContainsTransparency reports whether the layer must be blended
	// instead of copied.
	ContainsTransparency bool

	// Z orders layers. Lower values are composited first (behind).
	Z int
}

// CompositingLayers collects the layers of one build. It is stored in the
// build's Registry; obtain it with
//
//	layers := rendergraph.GetOrCreate(b.Registry(), rendergraph.NewCompositingLayers)
type CompositingLayers struct {
	layers []CompositingLayer
}

// NewCompositingLayers creates an empty layer list.
func NewCompositingLayers() *CompositingLayers {
	return &CompositingLayers{}
}

// Add appends a layer.
func (l *CompositingLayers) Add(layer CompositingLayer) {
	l.layers = append(l.layers, layer)
}

// Layers returns the layers in compositing order: ascending Z, ties
// broken by the order they were added.
func (l *CompositingLayers) Layers() []CompositingLayer {
	out := slices.Clone(l.layers)
	slices.SortStableFunc(out, func(a, b CompositingLayer) int {
		return cmp.Compare(a.Z, b.Z)
	})
	return out
}

// Len returns the number of layers.
func (l *CompositingLayers) Len() int {
	return len(l.layers)
}
