// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// Compositing blends every compositing layer of the build onto the back
// buffer in ascending Z. It must be the last pass of the graph, since it
// only sees layers added before it.
type Compositing struct {
	cfg *RenderConfiguration

	layers  []rendergraph.CompositingLayer
	replace rendergraph.Resource
	blend   rendergraph.Resource
	target  rendergraph.Resource
}

// NewCompositing creates the compositing pass.
func NewCompositing(cfg *RenderConfiguration) *Compositing {
	return &Compositing{cfg: cfg}
}

// Name implements rendergraph.Pass.
func (c *Compositing) Name() string { return "compositing" }

// ShouldRebuild implements rendergraph.Pass. Compositing follows the
// layers of the other passes and never asks for a rebuild itself.
func (c *Compositing) ShouldRebuild(rendergraph.Size) bool { return false }

// Create implements rendergraph.Pass.
func (c *Compositing) Create(b *rendergraph.Builder) error { return c.declare(b) }

// Recreate implements rendergraph.Pass.
func (c *Compositing) Recreate(b *rendergraph.Builder) error { return c.declare(b) }

func (c *Compositing) pipelineDesc(label string, format gputypes.TextureFormat, blend *gputypes.BlendState) rendergraph.PipelineDesc {
	return rendergraph.PipelineDesc{
		Label:         label,
		Source:        compositingSource,
		VertexEntry:   "vs_fullscreen",
		FragmentEntry: "fs_main",
		Bindings:      []rendergraph.BindingSlot{{Slot: 0, Type: rendergraph.BindingTexture}},
		ColorFormats:  []gputypes.TextureFormat{format},
		Blend:         blend,
	}
}

func (c *Compositing) declare(b *rendergraph.Builder) error {
	format := b.BackBufferFormat()
	replace, err := b.InheritOrCreatePipeline(c.replace, c.pipelineDesc("compositing replace", format, nil))
	if err != nil {
		return err
	}
	premultiplied := gputypes.BlendStatePremultiplied()
	blend, err := b.InheritOrCreatePipeline(c.blend, c.pipelineDesc("compositing blend", format, &premultiplied))
	if err != nil {
		return err
	}
	c.replace, c.blend, c.target = replace, blend, b.BackBuffer()

	var layers []rendergraph.CompositingLayer
	if l, ok := rendergraph.Get[*rendergraph.CompositingLayers](b.Registry()); ok {
		layers = l.Layers()
	}
	c.layers = layers

	pass := b.AddPass("compositing", c.run)
	for _, l := range layers {
		if err := b.Read(pass, l.Color); err != nil {
			return err
		}
	}
	return b.Write(pass, c.target)
}

func (c *Compositing) run(ctx *rendergraph.Context) error {
	err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
		Label: "compositing",
		Color: []rendergraph.ColorAttachment{{Texture: c.target, Clear: c.cfg.Background}},
	})
	if err != nil {
		return err
	}
	for _, l := range c.layers {
		pipeline := c.replace
		if l.ContainsTransparency {
			pipeline = c.blend
		}
		if err := ctx.BindPipeline(pipeline); err != nil {
			return err
		}
		if err := ctx.BindTexture(0, l.Color); err != nil {
			return err
		}
		if err := ctx.DrawArray(0, 3, 1); err != nil {
			return err
		}
	}
	return ctx.EndRenderPass()
}
