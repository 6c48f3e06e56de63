// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// DeferredLighting shades the G-buffer with every light of the scene and
// contributes the result as the "deferred" compositing layer. It needs a
// Construction and a ShadowMapping pass earlier in the graph.
type DeferredLighting struct {
	lightingState

	cfg      *RenderConfiguration
	gbuf     *GBuffer
	lit      rendergraph.Resource
	pipeline rendergraph.Resource
}

// NewDeferredLighting creates the deferred lighting pass.
func NewDeferredLighting(cfg *RenderConfiguration) *DeferredLighting {
	return &DeferredLighting{cfg: cfg}
}

// Name implements rendergraph.Pass.
func (d *DeferredLighting) Name() string { return "deferred lighting" }

// ShouldRebuild requests a rebuild when the light set or the render
// scale changed.
func (d *DeferredLighting) ShouldRebuild(rendergraph.Size) bool {
	return d.shouldRebuild(d.cfg)
}

// Create implements rendergraph.Pass.
func (d *DeferredLighting) Create(b *rendergraph.Builder) error { return d.declare(b) }

// Recreate implements rendergraph.Pass.
func (d *DeferredLighting) Recreate(b *rendergraph.Builder) error { return d.declare(b) }

func (d *DeferredLighting) declare(b *rendergraph.Builder) error {
	gbuf, err := gbuffer(b, d.Name())
	if err != nil {
		return err
	}
	if err := d.lightingState.declare(b, d.cfg, "deferred"); err != nil {
		return err
	}
	lit, err := b.InheritOrCreateTexture(d.lit, targetDesc("deferred lit", gbuf.Size, LitFormat, false))
	if err != nil {
		return err
	}
	pipeline, err := b.InheritOrCreatePipeline(d.pipeline, rendergraph.PipelineDesc{
		Label:         "deferred lighting",
		Source:        deferredSource,
		VertexEntry:   "vs_fullscreen",
		FragmentEntry: "fs_main",
		Bindings: append(lightingSlots[:len(lightingSlots):len(lightingSlots)],
			rendergraph.BindingSlot{Slot: 4, Type: rendergraph.BindingTexture},
			rendergraph.BindingSlot{Slot: 5, Type: rendergraph.BindingTexture},
			rendergraph.BindingSlot{Slot: 6, Type: rendergraph.BindingTexture},
		),
		ColorFormats: []gputypes.TextureFormat{LitFormat},
	})
	if err != nil {
		return err
	}
	d.gbuf, d.lit, d.pipeline = gbuf, lit, pipeline

	pass := b.AddPass("deferred lighting", d.run)
	if err := d.access(b, pass); err != nil {
		return err
	}
	if err := gbuf.Read(b, pass); err != nil {
		return err
	}
	if err := b.Write(pass, lit); err != nil {
		return err
	}
	layers := rendergraph.GetOrCreate(b.Registry(), rendergraph.NewCompositingLayers)
	layers.Add(rendergraph.CompositingLayer{
		Name:                 "deferred",
		Color:                lit,
		Depth:                gbuf.Depth,
		ContainsTransparency: true,
	})
	return nil
}

func (d *DeferredLighting) run(ctx *rendergraph.Context) error {
	if err := d.upload(ctx, d.cfg); err != nil {
		return err
	}
	err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
		Label: "deferred lighting",
		Color: []rendergraph.ColorAttachment{{Texture: d.lit}},
	})
	if err != nil {
		return err
	}
	if err := ctx.BindPipeline(d.pipeline); err != nil {
		return err
	}
	if err := d.bind(ctx); err != nil {
		return err
	}
	for i, tex := range []rendergraph.Resource{d.gbuf.Albedo, d.gbuf.Normal, d.gbuf.Depth} {
		if err := ctx.BindTexture(uint32(4+i), tex); err != nil {
			return err
		}
	}
	if err := ctx.DrawArray(0, 3, 1); err != nil {
		return err
	}
	return ctx.EndRenderPass()
}
