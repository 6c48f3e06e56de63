// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// ForwardLighting draws and shades meshes in one pass and contributes the
// "forward" compositing layer above the deferred one.
//
// When a Construction pass precedes it, ForwardLighting draws only the
// transparent instances and tests them against the G-buffer depth.
// Without one it draws every instance against its own depth buffer.
type ForwardLighting struct {
	lightingState

	cfg      *RenderConfiguration
	scene    *SceneGeometry
	hybrid   bool
	color    rendergraph.Resource
	depth    rendergraph.Resource
	ownDepth rendergraph.Resource
	pipeline rendergraph.Resource
}

// NewForwardLighting creates the forward lighting pass.
func NewForwardLighting(cfg *RenderConfiguration) *ForwardLighting {
	return &ForwardLighting{cfg: cfg}
}

// Name implements rendergraph.Pass.
func (f *ForwardLighting) Name() string { return "forward lighting" }

// ShouldRebuild requests a rebuild when the light set or the render
// scale changed.
func (f *ForwardLighting) ShouldRebuild(rendergraph.Size) bool {
	return f.shouldRebuild(f.cfg)
}

// Create implements rendergraph.Pass.
func (f *ForwardLighting) Create(b *rendergraph.Builder) error { return f.declare(b) }

// Recreate implements rendergraph.Pass.
func (f *ForwardLighting) Recreate(b *rendergraph.Builder) error { return f.declare(b) }

func (f *ForwardLighting) declare(b *rendergraph.Builder) error {
	scene, err := sceneGeometry(b, f.Name())
	if err != nil {
		return err
	}
	if err := f.lightingState.declare(b, f.cfg, "forward"); err != nil {
		return err
	}
	gbuf, hybrid := rendergraph.Get[*GBuffer](b.Registry())
	size := scaledSize(b, f.cfg)
	depth := rendergraph.Resource{}
	if hybrid {
		size, depth = gbuf.Size, gbuf.Depth
		f.ownDepth = rendergraph.Resource{}
	} else {
		if depth, err = b.InheritOrCreateTexture(f.ownDepth, targetDesc("forward depth", size, DepthFormat, true)); err != nil {
			return err
		}
		f.ownDepth = depth
	}
	color, err := b.InheritOrCreateTexture(f.color, targetDesc("forward color", size, LitFormat, false))
	if err != nil {
		return err
	}
	blend := gputypes.BlendStatePremultiplied()
	pipeline, err := b.InheritOrCreatePipeline(f.pipeline, rendergraph.PipelineDesc{
		Label:         "forward lighting",
		Source:        forwardSource,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Bindings:      lightingSlots,
		VertexBuffers: []gputypes.VertexBufferLayout{MeshVertexLayout, instanceLayout},
		ColorFormats:  []gputypes.TextureFormat{LitFormat},
		DepthFormat:   DepthFormat,
		Blend:         &blend,
	})
	if err != nil {
		return err
	}
	f.scene, f.hybrid, f.color, f.depth, f.pipeline = scene, hybrid, color, depth, pipeline

	pass := b.AddPass("forward lighting", f.run)
	if err := f.access(b, pass); err != nil {
		return err
	}
	if err := scene.Read(b, pass); err != nil {
		return err
	}
	if err := b.Write(pass, color); err != nil {
		return err
	}
	if hybrid {
		err = b.ReadWrite(pass, depth)
	} else {
		err = b.Write(pass, depth)
	}
	if err != nil {
		return err
	}
	layers := rendergraph.GetOrCreate(b.Registry(), rendergraph.NewCompositingLayers)
	layers.Add(rendergraph.CompositingLayer{
		Name:                 "forward",
		Color:                color,
		Depth:                depth,
		ContainsTransparency: true,
		Z:                    1,
	})
	return nil
}

func (f *ForwardLighting) run(ctx *rendergraph.Context) error {
	if err := f.upload(ctx, f.cfg); err != nil {
		return err
	}
	depth := &rendergraph.DepthAttachment{Texture: f.depth, Clear: 1}
	if f.hybrid {
		depth.Load = gputypes.LoadOpLoad
	}
	err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
		Label: "forward lighting",
		Color: []rendergraph.ColorAttachment{{Texture: f.color}},
		Depth: depth,
	})
	if err != nil {
		return err
	}
	if err := ctx.BindPipeline(f.pipeline); err != nil {
		return err
	}
	if err := f.bind(ctx); err != nil {
		return err
	}
	var include func(*MeshDraw) bool
	if f.hybrid {
		include = func(d *MeshDraw) bool { return d.Transparent }
	}
	if err := f.scene.Draw(ctx, include); err != nil {
		return err
	}
	return ctx.EndRenderPass()
}
