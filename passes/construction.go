// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// G-buffer texel formats.
const (
	AlbedoFormat = gputypes.TextureFormatRGBA8Unorm
	NormalFormat = gputypes.TextureFormatRGBA16Float
	DepthFormat  = gputypes.TextureFormatDepth32Float
)

// GBuffer holds the per-pixel surface data of the opaque scene. The
// Construction pass publishes it in the Registry.
type GBuffer struct {
	Albedo rendergraph.Resource
	Normal rendergraph.Resource
	Depth  rendergraph.Resource
	Size   rendergraph.Size
}

// Read declares that pass reads every G-buffer texture.
func (g *GBuffer) Read(b *rendergraph.Builder, pass rendergraph.PassHandle) error {
	for _, r := range []rendergraph.Resource{g.Albedo, g.Normal, g.Depth} {
		if err := b.Read(pass, r); err != nil {
			return err
		}
	}
	return nil
}

func gbuffer(b *rendergraph.Builder, pass string) (*GBuffer, error) {
	g, ok := rendergraph.Get[*GBuffer](b.Registry())
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a construction pass earlier in the graph", rendergraph.ErrConfiguration, pass)
	}
	return g, nil
}

// scaledSize returns the 3D target size for the current back buffer.
func scaledSize(b *rendergraph.Builder, cfg *RenderConfiguration) rendergraph.Size {
	size := b.BackBufferSize().Scale(cfg.scale())
	return rendergraph.Size{Width: max(1, size.Width), Height: max(1, size.Height)}
}

func targetDesc(label string, size rendergraph.Size, format gputypes.TextureFormat, transient bool) rendergraph.TextureDesc {
	return rendergraph.TextureDesc{
		Label:     label,
		Width:     uint32(size.Width),
		Height:    uint32(size.Height),
		Format:    format,
		Usage:     gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		Transient: transient,
	}
}

// Construction renders the opaque instances of the scene into a G-buffer
// at the back-buffer size times the render scale.
type Construction struct {
	cfg   *RenderConfiguration
	scale float64

	gbuf     GBuffer
	frame    rendergraph.Resource
	pipeline rendergraph.Resource
	scene    *SceneGeometry
}

// NewConstruction creates the G-buffer pass.
func NewConstruction(cfg *RenderConfiguration) *Construction {
	return &Construction{cfg: cfg}
}

// Name implements rendergraph.Pass.
func (c *Construction) Name() string { return "construction" }

// ShouldRebuild requests a rebuild when the render scale changed.
func (c *Construction) ShouldRebuild(rendergraph.Size) bool {
	return c.cfg.scale() != c.scale
}

// Create implements rendergraph.Pass.
func (c *Construction) Create(b *rendergraph.Builder) error { return c.declare(b) }

// Recreate implements rendergraph.Pass.
func (c *Construction) Recreate(b *rendergraph.Builder) error { return c.declare(b) }

func (c *Construction) declare(b *rendergraph.Builder) error {
	scene, err := sceneGeometry(b, c.Name())
	if err != nil {
		return err
	}
	size := scaledSize(b, c.cfg)
	var g GBuffer
	g.Size = size
	if g.Albedo, err = b.InheritOrCreateTexture(c.gbuf.Albedo, targetDesc("gbuffer albedo", size, AlbedoFormat, true)); err != nil {
		return err
	}
	if g.Normal, err = b.InheritOrCreateTexture(c.gbuf.Normal, targetDesc("gbuffer normal", size, NormalFormat, true)); err != nil {
		return err
	}
	if g.Depth, err = b.InheritOrCreateTexture(c.gbuf.Depth, targetDesc("gbuffer depth", size, DepthFormat, false)); err != nil {
		return err
	}
	frame, err := b.InheritOrCreateBuffer(c.frame, rendergraph.BufferDesc{
		Label: "construction frame",
		Size:  frameSize,
		Usage: rendergraph.ShaderBufferUsage,
	})
	if err != nil {
		return err
	}
	pipeline, err := b.InheritOrCreatePipeline(c.pipeline, rendergraph.PipelineDesc{
		Label:         "gbuffer",
		Source:        constructionSource,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Bindings:      []rendergraph.BindingSlot{{Slot: 0, Type: rendergraph.BindingUniformBuffer}},
		VertexBuffers: []gputypes.VertexBufferLayout{MeshVertexLayout, instanceLayout},
		ColorFormats:  []gputypes.TextureFormat{AlbedoFormat, NormalFormat},
		DepthFormat:   DepthFormat,
	})
	if err != nil {
		return err
	}
	c.gbuf, c.frame, c.pipeline, c.scene = g, frame, pipeline, scene
	c.scale = c.cfg.scale()

	pass := b.AddPass("construction", c.run)
	for _, r := range []rendergraph.Resource{g.Albedo, g.Normal, g.Depth} {
		if err := b.Write(pass, r); err != nil {
			return err
		}
	}
	if err := b.ReadWrite(pass, frame); err != nil {
		return err
	}
	if err := scene.Read(b, pass); err != nil {
		return err
	}
	published := g
	rendergraph.Set(b.Registry(), &published)
	return nil
}

func (c *Construction) run(ctx *rendergraph.Context) error {
	frame := appendFrame(nil, &c.cfg.Camera, 0, c.cfg.Ambient)
	if err := ctx.UploadBuffer(c.frame, 0, frame); err != nil {
		return err
	}
	err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
		Label: "gbuffer",
		Color: []rendergraph.ColorAttachment{
			{Texture: c.gbuf.Albedo},
			{Texture: c.gbuf.Normal, Clear: gputypes.Color{R: 0.5, G: 0.5, B: 0.5}},
		},
		Depth: &rendergraph.DepthAttachment{Texture: c.gbuf.Depth, Clear: 1},
	})
	if err != nil {
		return err
	}
	if err := ctx.BindPipeline(c.pipeline); err != nil {
		return err
	}
	if err := ctx.BindShaderBuffer(0, c.frame); err != nil {
		return err
	}
	opaque := func(d *MeshDraw) bool { return !d.Transparent }
	if err := c.scene.Draw(ctx, opaque); err != nil {
		return err
	}
	return ctx.EndRenderPass()
}
