// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"cmp"
	"image"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
)

// Canvas defaults.
const (
	DefaultGlyphCacheSize = 1024
	minQuads              = 256
)

// CanvasConfig configures a Canvas pass.
type CanvasConfig struct {
	// Font is a TrueType or OpenType font used for Text. Defaults to Go
	// Regular.
	Font []byte

	// GlyphCacheSize limits the rasterized glyphs kept in the atlas.
	GlyphCacheSize int

	// Atlas configures the texture atlas shared by sprites and glyphs.
	Atlas atlas.Config
}

// quad is one textured rectangle of the canvas.
type quad struct {
	level int
	layer uint32
	rect  mgl32.Vec4
	scale mgl32.Vec2
	color mgl32.Vec4
	z     int
}

// Canvas draws the sprites and texts of the configuration in screen space
// into the "canvas" compositing layer, above the 3D layers. Sprite images
// and glyphs share one texture atlas.
type Canvas struct {
	cfg    *RenderConfiguration
	images *atlas.TextureAtlas
	glyphs *glyphs

	quads     []quad
	laidOut   bool
	layoutErr error

	capacity int
	color    rendergraph.Resource
	viewport rendergraph.Resource
	buffer   rendergraph.Resource
	pipeline rendergraph.Resource
}

// NewCanvas creates the canvas pass.
func NewCanvas(cfg *RenderConfiguration, cc CanvasConfig) (*Canvas, error) {
	if cc.Atlas.Label == "" {
		cc.Atlas.Label = "canvas atlas"
	}
	images, err := atlas.NewTextureAtlas(cc.Atlas)
	if err != nil {
		return nil, err
	}
	if cc.Font == nil {
		cc.Font = goregular.TTF
	}
	if cc.GlyphCacheSize <= 0 {
		cc.GlyphCacheSize = DefaultGlyphCacheSize
	}
	g, err := newGlyphs(cc.Font, cc.GlyphCacheSize, images)
	if err != nil {
		return nil, err
	}
	return &Canvas{cfg: cfg, images: images, glyphs: g}, nil
}

// Atlas returns the texture atlas of the canvas.
func (c *Canvas) Atlas() *atlas.TextureAtlas {
	return c.images
}

// AddImage stores img in the atlas for use by sprites.
func (c *Canvas) AddImage(img image.Image) (atlas.Handle, error) {
	return c.images.Add(img)
}

// Name implements rendergraph.Pass.
func (c *Canvas) Name() string { return "canvas" }

// ShouldRebuild lays out the frame and requests a rebuild when new images
// need atlas layers or the quads outgrow their buffer.
func (c *Canvas) ShouldRebuild(rendergraph.Size) bool {
	if !c.laidOut {
		c.layout()
	}
	return c.images.ShouldRebuild() || len(c.quads) > c.capacity
}

// Create implements rendergraph.Pass.
func (c *Canvas) Create(b *rendergraph.Builder) error { return c.declare(b) }

// Recreate implements rendergraph.Pass.
func (c *Canvas) Recreate(b *rendergraph.Builder) error { return c.declare(b) }

// Destroy drops the cached glyphs.
func (c *Canvas) Destroy() {
	c.glyphs.reset()
}

func (c *Canvas) declare(b *rendergraph.Builder) error {
	if err := c.images.Declare(b); err != nil {
		return err
	}
	size := b.BackBufferSize()
	color, err := b.InheritOrCreateTexture(c.color, targetDesc("canvas", rendergraph.Size{
		Width:  max(1, size.Width),
		Height: max(1, size.Height),
	}, LitFormat, false))
	if err != nil {
		return err
	}
	viewport, err := b.InheritOrCreateBuffer(c.viewport, rendergraph.BufferDesc{
		Label: "canvas viewport",
		Size:  16,
		Usage: rendergraph.ShaderBufferUsage,
	})
	if err != nil {
		return err
	}
	capacity := max(c.capacity, growCapacity(len(c.quads), minQuads))
	buffer, err := b.InheritOrCreateBuffer(c.buffer, rendergraph.BufferDesc{
		Label: "canvas quads",
		Size:  uint64(capacity) * quadSize,
		Usage: rendergraph.VertexBufferUsage,
	})
	if err != nil {
		return err
	}
	blend := gputypes.BlendStatePremultiplied()
	pipeline, err := b.InheritOrCreatePipeline(c.pipeline, rendergraph.PipelineDesc{
		Label:         "canvas",
		Source:        canvasSource,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Bindings: []rendergraph.BindingSlot{
			{Slot: 0, Type: rendergraph.BindingUniformBuffer},
			{Slot: 1, Type: rendergraph.BindingTextureArray},
		},
		VertexBuffers: []gputypes.VertexBufferLayout{quadLayout},
		ColorFormats:  []gputypes.TextureFormat{LitFormat},
		Blend:         &blend,
	})
	if err != nil {
		return err
	}
	c.color, c.viewport, c.buffer, c.pipeline, c.capacity = color, viewport, buffer, pipeline, capacity

	pass := b.AddPass("canvas", c.run)
	if err := c.images.ReadWrite(b, pass); err != nil {
		return err
	}
	for _, r := range []rendergraph.Resource{viewport, buffer} {
		if err := b.ReadWrite(pass, r); err != nil {
			return err
		}
	}
	if err := b.Write(pass, color); err != nil {
		return err
	}
	layers := rendergraph.GetOrCreate(b.Registry(), rendergraph.NewCompositingLayers)
	layers.Add(rendergraph.CompositingLayer{
		Name:                 "canvas",
		Color:                color,
		ContainsTransparency: true,
		Z:                    10,
	})
	return nil
}

// layout turns the sprites and texts of the configuration into quads
// sorted by Z. Sprites come before texts of the same Z.
func (c *Canvas) layout() {
	c.quads, c.layoutErr, c.laidOut = c.quads[:0], nil, true
	for i := range c.cfg.Sprites {
		s := &c.cfg.Sprites[i]
		c.quads = append(c.quads, quad{
			level: s.Image.Level,
			layer: s.Image.Index,
			rect:  mgl32.Vec4{s.Position.X(), s.Position.Y(), s.Size.X(), s.Size.Y()},
			scale: c.images.Scale(s.Image),
			color: s.Color,
			z:     s.Z,
		})
	}
	for i := range c.cfg.Texts {
		t := &c.cfg.Texts[i]
		placed, err := c.glyphs.layout(t)
		if err != nil {
			c.layoutErr = err
			return
		}
		for _, p := range placed {
			h := p.handle
			c.quads = append(c.quads, quad{
				level: h.Level,
				layer: h.Index,
				rect: mgl32.Vec4{
					p.origin.X() + float32(p.offset.X),
					p.origin.Y() + float32(p.offset.Y),
					float32(h.Size.X),
					float32(h.Size.Y),
				},
				scale: c.images.Scale(h),
				color: t.Color,
				z:     t.Z,
			})
		}
	}
	slices.SortStableFunc(c.quads, func(a, b quad) int { return cmp.Compare(a.z, b.z) })
}

func (c *Canvas) run(ctx *rendergraph.Context) error {
	if !c.laidOut {
		c.layout()
	}
	c.laidOut = false
	if c.layoutErr != nil {
		return c.layoutErr
	}
	if _, err := c.images.Textures(ctx); err != nil {
		return err
	}
	quads := c.quads[:min(len(c.quads), c.capacity)]
	data := make([]byte, 0, max(1, len(quads))*quadSize)
	for i := range quads {
		q := &quads[i]
		data = appendVec4(data, q.rect)
		data = appendFloats(data, q.scale.X(), q.scale.Y(), float32(q.layer), 0)
		data = appendVec4(data, q.color)
	}
	if len(data) > 0 {
		if err := ctx.UploadBuffer(c.buffer, 0, data); err != nil {
			return err
		}
	}
	size := ctx.BackBufferSize()
	if err := ctx.UploadBuffer(c.viewport, 0, appendFloats(nil, float32(size.Width), float32(size.Height), 0, 0)); err != nil {
		return err
	}

	err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
		Label: "canvas",
		Color: []rendergraph.ColorAttachment{{Texture: c.color}},
	})
	if err != nil {
		return err
	}
	if len(quads) > 0 {
		if err := c.draw(ctx, quads); err != nil {
			return err
		}
	}
	return ctx.EndRenderPass()
}

// draw issues one instanced draw per run of quads in the same atlas
// bucket.
func (c *Canvas) draw(ctx *rendergraph.Context, quads []quad) error {
	if err := ctx.BindPipeline(c.pipeline); err != nil {
		return err
	}
	if err := ctx.Bind(0, rendergraph.UniformBufferBinding{Buffer: c.viewport}); err != nil {
		return err
	}
	for start := 0; start < len(quads); {
		end := start + 1
		for end < len(quads) && quads[end].level == quads[start].level {
			end++
		}
		tex, ok := c.images.Texture(atlas.Handle{Level: quads[start].level})
		if ok {
			if err := ctx.BindTexture(1, tex); err != nil {
				return err
			}
			if err := ctx.BindVertexBuffer(0, c.buffer, uint64(start)*quadSize); err != nil {
				return err
			}
			if err := ctx.DrawArray(0, 6, uint32(end-start)); err != nil {
				return err
			}
		}
		start = end
	}
	return nil
}
