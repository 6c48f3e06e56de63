// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"golang.org/x/text/unicode/bidi"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
	"github.com/gogpu/rendergraph/internal/cache"
)

// glyphKey identifies a rasterized glyph of the canvas font.
type glyphKey struct {
	id   uint32
	size uint16
}

// glyph is a cached glyph image. Empty glyphs (spaces) have no image.
type glyph struct {
	handle atlas.Handle
	offset image.Point
	empty  bool
}

// placedGlyph is a glyph positioned on the canvas.
type placedGlyph struct {
	glyph
	origin mgl32.Vec2
}

// glyphs shapes text and keeps rasterized glyphs in a texture atlas. A
// glyph evicted from the cache is removed from the atlas, so the cache
// limit must exceed the distinct glyphs of one frame.
type glyphs struct {
	face     *font.Face
	outlines *sfnt.Font
	buf      sfnt.Buffer
	shaper   shaping.HarfbuzzShaper
	cache    *cache.Cache[glyphKey, glyph]
	atlas    *atlas.TextureAtlas
}

func newGlyphs(data []byte, limit int, a *atlas.TextureAtlas) (*glyphs, error) {
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse font: %w", rendergraph.ErrConfiguration, err)
	}
	outlines, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse font outlines: %w", rendergraph.ErrConfiguration, err)
	}
	g := &glyphs{
		face:     face,
		outlines: outlines,
		cache:    cache.New[glyphKey, glyph](limit),
		atlas:    a,
	}
	g.cache.OnEvict(func(_ glyphKey, gl glyph) {
		if !gl.empty {
			_ = a.Remove(gl.handle)
		}
	})
	return g, nil
}

// layout shapes t and returns its glyphs positioned in canvas pixels.
// New glyphs are rasterized and added to the atlas.
func (g *glyphs) layout(t *Text) ([]placedGlyph, error) {
	text := norm.NFC.String(t.Text)
	if text == "" || t.Size <= 0 {
		return nil, nil
	}
	size := uint16(math.Round(float64(t.Size)))
	if size == 0 {
		return nil, nil
	}

	var out []placedGlyph
	pen := t.Position
	for _, run := range bidiRuns(text) {
		runes := []rune(run.text)
		input := shaping.Input{
			Text:      runes,
			RunStart:  0,
			RunEnd:    len(runes),
			Direction: run.dir,
			Face:      g.face,
			Size:      fixed.I(int(size)),
			Script:    detectScript(runes),
			Language:  language.NewLanguage("en"),
		}
		shaped := g.shaper.Shape(input)
		for _, sg := range shaped.Glyphs {
			key := glyphKey{id: uint32(sg.GlyphID), size: size}
			gl, err := g.cache.GetOrCreate(key, func() (glyph, error) { return g.rasterize(key) })
			if err != nil {
				return nil, err
			}
			origin := mgl32.Vec2{
				pen.X() + float32(sg.XOffset)/64,
				pen.Y() - float32(sg.YOffset)/64,
			}
			if !gl.empty {
				out = append(out, placedGlyph{glyph: gl, origin: origin})
			}
			pen[0] += float32(sg.Advance) / 64
		}
	}
	return out, nil
}

// rasterize renders the outline of a glyph into an RGBA image with the
// coverage in every channel and stores it in the atlas.
func (g *glyphs) rasterize(key glyphKey) (glyph, error) {
	segs, err := g.outlines.LoadGlyph(&g.buf, sfnt.GlyphIndex(key.id), fixed.I(int(key.size)), nil)
	if errors.Is(err, sfnt.ErrColoredGlyph) || (err == nil && len(segs) == 0) {
		return glyph{empty: true}, nil
	}
	if err != nil {
		return glyph{}, fmt.Errorf("passes: load glyph %d: %w", key.id, err)
	}
	b := segs.Bounds()
	minX, minY := b.Min.X.Floor(), b.Min.Y.Floor()
	w, h := b.Max.X.Ceil()-minX, b.Max.Y.Ceil()-minY
	if w <= 0 || h <= 0 {
		return glyph{empty: true}, nil
	}

	pt := func(p fixed.Point26_6) (float32, float32) {
		return float32(p.X)/64 - float32(minX), float32(p.Y)/64 - float32(minY)
	}
	r := vector.NewRasterizer(w, h)
	open := false
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			if open {
				r.ClosePath()
			}
			r.MoveTo(pt(s.Args[0]))
			open = true
		case sfnt.SegmentOpLineTo:
			r.LineTo(pt(s.Args[0]))
		case sfnt.SegmentOpQuadTo:
			bx, by := pt(s.Args[0])
			cx, cy := pt(s.Args[1])
			r.QuadTo(bx, by, cx, cy)
		case sfnt.SegmentOpCubeTo:
			bx, by := pt(s.Args[0])
			cx, cy := pt(s.Args[1])
			dx, dy := pt(s.Args[2])
			r.CubeTo(bx, by, cx, cy, dx, dy)
		}
	}
	if open {
		r.ClosePath()
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	r.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	img := image.NewRGBA(mask.Bounds())
	draw.DrawMask(img, img.Bounds(), image.White, image.Point{}, mask, image.Point{}, draw.Src)
	handle, err := g.atlas.Add(img)
	if err != nil {
		return glyph{}, fmt.Errorf("passes: store glyph %d at %dpx: %w", key.id, key.size, err)
	}
	return glyph{handle: handle, offset: image.Point{X: minX, Y: minY}}, nil
}

// reset forgets every cached glyph. Their atlas images are left in place.
func (g *glyphs) reset() {
	g.cache.Clear()
}

type textRun struct {
	text string
	dir  di.Direction
}

// bidiRuns splits text into directional runs in visual order.
func bidiRuns(text string) []textRun {
	var p bidi.Paragraph
	if _, err := p.SetString(text); err != nil {
		return []textRun{{text: text, dir: di.DirectionLTR}}
	}
	ordering, err := p.Order()
	if err != nil {
		return []textRun{{text: text, dir: di.DirectionLTR}}
	}
	runs := make([]textRun, 0, ordering.NumRuns())
	for i := range ordering.NumRuns() {
		run := ordering.Run(i)
		dir := di.DirectionLTR
		if run.Direction() == bidi.RightToLeft {
			dir = di.DirectionRTL
		}
		runs = append(runs, textRun{text: run.String(), dir: dir})
	}
	return runs
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}
