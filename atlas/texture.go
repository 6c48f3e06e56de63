// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"math/bits"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/rendergraph"
)

// ErrUnknownHandle is returned when removing a handle that is not in the
// atlas, including a handle that was already removed.
var ErrUnknownHandle = errors.New("atlas: unknown texture handle")

// Resolution is the edge length in texels of a square bucket.
type Resolution uint32

// DefaultResolutions are the bucket sizes used when Config.Resolutions is
// empty: powers of two from 8 to 16384.
func DefaultResolutions() []Resolution {
	var out []Resolution
	for r := Resolution(8); r <= 16384; r *= 2 {
		out = append(out, r)
	}
	return out
}

// Config configures a TextureAtlas.
type Config struct {
	// Label prefixes the labels of the backing textures.
	Label string

	// Resolutions are the bucket sizes in ascending order.
	// Defaults to DefaultResolutions().
	Resolutions []Resolution

	// MinLayers is the smallest layer count of a backing texture.
	// Defaults to 1.
	MinLayers uint32
}

// Handle identifies an image stored in a TextureAtlas.
type Handle struct {
	// Index is the layer of the bucket's array texture.
	Index uint32
	// Level is the bucket index in the atlas resolutions.
	Level int
	// Size is the size of the original image.
	Size image.Point
}

type bucket struct {
	res      Resolution
	occupied []bool
	images   map[uint32]*image.RGBA
	pending  map[uint32]bool

	tex    rendergraph.Resource
	layers uint32
}

// required returns the number of layers needed to hold every occupied slot.
func (b *bucket) required() uint32 {
	for i := len(b.occupied) - 1; i >= 0; i-- {
		if b.occupied[i] {
			return uint32(i) + 1
		}
	}
	return 0
}

func (b *bucket) requeue() {
	for idx := range b.images {
		b.pending[idx] = true
	}
}

// TextureAtlas packs images into array textures, one per resolution
// bucket. An image goes to the smallest bucket it fits in and takes the
// lowest free layer there. A bucket's texture is created with enough
// layers for its highest occupied slot and recreated larger when it runs
// out.
type TextureAtlas struct {
	cfg     Config
	buckets []*bucket
	count   int
}

// NewTextureAtlas creates an empty atlas.
func NewTextureAtlas(cfg Config) (*TextureAtlas, error) {
	if len(cfg.Resolutions) == 0 {
		cfg.Resolutions = DefaultResolutions()
	}
	if !slices.IsSorted(cfg.Resolutions) || cfg.Resolutions[0] == 0 {
		return nil, fmt.Errorf("%w: atlas resolutions %v must be positive and ascending", rendergraph.ErrConfiguration, cfg.Resolutions)
	}
	if cfg.MinLayers == 0 {
		cfg.MinLayers = 1
	}
	if cfg.Label == "" {
		cfg.Label = "atlas"
	}
	a := &TextureAtlas{cfg: cfg}
	for _, r := range slices.Compact(slices.Clone(cfg.Resolutions)) {
		a.buckets = append(a.buckets, &bucket{
			res:     r,
			images:  make(map[uint32]*image.RGBA),
			pending: make(map[uint32]bool),
		})
	}
	return a, nil
}

// Resolutions returns the bucket sizes by level.
func (a *TextureAtlas) Resolutions() []Resolution {
	out := make([]Resolution, len(a.buckets))
	for i, b := range a.buckets {
		out[i] = b.res
	}
	return out
}

// Len returns the number of stored images.
func (a *TextureAtlas) Len() int {
	return a.count
}

// Add stores img and returns its handle. The image is converted to RGBA
// and uploaded by the next Textures call after the graph has a layer for
// it.
func (a *TextureAtlas) Add(img image.Image) (Handle, error) {
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return Handle{}, fmt.Errorf("%w: atlas image is empty", rendergraph.ErrConfiguration)
	}
	level := slices.IndexFunc(a.buckets, func(b *bucket) bool {
		return size.X <= int(b.res) && size.Y <= int(b.res)
	})
	if level < 0 {
		return Handle{}, fmt.Errorf("%w: %dx%d image exceeds the largest atlas bucket (%d)",
			rendergraph.ErrConfiguration, size.X, size.Y, a.buckets[len(a.buckets)-1].res)
	}
	b := a.buckets[level]

	idx := slices.Index(b.occupied, false)
	if idx < 0 {
		idx = len(b.occupied)
		b.occupied = append(b.occupied, true)
	} else {
		b.occupied[idx] = true
	}

	rgba := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	b.images[uint32(idx)] = rgba
	b.pending[uint32(idx)] = true
	a.count++

	rendergraph.Logger().Debug("atlas: image added", "size", size, "bucket", b.res, "index", idx)
	return Handle{Index: uint32(idx), Level: level, Size: size}, nil
}

// Remove frees the slot of h. The layer keeps its texels until the slot
// is reused.
func (a *TextureAtlas) Remove(h Handle) error {
	if h.Level < 0 || h.Level >= len(a.buckets) {
		return fmt.Errorf("%w: level %d", ErrUnknownHandle, h.Level)
	}
	b := a.buckets[h.Level]
	if int(h.Index) >= len(b.occupied) || !b.occupied[h.Index] {
		return fmt.Errorf("%w: %d in bucket %d", ErrUnknownHandle, h.Index, b.res)
	}
	b.occupied[h.Index] = false
	delete(b.images, h.Index)
	delete(b.pending, h.Index)
	a.count--
	return nil
}

// ShouldRebuild reports whether some bucket holds an image in a layer its
// texture does not have yet.
func (a *TextureAtlas) ShouldRebuild() bool {
	for _, b := range a.buckets {
		if b.required() > b.layers {
			return true
		}
	}
	return false
}

// Declare declares the backing textures in a build. Textures whose layer
// count still suffices are inherited; the others are created with the
// next power of two layers and every image of the bucket is uploaded
// again.
func (a *TextureAtlas) Declare(bld *rendergraph.Builder) error {
	maxLayers := bld.Capabilities().MaxTextureLayers
	for _, b := range a.buckets {
		need := b.required()
		if need == 0 {
			b.tex, b.layers = rendergraph.Resource{}, 0
			continue
		}
		layers := b.layers
		if need > layers {
			layers = max(a.cfg.MinLayers, uint32(1)<<bits.Len32(need-1))
			if maxLayers > 0 && layers > maxLayers {
				layers = max(need, maxLayers)
			}
		}
		desc := rendergraph.TextureDesc{
			Label:  fmt.Sprintf("%s %dx%d", a.cfg.Label, b.res, b.res),
			Width:  uint32(b.res),
			Height: uint32(b.res),
			Layers: layers,
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst |
				gputypes.TextureUsageCopySrc,
		}
		inherit := b.tex.IsValid() && layers == b.layers && bld.IsLive(b.tex)
		var (
			tex rendergraph.Resource
			err error
		)
		if inherit {
			tex, err = bld.InheritResource(b.tex)
		} else {
			tex, err = bld.CreateTexture(desc)
		}
		if err != nil {
			return fmt.Errorf("atlas: declare bucket %d: %w", b.res, err)
		}
		if !inherit {
			b.requeue()
			rendergraph.Logger().Debug("atlas: bucket texture created", "bucket", b.res, "layers", layers, "images", len(b.images))
		}
		b.tex, b.layers = tex, layers
	}
	return nil
}

// ReadWrite declares that pass reads and writes every backing texture.
func (a *TextureAtlas) ReadWrite(bld *rendergraph.Builder, pass rendergraph.PassHandle) error {
	for _, b := range a.buckets {
		if !b.tex.IsValid() {
			continue
		}
		if err := bld.ReadWrite(pass, b.tex); err != nil {
			return fmt.Errorf("atlas: bucket %d: %w", b.res, err)
		}
	}
	return nil
}

// Textures uploads pending images and returns the backing texture of
// every non-empty bucket. It must be called from a pass that declared
// ReadWrite, outside a render pass. Images stay pending until the frame
// is submitted, so an aborted frame uploads them again.
func (a *TextureAtlas) Textures(ctx *rendergraph.Context) (map[Resolution]rendergraph.Resource, error) {
	out := make(map[Resolution]rendergraph.Resource, len(a.buckets))
	for _, b := range a.buckets {
		if !b.tex.IsValid() {
			continue
		}
		for _, idx := range slices.Sorted(maps.Keys(b.pending)) {
			if idx >= b.layers {
				continue
			}
			img := b.images[idx]
			region := rendergraph.TextureRegion{
				Width:  uint32(img.Rect.Dx()),
				Height: uint32(img.Rect.Dy()),
				Layer:  idx,
			}
			if err := ctx.UploadTexture(b.tex, region, img.Pix); err != nil {
				return nil, fmt.Errorf("atlas: upload to bucket %d layer %d: %w", b.res, idx, err)
			}
			ctx.OnSubmit(func() {
				if b.images[idx] == img {
					delete(b.pending, idx)
				}
			})
		}
		out[b.res] = b.tex
	}
	return out, nil
}

// Texture returns the backing texture of the bucket h lives in.
func (a *TextureAtlas) Texture(h Handle) (rendergraph.Resource, bool) {
	if h.Level < 0 || h.Level >= len(a.buckets) {
		return rendergraph.Resource{}, false
	}
	t := a.buckets[h.Level].tex
	return t, t.IsValid()
}

// Scale returns the fraction of its bucket the image of h covers. Shaders
// multiply texture coordinates by it to stay inside the image.
func (a *TextureAtlas) Scale(h Handle) mgl32.Vec2 {
	if h.Level < 0 || h.Level >= len(a.buckets) {
		return mgl32.Vec2{}
	}
	res := float32(a.buckets[h.Level].res)
	return mgl32.Vec2{float32(h.Size.X) / res, float32(h.Size.Y) / res}
}
