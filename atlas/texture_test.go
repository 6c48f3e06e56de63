// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
	"github.com/gogpu/rendergraph/backend/software"
)

func newAtlas(t *testing.T) *atlas.TextureAtlas {
	t.Helper()
	a, err := atlas.NewTextureAtlas(atlas.Config{})
	if err != nil {
		t.Fatalf("NewTextureAtlas: %v", err)
	}
	return a
}

func sized(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestBucketSelection(t *testing.T) {
	tests := []struct {
		w, h int
		want atlas.Resolution
	}{
		{1, 1, 8},
		{8, 8, 8},
		{9, 1, 16},
		{1, 9, 16},
		{64, 64, 64},
		{80, 40, 128},
		{128, 128, 128},
		{129, 1, 256},
		{16384, 16384, 16384},
	}
	for _, tt := range tests {
		a := newAtlas(t)
		h, err := a.Add(sized(tt.w, tt.h))
		if err != nil {
			t.Errorf("%dx%d: %v", tt.w, tt.h, err)
			continue
		}
		if got := a.Resolutions()[h.Level]; got != tt.want {
			t.Errorf("%dx%d placed in %d bucket, want %d", tt.w, tt.h, got, tt.want)
		}
		if h.Size != image.Pt(tt.w, tt.h) {
			t.Errorf("%dx%d handle size = %v", tt.w, tt.h, h.Size)
		}
	}
}

func TestAddRejects(t *testing.T) {
	a := newAtlas(t)
	for _, img := range []image.Image{sized(16385, 4), sized(0, 4)} {
		if _, err := a.Add(img); !errors.Is(err, rendergraph.ErrConfiguration) {
			t.Errorf("Add(%v) err = %v, want ErrConfiguration", img.Bounds(), err)
		}
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after rejected adds", a.Len())
	}
	if _, err := atlas.NewTextureAtlas(atlas.Config{Resolutions: []atlas.Resolution{64, 32}}); !errors.Is(err, rendergraph.ErrConfiguration) {
		t.Errorf("descending resolutions: err = %v", err)
	}
}

func TestSlotReuse(t *testing.T) {
	a := newAtlas(t)
	var hs []atlas.Handle
	for range 3 {
		h, err := a.Add(sized(100, 100))
		if err != nil {
			t.Fatal(err)
		}
		hs = append(hs, h)
	}
	for i, h := range hs {
		if h.Index != uint32(i) {
			t.Fatalf("handle %d index = %d", i, h.Index)
		}
	}

	if err := a.Remove(hs[1]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	h, err := a.Add(sized(70, 120))
	if err != nil {
		t.Fatal(err)
	}
	if h.Level != hs[1].Level || h.Index != 1 {
		t.Errorf("reused handle = %+v, want level %d index 1", h, hs[1].Level)
	}

	if err := a.Remove(hs[0]); err != nil {
		t.Fatal(err)
	}
	if err := a.Remove(hs[0]); !errors.Is(err, atlas.ErrUnknownHandle) {
		t.Errorf("double remove: err = %v, want ErrUnknownHandle", err)
	}
	if err := a.Remove(atlas.Handle{Level: 99}); !errors.Is(err, atlas.ErrUnknownHandle) {
		t.Errorf("unknown level: err = %v, want ErrUnknownHandle", err)
	}
	if err := a.Remove(atlas.Handle{Level: 0, Index: 5}); !errors.Is(err, atlas.ErrUnknownHandle) {
		t.Errorf("unknown index: err = %v, want ErrUnknownHandle", err)
	}
}

func TestScale(t *testing.T) {
	a := newAtlas(t)
	h, err := a.Add(sized(80, 40))
	if err != nil {
		t.Fatal(err)
	}
	s := a.Scale(h)
	if s.X() != 80.0/128 || s.Y() != 40.0/128 {
		t.Errorf("Scale = %v, want (0.625, 0.3125)", s)
	}
}

// atlasPass uploads the atlas every frame.
type atlasPass struct {
	atlas    *atlas.TextureAtlas
	textures map[atlas.Resolution]rendergraph.Resource
	runs     int
}

func (p *atlasPass) Name() string                          { return "atlas" }
func (p *atlasPass) ShouldRebuild(rendergraph.Size) bool   { return p.atlas.ShouldRebuild() }
func (p *atlasPass) Recreate(b *rendergraph.Builder) error { return p.Create(b) }
func (p *atlasPass) Create(b *rendergraph.Builder) error {
	if err := p.atlas.Declare(b); err != nil {
		return err
	}
	pass := b.AddPass("atlas upload", func(ctx *rendergraph.Context) error {
		p.runs++
		var err error
		p.textures, err = p.atlas.Textures(ctx)
		return err
	})
	return p.atlas.ReadWrite(b, pass)
}

func newScheduler(t *testing.T) (*rendergraph.Scheduler, *software.Runtime) {
	t.Helper()
	rt := software.New(software.Config{})
	s, err := rendergraph.NewScheduler(rt)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Resize(rendergraph.Size{Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rt
}

func TestAtlasUploadEndToEnd(t *testing.T) {
	s, rt := newScheduler(t)
	a := newAtlas(t)
	pass := &atlasPass{atlas: a}
	g, err := s.AddGraph(pass)
	if err != nil {
		t.Fatal(err)
	}

	red := image.NewUniform(color.RGBA{R: 255, A: 255})
	h, err := a.Add(&subImage{red, image.Rect(0, 0, 64, 64)})
	if err != nil {
		t.Fatal(err)
	}
	if a.Resolutions()[h.Level] != 64 {
		t.Fatalf("64x64 image in bucket %d", a.Resolutions()[h.Level])
	}
	if !pass.ShouldRebuild(s.BackBufferSize()) {
		t.Fatal("atlas with an image and no texture should rebuild")
	}

	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	tex, ok := pass.textures[64]
	if !ok {
		t.Fatalf("textures = %v, want a 64 bucket", pass.textures)
	}
	obj, err := s.Object(g, tex)
	if err != nil {
		t.Fatal(err)
	}
	img, err := rt.TextureImage(obj, h.Index)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("texel (0,0) = %v, want red", got)
	}

	created := rt.Stats().Created
	for range 2 {
		if pass.ShouldRebuild(s.BackBufferSize()) {
			t.Fatal("ShouldRebuild reported true without changes")
		}
	}
	if err := s.Execute(g); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if got := rt.Stats().Created; got != created {
		t.Errorf("second frame created %d objects", got-created)
	}
	if pass.runs != 2 || s.Stats().Replays != 1 {
		t.Errorf("runs = %d, replays = %d", pass.runs, s.Stats().Replays)
	}
}

func TestAtlasGrowthReuploads(t *testing.T) {
	s, rt := newScheduler(t)
	a := newAtlas(t)
	pass := &atlasPass{atlas: a}
	g, _ := s.AddGraph(pass)

	colors := []color.RGBA{{R: 255, A: 255}, {G: 255, A: 255}, {B: 255, A: 255}}
	var hs []atlas.Handle
	add := func(c color.RGBA) {
		h, err := a.Add(&subImage{image.NewUniform(c), image.Rect(0, 0, 16, 16)})
		if err != nil {
			t.Fatal(err)
		}
		hs = append(hs, h)
	}

	add(colors[0])
	if err := s.Execute(g); err != nil {
		t.Fatal(err)
	}
	add(colors[1])
	add(colors[2])
	if !a.ShouldRebuild() {
		t.Fatal("third layer should require a rebuild")
	}
	if err := s.Execute(g); err != nil {
		t.Fatal(err)
	}
	if s.Stats().Builds != 2 {
		t.Errorf("Builds = %d, want 2", s.Stats().Builds)
	}

	obj, err := s.Object(g, pass.textures[16])
	if err != nil {
		t.Fatal(err)
	}
	if layers := obj.(*software.Texture).Desc().Layers; layers != 4 {
		t.Errorf("layers = %d, want 4", layers)
	}
	for i, h := range hs {
		img, err := rt.TextureImage(obj, h.Index)
		if err != nil {
			t.Fatal(err)
		}
		if got := img.RGBAAt(3, 3); got != colors[i] {
			t.Errorf("layer %d texel = %v, want %v", h.Index, got, colors[i])
		}
	}
}

// failingPass runs after the upload and fails the frame while fail is set.
type failingPass struct {
	fail bool
}

func (p *failingPass) Name() string                          { return "failing" }
func (p *failingPass) ShouldRebuild(rendergraph.Size) bool   { return false }
func (p *failingPass) Recreate(b *rendergraph.Builder) error { return p.Create(b) }
func (p *failingPass) Create(b *rendergraph.Builder) error {
	b.AddPass("failing", func(*rendergraph.Context) error {
		if p.fail {
			return errFrame
		}
		return nil
	})
	return nil
}

var errFrame = errors.New("frame failed")

func TestAtlasUploadSurvivesAbortedFrame(t *testing.T) {
	s, rt := newScheduler(t)
	a := newAtlas(t)
	pass := &atlasPass{atlas: a}
	failing := &failingPass{}
	g, err := s.AddGraph(pass, failing)
	if err != nil {
		t.Fatal(err)
	}

	blue := image.NewUniform(color.RGBA{B: 255, A: 255})
	if _, err := a.Add(&subImage{blue, image.Rect(0, 0, 8, 8)}); err != nil {
		t.Fatal(err)
	}
	second, err := a.Add(&subImage{blue, image.Rect(0, 0, 8, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The freed slot is reused without a rebuild.
	if err := a.Remove(second); err != nil {
		t.Fatal(err)
	}
	red := color.RGBA{R: 255, A: 255}
	h, err := a.Add(&subImage{image.NewUniform(red), image.Rect(0, 0, 8, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if h.Index != second.Index {
		t.Fatalf("index = %d, want the freed slot %d", h.Index, second.Index)
	}
	if a.ShouldRebuild() {
		t.Fatal("reusing a slot should not rebuild")
	}

	failing.fail = true
	if err := s.Execute(g); !errors.Is(err, errFrame) {
		t.Fatalf("err = %v, want the pass error", err)
	}
	failing.fail = false
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute after abort: %v", err)
	}

	obj, err := s.Object(g, pass.textures[8])
	if err != nil {
		t.Fatal(err)
	}
	img, err := rt.TextureImage(obj, h.Index)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(4, 4); got != red {
		t.Errorf("layer %d texel = %v, want %v", h.Index, got, red)
	}
	if st := s.Stats(); st.Builds != 1 || st.Aborted != 1 {
		t.Errorf("stats = %+v, want 1 build and 1 aborted frame", st)
	}
}

// subImage bounds an infinite image.
type subImage struct {
	image.Image
	r image.Rectangle
}

func (s *subImage) Bounds() image.Rectangle { return s.r }
