// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rgdemo renders a small scene with the standard passes on the
// software runtime and saves the back buffer and the canvas glyph atlas
// as PNG files.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/backend/software"
	"github.com/gogpu/rendergraph/passes"
)

func main() {
	var (
		width   = flag.Int("width", 800, "back buffer width")
		height  = flag.Int("height", 600, "back buffer height")
		frames  = flag.Int("frames", 3, "frames to execute")
		output  = flag.String("output", "rgdemo.png", "back buffer output file")
		glyphs  = flag.String("atlas", "", "glyph atlas output file, empty to skip")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	rendergraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*width, *height, *frames, *output, *glyphs); err != nil {
		log.Fatal(err)
	}
}

func run(width, height, frames int, output, glyphs string) error {
	reg := backend.NewRegistry(backend.Software)
	reg.Register(backend.Software, backend.SoftwareFactory(software.Config{ValidateShaders: true}))
	opened, err := reg.Open(backend.Software)
	if err != nil {
		return err
	}
	rt := opened.(*software.Runtime)
	s, err := rendergraph.NewScheduler(rt, rendergraph.WithLabel("rgdemo"))
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Resize(rendergraph.Size{Width: width, Height: height}); err != nil {
		return err
	}

	meshes := atlas.NewMeshAllocator(atlas.MeshConfig{Label: "meshes"})
	if _, err := meshes.AllocateMesh("cube", cube()); err != nil {
		return err
	}
	cfg := scene(float32(width) / float32(height))
	canvas, err := passes.NewCanvas(cfg, passes.CanvasConfig{})
	if err != nil {
		return err
	}
	g, err := s.AddGraph(
		passes.NewGeometry(cfg, meshes),
		passes.NewShadowMapping(cfg),
		passes.NewConstruction(cfg),
		passes.NewDeferredLighting(cfg),
		passes.NewForwardLighting(cfg),
		canvas,
		passes.NewCompositing(cfg),
	)
	if err != nil {
		return err
	}

	for f := range frames {
		angle := float32(f) * math.Pi / 8
		cfg.Instances[0].Model = mgl32.HomogRotate3DY(angle)
		cfg.Texts[0].Text = fmt.Sprintf("frame %d", f)
		if err := s.Execute(g); err != nil {
			return err
		}
	}
	slog.Info("rgdemo: done", "scheduler", fmt.Sprintf("%+v", s.Stats()), "runtime", rt.Stats())

	obj, err := s.Object(g, s.BackBuffer())
	if err != nil {
		return err
	}
	img, err := rt.TextureImage(obj, 0)
	if err != nil {
		return err
	}
	if err := savePNG(output, img); err != nil {
		return err
	}
	if glyphs == "" {
		return nil
	}
	return saveGlyphs(s, rt, g, canvas, glyphs)
}

// saveGlyphs writes the first layer of the first non-empty atlas bucket.
func saveGlyphs(s *rendergraph.Scheduler, rt *software.Runtime, g rendergraph.GraphHandle, c *passes.Canvas, path string) error {
	for level := range c.Atlas().Resolutions() {
		tex, ok := c.Atlas().Texture(atlas.Handle{Level: level})
		if !ok {
			continue
		}
		obj, err := s.Object(g, tex)
		if err != nil {
			return err
		}
		img, err := rt.TextureImage(obj, 0)
		if err != nil {
			return err
		}
		return savePNG(path, img)
	}
	return fmt.Errorf("rgdemo: the atlas holds no glyphs")
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	slog.Info("rgdemo: saved", "file", path)
	return f.Close()
}

func scene(aspect float32) *passes.RenderConfiguration {
	return &passes.RenderConfiguration{
		Camera:     passes.LookAt(mgl32.Vec3{3, 3, 5}, mgl32.Vec3{}, mgl32.DegToRad(50), aspect, 0.1, 50),
		Ambient:    mgl32.Vec3{0.08, 0.08, 0.1},
		Background: gputypes.Color{R: 0.1, G: 0.12, B: 0.18, A: 1},
		Lights: []passes.Light{
			{ID: 1, Kind: passes.LightDirectional, Direction: mgl32.Vec3{-0.4, -1, -0.3}, Color: mgl32.Vec3{1, 0.95, 0.9}, Intensity: 1, Range: 20, CastsShadow: true},
			{ID: 2, Kind: passes.LightPoint, Position: mgl32.Vec3{-2, 2, 2}, Color: mgl32.Vec3{0.3, 0.5, 1}, Intensity: 2, Range: 8},
		},
		Instances: []passes.MeshInstance{
			{Mesh: "cube", Model: mgl32.Ident4(), Color: mgl32.Vec4{0.9, 0.5, 0.2, 1}},
			{Mesh: "cube", Model: mgl32.Translate3D(0, -1.5, 0).Mul4(mgl32.Scale3D(6, 0.5, 6)), Color: mgl32.Vec4{0.6, 0.6, 0.6, 1}},
			{Mesh: "cube", Model: mgl32.Translate3D(1.8, 0, 0.5), Color: mgl32.Vec4{0.2, 0.8, 0.4, 0.4}, Transparent: true},
		},
		Texts: []passes.Text{
			{Position: mgl32.Vec2{16, 32}, Size: 24, Color: mgl32.Vec4{1, 1, 1, 1}},
		},
	}
}

// cube returns a unit cube with per-face normals in the mesh vertex layout.
func cube() atlas.MeshData {
	faces := []struct{ n, u, v mgl32.Vec3 }{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	var d atlas.MeshData
	for _, f := range faces {
		base := d.VertexCount
		for _, c := range [][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5)
			for _, x := range []float32{p[0], p[1], p[2], f.n[0], f.n[1], f.n[2], (c[0] + 1) / 2, (c[1] + 1) / 2} {
				d.Vertices = binary.LittleEndian.AppendUint32(d.Vertices, math.Float32bits(x))
			}
		}
		d.VertexCount += 4
		d.Indices = append(d.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return d
}
