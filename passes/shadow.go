// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// ShadowFormat is the texel format of shadow maps.
const ShadowFormat = gputypes.TextureFormatDepth32Float

// ShadowMaps is what the ShadowMapping pass publishes in the Registry.
type ShadowMaps struct {
	// Depth is a depth array texture with one layer per shadow-casting
	// light, in light list order. It has at least one layer.
	Depth rendergraph.Resource

	// Matrices holds the clip transform of every layer, one per 256 bytes.
	Matrices rendergraph.Resource

	Layers uint32
}

func shadowMaps(b *rendergraph.Builder, pass string) (*ShadowMaps, error) {
	s, ok := rendergraph.Get[*ShadowMaps](b.Registry())
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a shadow mapping pass earlier in the graph", rendergraph.ErrConfiguration, pass)
	}
	return s, nil
}

// Read declares that pass reads the shadow maps and their matrices.
func (s *ShadowMaps) Read(b *rendergraph.Builder, pass rendergraph.PassHandle) error {
	if err := b.Read(pass, s.Depth); err != nil {
		return err
	}
	return b.Read(pass, s.Matrices)
}

// ShadowMapping renders the scene geometry into one depth layer per
// shadow-casting light. The graph is rebuilt when the set of shadow
// casters or the shadow resolution changes.
type ShadowMapping struct {
	cfg    *RenderConfiguration
	lights lightTracker

	resolution uint32
	layers     uint32
	depth      rendergraph.Resource
	matrices   rendergraph.Resource
	pipeline   rendergraph.Resource
	scene      *SceneGeometry
}

// NewShadowMapping creates the shadow pass for the lights of cfg.
func NewShadowMapping(cfg *RenderConfiguration) *ShadowMapping {
	return &ShadowMapping{cfg: cfg, lights: lightTracker{shadowOnly: true}}
}

// Name implements rendergraph.Pass.
func (s *ShadowMapping) Name() string { return "shadow mapping" }

// ShouldRebuild implements rendergraph.Pass.
func (s *ShadowMapping) ShouldRebuild(rendergraph.Size) bool {
	return s.lights.changed(s.cfg.Lights) || s.cfg.shadowResolution() != s.resolution
}

// Create implements rendergraph.Pass.
func (s *ShadowMapping) Create(b *rendergraph.Builder) error { return s.declare(b) }

// Recreate implements rendergraph.Pass.
func (s *ShadowMapping) Recreate(b *rendergraph.Builder) error { return s.declare(b) }

// Layers returns the layer count of the current shadow map array.
func (s *ShadowMapping) Layers() uint32 {
	return s.layers
}

func (s *ShadowMapping) declare(b *rendergraph.Builder) error {
	scene, err := sceneGeometry(b, s.Name())
	if err != nil {
		return err
	}
	set := s.lights.commit(s.cfg.Lights)
	layers := uint32(max(1, len(set.shadow)))
	res := s.cfg.shadowResolution()

	depth, err := b.InheritOrCreateTexture(s.depth, rendergraph.TextureDesc{
		Label:  "shadow maps",
		Width:  res,
		Height: res,
		Layers: layers,
		Format: ShadowFormat,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return err
	}
	matrices, err := b.InheritOrCreateBuffer(s.matrices, rendergraph.BufferDesc{
		Label: "shadow matrices",
		Size:  uint64(layers) * shadowStride,
		Usage: rendergraph.ShaderBufferUsage,
	})
	if err != nil {
		return err
	}
	pipeline, err := b.InheritOrCreatePipeline(s.pipeline, rendergraph.PipelineDesc{
		Label:         "shadow",
		Source:        shadowSource,
		VertexEntry:   "vs_main",
		Bindings:      []rendergraph.BindingSlot{{Slot: 0, Type: rendergraph.BindingUniformBuffer}},
		VertexBuffers: []gputypes.VertexBufferLayout{MeshVertexLayout, instanceLayout},
		DepthFormat:   ShadowFormat,
	})
	if err != nil {
		return err
	}
	s.depth, s.matrices, s.pipeline = depth, matrices, pipeline
	s.layers, s.resolution, s.scene = layers, res, scene

	pass := b.AddPass("shadow mapping", s.run)
	if err := b.Write(pass, depth); err != nil {
		return err
	}
	if err := b.ReadWrite(pass, matrices); err != nil {
		return err
	}
	if err := scene.Read(b, pass); err != nil {
		return err
	}
	rendergraph.Set(b.Registry(), &ShadowMaps{Depth: depth, Matrices: matrices, Layers: layers})
	return nil
}

func (s *ShadowMapping) run(ctx *rendergraph.Context) error {
	var casters []*Light
	for i := range s.cfg.Lights {
		if s.cfg.Lights[i].CastsShadow && uint32(len(casters)) < s.layers {
			casters = append(casters, &s.cfg.Lights[i])
		}
	}
	data := make([]byte, 0, int(s.layers)*shadowStride)
	for i := range int(s.layers) {
		m := mgl32.Ident4()
		if i < len(casters) {
			m = lightMatrix(casters[i])
		}
		data = appendMat4(data, m)
		data = append(data, make([]byte, shadowStride-64)...)
	}
	if err := ctx.UploadBuffer(s.matrices, 0, data); err != nil {
		return err
	}

	for layer := range s.layers {
		err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
			Label: "shadow map",
			Depth: &rendergraph.DepthAttachment{Texture: s.depth, Layer: layer, Clear: 1},
		})
		if err != nil {
			return err
		}
		if int(layer) < len(casters) {
			if err := s.draw(ctx, layer); err != nil {
				return err
			}
		}
		if err := ctx.EndRenderPass(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ShadowMapping) draw(ctx *rendergraph.Context, layer uint32) error {
	if err := ctx.BindPipeline(s.pipeline); err != nil {
		return err
	}
	view := rendergraph.UniformBufferBinding{Buffer: s.matrices, Offset: uint64(layer) * shadowStride, Size: 64}
	if err := ctx.Bind(0, view); err != nil {
		return err
	}
	return s.scene.Draw(ctx, nil)
}
