// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package passes

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
)

// minInstances is the smallest instance buffer capacity.
const minInstances = 64

// MeshDraw is one instanced draw of a mesh.
type MeshDraw struct {
	Mesh          string
	Allocation    atlas.MeshAllocation
	FirstInstance uint32
	InstanceCount uint32
	Transparent   bool
}

// SceneGeometry is what the Geometry pass publishes in the Registry for
// the passes that draw meshes. Its draw list is refreshed by the Geometry
// pass callback every frame, before any later pass runs.
type SceneGeometry struct {
	Vertices  rendergraph.Resource
	Indices   rendergraph.Resource
	Instances rendergraph.Resource

	IndexFormat gputypes.IndexFormat

	draws []MeshDraw
}

// Draws returns the draws of the current frame.
func (g *SceneGeometry) Draws() []MeshDraw {
	return g.draws
}

// Read declares that pass reads the vertex, index and instance buffers.
func (g *SceneGeometry) Read(b *rendergraph.Builder, pass rendergraph.PassHandle) error {
	for _, r := range []rendergraph.Resource{g.Vertices, g.Indices, g.Instances} {
		if err := b.Read(pass, r); err != nil {
			return err
		}
	}
	return nil
}

// Draw binds the scene buffers and issues every draw include accepts. A
// nil include draws everything. The pipeline must be bound and use
// MeshVertexLayout at vertex buffer 0 and the instance layout at 1.
func (g *SceneGeometry) Draw(ctx *rendergraph.Context, include func(*MeshDraw) bool) error {
	if err := ctx.BindVertexBuffer(0, g.Vertices, 0); err != nil {
		return err
	}
	if err := ctx.BindIndexBuffer(g.Indices, g.IndexFormat, 0); err != nil {
		return err
	}
	for i := range g.draws {
		d := &g.draws[i]
		if include != nil && !include(d) {
			continue
		}
		if err := ctx.BindVertexBuffer(1, g.Instances, uint64(d.FirstInstance)*instanceSize); err != nil {
			return err
		}
		dc := d.Allocation.DrawCall
		if err := ctx.DrawIndexed(dc.IndexCount, d.InstanceCount, dc.FirstIndex, d.Allocation.BaseVertex); err != nil {
			return err
		}
	}
	return nil
}

func sceneGeometry(b *rendergraph.Builder, pass string) (*SceneGeometry, error) {
	g, ok := rendergraph.Get[*SceneGeometry](b.Registry())
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a geometry pass earlier in the graph", rendergraph.ErrConfiguration, pass)
	}
	return g, nil
}

// Geometry uploads the meshes of a MeshAllocator and the instance data of
// the scene, and publishes both as a *SceneGeometry.
type Geometry struct {
	cfg    *RenderConfiguration
	meshes *atlas.MeshAllocator

	instances rendergraph.Resource
	capacity  int
	scene     *SceneGeometry
	missing   map[string]bool
}

// NewGeometry creates the geometry pass for the instances of cfg.
func NewGeometry(cfg *RenderConfiguration, meshes *atlas.MeshAllocator) *Geometry {
	return &Geometry{cfg: cfg, meshes: meshes, missing: make(map[string]bool)}
}

// Name implements rendergraph.Pass.
func (g *Geometry) Name() string { return "geometry" }

// ShouldRebuild requests a rebuild when the meshes no longer fit their
// buffers or the scene has more instances than the instance buffer.
func (g *Geometry) ShouldRebuild(rendergraph.Size) bool {
	return g.meshes.ShouldRebuild() || len(g.cfg.Instances) > g.capacity
}

// Create implements rendergraph.Pass.
func (g *Geometry) Create(b *rendergraph.Builder) error { return g.declare(b) }

// Recreate implements rendergraph.Pass.
func (g *Geometry) Recreate(b *rendergraph.Builder) error { return g.declare(b) }

func (g *Geometry) declare(b *rendergraph.Builder) error {
	if err := g.meshes.Declare(b); err != nil {
		return err
	}
	capacity := max(g.capacity, growCapacity(len(g.cfg.Instances), minInstances))
	inst, err := b.InheritOrCreateBuffer(g.instances, rendergraph.BufferDesc{
		Label: "instances",
		Size:  uint64(capacity) * instanceSize,
		Usage: rendergraph.VertexBufferUsage,
	})
	if err != nil {
		return err
	}
	g.instances, g.capacity = inst, capacity

	pass := b.AddPass("geometry upload", g.run)
	if err := g.meshes.ReadWrite(b, pass); err != nil {
		return err
	}
	if err := b.Write(pass, inst); err != nil {
		return err
	}
	vb, ib := g.meshes.Buffers()
	g.scene = &SceneGeometry{Vertices: vb, Indices: ib, Instances: inst, IndexFormat: g.meshes.IndexFormat()}
	rendergraph.Set(b.Registry(), g.scene)
	return nil
}

func (g *Geometry) run(ctx *rendergraph.Context) error {
	allocs, err := g.meshes.Allocations(ctx)
	if err != nil {
		return err
	}
	draws, data := g.batch(allocs)
	if err := ctx.UploadBuffer(g.instances, 0, data); err != nil {
		return err
	}
	g.scene.draws = draws
	return nil
}

// batch groups the scene instances into one draw per mesh and
// transparency, and packs their instance records in draw order.
func (g *Geometry) batch(allocs map[string]atlas.MeshAllocation) ([]MeshDraw, []byte) {
	order := make([]int, 0, len(g.cfg.Instances))
	for i := range g.cfg.Instances {
		uri := g.cfg.Instances[i].Mesh
		if _, ok := allocs[uri]; !ok {
			if !g.missing[uri] {
				g.missing[uri] = true
				rendergraph.Logger().Warn("passes: instance of unknown mesh skipped", "mesh", uri)
			}
			continue
		}
		order = append(order, i)
	}
	if len(order) > g.capacity {
		order = order[:g.capacity]
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ia, ib := &g.cfg.Instances[a], &g.cfg.Instances[b]
		if ia.Transparent != ib.Transparent {
			if ib.Transparent {
				return -1
			}
			return 1
		}
		return cmp.Compare(ia.Mesh, ib.Mesh)
	})

	var draws []MeshDraw
	data := make([]byte, 0, len(order)*instanceSize)
	for n, i := range order {
		inst := &g.cfg.Instances[i]
		data = appendMat4(data, inst.Model)
		data = appendVec4(data, inst.Color)
		last := len(draws) - 1
		if last >= 0 && draws[last].Mesh == inst.Mesh && draws[last].Transparent == inst.Transparent {
			draws[last].InstanceCount++
			continue
		}
		draws = append(draws, MeshDraw{
			Mesh:          inst.Mesh,
			Allocation:    allocs[inst.Mesh],
			FirstInstance: uint32(n),
			InstanceCount: 1,
			Transparent:   inst.Transparent,
		})
	}
	return draws, data
}
