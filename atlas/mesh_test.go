// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/atlas"
)

// quad returns a 4-vertex mesh with 4-byte vertices filled with fill.
func quad(fill byte) atlas.MeshData {
	return atlas.MeshData{
		Vertices:    bytes.Repeat([]byte{fill}, 16),
		VertexCount: 4,
		Indices:     []uint32{0, 1, 2, 2, 3, 0},
	}
}

func TestMeshRefCounting(t *testing.T) {
	m := atlas.NewMeshAllocator(atlas.MeshConfig{VertexStride: 4})
	a1, err := m.AllocateMesh("a", quad(1))
	if err != nil {
		t.Fatal(err)
	}
	a2, err := m.AllocateMesh("a", quad(9))
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Errorf("second reference moved the mesh: %+v vs %+v", a1, a2)
	}
	if err := m.DeallocateMesh("a"); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatalf("mesh freed with a reference left")
	}
	if err := m.DeallocateMesh("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeallocateMesh("a"); !errors.Is(err, atlas.ErrUnknownMesh) {
		t.Errorf("err = %v, want ErrUnknownMesh", err)
	}
}

func TestMeshRegionReuse(t *testing.T) {
	m := atlas.NewMeshAllocator(atlas.MeshConfig{VertexStride: 4})
	a, _ := m.AllocateMesh("a", quad(1))
	b, _ := m.AllocateMesh("b", quad(2))
	if a.BaseVertex != 0 || b.BaseVertex != 4 || b.DrawCall.FirstIndex != 6 {
		t.Fatalf("packing: a = %+v, b = %+v", a, b)
	}
	if err := m.DeallocateMesh("a"); err != nil {
		t.Fatal(err)
	}
	c, err := m.AllocateMesh("c", quad(3))
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseVertex != 0 || c.DrawCall.FirstIndex != 0 || c.DrawCall.IndexCount != 6 {
		t.Errorf("c = %+v, want the region a freed", c)
	}
}

func TestMeshValidation(t *testing.T) {
	m := atlas.NewMeshAllocator(atlas.MeshConfig{VertexStride: 4})
	bad := []atlas.MeshData{
		{},
		{Vertices: make([]byte, 15), VertexCount: 4, Indices: []uint32{0}},
		{Vertices: make([]byte, 16), VertexCount: 4, Indices: []uint32{4}},
	}
	for i, d := range bad {
		if _, err := m.AllocateMesh("bad", d); !errors.Is(err, rendergraph.ErrConfiguration) {
			t.Errorf("case %d: err = %v, want ErrConfiguration", i, err)
		}
	}
}

// meshPass uploads the allocator every frame.
type meshPass struct {
	meshes *atlas.MeshAllocator
	allocs map[string]atlas.MeshAllocation
}

func (p *meshPass) Name() string                          { return "meshes" }
func (p *meshPass) ShouldRebuild(rendergraph.Size) bool   { return p.meshes.ShouldRebuild() }
func (p *meshPass) Recreate(b *rendergraph.Builder) error { return p.Create(b) }
func (p *meshPass) Create(b *rendergraph.Builder) error {
	if err := p.meshes.Declare(b); err != nil {
		return err
	}
	pass := b.AddPass("mesh upload", func(ctx *rendergraph.Context) error {
		var err error
		p.allocs, err = p.meshes.Allocations(ctx)
		return err
	})
	return p.meshes.ReadWrite(b, pass)
}

func TestMeshBufferGrowthPreservesData(t *testing.T) {
	s, rt := newScheduler(t)
	m := atlas.NewMeshAllocator(atlas.MeshConfig{VertexStride: 4, MinVertices: 4, MinIndices: 6})
	pass := &meshPass{meshes: m}
	g, err := s.AddGraph(pass)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.AllocateMesh("a", quad(0xAA)); err != nil {
		t.Fatal(err)
	}
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pass.ShouldRebuild(s.BackBufferSize()) {
		t.Fatal("allocator fits and should not rebuild")
	}

	if _, err := m.AllocateMesh("b", quad(0xBB)); err != nil {
		t.Fatal(err)
	}
	if !pass.ShouldRebuild(s.BackBufferSize()) {
		t.Fatal("second mesh overflows the buffers and should rebuild")
	}
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute after growth: %v", err)
	}
	if got := s.Stats().Migrations; got != 2 {
		t.Errorf("Migrations = %d, want 2", got)
	}

	vb, ib := m.Buffers()
	vobj, err := s.Object(g, vb)
	if err != nil {
		t.Fatal(err)
	}
	vertices, err := rt.ReadBuffer(vobj, 0, 32)
	if err != nil {
		t.Fatal(err)
	}
	want := append(bytes.Repeat([]byte{0xAA}, 16), bytes.Repeat([]byte{0xBB}, 16)...)
	if !bytes.Equal(vertices, want) {
		t.Errorf("vertex buffer = %x, want %x", vertices, want)
	}

	iobj, err := s.Object(g, ib)
	if err != nil {
		t.Fatal(err)
	}
	indices, err := rt.ReadBuffer(iobj, 0, 48)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []uint32{0, 1, 2, 2, 3, 0, 0, 1, 2, 2, 3, 0} {
		if got := binary.LittleEndian.Uint32(indices[i*4:]); got != want {
			t.Errorf("index %d = %d, want %d", i, got, want)
		}
	}
	if b := pass.allocs["b"]; b.BaseVertex != 4 || b.DrawCall.FirstIndex != 6 {
		t.Errorf("allocation b = %+v", b)
	}
}

func TestMeshUploadSurvivesAbortedFrame(t *testing.T) {
	s, rt := newScheduler(t)
	m := atlas.NewMeshAllocator(atlas.MeshConfig{VertexStride: 4, MinVertices: 8, MinIndices: 12})
	pass := &meshPass{meshes: m}
	failing := &failingPass{}
	g, err := s.AddGraph(pass, failing)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.AllocateMesh("a", quad(0xAA)); err != nil {
		t.Fatal(err)
	}
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := m.AllocateMesh("b", quad(0xBB)); err != nil {
		t.Fatal(err)
	}
	if pass.ShouldRebuild(s.BackBufferSize()) {
		t.Fatal("second mesh fits and should not rebuild")
	}

	failing.fail = true
	if err := s.Execute(g); !errors.Is(err, errFrame) {
		t.Fatalf("err = %v, want the pass error", err)
	}
	failing.fail = false
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute after abort: %v", err)
	}

	vb, _ := m.Buffers()
	obj, err := s.Object(g, vb)
	if err != nil {
		t.Fatal(err)
	}
	vertices, err := rt.ReadBuffer(obj, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if want := bytes.Repeat([]byte{0xBB}, 16); !bytes.Equal(vertices, want) {
		t.Errorf("mesh b vertices = %x, want %x", vertices, want)
	}
}
