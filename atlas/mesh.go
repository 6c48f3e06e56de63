// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// ErrUnknownMesh is returned when deallocating a mesh URI that is not
// allocated.
var ErrUnknownMesh = errors.New("atlas: unknown mesh")

// indexSize is the byte size of one index; the index buffer is Uint32.
const indexSize = 4

// MeshConfig configures a MeshAllocator.
type MeshConfig struct {
	// Label prefixes the labels of the backing buffers.
	Label string

	// VertexStride is the byte size of one vertex. Defaults to 32.
	VertexStride uint32

	// MinVertices and MinIndices are the initial buffer capacities in
	// elements. They default to 1024 and 4096.
	MinVertices uint32
	MinIndices  uint32
}

// MeshData is the geometry of one mesh.
type MeshData struct {
	// Vertices holds VertexCount vertices of VertexStride bytes each.
	Vertices    []byte
	VertexCount uint32

	// Indices index into Vertices.
	Indices []uint32
}

// DrawCall is the index range of an indexed draw.
type DrawCall struct {
	IndexCount uint32
	FirstIndex uint32
}

// MeshAllocation locates a mesh inside the shared buffers.
type MeshAllocation struct {
	DrawCall    DrawCall
	BaseVertex  int32
	VertexCount uint32
}

type mesh struct {
	refs     int
	vertices span
	indices  span
	data     MeshData
}

func (m *mesh) allocation() MeshAllocation {
	return MeshAllocation{
		DrawCall:    DrawCall{IndexCount: m.indices.len(), FirstIndex: m.indices.start},
		BaseVertex:  int32(m.vertices.start),
		VertexCount: m.vertices.len(),
	}
}

// MeshAllocator packs meshes into one vertex and one index buffer. Meshes
// are reference counted by URI; a mesh's ranges are freed when its last
// reference is released and reused first-fit by later meshes. The
// buffers grow to the next power of two when the meshes no longer fit,
// copying their contents forward.
type MeshAllocator struct {
	cfg      MeshConfig
	meshes   map[string]*mesh
	vertices spanList
	indices  spanList
	pending  map[string]bool

	vb, ib     rendergraph.Resource
	vcap, icap uint32
}

// NewMeshAllocator creates an empty allocator.
func NewMeshAllocator(cfg MeshConfig) *MeshAllocator {
	if cfg.VertexStride == 0 {
		cfg.VertexStride = 32
	}
	if cfg.MinVertices == 0 {
		cfg.MinVertices = 1024
	}
	if cfg.MinIndices == 0 {
		cfg.MinIndices = 4096
	}
	if cfg.Label == "" {
		cfg.Label = "mesh"
	}
	return &MeshAllocator{
		cfg:     cfg,
		meshes:  make(map[string]*mesh),
		pending: make(map[string]bool),
	}
}

// VertexStride returns the configured vertex size in bytes.
func (m *MeshAllocator) VertexStride() uint32 {
	return m.cfg.VertexStride
}

// Len returns the number of allocated meshes.
func (m *MeshAllocator) Len() int {
	return len(m.meshes)
}

// AllocateMesh adds a reference to the mesh at uri, storing data when the
// mesh is not allocated yet. data is ignored for meshes already present.
func (m *MeshAllocator) AllocateMesh(uri string, data MeshData) (MeshAllocation, error) {
	if me, ok := m.meshes[uri]; ok {
		me.refs++
		return me.allocation(), nil
	}
	if err := m.validate(uri, &data); err != nil {
		return MeshAllocation{}, err
	}
	me := &mesh{
		refs:     1,
		vertices: m.vertices.alloc(data.VertexCount),
		indices:  m.indices.alloc(uint32(len(data.Indices))),
		data:     data,
	}
	m.meshes[uri] = me
	m.pending[uri] = true
	rendergraph.Logger().Debug("atlas: mesh allocated", "uri", uri,
		"vertices", me.vertices.len(), "base_vertex", me.vertices.start,
		"indices", me.indices.len(), "first_index", me.indices.start)
	return me.allocation(), nil
}

func (m *MeshAllocator) validate(uri string, d *MeshData) error {
	if d.VertexCount == 0 || len(d.Indices) == 0 {
		return fmt.Errorf("%w: mesh %q is empty", rendergraph.ErrConfiguration, uri)
	}
	if want := uint64(d.VertexCount) * uint64(m.cfg.VertexStride); uint64(len(d.Vertices)) != want {
		return fmt.Errorf("%w: mesh %q has %d vertex bytes, want %d", rendergraph.ErrConfiguration, uri, len(d.Vertices), want)
	}
	for i, idx := range d.Indices {
		if idx >= d.VertexCount {
			return fmt.Errorf("%w: mesh %q index %d is %d, mesh has %d vertices",
				rendergraph.ErrConfiguration, uri, i, idx, d.VertexCount)
		}
	}
	return nil
}

// DeallocateMesh releases a reference to the mesh at uri and frees its
// ranges when none are left.
func (m *MeshAllocator) DeallocateMesh(uri string) error {
	me, ok := m.meshes[uri]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMesh, uri)
	}
	me.refs--
	if me.refs > 0 {
		return nil
	}
	m.vertices.release(me.vertices)
	m.indices.release(me.indices)
	delete(m.meshes, uri)
	delete(m.pending, uri)
	return nil
}

// ShouldRebuild reports whether the allocated meshes no longer fit the
// declared buffers.
func (m *MeshAllocator) ShouldRebuild() bool {
	return !m.vb.IsValid() || m.vertices.used > m.vcap || m.indices.used > m.icap
}

func capacity(used, current, minimum uint32) uint32 {
	if used <= current {
		return current
	}
	return max(minimum, uint32(1)<<bits.Len32(used-1))
}

// Declare declares the vertex and index buffers in a build. Buffers that
// still fit are inherited, undersized ones are grown with their contents
// copied forward. When the previous buffers are gone every mesh is
// uploaded again.
func (m *MeshAllocator) Declare(b *rendergraph.Builder) error {
	vb, vcap, err := m.declare(b, m.vb, m.vcap, m.vertices.used, m.cfg.MinVertices, uint64(m.cfg.VertexStride),
		rendergraph.BufferDesc{Label: m.cfg.Label + " vertices", Usage: rendergraph.VertexBufferUsage})
	if err != nil {
		return err
	}
	ib, icap, err := m.declare(b, m.ib, m.icap, m.indices.used, m.cfg.MinIndices, indexSize,
		rendergraph.BufferDesc{Label: m.cfg.Label + " indices", Usage: rendergraph.IndexBufferUsage})
	if err != nil {
		return err
	}
	m.vb, m.vcap, m.ib, m.icap = vb, vcap, ib, icap
	return nil
}

func (m *MeshAllocator) declare(b *rendergraph.Builder, prev rendergraph.Resource, current, used, minimum uint32,
	elem uint64, desc rendergraph.BufferDesc) (rendergraph.Resource, uint32, error) {
	live := prev.IsValid() && b.IsLive(prev)
	if !live {
		current = 0
	}
	want := capacity(used, current, minimum)
	desc.Size = uint64(want) * elem

	var (
		r   rendergraph.Resource
		err error
	)
	switch {
	case live && want == current:
		r, err = b.InheritResource(prev)
	case live:
		rendergraph.Logger().Debug("atlas: growing mesh buffer", "label", desc.Label, "from", current, "to", want)
		r, err = b.GrowBuffer(prev, uint64(current)*elem, desc)
	default:
		r, err = b.CreateBuffer(desc)
		for uri := range m.meshes {
			m.pending[uri] = true
		}
	}
	if err != nil {
		return rendergraph.Resource{}, 0, fmt.Errorf("atlas: declare %s: %w", desc.Label, err)
	}
	return r, want, nil
}

// ReadWrite declares that pass reads and writes both buffers.
func (m *MeshAllocator) ReadWrite(b *rendergraph.Builder, pass rendergraph.PassHandle) error {
	if err := b.ReadWrite(pass, m.vb); err != nil {
		return fmt.Errorf("atlas: vertex buffer: %w", err)
	}
	if err := b.ReadWrite(pass, m.ib); err != nil {
		return fmt.Errorf("atlas: index buffer: %w", err)
	}
	return nil
}

// Buffers returns the vertex and index buffers of the current build.
func (m *MeshAllocator) Buffers() (vertices, indices rendergraph.Resource) {
	return m.vb, m.ib
}

// IndexFormat returns the format of the index buffer.
func (m *MeshAllocator) IndexFormat() gputypes.IndexFormat {
	return gputypes.IndexFormatUint32
}

// Allocations uploads pending meshes and returns the allocation of every
// mesh by URI. Meshes that do not fit the current buffers stay pending
// until the graph is rebuilt and are left out of the result. Uploads are
// only considered done once the frame is submitted.
func (m *MeshAllocator) Allocations(ctx *rendergraph.Context) (map[string]MeshAllocation, error) {
	out := make(map[string]MeshAllocation, len(m.meshes))
	for uri, me := range m.meshes {
		if me.vertices.end > m.vcap || me.indices.end > m.icap {
			continue
		}
		if m.pending[uri] {
			if err := m.upload(ctx, me); err != nil {
				return nil, fmt.Errorf("atlas: upload mesh %q: %w", uri, err)
			}
			ctx.OnSubmit(func() {
				if m.meshes[uri] == me {
					delete(m.pending, uri)
				}
			})
		}
		out[uri] = me.allocation()
	}
	return out, nil
}

func (m *MeshAllocator) upload(ctx *rendergraph.Context, me *mesh) error {
	if err := ctx.UploadBuffer(m.vb, uint64(me.vertices.start)*uint64(m.cfg.VertexStride), me.data.Vertices); err != nil {
		return err
	}
	idx := make([]byte, 0, len(me.data.Indices)*indexSize)
	for _, i := range me.data.Indices {
		idx = binary.LittleEndian.AppendUint32(idx, i)
	}
	return ctx.UploadBuffer(m.ib, uint64(me.indices.start)*indexSize, idx)
}
