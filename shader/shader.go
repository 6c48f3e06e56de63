// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL pipeline sources with naga and reflects
// their resource bindings so pipeline descriptors can be checked against
// the shader they reference.
//
// Binding slots of a rendergraph.PipelineDesc map to @group(0)
// @binding(slot) in WGSL. Samplers are implicit: runtimes bind a default
// sampler to every sampler variable, so they are never declared as slots.
package shader

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rendergraph/internal/cache"
)

// ErrCompile is returned when WGSL source fails to parse, lower or
// generate.
var ErrCompile = errors.New("shader: compile failed")

// ResourceType classifies a reflected resource variable.
type ResourceType uint8

const (
	ResourceUniform ResourceType = iota + 1
	ResourceStorage
	ResourceTexture
	ResourceTextureArray
	ResourceSampler
)

// String returns the resource type name.
func (t ResourceType) String() string {
	switch t {
	case ResourceUniform:
		return "uniform"
	case ResourceStorage:
		return "storage"
	case ResourceTexture:
		return "texture"
	case ResourceTextureArray:
		return "texture-array"
	case ResourceSampler:
		return "sampler"
	default:
		return fmt.Sprintf("ResourceType(%d)", uint8(t))
	}
}

// Resource is one bound variable of a shader module.
type Resource struct {
	Name    string
	Group   uint32
	Binding uint32
	Type    ResourceType

	// ReadOnly is set for var<storage, read>.
	ReadOnly bool
	// Depth is set for depth textures, Comparison for comparison samplers.
	Depth      bool
	Comparison bool
	// Size is the byte size of a buffer's struct type, or 0 if unknown.
	Size uint32
}

// Stage is a shader pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// Reflection lists the resources and entry points of a shader module.
type Reflection struct {
	Resources   []Resource
	EntryPoints map[string]Stage
}

// Lookup returns the resource bound at group/binding.
func (r *Reflection) Lookup(group, binding uint32) (Resource, bool) {
	for _, res := range r.Resources {
		if res.Group == group && res.Binding == binding {
			return res, true
		}
	}
	return Resource{}, false
}

// Group returns the resources of one bind group ordered by binding.
func (r *Reflection) Group(group uint32) []Resource {
	var out []Resource
	for _, res := range r.Resources {
		if res.Group == group {
			out = append(out, res)
		}
	}
	slices.SortFunc(out, func(a, b Resource) int { return int(a.Binding) - int(b.Binding) })
	return out
}

// Reflect parses WGSL source and returns its bound resources.
func Reflect(source string) (*Reflection, error) {
	mod, err := lower(source)
	if err != nil {
		return nil, err
	}
	return reflectModule(mod)
}

func lower(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return mod, nil
}

func reflectModule(mod *ir.Module) (*Reflection, error) {
	r := &Reflection{EntryPoints: make(map[string]Stage, len(mod.EntryPoints))}
	for _, ep := range mod.EntryPoints {
		switch ep.Stage {
		case ir.StageVertex:
			r.EntryPoints[ep.Name] = StageVertex
		case ir.StageFragment:
			r.EntryPoints[ep.Name] = StageFragment
		case ir.StageCompute:
			r.EntryPoints[ep.Name] = StageCompute
		}
	}
	for _, gv := range mod.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		res := Resource{Name: gv.Name, Group: gv.Binding.Group, Binding: gv.Binding.Binding}
		if int(gv.Type) >= len(mod.Types) {
			return nil, fmt.Errorf("%w: variable %q has unknown type %d", ErrCompile, gv.Name, gv.Type)
		}
		inner := mod.Types[gv.Type].Inner
		switch gv.Space {
		case ir.SpaceUniform:
			res.Type = ResourceUniform
			res.Size = structSize(inner)
		case ir.SpaceStorage:
			res.Type = ResourceStorage
			res.ReadOnly = gv.Access == ir.StorageRead
			res.Size = structSize(inner)
		case ir.SpaceHandle:
			if !classifyHandle(mod, inner, &res) {
				continue
			}
		default:
			continue
		}
		r.Resources = append(r.Resources, res)
	}
	return r, nil
}

func structSize(inner ir.TypeInner) uint32 {
	if st, ok := inner.(ir.StructType); ok {
		return st.Span
	}
	return 0
}

func classifyHandle(mod *ir.Module, inner ir.TypeInner, res *Resource) bool {
	switch t := inner.(type) {
	case ir.ImageType:
		if t.Class == ir.ImageClassStorage {
			return false
		}
		res.Type = ResourceTexture
		if t.Arrayed {
			res.Type = ResourceTextureArray
		}
		res.Depth = t.Class == ir.ImageClassDepth
		return true
	case ir.SamplerType:
		res.Type = ResourceSampler
		res.Comparison = t.Comparison
		return true
	case ir.BindingArrayType:
		if int(t.Base) < len(mod.Types) {
			if _, ok := mod.Types[t.Base].Inner.(ir.ImageType); ok {
				res.Type = ResourceTextureArray
				return true
			}
		}
	}
	return false
}

// Compile compiles WGSL source to SPIR-V words.
func Compile(source string) ([]uint32, error) {
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V size %d is not a multiple of 4", ErrCompile, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// Cache memoizes reflection and compilation by source hash. A Cache is
// safe for concurrent use.
type Cache struct {
	reflections *cache.Cache[[sha256.Size]byte, *Reflection]
	modules     *cache.Cache[[sha256.Size]byte, []uint32]
}

// NewCache creates a cache holding up to limit entries of each kind.
func NewCache(limit int) *Cache {
	return &Cache{
		reflections: cache.New[[sha256.Size]byte, *Reflection](limit),
		modules:     cache.New[[sha256.Size]byte, []uint32](limit),
	}
}

// Reflect returns the cached reflection of source.
func (c *Cache) Reflect(source string) (*Reflection, error) {
	return c.reflections.GetOrCreate(sha256.Sum256([]byte(source)), func() (*Reflection, error) {
		return Reflect(source)
	})
}

// Compile returns the cached SPIR-V of source.
func (c *Cache) Compile(source string) ([]uint32, error) {
	return c.modules.GetOrCreate(sha256.Sum256([]byte(source)), func() ([]uint32, error) {
		return Compile(source)
	})
}

// Stats returns the reflection and compilation cache counters.
func (c *Cache) Stats() (reflections, modules cache.Stats) {
	return c.reflections.Stats(), c.modules.Stats()
}
