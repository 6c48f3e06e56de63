// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"testing"

	"github.com/gogpu/rendergraph"
)

const spriteSource = `
struct Camera {
    view_proj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(0) @binding(1) var<storage, read> tints: array<vec4<f32>>;
@group(0) @binding(2) var atlas: texture_2d_array<f32>;
@group(0) @binding(3) var atlas_sampler: sampler;

@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return camera.view_proj * vec4<f32>(pos, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    let c = textureSample(atlas, atlas_sampler, vec2<f32>(0.5, 0.5), 0);
    return c * tints[0];
}
`

const fillSource = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}
`

func TestReflect(t *testing.T) {
	r, err := Reflect(spriteSource)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}

	tests := []struct {
		binding  uint32
		typ      ResourceType
		readOnly bool
	}{
		{0, ResourceUniform, false},
		{1, ResourceStorage, true},
		{2, ResourceTextureArray, false},
		{3, ResourceSampler, false},
	}
	for _, tt := range tests {
		res, ok := r.Lookup(0, tt.binding)
		if !ok {
			t.Errorf("binding %d not reflected", tt.binding)
			continue
		}
		if res.Type != tt.typ || res.ReadOnly != tt.readOnly {
			t.Errorf("binding %d = %s (read-only %v), want %s (read-only %v)",
				tt.binding, res.Type, res.ReadOnly, tt.typ, tt.readOnly)
		}
	}
	if r.EntryPoints["vs_main"] != StageVertex || r.EntryPoints["fs_main"] != StageFragment {
		t.Errorf("entry points = %v", r.EntryPoints)
	}
	if got := len(r.Group(0)); got != 4 {
		t.Errorf("Group(0) has %d resources, want 4", got)
	}
}

func TestReflectInvalidSource(t *testing.T) {
	if _, err := Reflect("fn broken( {"); !errors.Is(err, ErrCompile) {
		t.Errorf("err = %v, want ErrCompile", err)
	}
}

func TestCompile(t *testing.T) {
	words, err := Compile(fillSource)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("missing SPIR-V magic number")
	}
}

func TestCache(t *testing.T) {
	c := NewCache(8)
	a, err := c.Reflect(fillSource)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Reflect(fillSource)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second Reflect did not hit the cache")
	}
	refl, _ := c.Stats()
	if refl.Hits != 1 || refl.Misses != 1 {
		t.Errorf("reflection stats = %+v", refl)
	}
}

func spriteReflection() *Reflection {
	return &Reflection{
		Resources: []Resource{
			{Name: "camera", Binding: 0, Type: ResourceUniform},
			{Name: "atlas", Binding: 1, Type: ResourceTextureArray},
			{Name: "atlas_sampler", Binding: 2, Type: ResourceSampler},
		},
		EntryPoints: map[string]Stage{"vs_main": StageVertex, "fs_main": StageFragment, "cs": StageCompute},
	}
}

func TestValidate(t *testing.T) {
	valid := rendergraph.PipelineDesc{
		Label:         "sprites",
		Source:        "unused",
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Bindings: []rendergraph.BindingSlot{
			{Slot: 0, Type: rendergraph.BindingUniformBuffer},
			{Slot: 1, Type: rendergraph.BindingTextureArray},
		},
	}

	tests := []struct {
		name   string
		modify func(d *rendergraph.PipelineDesc)
		ok     bool
	}{
		{"valid", func(*rendergraph.PipelineDesc) {}, true},
		{"missing entry", func(d *rendergraph.PipelineDesc) { d.FragmentEntry = "nope" }, false},
		{"wrong stage", func(d *rendergraph.PipelineDesc) { d.VertexEntry = "fs_main" }, false},
		{"type mismatch", func(d *rendergraph.PipelineDesc) {
			d.Bindings = []rendergraph.BindingSlot{
				{Slot: 0, Type: rendergraph.BindingStorageBuffer},
				{Slot: 1, Type: rendergraph.BindingTextureArray},
			}
		}, false},
		{"slot without variable", func(d *rendergraph.PipelineDesc) {
			d.Bindings = append(d.Bindings, rendergraph.BindingSlot{Slot: 7, Type: rendergraph.BindingTexture})
		}, false},
		{"undeclared variable", func(d *rendergraph.PipelineDesc) { d.Bindings = d.Bindings[:1] }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			d.Bindings = append([]rendergraph.BindingSlot(nil), valid.Bindings...)
			tt.modify(&d)
			err := Validate(&d, spriteReflection())
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, rendergraph.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}
