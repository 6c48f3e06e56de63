// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/shader"
)

// Pipeline is a HAL render or compute pipeline together with the bind
// group layout derived from its shader.
//
// All slots live in bind group 0. Sampler variables of the shader are
// bound to the runtime's default samplers when bind groups are created.
type Pipeline struct {
	id         uint64
	desc       rendergraph.PipelineDesc
	reflection *shader.Reflection

	module      hal.ShaderModule
	groupLayout hal.BindGroupLayout
	layout      hal.PipelineLayout
	render      hal.RenderPipeline
	compute     hal.ComputePipeline

	samplers  []shader.Resource
	destroyed bool
}

// ID returns the runtime-unique object id.
func (p *Pipeline) ID() uint64 { return p.id }

// Desc returns the descriptor the pipeline was created with.
func (p *Pipeline) Desc() rendergraph.PipelineDesc { return p.desc }

// Reflection returns the reflected shader resources.
func (p *Pipeline) Reflection() *shader.Reflection { return p.reflection }

func (p *Pipeline) String() string {
	return fmt.Sprintf("pipeline#%d %q", p.id, p.desc.Label)
}

func asPipeline(obj rendergraph.Object) (*Pipeline, error) {
	p, ok := obj.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a pipeline", ErrForeignObject, obj)
	}
	if p.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, p)
	}
	return p, nil
}

// createPipeline reflects desc's shader, builds the bind group and
// pipeline layouts, and creates the HAL pipeline. On error every object
// created so far is released.
func (r *Runtime) createPipeline(desc *rendergraph.PipelineDesc) (p *Pipeline, err error) {
	refl, err := r.shaders.Reflect(desc.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline %q: %w", rendergraph.ErrConfiguration, desc.Label, err)
	}
	if err := shader.Validate(desc, refl); err != nil {
		return nil, err
	}

	p = &Pipeline{desc: *desc, reflection: refl}
	defer func() {
		if err != nil {
			r.destroyPipeline(p)
		}
	}()

	source := hal.ShaderSource{WGSL: desc.Source}
	if r.cfg.SPIRV {
		words, err := r.shaders.Compile(desc.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: pipeline %q: %w", rendergraph.ErrConfiguration, desc.Label, err)
		}
		source = hal.ShaderSource{SPIRV: words}
	}
	if p.module, err = r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_shader",
		Source: source,
	}); err != nil {
		return nil, wrapDeviceError("shader module", desc.Label, err)
	}

	entries, samplers := layoutEntries(desc, refl)
	p.samplers = samplers
	if p.groupLayout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_group_layout",
		Entries: entries,
	}); err != nil {
		return nil, wrapDeviceError("bind group layout", desc.Label, err)
	}
	if p.layout, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.groupLayout},
	}); err != nil {
		return nil, wrapDeviceError("pipeline layout", desc.Label, err)
	}

	if desc.IsCompute() {
		p.compute, err = r.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  desc.Label,
			Layout: p.layout,
			Compute: hal.ComputeState{
				Module:     p.module,
				EntryPoint: desc.ComputeEntry,
			},
		})
		if err != nil {
			return nil, wrapDeviceError("compute pipeline", desc.Label, err)
		}
		return p, nil
	}

	p.render, err = r.device.CreateRenderPipeline(renderPipelineDescriptor(desc, p))
	if err != nil {
		return nil, wrapDeviceError("render pipeline", desc.Label, err)
	}
	return p, nil
}

func renderPipelineDescriptor(desc *rendergraph.PipelineDesc, p *Pipeline) *hal.RenderPipelineDescriptor {
	rp := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: desc.Topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if desc.FragmentEntry != "" {
		targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
		for i, f := range desc.ColorFormats {
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				Blend:     desc.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		rp.Fragment = &hal.FragmentState{
			Module:     p.module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		}
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		rp.DepthStencil = &hal.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLessEqual,
		}
	}
	return rp
}

// layoutEntries returns the bind group layout entries of desc's slots
// plus the shader's sampler variables, which are returned separately.
func layoutEntries(desc *rendergraph.PipelineDesc, refl *shader.Reflection) ([]gputypes.BindGroupLayoutEntry, []shader.Resource) {
	visibility := gputypes.ShaderStagesVertexFragment
	if desc.IsCompute() {
		visibility = gputypes.ShaderStageCompute
	}
	var (
		entries  []gputypes.BindGroupLayoutEntry
		samplers []shader.Resource
	)
	for _, slot := range desc.Bindings {
		res, _ := refl.Lookup(0, slot.Slot)
		e := gputypes.BindGroupLayoutEntry{Binding: slot.Slot, Visibility: visibility}
		switch slot.Type {
		case rendergraph.BindingUniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case rendergraph.BindingStorageBuffer:
			t := gputypes.BufferBindingTypeStorage
			if res.ReadOnly {
				t = gputypes.BufferBindingTypeReadOnlyStorage
			}
			e.Buffer = &gputypes.BufferBindingLayout{Type: t}
		case rendergraph.BindingTexture, rendergraph.BindingTextureArray:
			tex := &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
			if slot.Type == rendergraph.BindingTextureArray {
				tex.ViewDimension = gputypes.TextureViewDimension2DArray
			}
			if res.Depth {
				tex.SampleType = gputypes.TextureSampleTypeDepth
			}
			e.Texture = tex
		}
		entries = append(entries, e)
	}
	for _, res := range refl.Group(0) {
		if res.Type != shader.ResourceSampler {
			continue
		}
		t := gputypes.SamplerBindingTypeFiltering
		if res.Comparison {
			t = gputypes.SamplerBindingTypeComparison
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    res.Binding,
			Visibility: visibility,
			Sampler:    &gputypes.SamplerBindingLayout{Type: t},
		})
		samplers = append(samplers, res)
	}
	return entries, samplers
}

// destroyPipeline releases p's objects in reverse creation order.
func (r *Runtime) destroyPipeline(p *Pipeline) {
	if p.render != nil {
		r.device.DestroyRenderPipeline(p.render)
		p.render = nil
	}
	if p.compute != nil {
		r.device.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
	if p.layout != nil {
		r.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.groupLayout != nil {
		r.device.DestroyBindGroupLayout(p.groupLayout)
		p.groupLayout = nil
	}
	if p.module != nil {
		r.device.DestroyShaderModule(p.module)
		p.module = nil
	}
	p.destroyed = true
}
