// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"

	"github.com/gogpu/rendergraph"
)

// Validate checks desc against the reflection of its shader source:
// entry points must exist with the right stage, every declared slot must
// match a @group(0) variable of a compatible type, and every non-sampler
// @group(0) variable must be declared as a slot. Errors wrap
// rendergraph.ErrConfiguration.
func Validate(desc *rendergraph.PipelineDesc, r *Reflection) error {
	check := func(entry string, want Stage) error {
		if entry == "" {
			return nil
		}
		got, ok := r.EntryPoints[entry]
		if !ok {
			return fmt.Errorf("%w: pipeline %q: entry point %q not found", rendergraph.ErrConfiguration, desc.Label, entry)
		}
		if got != want {
			return fmt.Errorf("%w: pipeline %q: entry point %q is a %s shader, want %s",
				rendergraph.ErrConfiguration, desc.Label, entry, got, want)
		}
		return nil
	}
	if err := check(desc.VertexEntry, StageVertex); err != nil {
		return err
	}
	if err := check(desc.FragmentEntry, StageFragment); err != nil {
		return err
	}
	if err := check(desc.ComputeEntry, StageCompute); err != nil {
		return err
	}

	for _, slot := range desc.Bindings {
		res, ok := r.Lookup(0, slot.Slot)
		if !ok {
			return fmt.Errorf("%w: pipeline %q: slot %d (%s) has no shader variable",
				rendergraph.ErrConfiguration, desc.Label, slot.Slot, slot.Type)
		}
		if !Compatible(slot.Type, res) {
			return fmt.Errorf("%w: pipeline %q: slot %d is declared %s, shader variable %q is %s",
				rendergraph.ErrConfiguration, desc.Label, slot.Slot, slot.Type, res.Name, res.Type)
		}
	}
	for _, res := range r.Group(0) {
		if res.Type == ResourceSampler {
			continue
		}
		if _, ok := desc.Binding(res.Binding); !ok {
			return fmt.Errorf("%w: pipeline %q: shader variable %q at binding %d is not declared",
				rendergraph.ErrConfiguration, desc.Label, res.Name, res.Binding)
		}
	}
	return nil
}

// Compatible reports whether a binding slot of type t can be backed by
// the shader variable res.
func Compatible(t rendergraph.BindingType, res Resource) bool {
	switch t {
	case rendergraph.BindingUniformBuffer:
		return res.Type == ResourceUniform
	case rendergraph.BindingStorageBuffer:
		return res.Type == ResourceStorage
	case rendergraph.BindingTexture:
		return res.Type == ResourceTexture
	case rendergraph.BindingTextureArray:
		return res.Type == ResourceTextureArray
	}
	return false
}
