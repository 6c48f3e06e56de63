// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

// BindingType tags the kind of resource a shader binding slot expects.
type BindingType uint8

const (
	// BindingInvalid is the zero BindingType.
	BindingInvalid BindingType = iota
	// BindingUniformBuffer is a read-only uniform buffer.
	BindingUniformBuffer
	// BindingStorageBuffer is a (possibly writable) storage buffer.
	BindingStorageBuffer
	// BindingTexture is a single layer of a 2D texture.
	BindingTexture
	// BindingTextureArray is a whole 2D array texture.
	BindingTextureArray
)

// String returns the binding type name.
func (t BindingType) String() string {
	switch t {
	case BindingUniformBuffer:
		return "uniform-buffer"
	case BindingStorageBuffer:
		return "storage-buffer"
	case BindingTexture:
		return "texture"
	case BindingTextureArray:
		return "texture-array"
	default:
		return "invalid"
	}
}

// BindingSlot declares the binding type a pipeline expects at a slot.
type BindingSlot struct {
	Slot uint32
	Type BindingType
}

// Binding is a resource bound to a shader slot. It is a closed sum type:
// the only implementations are UniformBufferBinding, StorageBufferBinding,
// TextureBinding and TextureArrayBinding. Each variant carries its own
// BindingType tag, which the context checks against the bound pipeline.
type Binding interface {
	BindingType() BindingType
	resource() Resource
	binding()
}

// UniformBufferBinding binds a range of a buffer as a uniform buffer.
// A zero Size binds the rest of the buffer.
type UniformBufferBinding struct {
	Buffer Resource
	Offset uint64
	Size   uint64
}

// StorageBufferBinding binds a range of a buffer as a storage buffer.
// Writable storage bindings require write access to the buffer.
type StorageBufferBinding struct {
	Buffer   Resource
	Offset   uint64
	Size     uint64
	ReadOnly bool
}

// TextureBinding binds one layer of a texture for sampling.
type TextureBinding struct {
	Texture Resource
	Layer   uint32
}

// TextureArrayBinding binds all layers of an array texture for sampling.
type TextureArrayBinding struct {
	Texture Resource
}

func (UniformBufferBinding) BindingType() BindingType { return BindingUniformBuffer }
func (StorageBufferBinding) BindingType() BindingType { return BindingStorageBuffer }
func (TextureBinding) BindingType() BindingType       { return BindingTexture }
func (TextureArrayBinding) BindingType() BindingType  { return BindingTextureArray }

func (b UniformBufferBinding) resource() Resource { return b.Buffer }
func (b StorageBufferBinding) resource() Resource { return b.Buffer }
func (b TextureBinding) resource() Resource       { return b.Texture }
func (b TextureArrayBinding) resource() Resource  { return b.Texture }

func (UniformBufferBinding) binding() {}
func (StorageBufferBinding) binding() {}
func (TextureBinding) binding()       {}
func (TextureArrayBinding) binding()  {}

// BoundResource is a Binding resolved to its backend object, as passed to
// Encoder.SetBinding.
type BoundResource struct {
	Type   BindingType
	Object Object

	// Offset and Size select a buffer range. Size is never zero.
	Offset uint64
	Size   uint64

	// Layer selects the texture layer for BindingTexture.
	Layer uint32
}
