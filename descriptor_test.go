// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestTextureDescValidate(t *testing.T) {
	valid := TextureDesc{
		Label:  "color",
		Width:  64,
		Height: 32,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding,
	}
	tests := []struct {
		name   string
		modify func(*TextureDesc)
		ok     bool
	}{
		{"valid", func(*TextureDesc) {}, true},
		{"zero width", func(d *TextureDesc) { d.Width = 0 }, false},
		{"undefined format", func(d *TextureDesc) { d.Format = gputypes.TextureFormatUndefined }, false},
		{"no usage", func(d *TextureDesc) { d.Usage = gputypes.TextureUsageNone }, false},
		{"compressed format", func(d *TextureDesc) { d.Format = gputypes.TextureFormatBC1RGBAUnorm }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.modify(&d)
			err := d.Validate()
			if tt.ok != (err == nil) {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestTextureDescEqualAndSize(t *testing.T) {
	a := TextureDesc{Label: "a", Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8Unorm, Usage: gputypes.TextureUsageCopyDst}
	b := a
	b.Label = "b"
	b.Layers = 1
	b.SampleCount = 1
	if !a.Equal(&b) {
		t.Error("descriptors differing only in label and defaulted counts should be equal")
	}
	b.Layers = 2
	if a.Equal(&b) {
		t.Error("layer count change not detected")
	}
	if got := b.ByteSize(); got != 8*8*2*4 {
		t.Errorf("ByteSize = %d, want %d", got, 8*8*2*4)
	}
}

func TestBufferDescValidate(t *testing.T) {
	if err := (&BufferDesc{Size: 0, Usage: VertexBufferUsage}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("zero size: %v", err)
	}
	if err := (&BufferDesc{Size: 4}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("no usage: %v", err)
	}
	if err := (&BufferDesc{Size: 4, Usage: IndexBufferUsage}).Validate(); err != nil {
		t.Errorf("valid: %v", err)
	}
}

func TestPipelineDescValidate(t *testing.T) {
	tests := []struct {
		name string
		desc PipelineDesc
		ok   bool
	}{
		{"render", PipelineDesc{Source: "s", VertexEntry: "vs", FragmentEntry: "fs"}, true},
		{"compute", PipelineDesc{Source: "s", ComputeEntry: "main"}, true},
		{"no source", PipelineDesc{VertexEntry: "vs"}, false},
		{"no entry", PipelineDesc{Source: "s"}, false},
		{"mixed", PipelineDesc{Source: "s", VertexEntry: "vs", ComputeEntry: "main"}, false},
		{"duplicate slot", PipelineDesc{Source: "s", VertexEntry: "vs", Bindings: []BindingSlot{
			{Slot: 1, Type: BindingTexture}, {Slot: 1, Type: BindingUniformBuffer},
		}}, false},
		{"untyped slot", PipelineDesc{Source: "s", VertexEntry: "vs", Bindings: []BindingSlot{{Slot: 0}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.ok != (err == nil) {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestPipelineDescEqual(t *testing.T) {
	layout := gputypes.VertexBufferLayout{
		ArrayStride: 12,
		Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x3}},
	}
	a := PipelineDesc{
		Label:         "a",
		Source:        "s",
		VertexEntry:   "vs",
		Bindings:      []BindingSlot{{Slot: 0, Type: BindingUniformBuffer}},
		VertexBuffers: []gputypes.VertexBufferLayout{layout},
		ColorFormats:  []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	}
	b := clonePipelineDesc(a)
	b.Label = "b"
	if !a.Equal(&b) {
		t.Error("clones should be equal")
	}
	b.VertexBuffers[0].Attributes[0].ShaderLocation = 1
	if a.Equal(&b) {
		t.Error("attribute change not detected")
	}
	if a.VertexBuffers[0].Attributes[0].ShaderLocation != 0 {
		t.Error("clonePipelineDesc shares attribute slices")
	}
	c := clonePipelineDesc(a)
	c.Blend = &gputypes.BlendState{}
	if a.Equal(&c) {
		t.Error("blend change not detected")
	}
}

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   int
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatDepth32Float, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatUndefined, 0},
	}
	for _, tt := range tests {
		if got := BytesPerPixel(tt.format); got != tt.want {
			t.Errorf("BytesPerPixel(%s) = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestResourceAndAccess(t *testing.T) {
	var zero Resource
	if zero.IsValid() {
		t.Error("zero Resource is valid")
	}
	if !backBufferHandle.IsValid() || backBufferHandle.Kind() != KindTexture {
		t.Error("back-buffer handle should be a valid texture handle")
	}
	if AccessReadWrite != AccessRead|AccessWrite {
		t.Error("AccessReadWrite is not Read|Write")
	}
	if !AccessReadWrite.Reads() || !AccessReadWrite.Writes() || AccessRead.Writes() {
		t.Error("Access predicates")
	}
	if got := (Size{Width: 100, Height: 50}).Scale(0.5); got != (Size{Width: 50, Height: 25}) {
		t.Errorf("Scale = %v", got)
	}
	if got := (Size{Width: 1, Height: 1}).Scale(0.1); got != (Size{Width: 1, Height: 1}) {
		t.Errorf("Scale clamps to 1x1, got %v", got)
	}
}
