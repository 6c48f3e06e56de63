// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
)

// encodeColor returns one texel of format holding c. sRGB formats store
// the value as given.
func encodeColor(format gputypes.TextureFormat, c gputypes.Color) ([]byte, error) {
	u8 := func(v float64) byte { return byte(math.Round(clamp01(v) * 255)) }
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{u8(c.R), u8(c.G), u8(c.B), u8(c.A)}, nil
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{u8(c.B), u8(c.G), u8(c.R), u8(c.A)}, nil
	case gputypes.TextureFormatR8Unorm:
		return []byte{u8(c.R)}, nil
	case gputypes.TextureFormatRG8Unorm:
		return []byte{u8(c.R), u8(c.G)}, nil
	case gputypes.TextureFormatR8Uint:
		return []byte{byte(c.R)}, nil
	case gputypes.TextureFormatR16Float:
		return halfs(c.R), nil
	case gputypes.TextureFormatRG16Float:
		return halfs(c.R, c.G), nil
	case gputypes.TextureFormatRGBA16Float:
		return halfs(c.R, c.G, c.B, c.A), nil
	case gputypes.TextureFormatR32Float:
		return floats(c.R), nil
	case gputypes.TextureFormatRG32Float:
		return floats(c.R, c.G), nil
	case gputypes.TextureFormatRGBA32Float:
		return floats(c.R, c.G, c.B, c.A), nil
	case gputypes.TextureFormatR32Uint:
		return binary.LittleEndian.AppendUint32(nil, uint32(c.R)), nil
	case gputypes.TextureFormatRGB10A2Unorm:
		v := uint32(math.Round(clamp01(c.R)*1023)) |
			uint32(math.Round(clamp01(c.G)*1023))<<10 |
			uint32(math.Round(clamp01(c.B)*1023))<<20 |
			uint32(math.Round(clamp01(c.A)*3))<<30
		return binary.LittleEndian.AppendUint32(nil, v), nil
	}
	return nil, fmt.Errorf("%w: cannot clear format %s", rendergraph.ErrConfiguration, format)
}

// encodeDepth returns one texel of a depth format holding d.
func encodeDepth(format gputypes.TextureFormat, d float32) ([]byte, error) {
	d = float32(clamp01(float64(d)))
	switch format {
	case gputypes.TextureFormatDepth32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(d)), nil
	case gputypes.TextureFormatDepth32FloatStencil8:
		return binary.LittleEndian.AppendUint32(binary.LittleEndian.AppendUint32(nil, math.Float32bits(d)), 0), nil
	case gputypes.TextureFormatDepth16Unorm:
		return binary.LittleEndian.AppendUint16(nil, uint16(math.Round(float64(d)*0xFFFF))), nil
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		return binary.LittleEndian.AppendUint32(nil, uint32(math.Round(float64(d)*0xFFFFFF))), nil
	}
	return nil, fmt.Errorf("%w: %s is not a depth format", rendergraph.ErrConfiguration, format)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func floats(vs ...float64) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(v)))
	}
	return out
}

func halfs(vs ...float64) []byte {
	out := make([]byte, 0, 2*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint16(out, float16(float32(v)))
	}
	return out
}

// float16 converts f to IEEE 754 half precision, rounding toward zero.
func float16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF
	switch {
	case bits&0x7FFFFFFF == 0:
		return sign
	case exp >= 0x1F:
		if bits>>23&0xFF == 0xFF && mant != 0 {
			return sign | 0x7E00 // NaN
		}
		return sign | 0x7C00 // Inf
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		return sign | uint16(mant>>uint32(14-exp))
	}
	return sign | uint16(exp)<<10 | uint16(mant>>13)
}
