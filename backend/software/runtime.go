// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/shader"
)

// Errors returned by the software runtime.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed
	// the configured budget. It wraps rendergraph.ErrResourceExhausted.
	ErrMemoryBudgetExceeded = fmt.Errorf("%w: software memory budget exceeded", rendergraph.ErrResourceExhausted)

	// ErrForeignObject is returned for objects this runtime did not create.
	ErrForeignObject = errors.New("software: object was not created by this runtime")

	// ErrDestroyed is returned when a destroyed object is used.
	ErrDestroyed = errors.New("software: object has been destroyed")

	// ErrEncoderState is returned for calls the encoder state does not
	// allow, such as a draw outside a render pass.
	ErrEncoderState = errors.New("software: invalid encoder state")
)

// Default limits.
const (
	// DefaultMemoryBudget is the default budget (256 MB).
	DefaultMemoryBudget = 256 << 20

	// DefaultMaxTextureSize is the default maximum texture dimension.
	DefaultMaxTextureSize = 16384

	// DefaultMaxTextureLayers is the default maximum array layer count.
	DefaultMaxTextureLayers = 2048
)

// Config configures a software Runtime.
type Config struct {
	// MemoryBudget is the maximum number of bytes textures and buffers may
	// occupy. Defaults to DefaultMemoryBudget if 0.
	MemoryBudget uint64

	// MaxTextureSize and MaxTextureLayers are reported as capabilities.
	MaxTextureSize   uint32
	MaxTextureLayers uint32

	// ValidateShaders reflects every pipeline's WGSL source and rejects
	// descriptors that do not match it.
	ValidateShaders bool
}

// Stats contains runtime counters.
type Stats struct {
	// Live object counts.
	Textures  int
	Buffers   int
	Pipelines int

	// Created and Destroyed count objects over the runtime's lifetime.
	Created   uint64
	Destroyed uint64
	// InvalidDestroys counts Destroy calls for unknown or already
	// destroyed objects.
	InvalidDestroys uint64

	UsedBytes   uint64
	BudgetBytes uint64

	Submits      uint64
	Discards     uint64
	RenderPasses uint64
	Draws        uint64
	Dispatches   uint64
	Barriers     uint64
	Writes       uint64
	Copies       uint64
	Clears       uint64
}

// String returns a one-line summary of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("software[%d textures, %d buffers, %d pipelines, %d/%d KB, %d submits, %d draws]",
		s.Textures, s.Buffers, s.Pipelines, s.UsedBytes>>10, s.BudgetBytes>>10, s.Submits, s.Draws)
}

// Runtime is an in-memory rendergraph.Runtime. It is safe for concurrent
// use; encoders are not.
type Runtime struct {
	mu      sync.Mutex
	cfg     Config
	shaders *shader.Cache

	nextID uint64
	stats  Stats
}

var _ rendergraph.Runtime = (*Runtime)(nil)

// New creates a software runtime.
func New(cfg Config) *Runtime {
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = DefaultMemoryBudget
	}
	if cfg.MaxTextureSize == 0 {
		cfg.MaxTextureSize = DefaultMaxTextureSize
	}
	if cfg.MaxTextureLayers == 0 {
		cfg.MaxTextureLayers = DefaultMaxTextureLayers
	}
	r := &Runtime{
		cfg: cfg,
	}
	if cfg.ValidateShaders {
		r.shaders = shader.NewCache(64)
	}
	r.stats.BudgetBytes = cfg.MemoryBudget
	return r
}

// Capabilities reports the configured limits. The software runtime
// supports compute pipelines and single-sampled targets only.
func (r *Runtime) Capabilities() rendergraph.Capabilities {
	return rendergraph.Capabilities{
		Name:             "software",
		MaxTextureSize:   r.cfg.MaxTextureSize,
		MaxTextureLayers: r.cfg.MaxTextureLayers,
		MaxSampleCount:   1,
		Compute:          true,
	}
}

// Stats returns a snapshot of the runtime counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// reserve accounts size bytes against the budget. Caller must hold r.mu.
func (r *Runtime) reserve(kind, label string, size uint64) error {
	if r.stats.UsedBytes+size > r.cfg.MemoryBudget {
		return fmt.Errorf("%w: %s %q needs %d bytes, %d of %d in use",
			ErrMemoryBudgetExceeded, kind, label, size, r.stats.UsedBytes, r.cfg.MemoryBudget)
	}
	r.stats.UsedBytes += size
	r.stats.Created++
	r.nextID++
	return nil
}

// CreateTexture allocates a zeroed texture.
func (r *Runtime) CreateTexture(desc *rendergraph.TextureDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Samples() != 1 {
		return nil, fmt.Errorf("%w: texture %q: multisampling is not supported", rendergraph.ErrConfiguration, desc.Label)
	}
	size := desc.ByteSize()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reserve("texture", desc.Label, size); err != nil {
		return nil, err
	}
	r.stats.Textures++
	t := &Texture{
		id:         r.nextID,
		desc:       *desc,
		bpp:        rendergraph.BytesPerPixel(desc.Format),
		layerBytes: size / uint64(desc.LayerCount()),
		data:       make([]byte, size),
	}
	rendergraph.Logger().Debug("software: texture created", "label", desc.Label, "size", fmt.Sprintf("%dx%dx%d", desc.Width, desc.Height, desc.LayerCount()))
	return t, nil
}

// CreateBuffer allocates a zeroed buffer.
func (r *Runtime) CreateBuffer(desc *rendergraph.BufferDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reserve("buffer", desc.Label, desc.Size); err != nil {
		return nil, err
	}
	r.stats.Buffers++
	return &Buffer{id: r.nextID, desc: *desc, data: make([]byte, desc.Size)}, nil
}

// CreatePipeline records a pipeline. With ValidateShaders its source is
// reflected and checked against the descriptor.
func (r *Runtime) CreatePipeline(desc *rendergraph.PipelineDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	var refl *shader.Reflection
	if r.shaders != nil {
		var err error
		if refl, err = r.shaders.Reflect(desc.Source); err != nil {
			return nil, fmt.Errorf("%w: pipeline %q: %w", rendergraph.ErrConfiguration, desc.Label, err)
		}
		if err := shader.Validate(desc, refl); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reserve("pipeline", desc.Label, 0); err != nil {
		return nil, err
	}
	r.stats.Pipelines++
	return &Pipeline{id: r.nextID, desc: *desc, reflection: refl}, nil
}

// Destroy releases obj. Unknown and already destroyed objects are
// counted in Stats.InvalidDestroys.
func (r *Runtime) Destroy(obj rendergraph.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o := obj.(type) {
	case *Texture:
		if o.destroyed {
			break
		}
		o.destroyed = true
		r.stats.UsedBytes -= uint64(len(o.data))
		o.data = nil
		r.stats.Textures--
		r.stats.Destroyed++
		return
	case *Buffer:
		if o.destroyed {
			break
		}
		o.destroyed = true
		r.stats.UsedBytes -= uint64(len(o.data))
		o.data = nil
		r.stats.Buffers--
		r.stats.Destroyed++
		return
	case *Pipeline:
		if o.destroyed {
			break
		}
		o.destroyed = true
		r.stats.Pipelines--
		r.stats.Destroyed++
		return
	}
	r.stats.InvalidDestroys++
	rendergraph.Logger().Warn("software: invalid destroy", "object", fmt.Sprintf("%T", obj))
}

// Begin starts recording a frame.
func (r *Runtime) Begin(label string) (rendergraph.Encoder, error) {
	return newEncoder(r, label), nil
}
