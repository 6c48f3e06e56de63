// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/shader"
)

// maxSampleCount is the largest MSAA sample count WebGPU guarantees.
const maxSampleCount = 4

// Config configures a native Runtime.
type Config struct {
	// Name is reported as the capability name. Defaults to "native".
	Name string

	// Limits are the device limits. Defaults to gputypes.DefaultLimits().
	Limits gputypes.Limits

	// SPIRV makes the runtime compile WGSL to SPIR-V with naga instead of
	// handing WGSL source to the device.
	SPIRV bool

	// ShaderCacheSize bounds the reflection and module caches.
	// Defaults to 64.
	ShaderCacheSize int
}

// Stats contains runtime counters.
type Stats struct {
	// Live object counts.
	Textures  int
	Buffers   int
	Pipelines int

	Created         uint64
	Destroyed       uint64
	InvalidDestroys uint64
	// Pending counts objects waiting for the GPU before release.
	Pending int

	Submits       uint64
	Discards      uint64
	RenderPasses  uint64
	ComputePasses uint64
	Draws         uint64
	Dispatches    uint64
	Barriers      uint64
	Writes        uint64
	Copies        uint64
	Clears        uint64
	BindGroups    uint64
}

// retired is a release deferred until submission index after completes.
type retired struct {
	after   uint64
	release func()
}

// Runtime is a rendergraph.Runtime over a HAL device and queue. It is
// safe for concurrent use; encoders are not.
type Runtime struct {
	mu      sync.Mutex
	device  hal.Device
	queue   hal.Queue
	cfg     Config
	shaders *shader.Cache

	samplerOnce sync.Once
	sampler     hal.Sampler
	compare     hal.Sampler
	samplerErr  error

	nextID     uint64
	lastSubmit uint64
	retired    []retired
	stats      Stats
	closed     bool
}

var _ rendergraph.Runtime = (*Runtime)(nil)

// New creates a runtime on device and queue. The runtime does not own
// them: Close releases what the runtime created, not the device.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Runtime, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if cfg.Name == "" {
		cfg.Name = "native"
	}
	if cfg.Limits.MaxTextureDimension2D == 0 {
		cfg.Limits = gputypes.DefaultLimits()
	}
	if cfg.ShaderCacheSize <= 0 {
		cfg.ShaderCacheSize = 64
	}
	r := &Runtime{
		device:  device,
		queue:   queue,
		cfg:     cfg,
		shaders: shader.NewCache(cfg.ShaderCacheSize),
	}
	rendergraph.Logger().Info("native: runtime created", "name", cfg.Name, "spirv", cfg.SPIRV)
	return r, nil
}

// NewFromProvider creates a runtime sharing the device of provider. The
// provider must expose its HAL objects through HalDevice() and
// HalQueue(). Its adapter name is reported as the capability name unless
// cfg.Name is set.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Runtime, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrProvider, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrProvider, hp.HalQueue())
	}
	if cfg.Name == "" {
		info := provider.AdapterInfo()
		if info.Name != "" {
			cfg.Name = info.Name
		}
		rendergraph.Logger().Debug("native: provider adapter", "name", info.Name, "type", info.Type)
	}
	return New(device, queue, cfg)
}

// Factory returns a function opening a runtime on device and queue. It
// matches backend.Factory.
func Factory(device hal.Device, queue hal.Queue, cfg Config) func() (rendergraph.Runtime, error) {
	return func() (rendergraph.Runtime, error) {
		return New(device, queue, cfg)
	}
}

// Capabilities reports the configured device limits.
func (r *Runtime) Capabilities() rendergraph.Capabilities {
	return rendergraph.Capabilities{
		Name:             r.cfg.Name,
		MaxTextureSize:   r.cfg.Limits.MaxTextureDimension2D,
		MaxTextureLayers: r.cfg.Limits.MaxTextureArrayLayers,
		MaxSampleCount:   maxSampleCount,
		Compute:          true,
	}
}

// Stats returns a snapshot of the runtime counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Pending = len(r.retired)
	return s
}

func (r *Runtime) checkOpen() error {
	if r.closed {
		return ErrClosed
	}
	return nil
}

// CreateTexture creates a 2D (array) texture.
func (r *Runtime) CreateTexture(desc *rendergraph.TextureDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.LayerCount(),
		},
		MipLevelCount: 1,
		SampleCount:   desc.Samples(),
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, wrapDeviceError("texture", desc.Label, err)
	}
	r.nextID++
	r.stats.Created++
	r.stats.Textures++
	return &Texture{id: r.nextID, raw: raw, device: r.device, desc: *desc}, nil
}

// CreateBuffer creates a buffer.
func (r *Runtime) CreateBuffer(desc *rendergraph.BufferDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, wrapDeviceError("buffer", desc.Label, err)
	}
	r.nextID++
	r.stats.Created++
	r.stats.Buffers++
	return &Buffer{id: r.nextID, raw: raw, desc: *desc}, nil
}

// CreatePipeline creates a render or compute pipeline. The shader is
// reflected and checked against desc before anything is created.
func (r *Runtime) CreatePipeline(desc *rendergraph.PipelineDesc) (rendergraph.Object, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	p, err := r.createPipeline(desc)
	if err != nil {
		return nil, err
	}
	r.nextID++
	p.id = r.nextID
	r.stats.Created++
	r.stats.Pipelines++
	return p, nil
}

// Destroy retires obj. The HAL objects are released once the last
// submission that could use them has completed.
func (r *Runtime) Destroy(obj rendergraph.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o := obj.(type) {
	case *Texture:
		if o.retire() {
			r.stats.Textures--
			r.stats.Destroyed++
			r.retireLocked(o.release)
			return
		}
	case *Buffer:
		if !o.destroyed {
			o.destroyed = true
			r.stats.Buffers--
			r.stats.Destroyed++
			raw := o.raw
			r.retireLocked(func() { r.device.DestroyBuffer(raw) })
			return
		}
	case *Pipeline:
		if !o.destroyed {
			o.destroyed = true
			r.stats.Pipelines--
			r.stats.Destroyed++
			r.retireLocked(func() { r.destroyPipeline(o) })
			return
		}
	}
	r.stats.InvalidDestroys++
	rendergraph.Logger().Warn("native: invalid destroy", "object", fmt.Sprintf("%T", obj))
}

// retireLocked defers release until the last submission completes.
func (r *Runtime) retireLocked(release func()) {
	if r.closed {
		release()
		return
	}
	r.retired = append(r.retired, retired{after: r.lastSubmit, release: release})
}

// reclaimLocked releases every retired object the GPU is done with.
func (r *Runtime) reclaimLocked() {
	if len(r.retired) == 0 {
		return
	}
	done := r.queue.PollCompleted()
	keep := r.retired[:0]
	for _, x := range r.retired {
		if x.after <= done {
			x.release()
			continue
		}
		keep = append(keep, x)
	}
	clear(r.retired[len(keep):])
	r.retired = keep
}

// samplers returns the default filtering and comparison samplers,
// creating them on first use.
func (r *Runtime) samplers() (hal.Sampler, hal.Sampler, error) {
	r.samplerOnce.Do(func() {
		desc := hal.SamplerDescriptor{
			Label:        "rendergraph_default_sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    gputypes.FilterModeLinear,
			MinFilter:    gputypes.FilterModeLinear,
			MipmapFilter: gputypes.FilterModeLinear,
		}
		if r.sampler, r.samplerErr = r.device.CreateSampler(&desc); r.samplerErr != nil {
			return
		}
		desc.Label = "rendergraph_compare_sampler"
		desc.Compare = gputypes.CompareFunctionLessEqual
		r.compare, r.samplerErr = r.device.CreateSampler(&desc)
	})
	return r.sampler, r.compare, r.samplerErr
}

// Begin starts recording a frame.
func (r *Runtime) Begin(label string) (rendergraph.Encoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.reclaimLocked()
	return newEncoder(r, label)
}

// WaitIdle blocks until the device is idle and releases every retired
// object.
func (r *Runtime) WaitIdle() error {
	if err := r.device.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.retired {
		x.release()
	}
	clear(r.retired)
	r.retired = r.retired[:0]
	return nil
}

// Close waits for the device, releases retired objects and the default
// samplers. Objects still live are the caller's to destroy; Close does
// not release the device or queue.
func (r *Runtime) Close() error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil
	}
	err := r.WaitIdle()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.sampler != nil {
		r.device.DestroySampler(r.sampler)
		r.sampler = nil
	}
	if r.compare != nil {
		r.device.DestroySampler(r.compare)
		r.compare = nil
	}
	return err
}
