// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements rendergraph.Runtime on a gogpu/wgpu HAL device.
//
// The runtime does not open devices itself. Hand it the device and queue
// of an existing HAL adapter, or a gpucontext.DeviceProvider that exposes
// them:
//
//	rt, err := native.New(openDev.Device, openDev.Queue, native.Config{})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	sched, err := rendergraph.NewScheduler(rt)
//
// # Shaders
//
// Pipelines are compiled from WGSL. Every pipeline uses a single bind
// group: slot N of the pipeline descriptor is @group(0) @binding(N) in the
// shader. Sampler variables are not declared as slots; the runtime binds a
// linear clamp sampler to them, or a less-equal comparison sampler for
// sampler_comparison variables. With Config.SPIRV set the WGSL is
// compiled to SPIR-V with naga before it reaches the device.
//
// # Frames
//
// Each frame records into one HAL command encoder. Buffer and texture
// uploads go through the queue and are ordered against the recorded
// commands by splitting the frame into several command buffers.
// Destroyed objects and per-frame bind groups are released once the
// queue reports their last submission complete.
package native
