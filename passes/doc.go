// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package passes provides the concrete render passes of a frame: scene
// geometry upload, shadow mapping, G-buffer construction, deferred and
// forward lighting, a 2D canvas for sprites and text, and the compositing
// pass that blends every contributed layer onto the back buffer.
//
// The passes read the scene from a RenderConfiguration the host mutates
// between frames. Each pass decides on its own whether the graph must be
// rebuilt (a light was added, the atlas must grow, more instances than
// the instance buffer holds) and publishes what later passes consume
// through the build's Registry:
//
//	cfg := &passes.RenderConfiguration{RenderScale: 1}
//	meshes := atlas.NewMeshAllocator(atlas.MeshConfig{})
//	canvas, _ := passes.NewCanvas(cfg, passes.CanvasConfig{})
//
//	g, _ := scheduler.AddGraph(
//		passes.NewGeometry(cfg, meshes),
//		passes.NewShadowMapping(cfg),
//		passes.NewConstruction(cfg),
//		passes.NewDeferredLighting(cfg),
//		passes.NewForwardLighting(cfg),
//		canvas,
//		passes.NewCompositing(cfg),
//	)
//
// Order matters: a pass can only consume what an earlier pass of the same
// graph published, and Compositing must come last.
//
// # Shaders
//
// Every pipeline is written in WGSL with its resources in @group(0).
// Binding N of the shader is slot N of the pipeline; samplers are left to
// the runtime. Meshes use the vertex layout of MeshVertexLayout and
// per-instance data from the Geometry pass's instance buffer.
package passes
