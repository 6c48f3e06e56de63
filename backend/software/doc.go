// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements rendergraph.Runtime in memory.
//
// Textures and buffers are byte slices owned by the runtime. Uploads,
// copies and clears are applied when a frame is submitted, so a discarded
// frame leaves every object untouched. Draws and dispatches are validated
// and counted but not rasterized. The runtime enforces a memory budget and
// exposes readback for tests and headless tools:
//
//	rt := software.New(software.Config{MemoryBudget: 64 << 20})
//	s, _ := rendergraph.NewScheduler(rt)
//	...
//	obj, _ := s.Object(graph, s.BackBuffer())
//	img, _ := rt.TextureImage(obj, 0)
package software
