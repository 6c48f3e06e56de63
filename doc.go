// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph schedules and executes frame graphs of GPU passes.
//
// # Overview
//
// A graph is an ordered list of passes. Each frame the Scheduler asks
// every pass whether the graph must be rebuilt. When one does, or the back
// buffer changed size, every pass re-declares its resources and callbacks
// on a Builder: Create on the first build, Recreate afterwards. Otherwise
// the compiled graph is replayed and only the pass callbacks run.
//
//	rt := software.New(software.Config{})
//	s, err := rendergraph.NewScheduler(rt)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	s.Resize(rendergraph.Size{Width: 640, Height: 480})
//	g, _ := s.AddGraph(canvas, compositing)
//	for running {
//		if err := s.Execute(g); err != nil {
//			log.Print(err) // the frame was not submitted
//		}
//	}
//
// # Resources
//
// Textures, buffers and pipelines are referred to by Resource handles.
// A handle belongs to one build. Resources a build does not re-declare are
// released when it is compiled, so a pass that wants to keep an object
// (and its contents) across a rebuild passes the old handle to
// Builder.InheritResource and stores the new one. Builder.GrowBuffer
// replaces a buffer with a larger one and copies the old contents forward
// before the new buffer is first used.
//
// Transient textures and buffers whose passes do not overlap share one
// backend object when their descriptors are equal.
//
// # Execution
//
// Pass callbacks receive a Context. Every Context call resolves handles,
// checks that the pass declared the access it performs (Builder.Read,
// Write, ReadWrite) and, for draws and dispatches, that the bound pipeline
// has every binding slot filled with the declared BindingType. Barriers
// between passes are derived from the declared accesses.
//
// The first failing call makes the Context's error sticky; the frame is
// discarded and Execute returns a *PassError.
//
// # Runtimes
//
// The Scheduler records work on a Runtime. Package backend/software keeps
// objects in memory and is used by tests and headless tools; package
// backend/native drives a gogpu/wgpu HAL device.
//
// # Logging
//
// rendergraph is silent by default. Use SetLogger or WithLogger to route
// build and execution events to a slog.Logger.
package rendergraph
