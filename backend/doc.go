// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects the Runtime a rendergraph Scheduler executes on.
//
// Runtimes are opened through a Registry of named factories. Unlike a
// process-wide driver table, a Registry is an ordinary value: hosts build
// one, register the runtimes they can provide, and pass it to whatever
// needs to open a runtime.
//
// # Backend Selection
//
// Open returns a runtime by name. OpenBest tries the registered factories
// in priority order and returns the first that opens:
//
//	reg := backend.NewRegistry()
//	reg.Register(backend.Native, native.Factory(device, queue, native.Config{}))
//	reg.Register(backend.Software, backend.SoftwareFactory(software.Config{}))
//
//	rt, name, err := reg.OpenBest()
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Printf("rendering on %s", name)
//
// Default returns a registry with only the software runtime registered,
// which is what tests and headless tools need.
package backend
