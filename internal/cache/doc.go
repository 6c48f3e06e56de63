// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the bounded LRU cache shared by the shader
// compiler and the canvas glyph cache.
//
//	c := cache.New[string, []uint32](64)
//	words, err := c.GetOrCreate(key, compile)
//
// A Cache is safe for concurrent use. It must not be copied after
// creation.
package cache
