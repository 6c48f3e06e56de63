// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "reflect"

// Registry is a per-build store of values keyed by their type. Passes use
// it to publish data for later passes (GBuffer handles, shadow maps,
// compositing layers) without referencing each other directly.
//
// The scheduler hands every build a fresh Registry, so values never leak
// from one build into the next.
type Registry struct {
	values map[reflect.Type]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[reflect.Type]any)}
}

// Set stores v under its type T, replacing any previous value.
func Set[T any](r *Registry, v T) {
	r.values[reflect.TypeFor[T]()] = v
}

// Get returns the value stored for T.
func Get[T any](r *Registry) (T, bool) {
	v, ok := r.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// GetOrCreate returns the value stored for T, storing create() first if
// none exists.
func GetOrCreate[T any](r *Registry, create func() T) T {
	key := reflect.TypeFor[T]()
	if v, ok := r.values[key]; ok {
		return v.(T)
	}
	v := create()
	r.values[key] = v
	return v
}

// Len returns the number of stored values.
func (r *Registry) Len() int {
	return len(r.values)
}
