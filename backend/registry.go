// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/backend/software"
)

// Backend name constants.
const (
	// Native is the name of the runtime over gogpu/wgpu hal devices.
	Native = "native"
	// Software is the name of the in-memory CPU runtime.
	Software = "software"
)

// ErrBackendNotAvailable is returned when a requested backend is not
// registered or no registered backend could be opened.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Factory opens a runtime.
type Factory func() (rendergraph.Runtime, error)

// Registry holds named runtime factories. It is safe for concurrent use.
type Registry struct {
	factories *gpucontext.Registry[Factory]
	priority  []string
}

// NewRegistry creates an empty registry. Names listed in priority are
// preferred by OpenBest in that order; when priority is empty, Native is
// preferred over Software.
func NewRegistry(priority ...string) *Registry {
	if len(priority) == 0 {
		priority = []string{Native, Software}
	}
	priority = slices.Clone(priority)
	return &Registry{
		factories: gpucontext.NewRegistry[Factory](gpucontext.WithPriority(priority...)),
		priority:  priority,
	}
}

// Default returns a registry with the software runtime registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Software, SoftwareFactory(software.Config{}))
	return r
}

// SoftwareFactory returns a factory opening software runtimes with cfg.
func SoftwareFactory(cfg software.Config) Factory {
	return func() (rendergraph.Runtime, error) {
		return software.New(cfg), nil
	}
}

// Register registers f under name, replacing an earlier registration.
func (r *Registry) Register(name string, f Factory) {
	if f == nil {
		return
	}
	r.factories.Register(name, func() Factory { return f })
}

// Unregister removes name from the registry.
func (r *Registry) Unregister(name string) {
	r.factories.Unregister(name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.factories.Has(name)
}

// Available returns the registered names in selection order.
func (r *Registry) Available() []string {
	names := r.factories.Available()
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(r.rank(a), r.rank(b)), cmp.Compare(a, b))
	})
	return names
}

func (r *Registry) rank(name string) int {
	if i := slices.Index(r.priority, name); i >= 0 {
		return i
	}
	return len(r.priority)
}

// Open opens the runtime registered under name.
func (r *Registry) Open(name string) (rendergraph.Runtime, error) {
	f := r.factories.Get(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	rt, err := f()
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	if rt == nil {
		return nil, fmt.Errorf("%w: %q returned no runtime", ErrBackendNotAvailable, name)
	}
	return rt, nil
}

// OpenBest opens the first registered runtime, in selection order, that
// opens without error. It returns the runtime and its name.
func (r *Registry) OpenBest() (rendergraph.Runtime, string, error) {
	log := rendergraph.Logger()
	var errs []error
	for _, name := range r.Available() {
		rt, err := r.Open(name)
		if err != nil {
			log.Warn("backend: open failed", "backend", name, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Info("backend: selected", "backend", name)
		return rt, name, nil
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no backends registered", ErrBackendNotAvailable)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}
