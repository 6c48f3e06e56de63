// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/backend/software"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if !r.Has(Software) {
		t.Fatal("software backend not registered")
	}
	rt, name, err := r.OpenBest()
	if err != nil {
		t.Fatalf("OpenBest() error = %v", err)
	}
	if name != Software {
		t.Errorf("OpenBest() name = %q, want %q", name, Software)
	}
	if got := rt.Capabilities().Name; got != "software" {
		t.Errorf("Capabilities().Name = %q", got)
	}
}

func TestOpenUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Open("vulkan"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(vulkan) error = %v, want ErrBackendNotAvailable", err)
	}
	if _, _, err := r.OpenBest(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenBest() on empty registry error = %v", err)
	}
}

func TestOpenBestFallsBack(t *testing.T) {
	r := NewRegistry()
	broken := errors.New("no adapter")
	r.Register(Native, func() (rendergraph.Runtime, error) { return nil, broken })
	r.Register(Software, SoftwareFactory(software.Config{}))

	if got := r.Available(); !slices.Equal(got, []string{Native, Software}) {
		t.Errorf("Available() = %v", got)
	}
	_, name, err := r.OpenBest()
	if err != nil {
		t.Fatalf("OpenBest() error = %v", err)
	}
	if name != Software {
		t.Errorf("OpenBest() = %q, want fallback to %q", name, Software)
	}

	r.Unregister(Software)
	_, _, err = r.OpenBest()
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, broken) {
		t.Errorf("OpenBest() error = %v, want both ErrBackendNotAvailable and the factory error", err)
	}
}

func TestCustomPriority(t *testing.T) {
	r := NewRegistry("b", "a")
	for _, name := range []string{"a", "b", "c"} {
		r.Register(name, SoftwareFactory(software.Config{}))
	}
	if got := r.Available(); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("Available() = %v, want [b a c]", got)
	}
	r.Register("nil", nil)
	if r.Has("nil") {
		t.Error("nil factory was registered")
	}
}
