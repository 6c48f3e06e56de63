// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "testing"

type gbuffer struct{ albedo, normal Resource }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := Get[*gbuffer](r); ok {
		t.Fatal("empty registry returned a value")
	}

	g := &gbuffer{}
	Set(r, g)
	got, ok := Get[*gbuffer](r)
	if !ok || got != g {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	// Distinct types are distinct keys.
	Set(r, gbuffer{})
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}

	calls := 0
	layers := GetOrCreate(r, func() *CompositingLayers {
		calls++
		return NewCompositingLayers()
	})
	again := GetOrCreate(r, func() *CompositingLayers {
		calls++
		return nil
	})
	if layers != again || calls != 1 {
		t.Errorf("GetOrCreate created %d times", calls)
	}
}

func TestCompositingLayersOrder(t *testing.T) {
	l := NewCompositingLayers()
	l.Add(CompositingLayer{Name: "ui", Z: 10})
	l.Add(CompositingLayer{Name: "scene", Z: 0})
	l.Add(CompositingLayer{Name: "sky", Z: -1})
	l.Add(CompositingLayer{Name: "scene-2", Z: 0})

	var names []string
	for _, layer := range l.Layers() {
		names = append(names, layer.Name)
	}
	want := []string{"sky", "scene", "scene-2", "ui"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
	if l.Len() != 4 {
		t.Errorf("Len = %d", l.Len())
	}
}
