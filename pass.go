// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

// Pass is a unit of GPU work that declares its resources and execution
// callbacks through a Builder.
//
// Every frame the scheduler calls ShouldRebuild on every pass of a graph.
// When any pass (or the back-buffer size) requests it, the scheduler
// rebuilds the whole graph: Create is called on the first build and
// Recreate on every build after that, for all passes in declared order.
// Both must declare every resource the pass needs; resources that are not
// declared again are released.
type Pass interface {
	// Name identifies the pass in diagnostics and errors.
	Name() string

	// ShouldRebuild reports whether the graph must be rebuilt before the
	// next frame. It must not have side effects that change its own answer
	// when called again with the same size.
	ShouldRebuild(backBuffer Size) bool

	// Create declares the pass's resources and callbacks on the first build.
	Create(b *Builder) error

	// Recreate declares them again on later builds, reusing CPU-side state
	// and inheriting unchanged resources.
	Recreate(b *Builder) error
}

// Destroyer is implemented by passes that hold state to release when their
// graph is destroyed.
type Destroyer interface {
	Destroy()
}

// PassFunc is the execution callback registered with Builder.AddPass. It
// runs once per executed frame.
type PassFunc func(ctx *Context) error

// PassHandle identifies a pass declared in one build.
type PassHandle struct {
	index      int
	generation uint32
}

// IsValid reports whether h was returned by Builder.AddPass.
func (h PassHandle) IsValid() bool {
	return h.generation != 0
}

// Access is a declared access mode of a pass on a resource.
type Access uint8

const (
	// AccessNone means no access.
	AccessNone Access = 0
	// AccessRead means the pass reads the resource.
	AccessRead Access = 1
	// AccessWrite means the pass writes the resource.
	AccessWrite Access = 2
	// AccessReadWrite means the pass reads and writes the resource.
	AccessReadWrite = AccessRead | AccessWrite
)

// Reads reports whether a includes read access.
func (a Access) Reads() bool { return a&AccessRead != 0 }

// Writes reports whether a includes write access.
func (a Access) Writes() bool { return a&AccessWrite != 0 }

// String returns the access mode name.
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return "none"
	}
}
