// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the builder, the context and the
// scheduler wraps one of these sentinels and can be matched with errors.Is.
var (
	// ErrConfiguration is returned for invalid descriptors: zero sizes,
	// undefined formats, textures larger than any atlas bucket.
	ErrConfiguration = errors.New("rendergraph: invalid configuration")

	// ErrResourceExhausted is returned when the runtime refuses to
	// allocate a GPU object (out of device memory, budget exceeded).
	ErrResourceExhausted = errors.New("rendergraph: resource exhausted")

	// ErrState is returned for invalid API usage such as drawing without a
	// bound pipeline or touching a resource the pass did not declare.
	ErrState = errors.New("rendergraph: invalid state")

	// ErrStaleHandle is returned when a resource handle from a superseded
	// build is used without having been inherited.
	ErrStaleHandle = errors.New("rendergraph: stale resource handle")

	// ErrGraphSealed is returned when resources or passes are declared
	// after the build has been sealed for execution.
	ErrGraphSealed = fmt.Errorf("%w: graph is sealed", ErrState)

	// ErrUnknownGraph is returned for graph handles the scheduler does not own.
	ErrUnknownGraph = errors.New("rendergraph: unknown graph")

	// ErrClosed is returned when operating on a closed scheduler.
	ErrClosed = errors.New("rendergraph: scheduler closed")
)

// PassError reports a failure inside a pass callback or a pass's
// Create/Recreate method. The frame that produced it was not submitted.
type PassError struct {
	// Pass is the name of the failing pass.
	Pass string
	// Op is the phase that failed ("create", "recreate", "run").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PassError) Error() string {
	return fmt.Sprintf("rendergraph: pass %q %s: %v", e.Pass, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PassError) Unwrap() error {
	return e.Err
}
