// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
)

// Errors returned by the native runtime.
var (
	// ErrNilDevice is returned when a runtime is created without a HAL
	// device or queue.
	ErrNilDevice = errors.New("native: HAL device or queue is nil")

	// ErrProvider is returned when a device provider does not expose HAL
	// handles.
	ErrProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrForeignObject is returned for objects this runtime did not create.
	ErrForeignObject = errors.New("native: object was not created by this runtime")

	// ErrDestroyed is returned when a destroyed object is used.
	ErrDestroyed = errors.New("native: object has been destroyed")

	// ErrEncoderState is returned for calls the encoder state does not
	// allow, such as a draw outside a render pass.
	ErrEncoderState = errors.New("native: invalid encoder state")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("native: runtime closed")
)

// wrapDeviceError maps HAL allocation failures to
// rendergraph.ErrResourceExhausted.
func wrapDeviceError(what, label string, err error) error {
	if errors.Is(err, hal.ErrDeviceOutOfMemory) {
		return fmt.Errorf("%w: native: create %s %q: %w", rendergraph.ErrResourceExhausted, what, label, err)
	}
	return fmt.Errorf("native: create %s %q: %w", what, label, err)
}
