// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"log/slog"

	"github.com/gogpu/gputypes"
)

// Surface is the presentation target the back buffer follows. Hosts
// without a window can call Scheduler.Resize instead.
type Surface interface {
	// Size returns the current drawable size in pixels.
	Size() Size
}

// Option configures a Scheduler during creation.
//
// Example:
//
//	s, err := rendergraph.NewScheduler(rt,
//	    rendergraph.WithSurface(window),
//	    rendergraph.WithBackBufferFormat(gputypes.TextureFormatBGRA8Unorm),
//	)
type Option func(*options)

type options struct {
	surface Surface
	format  gputypes.TextureFormat
	logger  *slog.Logger
	label   string
}

func defaultOptions() options {
	return options{
		format: gputypes.TextureFormatRGBA8Unorm,
		label:  "rendergraph",
	}
}

// WithSurface makes UpdateBackBuffer follow the size of surface.
func WithSurface(surface Surface) Option {
	return func(o *options) {
		o.surface = surface
	}
}

// WithBackBufferFormat sets the back-buffer texel format.
// The default is RGBA8Unorm.
func WithBackBufferFormat(format gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithLogger sets the logger of this scheduler. By default the scheduler
// logs through the package logger (see SetLogger).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLabel sets the label used for frames and log records.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}
