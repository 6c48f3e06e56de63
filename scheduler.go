// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
)

// GraphHandle identifies a graph registered with a Scheduler.
type GraphHandle struct {
	id uint32
}

// GraphState is the lifecycle state of a graph.
type GraphState uint8

const (
	// GraphUninitialized graphs have never been built successfully, or
	// their last build failed.
	GraphUninitialized GraphState = iota
	// GraphBuilt graphs have a compiled build that can be replayed.
	GraphBuilt
	// GraphDestroyed graphs have been released.
	GraphDestroyed
)

// String returns the state name.
func (s GraphState) String() string {
	switch s {
	case GraphUninitialized:
		return "uninitialized"
	case GraphBuilt:
		return "built"
	case GraphDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("GraphState(%d)", uint8(s))
	}
}

// Stats are scheduler counters.
type Stats struct {
	// Builds counts successful (re)builds.
	Builds uint64
	// FailedBuilds counts builds that returned an error.
	FailedBuilds uint64
	// Replays counts frames executed without rebuilding.
	Replays uint64
	// Frames counts submitted frames.
	Frames uint64
	// Aborted counts frames discarded because a pass failed.
	Aborted uint64
	// Created counts backend objects created.
	Created uint64
	// Objects is the number of live backend objects.
	Objects int
	// Aliased counts transient resources that shared an object.
	Aliased uint64
	// Migrations counts completed buffer growth copies.
	Migrations uint64
	// Draws and Dispatches count submitted work.
	Draws      uint64
	Dispatches uint64
}

type graphState struct {
	handle   GraphHandle
	passes   []Pass
	state    GraphState
	created  bool
	compiled *build
	size     Size
	bbID     uint64
}

// Scheduler owns graphs of passes, decides per frame whether to rebuild or
// replay each graph, and executes them on a Runtime.
//
// A Scheduler is not safe for concurrent use; drive it from one render
// goroutine.
type Scheduler struct {
	rt   Runtime
	caps Capabilities
	opts options
	log  *slog.Logger

	graphs     map[uint32]*graphState
	nextGraph  uint32
	generation uint32
	nextObject uint64

	size       Size
	backBuffer *entry

	stats  Stats
	closed bool
}

// NewScheduler creates a scheduler executing on rt.
func NewScheduler(rt Runtime, opts ...Option) (*Scheduler, error) {
	if rt == nil {
		return nil, fmt.Errorf("%w: nil runtime", ErrConfiguration)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if BytesPerPixel(o.format) == 0 || o.format.IsDepthStencil() {
		return nil, fmt.Errorf("%w: unsupported back-buffer format %s", ErrConfiguration, o.format)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	s := &Scheduler{
		rt:     rt,
		caps:   rt.Capabilities(),
		opts:   o,
		log:    log,
		graphs: make(map[uint32]*graphState),
	}
	s.log.Info("rendergraph: scheduler created", "label", o.label, "backend", s.caps.Name)
	return s, nil
}

// Capabilities returns the runtime capabilities.
func (s *Scheduler) Capabilities() Capabilities {
	return s.caps
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// AddGraph registers an ordered list of passes forming one graph. The
// graph is built on its first Execute.
func (s *Scheduler) AddGraph(passes ...Pass) (GraphHandle, error) {
	if s.closed {
		return GraphHandle{}, ErrClosed
	}
	if len(passes) == 0 {
		return GraphHandle{}, fmt.Errorf("%w: graph has no passes", ErrConfiguration)
	}
	for i, p := range passes {
		if p == nil {
			return GraphHandle{}, fmt.Errorf("%w: pass %d is nil", ErrConfiguration, i)
		}
	}
	s.nextGraph++
	h := GraphHandle{id: s.nextGraph}
	s.graphs[h.id] = &graphState{handle: h, passes: append([]Pass(nil), passes...)}
	return h, nil
}

// State returns the lifecycle state of a graph.
func (s *Scheduler) State(h GraphHandle) GraphState {
	g, ok := s.graphs[h.id]
	if !ok {
		return GraphDestroyed
	}
	return g.state
}

// BackBuffer returns the back-buffer handle, valid in every build.
func (s *Scheduler) BackBuffer() Resource {
	return backBufferHandle
}

// BackBufferSize returns the current back-buffer size.
func (s *Scheduler) BackBufferSize() Size {
	return s.size
}

// UpdateBackBuffer queries the configured Surface and recreates the back
// buffer if its size changed. Graphs built for another size are rebuilt
// on their next Execute.
func (s *Scheduler) UpdateBackBuffer() (Resource, error) {
	if s.closed {
		return Resource{}, ErrClosed
	}
	if s.opts.surface == nil {
		return Resource{}, fmt.Errorf("%w: no surface configured, use Resize", ErrState)
	}
	if err := s.Resize(s.opts.surface.Size()); err != nil {
		return Resource{}, err
	}
	return backBufferHandle, nil
}

// Resize sets the back-buffer size directly.
func (s *Scheduler) Resize(size Size) error {
	if s.closed {
		return ErrClosed
	}
	if size.IsZero() {
		return fmt.Errorf("%w: back buffer size %s", ErrConfiguration, size)
	}
	if s.backBuffer != nil && s.size == size {
		return nil
	}
	e := newEntry(KindTexture)
	e.texture = TextureDesc{
		Label:  s.opts.label + " back buffer",
		Width:  uint32(size.Width),
		Height: uint32(size.Height),
		Format: s.opts.format,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	}
	p, err := s.createPhysical(e)
	if err != nil {
		return fmt.Errorf("rendergraph: create back buffer: %w", err)
	}
	e.phys = p
	if s.backBuffer != nil {
		s.destroyPhysical(s.backBuffer.phys)
	}
	s.backBuffer = e
	s.log.Debug("rendergraph: back buffer resized", "from", s.size, "to", size)
	s.size = size
	return nil
}

// Execute runs one frame of graph h. It asks every pass whether the graph
// must be rebuilt, rebuilds it if any pass or the back-buffer size
// requires it, and then runs every pass callback in declaration order.
//
// A failing pass callback aborts the frame: nothing it recorded is
// submitted and the returned error is a *PassError. A failing build
// releases the graph's objects; the next Execute builds it again.
func (s *Scheduler) Execute(h GraphHandle) error {
	if s.closed {
		return ErrClosed
	}
	g, ok := s.graphs[h.id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGraph, h.id)
	}
	if s.backBuffer == nil {
		if s.opts.surface == nil {
			return fmt.Errorf("%w: back buffer size unknown, call Resize", ErrState)
		}
		if _, err := s.UpdateBackBuffer(); err != nil {
			return err
		}
	}

	rebuild := g.state != GraphBuilt || g.size != s.size || g.bbID != s.backBuffer.phys.id
	for _, p := range g.passes {
		if p.ShouldRebuild(s.size) {
			rebuild = true
		}
	}
	if rebuild {
		if err := s.rebuild(g); err != nil {
			s.stats.FailedBuilds++
			s.log.Warn("rendergraph: build failed", "graph", h.id, "err", err)
			return err
		}
	} else {
		s.stats.Replays++
	}
	return s.run(g)
}

func (s *Scheduler) rebuild(g *graphState) error {
	s.generation++
	b := newBuilder(s, g, s.generation)
	op := "recreate"
	if !g.created {
		op = "create"
	}
	for _, p := range g.passes {
		var err error
		if g.created {
			err = p.Recreate(b)
		} else {
			err = p.Create(b)
		}
		if err != nil {
			s.abandon(g, b.cur)
			return &PassError{Pass: p.Name(), Op: op, Err: err}
		}
	}
	g.created = true

	res, err := s.compile(g.compiled, b.cur)
	if err != nil {
		s.abandon(g, b.cur)
		return err
	}
	g.compiled = b.cur
	g.state = GraphBuilt
	g.size = s.size
	g.bbID = s.backBuffer.phys.id
	s.stats.Builds++
	s.stats.Aliased += uint64(res.aliased)
	s.log.Debug("rendergraph: graph built",
		"graph", g.handle.id,
		"generation", b.cur.generation,
		"passes", len(b.cur.nodes),
		"resources", len(b.cur.entries)-1,
		"created", res.created,
		"aliased", res.aliased,
		"released", res.released)
	return nil
}

// abandon releases everything a failed build and its predecessor own.
func (s *Scheduler) abandon(g *graphState, failed *build) {
	s.releaseBuild(failed)
	s.releaseBuild(g.compiled)
	g.compiled = nil
	g.state = GraphUninitialized
}

func (s *Scheduler) run(g *graphState) error {
	b := g.compiled
	enc, err := s.rt.Begin(s.opts.label)
	if err != nil {
		return fmt.Errorf("rendergraph: begin frame: %w", err)
	}
	ctx := newContext(s, b, enc)
	for _, n := range b.nodes {
		ctx.enter(n)
		err := ctx.err
		if err == nil && n.run != nil {
			err = n.run(ctx)
		}
		if err == nil {
			err = ctx.leave()
		}
		if err != nil {
			enc.Discard()
			s.stats.Aborted++
			s.log.Warn("rendergraph: frame aborted", "graph", g.handle.id, "pass", n.name, "err", err)
			return &PassError{Pass: n.name, Op: "run", Err: err}
		}
	}
	if err := enc.Submit(); err != nil {
		return fmt.Errorf("rendergraph: submit: %w", err)
	}
	ctx.commit()
	s.stats.Frames++
	return nil
}

// Object returns the backend object a handle of graph h currently refers
// to. It is meant for readback and debugging tools.
func (s *Scheduler) Object(h GraphHandle, r Resource) (Object, error) {
	if isBackBuffer(r) {
		if s.backBuffer == nil {
			return nil, fmt.Errorf("%w: no back buffer", ErrState)
		}
		return s.backBuffer.phys.obj, nil
	}
	g, ok := s.graphs[h.id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGraph, h.id)
	}
	if g.compiled == nil {
		return nil, fmt.Errorf("%w: %s (graph not built)", ErrStaleHandle, r)
	}
	e, err := g.compiled.lookup(r)
	if err != nil {
		return nil, err
	}
	return e.phys.obj, nil
}

// Destroy releases every object of graph h and destroys its passes. It is
// safe to call for graphs that never executed and for graphs already
// destroyed.
func (s *Scheduler) Destroy(h GraphHandle) error {
	if h.id == 0 || h.id > s.nextGraph {
		return fmt.Errorf("%w: %d", ErrUnknownGraph, h.id)
	}
	g, ok := s.graphs[h.id]
	if !ok {
		return nil
	}
	s.releaseBuild(g.compiled)
	g.compiled = nil
	g.state = GraphDestroyed
	for _, p := range g.passes {
		if d, ok := p.(Destroyer); ok {
			d.Destroy()
		}
	}
	delete(s.graphs, h.id)
	return nil
}

// Close destroys every graph and the back buffer. Close is idempotent.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	var errs []error
	for id := range s.graphs {
		errs = append(errs, s.Destroy(GraphHandle{id: id}))
	}
	if s.backBuffer != nil {
		s.destroyPhysical(s.backBuffer.phys)
		s.backBuffer = nil
	}
	s.closed = true
	return errors.Join(errs...)
}
