// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/backend/software"
)

// testPass is a Pass assembled from closures. A nil recreate falls back
// to create.
type testPass struct {
	name      string
	rebuild   func(rendergraph.Size) bool
	create    func(*rendergraph.Builder) error
	recreate  func(*rendergraph.Builder) error
	creates   int
	recreates int
	polls     int
	destroyed int
}

func (p *testPass) Name() string { return p.name }

func (p *testPass) ShouldRebuild(size rendergraph.Size) bool {
	p.polls++
	return p.rebuild != nil && p.rebuild(size)
}

func (p *testPass) Create(b *rendergraph.Builder) error {
	p.creates++
	if p.create == nil {
		return nil
	}
	return p.create(b)
}

func (p *testPass) Recreate(b *rendergraph.Builder) error {
	p.recreates++
	if p.recreate != nil {
		return p.recreate(b)
	}
	if p.create == nil {
		return nil
	}
	return p.create(b)
}

func (p *testPass) Destroy() { p.destroyed++ }

func newScheduler(t *testing.T, cfg software.Config) (*rendergraph.Scheduler, *software.Runtime) {
	t.Helper()
	rt := software.New(cfg)
	s, err := rendergraph.NewScheduler(rt)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Resize(rendergraph.Size{Width: 16, Height: 16}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rt
}

func addGraph(t *testing.T, s *rendergraph.Scheduler, passes ...rendergraph.Pass) rendergraph.GraphHandle {
	t.Helper()
	g, err := s.AddGraph(passes...)
	if err != nil {
		t.Fatalf("AddGraph: %v", err)
	}
	return g
}

func execute(t *testing.T, s *rendergraph.Scheduler, g rendergraph.GraphHandle) {
	t.Helper()
	if err := s.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func colorDesc(label string, transient bool) rendergraph.TextureDesc {
	return rendergraph.TextureDesc{
		Label:     label,
		Width:     16,
		Height:    16,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		Transient: transient,
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	if _, err := rendergraph.NewScheduler(nil); !errors.Is(err, rendergraph.ErrConfiguration) {
		t.Errorf("nil runtime: %v", err)
	}
	rt := software.New(software.Config{})
	_, err := rendergraph.NewScheduler(rt, rendergraph.WithBackBufferFormat(gputypes.TextureFormatDepth32Float))
	if !errors.Is(err, rendergraph.ErrConfiguration) {
		t.Errorf("depth back buffer: %v", err)
	}
}

func TestExecuteBuildsOnceThenReplays(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})
	p := &testPass{name: "clear"}
	p.create = func(b *rendergraph.Builder) error {
		h := b.AddPass("clear", func(ctx *rendergraph.Context) error {
			if err := ctx.BeginRenderPass(rendergraph.RenderPassDesc{
				Color: []rendergraph.ColorAttachment{{Texture: ctx.BackBuffer(), Clear: gputypes.Color{G: 1, A: 1}}},
			}); err != nil {
				return err
			}
			return ctx.EndRenderPass()
		})
		return b.Write(h, b.BackBuffer())
	}
	g := addGraph(t, s, p)

	for range 3 {
		execute(t, s, g)
	}
	st := s.Stats()
	if st.Builds != 1 || st.Replays != 2 || st.Frames != 3 {
		t.Errorf("stats = %+v, want 1 build, 2 replays, 3 frames", st)
	}
	if p.creates != 1 || p.recreates != 0 {
		t.Errorf("creates/recreates = %d/%d", p.creates, p.recreates)
	}
	if s.State(g) != rendergraph.GraphBuilt {
		t.Errorf("state = %s", s.State(g))
	}

	obj, err := s.Object(g, s.BackBuffer())
	if err != nil {
		t.Fatal(err)
	}
	img, err := rt.TextureImage(obj, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(3, 3); c.G != 255 || c.R != 0 {
		t.Errorf("back buffer = %v, want green", c)
	}
}

func TestShouldRebuildPollsEveryPass(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	first := &testPass{name: "first", rebuild: func(rendergraph.Size) bool { return true }}
	second := &testPass{name: "second"}
	g := addGraph(t, s, first, second)

	execute(t, s, g)
	execute(t, s, g)

	if second.polls != 2 {
		t.Errorf("second pass polled %d times, want 2", second.polls)
	}
	if second.creates != 1 || second.recreates != 1 {
		t.Errorf("second pass creates/recreates = %d/%d, want 1/1", second.creates, second.recreates)
	}
}

func TestResizeTriggersRebuild(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	var sizes []rendergraph.Size
	p := &testPass{name: "p", create: func(b *rendergraph.Builder) error {
		sizes = append(sizes, b.BackBufferSize())
		return nil
	}}
	g := addGraph(t, s, p)

	execute(t, s, g)
	if err := s.Resize(rendergraph.Size{Width: 32, Height: 8}); err != nil {
		t.Fatal(err)
	}
	execute(t, s, g)
	execute(t, s, g)

	if len(sizes) != 2 || sizes[1] != (rendergraph.Size{Width: 32, Height: 8}) {
		t.Errorf("build sizes = %v", sizes)
	}
}

type fixedSurface struct{ size rendergraph.Size }

func (f *fixedSurface) Size() rendergraph.Size { return f.size }

func TestUpdateBackBufferFollowsSurface(t *testing.T) {
	surface := &fixedSurface{size: rendergraph.Size{Width: 10, Height: 20}}
	s, err := rendergraph.NewScheduler(software.New(software.Config{}), rendergraph.WithSurface(surface))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	g := addGraph(t, s, &testPass{name: "p"})
	execute(t, s, g) // first Execute queries the surface
	if s.BackBufferSize() != surface.size {
		t.Errorf("size = %v, want %v", s.BackBufferSize(), surface.size)
	}

	surface.size = rendergraph.Size{Width: 40, Height: 30}
	bb, err := s.UpdateBackBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if bb != s.BackBuffer() {
		t.Error("back-buffer handle changed")
	}
	if s.BackBufferSize() != surface.size {
		t.Errorf("size = %v after update", s.BackBufferSize())
	}
}

func TestInheritResourceKeepsObjectAndContents(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})

	payload := []byte("persistent bytes")
	var (
		buf     rendergraph.Resource
		upload  = true
		rebuild bool
	)
	declare := func(b *rendergraph.Builder) (rendergraph.Resource, error) {
		if b.IsLive(buf) {
			return b.InheritResource(buf)
		}
		return b.CreateBuffer(rendergraph.BufferDesc{Label: "data", Size: 64, Usage: rendergraph.ShaderBufferUsage})
	}
	p := &testPass{name: "writer", rebuild: func(rendergraph.Size) bool { return rebuild }}
	p.create = func(b *rendergraph.Builder) error {
		r, err := declare(b)
		if err != nil {
			return err
		}
		buf = r
		h := b.AddPass("write", func(ctx *rendergraph.Context) error {
			if !upload {
				return nil
			}
			upload = false
			return ctx.UploadBuffer(buf, 0, payload)
		})
		return b.ReadWrite(h, buf)
	}
	g := addGraph(t, s, p)

	execute(t, s, g)
	before, err := s.Object(g, buf)
	if err != nil {
		t.Fatal(err)
	}
	created := s.Stats().Created

	rebuild = true
	execute(t, s, g)
	rebuild = false

	after, err := s.Object(g, buf)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("inherited resource refers to a new object")
	}
	if got := s.Stats().Created; got != created {
		t.Errorf("rebuild created %d objects", got-created)
	}
	data, err := rt.ReadBuffer(after, 0, uint64(len(payload)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("contents = %q, want %q", data, payload)
	}
}

func TestInheritTwiceIsStale(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	var (
		tex     rendergraph.Resource
		errs    []error
		rebuild bool
	)
	p := &testPass{name: "p", rebuild: func(rendergraph.Size) bool { return rebuild }}
	p.create = func(b *rendergraph.Builder) error {
		var err error
		tex, err = b.CreateTexture(colorDesc("t", false))
		return err
	}
	p.recreate = func(b *rendergraph.Builder) error {
		old := tex
		var err error
		if tex, err = b.InheritResource(old); err != nil {
			return err
		}
		_, err = b.InheritResource(old)
		errs = append(errs, err)
		return nil
	}
	g := addGraph(t, s, p)
	execute(t, s, g)
	rebuild = true
	execute(t, s, g)

	if len(errs) != 1 || !errors.Is(errs[0], rendergraph.ErrStaleHandle) {
		t.Errorf("second inherit err = %v, want ErrStaleHandle", errs)
	}
}

func TestStaleHandleInCallback(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	var (
		old     rendergraph.Resource
		rebuild bool
	)
	p := &testPass{name: "p", rebuild: func(rendergraph.Size) bool { return rebuild }}
	p.create = func(b *rendergraph.Builder) error {
		old, _ = b.CreateBuffer(rendergraph.BufferDesc{Label: "b", Size: 16, Usage: rendergraph.VertexBufferUsage})
		h := b.AddPass("use", func(ctx *rendergraph.Context) error {
			return ctx.UploadBuffer(old, 0, []byte{1})
		})
		return b.Write(h, old)
	}
	p.recreate = func(b *rendergraph.Builder) error {
		stale := old
		b.AddPass("use", func(ctx *rendergraph.Context) error {
			return ctx.UploadBuffer(stale, 0, []byte{1})
		})
		return nil
	}
	g := addGraph(t, s, p)
	execute(t, s, g)

	rebuild = true
	err := s.Execute(g)
	if !errors.Is(err, rendergraph.ErrStaleHandle) {
		t.Fatalf("err = %v, want ErrStaleHandle", err)
	}
	var perr *rendergraph.PassError
	if !errors.As(err, &perr) || perr.Pass != "use" || perr.Op != "run" {
		t.Errorf("err = %#v, want *PassError for pass use", err)
	}
}

func TestGrowBufferPreservesData(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})

	const oldSize, newSize = 16, 64
	seed := []byte("0123456789abcdef")
	var (
		buf      rendergraph.Resource
		capacity uint64
		want     uint64 = oldSize
		seeded   bool
	)
	p := &testPass{name: "mesh", rebuild: func(rendergraph.Size) bool { return capacity < want }}
	p.create = func(b *rendergraph.Builder) error {
		var err error
		switch {
		case !b.IsLive(buf):
			buf, err = b.CreateVertexBuffer(want)
		case capacity < want:
			buf, err = b.GrowBuffer(buf, capacity, rendergraph.BufferDesc{Label: "vertices", Size: want, Usage: rendergraph.VertexBufferUsage})
		default:
			buf, err = b.InheritResource(buf)
		}
		if err != nil {
			return err
		}
		capacity = want
		h := b.AddPass("upload", func(ctx *rendergraph.Context) error {
			if seeded {
				return nil
			}
			seeded = true
			return ctx.UploadBuffer(buf, 0, seed)
		})
		return b.ReadWrite(h, buf)
	}
	g := addGraph(t, s, p)
	execute(t, s, g)
	old, _ := s.Object(g, buf)
	objects := rt.Stats().Buffers

	want = newSize
	execute(t, s, g)

	grown, err := s.Object(g, buf)
	if err != nil {
		t.Fatal(err)
	}
	if grown == old {
		t.Fatal("GrowBuffer reused the old object")
	}
	data, err := rt.ReadBuffer(grown, 0, newSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data[:oldSize], seed) {
		t.Errorf("first %d bytes = %q, want %q", oldSize, data[:oldSize], seed)
	}
	if st := s.Stats(); st.Migrations != 1 {
		t.Errorf("Migrations = %d, want 1", st.Migrations)
	}
	if got := rt.Stats().Buffers; got != objects {
		t.Errorf("live buffers = %d, want %d (old buffer released after the copy)", got, objects)
	}
}

func TestChainedGrowthAfterAbortedFrame(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})

	seed := []byte("0123456789abcdef")
	boom := errors.New("boom")
	var (
		buf      rendergraph.Resource
		capacity uint64
		want     uint64 = 16
		seeded   bool
		fail     bool
	)
	p := &testPass{name: "mesh", rebuild: func(rendergraph.Size) bool { return capacity < want }}
	p.create = func(b *rendergraph.Builder) error {
		var err error
		switch {
		case !b.IsLive(buf):
			buf, err = b.CreateVertexBuffer(want)
		case capacity < want:
			buf, err = b.GrowBuffer(buf, capacity, rendergraph.BufferDesc{Label: "vertices", Size: want, Usage: rendergraph.VertexBufferUsage})
		default:
			buf, err = b.InheritResource(buf)
		}
		if err != nil {
			return err
		}
		capacity = want
		h := b.AddPass("upload", func(ctx *rendergraph.Context) error {
			if seeded {
				return nil
			}
			seeded = true
			return ctx.UploadBuffer(buf, 0, seed)
		})
		return b.ReadWrite(h, buf)
	}
	after := &testPass{name: "after", create: func(b *rendergraph.Builder) error {
		b.AddPass("after", func(*rendergraph.Context) error {
			if fail {
				return boom
			}
			return nil
		})
		return nil
	}}
	g := addGraph(t, s, p, after)
	execute(t, s, g)
	buffers := rt.Stats().Buffers

	// The copy into the 64 byte buffer is recorded but never submitted.
	want, fail = 64, true
	if err := s.Execute(g); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	want, fail = 256, false
	execute(t, s, g)

	obj, err := s.Object(g, buf)
	if err != nil {
		t.Fatal(err)
	}
	data, err := rt.ReadBuffer(obj, 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, seed) {
		t.Errorf("first 16 bytes = %q, want %q", data, seed)
	}
	if st := s.Stats(); st.Migrations != 2 || st.Aborted != 1 {
		t.Errorf("stats = %+v, want 2 migrations and 1 aborted frame", st)
	}
	if got := rt.Stats().Buffers; got != buffers {
		t.Errorf("live buffers = %d, want %d", got, buffers)
	}
}

func TestTransientAliasing(t *testing.T) {
	tests := []struct {
		name      string
		overlap   bool
		wantAlias uint64
	}{
		{"disjoint", false, 1},
		{"overlapping", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newScheduler(t, software.Config{})
			var a, b rendergraph.Resource
			p := &testPass{name: "p"}
			p.create = func(bld *rendergraph.Builder) error {
				a, _ = bld.CreateTexture(colorDesc("a", true))
				b, _ = bld.CreateTexture(colorDesc("b", true))
				noop := func(*rendergraph.Context) error { return nil }
				first := bld.AddPass("first", noop)
				second := bld.AddPass("second", noop)
				if err := bld.Write(first, a); err != nil {
					return err
				}
				if tt.overlap {
					if err := bld.Read(second, a); err != nil {
						return err
					}
				}
				return bld.Write(second, b)
			}
			g := addGraph(t, s, p)
			execute(t, s, g)

			if got := s.Stats().Aliased; got != tt.wantAlias {
				t.Errorf("Aliased = %d, want %d", got, tt.wantAlias)
			}
			oa, _ := s.Object(g, a)
			ob, _ := s.Object(g, b)
			if (oa == ob) != (tt.wantAlias == 1) {
				t.Errorf("shared object = %v, want %v", oa == ob, tt.wantAlias == 1)
			}
		})
	}
}

func TestBarriersFromDeclaredAccess(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		tex, err := b.CreateTexture(colorDesc("t", false))
		if err != nil {
			return err
		}
		noop := func(*rendergraph.Context) error { return nil }
		w := b.AddPass("write", noop)
		r1 := b.AddPass("read-1", noop)
		r2 := b.AddPass("read-2", noop)
		_ = b.Write(w, tex)
		_ = b.Read(r1, tex)
		return b.Read(r2, tex)
	}
	g := addGraph(t, s, p)
	execute(t, s, g)
	// write -> read is a hazard, read -> read is not.
	if got := rt.Stats().Barriers; got != 1 {
		t.Errorf("barriers after first frame = %d, want 1", got)
	}
	execute(t, s, g)
	// The next frame's write follows the previous frame's read.
	if got := rt.Stats().Barriers; got != 3 {
		t.Errorf("barriers after second frame = %d, want 3", got)
	}
}

func TestPassErrorAbortsFrame(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})
	boom := errors.New("boom")
	var buf rendergraph.Resource
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		buf, _ = b.CreateBuffer(rendergraph.BufferDesc{Label: "b", Size: 4, Usage: rendergraph.VertexBufferUsage})
		h := b.AddPass("fails", func(ctx *rendergraph.Context) error {
			if err := ctx.UploadBuffer(buf, 0, []byte{1, 2, 3, 4}); err != nil {
				return err
			}
			return boom
		})
		return b.Write(h, buf)
	}
	g := addGraph(t, s, p)

	err := s.Execute(g)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	var perr *rendergraph.PassError
	if !errors.As(err, &perr) || perr.Pass != "fails" {
		t.Errorf("err = %v, want *PassError", err)
	}
	obj, _ := s.Object(g, buf)
	data, _ := rt.ReadBuffer(obj, 0, 4)
	if !bytes.Equal(data, make([]byte, 4)) {
		t.Errorf("aborted frame was submitted: %v", data)
	}
	if st := s.Stats(); st.Aborted != 1 || st.Frames != 0 {
		t.Errorf("stats = %+v", st)
	}
	if s.State(g) != rendergraph.GraphBuilt {
		t.Error("a failed frame must not invalidate the build")
	}
}

func TestAbortedFrameWorkIsNotCounted(t *testing.T) {
	s, rt := newScheduler(t, software.Config{})
	boom := errors.New("boom")
	fail := false
	var submitted int
	p := &testPass{name: "compute"}
	p.create = func(b *rendergraph.Builder) error {
		pipeline, err := b.CreatePipeline(rendergraph.PipelineDesc{Label: "c", Source: "compute", ComputeEntry: "main"})
		if err != nil {
			return err
		}
		b.AddPass("compute", func(ctx *rendergraph.Context) error {
			ctx.OnSubmit(func() { submitted++ })
			if err := ctx.BindPipeline(pipeline); err != nil {
				return err
			}
			if err := ctx.Dispatch(1, 1, 1); err != nil {
				return err
			}
			if fail {
				return boom
			}
			return nil
		})
		return nil
	}
	g := addGraph(t, s, p)

	execute(t, s, g)
	fail = true
	if err := s.Execute(g); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if st := s.Stats(); st.Dispatches != 1 || st.Aborted != 1 {
		t.Errorf("stats = %+v, want 1 dispatch and 1 aborted frame", st)
	}
	if got := rt.Stats().Dispatches; got != 1 {
		t.Errorf("runtime dispatches = %d, want 1", got)
	}
	if submitted != 1 {
		t.Errorf("submit callbacks ran %d times, want 1", submitted)
	}
}

func TestOverflowingRangesFail(t *testing.T) {
	const huge = math.MaxUint64 - 3
	tests := []struct {
		name string
		op   func(ctx *rendergraph.Context, a, b rendergraph.Resource) error
	}{
		{"upload", func(ctx *rendergraph.Context, a, _ rendergraph.Resource) error {
			return ctx.UploadBuffer(a, huge, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		}},
		{"copy source", func(ctx *rendergraph.Context, a, b rendergraph.Resource) error {
			return ctx.CopyBuffer(a, huge, b, 0, 8)
		}},
		{"copy destination", func(ctx *rendergraph.Context, a, b rendergraph.Resource) error {
			return ctx.CopyBuffer(a, 0, b, huge, 8)
		}},
		{"uniform range", func(ctx *rendergraph.Context, a, _ rendergraph.Resource) error {
			return ctx.Bind(0, rendergraph.UniformBufferBinding{Buffer: a, Offset: huge, Size: 8})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rt := newScheduler(t, software.Config{})
			var opErr error
			p := &testPass{name: "ranges"}
			p.create = func(b *rendergraph.Builder) error {
				desc := rendergraph.BufferDesc{Size: 16, Usage: rendergraph.ShaderBufferUsage}
				desc.Label = "a"
				a, err := b.CreateBuffer(desc)
				if err != nil {
					return err
				}
				desc.Label = "b"
				c, err := b.CreateBuffer(desc)
				if err != nil {
					return err
				}
				pipeline, err := b.CreatePipeline(rendergraph.PipelineDesc{
					Label:        "c",
					Source:       "compute",
					ComputeEntry: "main",
					Bindings:     []rendergraph.BindingSlot{{Slot: 0, Type: rendergraph.BindingUniformBuffer}},
				})
				if err != nil {
					return err
				}
				h := b.AddPass("ranges", func(ctx *rendergraph.Context) error {
					if err := ctx.BindPipeline(pipeline); err != nil {
						return err
					}
					opErr = tt.op(ctx, a, c)
					return opErr
				})
				if err := b.ReadWrite(h, a); err != nil {
					return err
				}
				return b.ReadWrite(h, c)
			}
			g := addGraph(t, s, p)
			if err := s.Execute(g); !errors.Is(err, rendergraph.ErrState) {
				t.Fatalf("err = %v, want ErrState", err)
			}
			if !errors.Is(opErr, rendergraph.ErrState) {
				t.Errorf("op err = %v, want ErrState", opErr)
			}
			if st := rt.Stats(); st.Writes != 0 || st.Submits != 0 {
				t.Errorf("runtime stats = %+v, want nothing submitted", st)
			}
		})
	}
}

func TestContextErrorIsSticky(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	var afterErr error
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		b.AddPass("ignores-errors", func(ctx *rendergraph.Context) error {
			_ = ctx.DrawArray(0, 3, 1) // no render pass: fails
			afterErr = ctx.EndRenderPass()
			return nil
		})
		return nil
	}
	g := addGraph(t, s, p)

	err := s.Execute(g)
	if !errors.Is(err, rendergraph.ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	if afterErr == nil || afterErr.Error() != errors.Unwrap(err).Error() {
		t.Errorf("later call returned %v, want the first error", afterErr)
	}
}

func TestUndeclaredAccessFails(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		buf, _ := b.CreateVertexBuffer(8)
		h := b.AddPass("reader", func(ctx *rendergraph.Context) error {
			return ctx.UploadBuffer(buf, 0, []byte{1})
		})
		return b.Read(h, buf)
	}
	g := addGraph(t, s, p)
	if err := s.Execute(g); !errors.Is(err, rendergraph.ErrState) {
		t.Errorf("upload with read access: %v, want ErrState", err)
	}
}

func TestBuilderSealedAfterBuild(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	var (
		saved *rendergraph.Builder
		err   error
		pass  rendergraph.PassHandle
	)
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		saved = b
		b.AddPass("late", func(*rendergraph.Context) error {
			_, err = saved.CreateVertexBuffer(4)
			pass = saved.AddPass("later", nil)
			return nil
		})
		return nil
	}
	g := addGraph(t, s, p)
	execute(t, s, g)

	if !errors.Is(err, rendergraph.ErrGraphSealed) || !errors.Is(err, rendergraph.ErrState) {
		t.Errorf("CreateVertexBuffer after seal: %v", err)
	}
	if pass.IsValid() {
		t.Error("AddPass after seal returned a valid handle")
	}
}

func TestFailedBuildRecovers(t *testing.T) {
	s, rt := newScheduler(t, software.Config{MemoryBudget: 16*16*4 + 4096})
	size := uint64(1 << 20)
	p := &testPass{name: "p"}
	p.create = func(b *rendergraph.Builder) error {
		_, err := b.CreateBuffer(rendergraph.BufferDesc{Label: "big", Size: size, Usage: rendergraph.VertexBufferUsage})
		return err
	}
	g := addGraph(t, s, p)

	err := s.Execute(g)
	if !errors.Is(err, rendergraph.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	if s.State(g) != rendergraph.GraphUninitialized {
		t.Errorf("state = %s, want uninitialized", s.State(g))
	}
	if st := s.Stats(); st.FailedBuilds != 1 {
		t.Errorf("FailedBuilds = %d", st.FailedBuilds)
	}

	size = 1024
	execute(t, s, g)
	if s.State(g) != rendergraph.GraphBuilt {
		t.Errorf("state = %s, want built", s.State(g))
	}
	if p.recreates != 1 {
		t.Errorf("recreates = %d, want 1", p.recreates)
	}
	if got := rt.Stats().Buffers; got != 1 {
		t.Errorf("live buffers = %d, want 1", got)
	}
}

func TestDestroyAndClose(t *testing.T) {
	rt := software.New(software.Config{})
	s, _ := rendergraph.NewScheduler(rt)
	_ = s.Resize(rendergraph.Size{Width: 4, Height: 4})

	p := &testPass{name: "p", create: func(b *rendergraph.Builder) error {
		_, err := b.CreateVertexBuffer(32)
		return err
	}}
	never := &testPass{name: "never"}
	g := addGraph(t, s, p)
	unused := addGraph(t, s, never)
	execute(t, s, g)

	if err := s.Destroy(unused); err != nil {
		t.Errorf("Destroy of a never-executed graph: %v", err)
	}
	if err := s.Destroy(g); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(g); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
	if p.destroyed != 1 || never.destroyed != 1 {
		t.Errorf("Destroy called %d/%d times", p.destroyed, never.destroyed)
	}
	if err := s.Destroy(rendergraph.GraphHandle{}); !errors.Is(err, rendergraph.ErrUnknownGraph) {
		t.Errorf("Destroy(zero) = %v", err)
	}
	if err := s.Execute(g); !errors.Is(err, rendergraph.ErrUnknownGraph) {
		t.Errorf("Execute after Destroy = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if st := rt.Stats(); st.Buffers != 0 || st.Textures != 0 || st.InvalidDestroys != 0 {
		t.Errorf("runtime after Close: %+v", st)
	}
	if _, err := s.AddGraph(p); !errors.Is(err, rendergraph.ErrClosed) {
		t.Errorf("AddGraph after Close: %v", err)
	}
}

func TestRegistryIsPerBuild(t *testing.T) {
	s, _ := newScheduler(t, software.Config{})
	type shared struct{ n int }
	rebuild := false
	var seen []bool
	producer := &testPass{name: "producer", rebuild: func(rendergraph.Size) bool { return rebuild }}
	producer.create = func(b *rendergraph.Builder) error {
		_, had := rendergraph.Get[*shared](b.Registry())
		seen = append(seen, had)
		rendergraph.Set(b.Registry(), &shared{n: 1})
		return nil
	}
	var got int
	consumer := &testPass{name: "consumer", create: func(b *rendergraph.Builder) error {
		v, ok := rendergraph.Get[*shared](b.Registry())
		if !ok {
			return errors.New("producer did not publish")
		}
		got = v.n
		return nil
	}}
	g := addGraph(t, s, producer, consumer)
	execute(t, s, g)
	rebuild = true
	execute(t, s, g)

	if got != 1 {
		t.Errorf("consumer read %d", got)
	}
	if len(seen) != 2 || seen[0] || seen[1] {
		t.Errorf("registry carried values across builds: %v", seen)
	}
}
