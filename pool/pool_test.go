package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwdecoder/types"
)

type countingAllocator struct {
	HostAllocator
	Allocations int
	Frees       int
	FailNext    bool

	// OnAllocate is called after each successful allocation.
	OnAllocate func()
}

func (a *countingAllocator) Allocate(ctx context.Context, layout Layout) ([]byte, int, error) {
	if a.FailNext {
		a.FailNext = false
		return nil, 0, errors.New("out of memory")
	}
	a.Allocations++
	data, pitch, err := a.HostAllocator.Allocate(ctx, layout)
	if a.OnAllocate != nil {
		a.OnAllocate()
	}
	return data, pitch, err
}

func (a *countingAllocator) Free(ctx context.Context, data []byte) error {
	a.Frees++
	return nil
}

func layout1080p() Layout {
	return Layout{RowBytes: 1920, Rows: 1080 + 540}
}

func requireBalanced(t *testing.T, p *Pool) {
	t.Helper()
	s := p.Stats()
	require.Equal(t, int(s.Allocated-s.Discarded), s.Free+s.Borrowed+s.Ready, "%#+v", s)
}

func TestAcquireReturnLIFO(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{}
	p := New(alloc, layout1080p())

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a.Handle, b.Handle)
	require.Len(t, a.Data, 1920*1620)
	require.Equal(t, 1920, a.Pitch)
	requireBalanced(t, p)

	require.NoError(t, p.Return(ctx, a))
	require.NoError(t, p.Return(ctx, b))
	before := p.Stats()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, b, c)
	require.NoError(t, p.Return(ctx, c))

	after := p.Stats()
	require.Equal(t, before, after)
	require.Equal(t, 2, alloc.Allocations)
	requireBalanced(t, p)
}

func TestAcquireDuringLayoutChange(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{}
	p := New(alloc, layout1080p())
	small := Layout{RowBytes: 640, Rows: 360 + 180}
	alloc.OnAllocate = func() {
		alloc.OnAllocate = nil
		p.SetLayout(ctx, small)
	}

	buf, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, small.FrameSize(), buf.Size)
	require.Len(t, buf.Data, 640*540)
	require.Equal(t, 2, alloc.Allocations)
	require.Equal(t, 1, alloc.Frees)
	require.EqualValues(t, 1, p.Stats().Allocated)
	requireBalanced(t, p)
}

func TestReturnTwice(t *testing.T) {
	ctx := context.Background()
	p := New(&countingAllocator{}, layout1080p())
	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, a))
	require.ErrorIs(t, p.Return(ctx, a), ErrDoubleReturn)
	requireBalanced(t, p)
}

func TestReturnForeign(t *testing.T) {
	ctx := context.Background()
	p0 := New(&countingAllocator{}, layout1080p())
	p1 := New(&countingAllocator{}, layout1080p())
	a, err := p0.Acquire(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, p1.Return(ctx, a), ErrForeignBuffer)
	require.ErrorIs(t, p1.Return(ctx, nil), ErrNilBuffer)
}

func TestReadyDrain(t *testing.T) {
	ctx := context.Background()
	p := New(&countingAllocator{}, layout1080p())

	var bufs []*Buffer
	for range 3 {
		buf, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, p.MarkReady(ctx, buf))
		bufs = append(bufs, buf)
	}
	requireBalanced(t, p)
	require.Equal(t, bufs, p.Ready())
	require.Equal(t, 3, p.Stats().Ready)

	drained := p.DrainRemoved(ctx, 2)
	require.Equal(t, bufs[:2], drained)
	require.Equal(t, bufs[2:], p.Ready())
	require.Equal(t, 2, p.Stats().Borrowed)
	requireBalanced(t, p)

	require.ErrorIs(t, p.Return(ctx, bufs[2]), ErrNotBorrowed)

	require.Len(t, p.DrainRemoved(ctx, 10), 1)
	require.Empty(t, p.DrainRemoved(ctx, 10))
	require.Empty(t, p.DrainRemoved(ctx, -1))
	for _, buf := range bufs {
		require.NoError(t, p.Return(ctx, buf))
	}
	require.Equal(t, Stats{Allocated: 3, Free: 3}, p.Stats())
}

func TestReclaimReady(t *testing.T) {
	ctx := context.Background()
	p := New(&countingAllocator{}, layout1080p())
	for range 2 {
		buf, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, p.MarkReady(ctx, buf))
	}
	p.ReclaimReady(ctx)
	require.Equal(t, Stats{Allocated: 2, Free: 2}, p.Stats())
}

func TestSetLayoutDiscardsStale(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{}
	p := New(alloc, layout1080p())

	var bufs []*Buffer
	for range 6 {
		buf, err := p.Acquire(ctx)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}
	for _, buf := range bufs[:5] {
		require.NoError(t, p.Return(ctx, buf))
	}
	require.Equal(t, 5, p.Stats().Free)

	smaller := Layout{RowBytes: 640, Rows: 360 + 180}
	p.SetLayout(ctx, smaller)
	require.Equal(t, 0, p.Stats().Free)
	require.Equal(t, 5, alloc.Frees)
	requireBalanced(t, p)

	fresh, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, smaller.FrameSize(), fresh.Size)
	for _, buf := range bufs {
		require.NotSame(t, buf, fresh)
	}

	// the buffer borrowed across the resize is discarded on return
	require.NoError(t, p.Return(ctx, bufs[5]))
	require.Equal(t, 6, alloc.Frees)
	require.NoError(t, p.Return(ctx, fresh))
	require.Equal(t, 1, p.Stats().Free)
	requireBalanced(t, p)
}

func TestSetLayoutSameSizeKeepsBuffers(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{}
	p := New(alloc, layout1080p())
	buf, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, buf))
	p.SetLayout(ctx, layout1080p())
	require.Equal(t, 1, p.Stats().Free)

	// the same frame size in other rows cannot reuse the buffer
	p.SetLayout(ctx, Layout{RowBytes: 1620, Rows: 1920})
	require.Equal(t, 0, p.Stats().Free)
	require.Equal(t, 1, alloc.Frees)
	requireBalanced(t, p)
}

func TestPitchedHostAllocator(t *testing.T) {
	ctx := context.Background()
	l := Layout{RowBytes: 1000, Rows: 10, Pitched: true}
	data, pitch, err := HostAllocator{}.Allocate(ctx, l)
	require.NoError(t, err)
	require.Equal(t, 1024, pitch)
	require.Len(t, data, 10240)

	data, pitch, err = HostAllocator{PitchAlignment: 64}.Allocate(ctx, l)
	require.NoError(t, err)
	require.Equal(t, 1024, pitch)
	require.Len(t, data, 10240)

	l.Pitched = false
	_, pitch, err = HostAllocator{}.Allocate(ctx, l)
	require.NoError(t, err)
	require.Equal(t, 1000, pitch)
}

func TestAllocationFailure(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{FailNext: true}
	p := New(alloc, layout1080p())
	_, err := p.Acquire(ctx)
	require.Error(t, err)
	require.Equal(t, Stats{}, p.Stats())

	_, err = New(nil, layout1080p()).Acquire(ctx)
	require.ErrorIs(t, err, ErrNilAllocator)

	_, err = New(alloc, Layout{}).Acquire(ctx)
	require.ErrorIs(t, err, ErrEmptyLayout)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	alloc := &countingAllocator{}
	p := New(alloc, Layout{RowBytes: 16, Rows: 16, Residency: types.BufferResidencyHost})

	free, err := p.Acquire(ctx)
	require.NoError(t, err)
	ready, err := p.Acquire(ctx)
	require.NoError(t, err)
	borrowed, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, free))
	require.NoError(t, p.MarkReady(ctx, ready))

	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 2, alloc.Frees)
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, p.Return(ctx, borrowed))
	assert.Equal(t, 3, alloc.Frees)
	requireBalanced(t, p)
}
