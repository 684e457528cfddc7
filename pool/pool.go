// pool.go implements a pool of uniformly sized output frame buffers.

// Package pool provides the frame buffer pool the decode session copies
// decoded pictures into.
//
// A buffer is owned by exactly one party at a time: the pool (while it is
// in the free list or in the ready list) or a caller (after Acquire or
// DrainRemoved, until Return). Buffers still owned by a caller when the
// pool is closed are leaked by contract.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/xsync"
)

var (
	ErrClosed         = errors.New("the pool is closed")
	ErrDoubleReturn   = errors.New("the buffer is already in the pool")
	ErrForeignBuffer  = errors.New("the buffer does not belong to this pool")
	ErrNotBorrowed    = errors.New("the buffer is not borrowed")
	ErrEmptyLayout    = errors.New("the layout is empty")
	ErrNilBuffer      = errors.New("the buffer is nil")
	ErrNilAllocator   = errors.New("the allocator is nil")
	ErrShortAllocated = errors.New("the allocator returned less memory than requested")

	errLayoutChanged = errors.New("the layout changed")
)

type Pool struct {
	allocator Allocator

	locker     xsync.Mutex
	layout     Layout
	free       []*Buffer
	ready      []*Buffer
	nextHandle Handle
	closed     bool
	allocated  uint64
	discarded  uint64
	borrowed   int
}

func New(
	allocator Allocator,
	layout Layout,
) *Pool {
	return &Pool{
		allocator: allocator,
		layout:    layout,
	}
}

func (p *Pool) String() string {
	return fmt.Sprintf("Pool(%s)", p.Layout())
}

func (p *Pool) Layout() Layout {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &p.locker, func() Layout {
		return p.layout
	})
}

// Acquire returns the most recently freed buffer, or allocates a new one
// if the free list is empty. The caller owns the result.
func (p *Pool) Acquire(ctx context.Context) (_ret *Buffer, _err error) {
	logger.Tracef(ctx, "Acquire")
	defer func() { logger.Tracef(ctx, "/Acquire: %v %v", _ret, _err) }()

	for {
		var (
			buf    *Buffer
			layout Layout
			err    error
		)
		p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
			buf, layout, err = p.popLocked(ctx)
		})
		if err != nil {
			return nil, err
		}
		if buf != nil {
			return buf, nil
		}

		// the allocation itself happens outside of the lock
		buf, err = p.allocate(ctx, layout)
		if err != nil {
			return nil, err
		}

		err = xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &p.locker, p.registerLocked, ctx, buf)
		switch {
		case err == nil:
			return buf, nil
		case errors.Is(err, errLayoutChanged):
			logger.Debugf(ctx, "the layout changed during the allocation, retrying")
			p.release(ctx, buf)
		default:
			p.release(ctx, buf)
			return nil, err
		}
	}
}

func (p *Pool) popLocked(ctx context.Context) (*Buffer, Layout, error) {
	if p.closed {
		return nil, Layout{}, ErrClosed
	}
	if p.layout.FrameSize() <= 0 {
		return nil, Layout{}, ErrEmptyLayout
	}
	n := len(p.free)
	if n == 0 {
		return nil, p.layout, nil
	}
	buf := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	buf.state = bufferStateBorrowed
	p.borrowed++
	return buf, p.layout, nil
}

func (p *Pool) allocate(ctx context.Context, layout Layout) (*Buffer, error) {
	if p.allocator == nil {
		return nil, ErrNilAllocator
	}
	data, pitch, err := p.allocator.Allocate(ctx, layout)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate a %s buffer: %w", humanize.Bytes(uint64(layout.FrameSize())), err)
	}
	if pitch < layout.RowBytes || len(data) < pitch*layout.Rows {
		if freeErr := p.allocator.Free(ctx, data); freeErr != nil {
			logger.Errorf(ctx, "unable to free a short buffer: %v", freeErr)
		}
		return nil, fmt.Errorf("%w: pitch:%d len:%d, layout:%s", ErrShortAllocated, pitch, len(data), layout)
	}
	return &Buffer{
		Data:      data,
		Pitch:     pitch,
		Size:      layout.FrameSize(),
		Residency: layout.Residency,
		pool:      p,
		state:     bufferStateBorrowed,
	}, nil
}

func (p *Pool) registerLocked(ctx context.Context, buf *Buffer) error {
	if p.closed {
		return ErrClosed
	}
	if !p.fitsLocked(buf) {
		return errLayoutChanged
	}
	p.nextHandle++
	buf.Handle = p.nextHandle
	p.allocated++
	p.borrowed++
	logger.Debugf(ctx, "allocated buffer #%d of %s (pitch %d); total allocations: %d", buf.Handle, humanize.Bytes(uint64(len(buf.Data))), buf.Pitch, p.allocated)
	return nil
}

// Return gives a borrowed buffer back. A buffer allocated for a frame size
// other than the current one is freed instead of being reused.
func (p *Pool) Return(ctx context.Context, buf *Buffer) (_err error) {
	logger.Tracef(ctx, "Return: %v", buf)
	defer func() { logger.Tracef(ctx, "/Return: %v: %v", buf, _err) }()
	if buf == nil {
		return ErrNilBuffer
	}

	stale, err := xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &p.locker, p.returnLocked, ctx, buf)
	if err != nil {
		return err
	}
	if stale {
		p.release(ctx, buf)
	}
	return nil
}

func (p *Pool) returnLocked(ctx context.Context, buf *Buffer) (bool, error) {
	if buf.pool != p {
		return false, ErrForeignBuffer
	}
	switch buf.state {
	case bufferStateFree:
		return false, ErrDoubleReturn
	case bufferStateReady:
		return false, ErrNotBorrowed
	}
	p.borrowed--
	if p.closed || !p.fitsLocked(buf) {
		logger.Debugf(ctx, "discarding buffer #%d: size %d, current frame size %d, closed:%t", buf.Handle, buf.Size, p.layout.FrameSize(), p.closed)
		buf.state = bufferStateReleased
		p.discarded++
		return true, nil
	}
	buf.state = bufferStateFree
	p.free = append(p.free, buf)
	return false, nil
}

// fitsLocked tells whether the buffer can hold a frame of the current
// layout. Only the frame size matters for packed buffers of the same
// shape, but a reshaped frame of the same size needs other rows.
func (p *Pool) fitsLocked(buf *Buffer) bool {
	l := p.layout
	if buf.Size != l.FrameSize() || buf.Residency != l.Residency {
		return false
	}
	if !l.Pitched && buf.Pitch != l.RowBytes {
		return false
	}
	return buf.Pitch >= l.RowBytes && len(buf.Data) >= buf.Pitch*l.Rows
}

// MarkReady puts a borrowed buffer holding a freshly decoded picture onto
// the ready list.
func (p *Pool) MarkReady(ctx context.Context, buf *Buffer) error {
	if buf == nil {
		return ErrNilBuffer
	}
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() error {
		if buf.pool != p {
			return ErrForeignBuffer
		}
		if buf.state != bufferStateBorrowed {
			return ErrNotBorrowed
		}
		buf.state = bufferStateReady
		p.borrowed--
		p.ready = append(p.ready, buf)
		return nil
	})
}

// Ready returns the ready list without removing anything from it. The
// buffers remain owned by the pool.
func (p *Pool) Ready() []*Buffer {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &p.locker, func() []*Buffer {
		result := make([]*Buffer, len(p.ready))
		copy(result, p.ready)
		return result
	})
}

// DrainRemoved removes up to the first n buffers of the ready list and
// transfers their ownership to the caller, who must Return each of them.
func (p *Pool) DrainRemoved(ctx context.Context, n int) []*Buffer {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() []*Buffer {
		n = min(max(n, 0), len(p.ready))
		result := make([]*Buffer, n)
		copy(result, p.ready[:n])
		for _, buf := range result {
			buf.state = bufferStateBorrowed
		}
		p.borrowed += n
		p.ready = append(p.ready[:0], p.ready[n:]...)
		return result
	})
}

// ReclaimReady moves every buffer of the ready list back to the free list.
func (p *Pool) ReclaimReady(ctx context.Context) {
	var stale []*Buffer
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		for i, buf := range p.ready {
			p.ready[i] = nil
			if p.closed || !p.fitsLocked(buf) {
				buf.state = bufferStateReleased
				p.discarded++
				stale = append(stale, buf)
				continue
			}
			buf.state = bufferStateFree
			p.free = append(p.free, buf)
		}
		p.ready = p.ready[:0]
	})
	for _, buf := range stale {
		p.release(ctx, buf)
	}
}

// SetLayout switches the pool to a new layout. The free buffers which
// cannot hold a frame of it are released; borrowed ones are left alone and
// will be discarded when returned.
func (p *Pool) SetLayout(ctx context.Context, layout Layout) {
	logger.Debugf(ctx, "SetLayout: %s", layout)
	var stale []*Buffer
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		p.layout = layout
		kept := p.free[:0]
		for _, buf := range p.free {
			if p.fitsLocked(buf) {
				kept = append(kept, buf)
				continue
			}
			buf.state = bufferStateReleased
			stale = append(stale, buf)
		}
		for i := len(kept); i < len(p.free); i++ {
			p.free[i] = nil
		}
		p.free = kept
		p.discarded += uint64(len(stale))
	})
	if len(stale) > 0 {
		logger.Debugf(ctx, "released %d buffers of a stale size", len(stale))
	}
	for _, buf := range stale {
		p.release(ctx, buf)
	}
}

func (p *Pool) release(ctx context.Context, buf *Buffer) {
	if p.allocator == nil {
		return
	}
	if err := p.allocator.Free(ctx, buf.Data); err != nil {
		logger.Errorf(ctx, "unable to free buffer #%d: %v", buf.Handle, err)
	}
	buf.Data = nil
}

// Close releases every buffer held by the pool. Buffers borrowed at this
// moment are not touched; returning them later frees them.
func (p *Pool) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	var held []*Buffer
	var borrowed int
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if p.closed {
			return
		}
		p.closed = true
		held = append(p.free, p.ready...)
		p.free, p.ready = nil, nil
		for _, buf := range held {
			buf.state = bufferStateReleased
		}
		p.discarded += uint64(len(held))
		borrowed = p.borrowed
	})
	if borrowed > 0 {
		logger.Warnf(ctx, "closing the pool while %d buffers are still borrowed", borrowed)
	}
	for _, buf := range held {
		p.release(ctx, buf)
	}
	return nil
}

type Stats struct {
	Allocated uint64
	Discarded uint64
	Free      int
	Ready     int
	Borrowed  int
}

func (p *Pool) Stats() Stats {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &p.locker, func() Stats {
		return Stats{
			Allocated: p.allocated,
			Discarded: p.discarded,
			Free:      len(p.free),
			Ready:     len(p.ready),
			Borrowed:  p.borrowed,
		}
	})
}
