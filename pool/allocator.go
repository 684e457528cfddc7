package pool

import (
	"context"
)

// Allocator provides the memory behind the buffers. It returns at least
// pitch*layout.Rows bytes with pitch >= layout.RowBytes.
type Allocator interface {
	Allocate(ctx context.Context, layout Layout) (data []byte, pitch int, err error)
	Free(ctx context.Context, data []byte) error
}

const DefaultPitchAlignment = 256

// HostAllocator allocates buffers in the Go heap.
type HostAllocator struct {
	// PitchAlignment is used for pitched layouts; zero means DefaultPitchAlignment.
	PitchAlignment int
}

var _ Allocator = HostAllocator{}

func (a HostAllocator) Allocate(
	ctx context.Context,
	layout Layout,
) ([]byte, int, error) {
	pitch := layout.RowBytes
	if layout.Pitched {
		alignment := a.PitchAlignment
		if alignment <= 0 {
			alignment = DefaultPitchAlignment
		}
		pitch = (pitch + alignment - 1) / alignment * alignment
	}
	return make([]byte, pitch*layout.Rows), pitch, nil
}

func (HostAllocator) Free(ctx context.Context, data []byte) error {
	return nil
}
