// Package hardware defines the boundary between the decode session and
// the collaborators it drives: a hardware decoder with its ring of decode
// surfaces, and a bitstream parser calling back into the session.
package hardware

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/hwdecoder/types"
)

type Capabilities struct {
	Supported bool

	MinWidth  uint32
	MinHeight uint32
	MaxWidth  uint32
	MaxHeight uint32

	// MaxMacroblocks limits the coded area in 16x16 macroblocks; zero
	// means unlimited.
	MaxMacroblocks uint32
}

// Fits reports whether the coded size is within the capabilities.
func (c Capabilities) Fits(size types.Resolution) bool {
	if size.Width < c.MinWidth || size.Height < c.MinHeight {
		return false
	}
	if size.Width > c.MaxWidth || size.Height > c.MaxHeight {
		return false
	}
	if c.MaxMacroblocks != 0 {
		mbs := ((size.Width + 15) / 16) * ((size.Height + 15) / 16)
		if mbs > c.MaxMacroblocks {
			return false
		}
	}
	return true
}

func (c Capabilities) String() string {
	return fmt.Sprintf("supported:%t min:%dx%d max:%dx%d max_mbs:%d", c.Supported, c.MinWidth, c.MinHeight, c.MaxWidth, c.MaxHeight, c.MaxMacroblocks)
}

type Device interface {
	fmt.Stringer

	Capabilities(
		ctx context.Context,
		codec types.CodecID,
		chroma types.ChromaFormat,
		bitDepth uint8,
	) (Capabilities, error)

	NewDecoder(ctx context.Context, params DecoderParams) (Decoder, error)

	// Copier copies planes out of mapped surfaces.
	Copier() Copier
}

// DeviceMemoryProvider is implemented by devices able to allocate output
// buffers in device memory.
type DeviceMemoryProvider interface {
	DeviceAllocator() pool.Allocator
}

type DecoderParams struct {
	Format types.StreamFormat

	// MaxCodedSize is the largest coded size the surface ring must be
	// able to hold; reconfiguration cannot go beyond it.
	MaxCodedSize types.Resolution

	NumDecodeSurfaces int

	DisplayArea  types.Rect
	TargetWidth  int
	TargetHeight int
}

type ReconfigureParams struct {
	Format            types.StreamFormat
	NumDecodeSurfaces int

	DisplayArea  types.Rect
	TargetWidth  int
	TargetHeight int
}

type PictureParams struct {
	// PictureIndex is the slot of the decode surface ring the picture is
	// decoded into.
	PictureIndex int
	Bitstream    []byte
	IsKeyFrame   bool
	Timestamp    int64

	// DecodeOrder is stamped by the session; diagnostics only.
	DecodeOrder uint64
}

type DisplayInfo struct {
	PictureIndex     int
	Timestamp        int64
	ProgressiveFrame bool
	TopFieldFirst    bool
}

type DecodeStatus int

const (
	DecodeStatusUnknown = DecodeStatus(iota)
	DecodeStatusInProgress
	DecodeStatusSuccess
	DecodeStatusError
	DecodeStatusErrorConcealed
)

func (s DecodeStatus) String() string {
	switch s {
	case DecodeStatusUnknown:
		return "unknown"
	case DecodeStatusInProgress:
		return "in_progress"
	case DecodeStatusSuccess:
		return "success"
	case DecodeStatusError:
		return "error"
	case DecodeStatusErrorConcealed:
		return "error_concealed"
	}
	return fmt.Sprintf("unknown_status_%d", int(s))
}

func (s DecodeStatus) IsCorrupt() bool {
	return s == DecodeStatusError || s == DecodeStatusErrorConcealed
}

// Decoder is a hardware decoder instance. It is not safe for concurrent
// use; the session serializes all the calls with the hardware lock.
type Decoder interface {
	Reconfigure(ctx context.Context, params ReconfigureParams) error
	DecodePicture(ctx context.Context, params *PictureParams) error

	// MapPicture makes the decoded picture in the given ring slot
	// readable. The slot cannot be reused by the decoder until the
	// surface is unmapped.
	MapPicture(ctx context.Context, pictureIndex int, info DisplayInfo) (MappedSurface, error)

	DecodeStatus(ctx context.Context, pictureIndex int) (DecodeStatus, error)
	Close(ctx context.Context) error
}

type MappedSurface interface {
	// Pitch is the distance in bytes between rows of the surface.
	Pitch() int

	// Plane returns plane #idx: 0 is luma, 1 and 2 are chroma.
	Plane(idx int) []byte

	Unmap(ctx context.Context) error
}
