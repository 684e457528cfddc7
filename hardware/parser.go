package hardware

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwdecoder/types"
)

type PacketFlags uint32

const (
	PacketFlagEndOfStream = PacketFlags(1 << iota)
	PacketFlagEndOfPicture
	PacketFlagDiscontinuity
)

func (f PacketFlags) Has(flag PacketFlags) bool {
	return f&flag == flag
}

// Packet is a chunk of compressed bitstream. An empty packet signals the
// end of the stream.
type Packet struct {
	Data      []byte
	Timestamp int64
	Flags     PacketFlags
}

func (p Packet) IsEndOfStream() bool {
	return len(p.Data) == 0 || p.Flags.Has(PacketFlagEndOfStream)
}

type Event interface {
	fmt.Stringer
	isEvent()
}

// EventSequence reports a (possibly changed) sequence header; it comes
// before any picture of the new format.
type EventSequence struct {
	Format types.StreamFormat
}

func (EventSequence) isEvent() {}

func (e EventSequence) String() string {
	return fmt.Sprintf("Sequence(%s)", e.Format)
}

// EventPictureReady asks to submit a picture to the decoder.
type EventPictureReady struct {
	Params *PictureParams
}

func (EventPictureReady) isEvent() {}

func (e EventPictureReady) String() string {
	if e.Params == nil {
		return "PictureReady(nil)"
	}
	return fmt.Sprintf("PictureReady(idx:%d, key:%t, ts:%d, %d bytes)", e.Params.PictureIndex, e.Params.IsKeyFrame, e.Params.Timestamp, len(e.Params.Bitstream))
}

// EventPictureDisplay tells that a decoded picture is due for output; these
// come in display order.
type EventPictureDisplay struct {
	Info DisplayInfo
}

func (EventPictureDisplay) isEvent() {}

func (e EventPictureDisplay) String() string {
	return fmt.Sprintf("PictureDisplay(idx:%d, ts:%d)", e.Info.PictureIndex, e.Info.Timestamp)
}

type EventResult struct {
	// NumDecodeSurfaces is returned for EventSequence: the size of the
	// decode surface ring the parser may cycle picture indexes through.
	NumDecodeSurfaces int
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) (EventResult, error)
}

// Parser turns packets into events delivered synchronously to its
// EventHandler from within Parse, with the context passed to Parse. Close
// must not deliver events.
type Parser interface {
	Parse(ctx context.Context, pkt Packet) error
	Close(ctx context.Context) error
}

type ParserFactory interface {
	NewParser(ctx context.Context, codec types.CodecID, handler EventHandler) (Parser, error)
}

type ParserFactoryFunc func(ctx context.Context, codec types.CodecID, handler EventHandler) (Parser, error)

func (fn ParserFactoryFunc) NewParser(ctx context.Context, codec types.CodecID, handler EventHandler) (Parser, error) {
	return fn(ctx, codec, handler)
}
