package types

import (
	"fmt"
)

// StreamFormat is the sequence-level metadata reported by a bitstream
// parser every time it sees a sequence header.
type StreamFormat struct {
	Codec                CodecID
	ChromaFormat         ChromaFormat
	BitDepth             uint8
	CodedWidth           uint32
	CodedHeight          uint32
	DisplayArea          Rect
	Progressive          bool
	MinNumDecodeSurfaces int
}

func (f StreamFormat) CodedSize() Resolution {
	return Resolution{Width: f.CodedWidth, Height: f.CodedHeight}
}

func (f StreamFormat) Equal(other StreamFormat) bool {
	return f == other
}

func (f StreamFormat) String() string {
	return fmt.Sprintf(
		"%s %s %dbit coded:%dx%d display:%s progressive:%t surfaces:%d",
		f.Codec, f.ChromaFormat, f.BitDepth,
		f.CodedWidth, f.CodedHeight, f.DisplayArea,
		f.Progressive, f.MinNumDecodeSurfaces,
	)
}
