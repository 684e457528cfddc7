package types

import (
	"fmt"
)

type ChromaFormat int

const (
	ChromaFormatMonochrome = ChromaFormat(iota)
	ChromaFormat420
	ChromaFormat422
	ChromaFormat444
	EndOfChromaFormat
)

func (f ChromaFormat) String() string {
	switch f {
	case ChromaFormatMonochrome:
		return "monochrome"
	case ChromaFormat420:
		return "4:2:0"
	case ChromaFormat422:
		return "4:2:2"
	case ChromaFormat444:
		return "4:4:4"
	}
	return fmt.Sprintf("unknown_chroma_format_%d", int(f))
}

// ChromaHeightFactor is the height of a chroma plane relative to the
// luma plane in the output layout.
func (f ChromaFormat) ChromaHeightFactor() float64 {
	switch f {
	case ChromaFormat420:
		return 0.5
	case ChromaFormat422, ChromaFormat444:
		return 1
	}
	return 0
}

// NumChromaPlanes is the number of chroma planes in the output layout:
// 4:2:0 and 4:2:2 are semi-planar (one interleaved plane), 4:4:4 is
// fully planar.
func (f ChromaFormat) NumChromaPlanes() int {
	switch f {
	case ChromaFormat420, ChromaFormat422:
		return 1
	case ChromaFormat444:
		return 2
	}
	return 0
}
