// geometry.go computes the output geometry of decoded frames.

// Package geometry resolves the output geometry of decoded frames from the
// stream format and the user's crop/resize overrides.
package geometry

import (
	"fmt"
	"math"

	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/typing"
)

type TargetGeometry struct {
	// Width and LumaHeight are the dimensions of the output frame.
	Width      int
	LumaHeight int

	ChromaHeight    int
	NumChromaPlanes int
	BytesPerPixel   int
	FrameSize       int

	// DisplayArea is the region of the coded surface the hardware crops from.
	DisplayArea types.Rect

	// TargetWidth and TargetHeight are the dimensions the hardware scales
	// the display area into.
	TargetWidth  int
	TargetHeight int
}

func (g TargetGeometry) String() string {
	return fmt.Sprintf(
		"%dx%d chroma:%dx%d bpp:%d frame:%dB display:%s target:%dx%d",
		g.Width, g.LumaHeight,
		g.NumChromaPlanes, g.ChromaHeight,
		g.BytesPerPixel, g.FrameSize,
		g.DisplayArea, g.TargetWidth, g.TargetHeight,
	)
}

// RowBytes is the number of meaningful bytes in each row of every plane.
func (g TargetGeometry) RowBytes() int {
	return g.Width * g.BytesPerPixel
}

// Rows is the total amount of rows of all the planes stacked together.
func (g TargetGeometry) Rows() int {
	return g.LumaHeight + g.ChromaHeight*g.NumChromaPlanes
}

// PlaneHeight returns the height of plane #idx (0 is luma).
func (g TargetGeometry) PlaneHeight(idx int) int {
	if idx == 0 {
		return g.LumaHeight
	}
	return g.ChromaHeight
}

// NumPlanes is the number of planes including luma.
func (g TargetGeometry) NumPlanes() int {
	return 1 + g.NumChromaPlanes
}

// Resolve computes the output geometry. Precedence:
//   - no overrides: output is the display area, the hardware decodes
//     at the coded size;
//   - resize: output and hardware target are the requested dimensions;
//   - crop: output and hardware target are the crop dimensions and the
//     crop replaces the display area;
//   - both: resize defines the output size, crop the display area.
//
// It does not validate anything: for example a crop rectangle larger than
// the coded size is passed through as is.
func Resolve(
	format types.StreamFormat,
	crop typing.Optional[types.Rect],
	resize typing.Optional[types.Resolution],
) TargetGeometry {
	g := TargetGeometry{
		DisplayArea:  format.DisplayArea,
		Width:        format.DisplayArea.Width(),
		LumaHeight:   format.DisplayArea.Height(),
		TargetWidth:  int(format.CodedWidth),
		TargetHeight: int(format.CodedHeight),
	}

	if crop.IsSet() {
		c := crop.Get()
		g.DisplayArea = c
		g.Width = c.Width()
		g.LumaHeight = c.Height()
		g.TargetWidth = g.Width
		g.TargetHeight = g.LumaHeight
	}

	if resize.IsSet() {
		r := resize.Get()
		g.Width = int(r.Width)
		g.LumaHeight = int(r.Height)
		g.TargetWidth = g.Width
		g.TargetHeight = g.LumaHeight
	}

	g.ChromaHeight = int(math.Ceil(float64(g.LumaHeight) * format.ChromaFormat.ChromaHeightFactor()))
	g.NumChromaPlanes = format.ChromaFormat.NumChromaPlanes()
	g.BytesPerPixel = BytesPerPixel(format.BitDepth)
	g.FrameSize = g.Width * g.BytesPerPixel * (g.LumaHeight + g.ChromaHeight*g.NumChromaPlanes)
	return g
}

func BytesPerPixel(bitDepth uint8) int {
	if bitDepth > 8 {
		return 2
	}
	return 1
}
