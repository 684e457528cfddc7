package pool

import (
	"fmt"

	"github.com/xaionaro-go/hwdecoder/geometry"
	"github.com/xaionaro-go/hwdecoder/types"
)

type Layout struct {
	RowBytes  int
	Rows      int
	Residency types.BufferResidency
	Pitched   bool
}

func LayoutFor(
	g geometry.TargetGeometry,
	residency types.BufferResidency,
	bufLayout types.BufferLayout,
) Layout {
	return Layout{
		RowBytes:  g.RowBytes(),
		Rows:      g.Rows(),
		Residency: residency,
		Pitched:   bufLayout == types.BufferLayoutPitched,
	}
}

// FrameSize is the size of a frame without any row padding.
func (l Layout) FrameSize() int {
	return l.RowBytes * l.Rows
}

func (l Layout) String() string {
	kind := "packed"
	if l.Pitched {
		kind = "pitched"
	}
	return fmt.Sprintf("%dx%d %s %s", l.RowBytes, l.Rows, kind, l.Residency)
}
