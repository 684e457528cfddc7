package types

import (
	"fmt"
)

// Rect is a rectangle in pixels; Right and Bottom are exclusive.
type Rect struct {
	Left   int `yaml:"left"`
	Top    int `yaml:"top"`
	Right  int `yaml:"right"`
	Bottom int `yaml:"bottom"`
}

func (r Rect) Width() int {
	return r.Right - r.Left
}

func (r Rect) Height() int {
	return r.Bottom - r.Top
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

func (r *Rect) Parse(s string) error {
	_, err := fmt.Sscanf(s, "%d,%d,%d,%d", &r.Left, &r.Top, &r.Right, &r.Bottom)
	if err != nil {
		return fmt.Errorf("unable to parse rectangle '%s' (expected 'left,top,right,bottom'): %w", s, err)
	}
	return nil
}

type Resolution struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r *Resolution) Parse(s string) error {
	_, err := fmt.Sscanf(s, "%dx%d", &r.Width, &r.Height)
	if err != nil {
		return fmt.Errorf("unable to parse resolution '%s': %w", s, err)
	}
	return nil
}

// Covers reports whether r is at least as large as other in both dimensions.
func (r Resolution) Covers(other Resolution) bool {
	return r.Width >= other.Width && r.Height >= other.Height
}

// Max returns the per-dimension maximum of r and other.
func (r Resolution) Max(other Resolution) Resolution {
	return Resolution{
		Width:  max(r.Width, other.Width),
		Height: max(r.Height, other.Height),
	}
}
