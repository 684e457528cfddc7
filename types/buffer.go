package types

import (
	"fmt"
)

// BufferResidency tells where output frame buffers live.
type BufferResidency int

const (
	BufferResidencyHost = BufferResidency(iota)
	BufferResidencyDevice
)

func (r BufferResidency) String() string {
	switch r {
	case BufferResidencyHost:
		return "host"
	case BufferResidencyDevice:
		return "device"
	}
	return fmt.Sprintf("unknown_residency_%d", int(r))
}

func (r *BufferResidency) UnmarshalText(b []byte) error {
	switch sanitizeEnumString(string(b)) {
	case "host", "":
		*r = BufferResidencyHost
	case "device":
		*r = BufferResidencyDevice
	default:
		return fmt.Errorf("unknown buffer residency: '%s'", b)
	}
	return nil
}

// BufferLayout tells whether rows of output buffers are padded to an
// allocator-chosen pitch or packed back to back.
type BufferLayout int

const (
	BufferLayoutPacked = BufferLayout(iota)
	BufferLayoutPitched
)

func (l BufferLayout) String() string {
	switch l {
	case BufferLayoutPacked:
		return "packed"
	case BufferLayoutPitched:
		return "pitched"
	}
	return fmt.Sprintf("unknown_layout_%d", int(l))
}

func (l *BufferLayout) UnmarshalText(b []byte) error {
	switch sanitizeEnumString(string(b)) {
	case "packed", "":
		*l = BufferLayoutPacked
	case "pitched":
		*l = BufferLayoutPitched
	default:
		return fmt.Errorf("unknown buffer layout: '%s'", b)
	}
	return nil
}
