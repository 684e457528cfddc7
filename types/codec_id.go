package types

import (
	"fmt"
)

type CodecID int

const (
	CodecIDUndefined = CodecID(iota)
	CodecIDMPEG1
	CodecIDMPEG2
	CodecIDMPEG4
	CodecIDVC1
	CodecIDH264
	CodecIDJPEG
	CodecIDHEVC
	CodecIDVP8
	CodecIDVP9
	CodecIDAV1
	EndOfCodecID
)

func (c CodecID) String() string {
	switch c {
	case CodecIDUndefined:
		return "undefined"
	case CodecIDMPEG1:
		return "mpeg1"
	case CodecIDMPEG2:
		return "mpeg2"
	case CodecIDMPEG4:
		return "mpeg4"
	case CodecIDVC1:
		return "vc1"
	case CodecIDH264:
		return "h264"
	case CodecIDJPEG:
		return "mjpeg"
	case CodecIDHEVC:
		return "hevc"
	case CodecIDVP8:
		return "vp8"
	case CodecIDVP9:
		return "vp9"
	case CodecIDAV1:
		return "av1"
	}
	return fmt.Sprintf("unknown_codec_%d", int(c))
}

func CodecIDFromString(s string) CodecID {
	s = sanitizeEnumString(s)
	switch s {
	case "avc":
		return CodecIDH264
	case "h265":
		return CodecIDHEVC
	}
	for c := CodecIDUndefined + 1; c < EndOfCodecID; c++ {
		if c.String() == s {
			return c
		}
	}
	return CodecIDUndefined
}

func (c *CodecID) UnmarshalText(b []byte) error {
	return c.Set(string(b))
}

func (c CodecID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Set implements pflag.Value.
func (c *CodecID) Set(s string) error {
	v := CodecIDFromString(s)
	if v == CodecIDUndefined {
		return fmt.Errorf("unknown codec: '%s'", s)
	}
	*c = v
	return nil
}

// Type implements pflag.Value.
func (c *CodecID) Type() string {
	return "codec"
}
