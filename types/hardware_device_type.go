// hardware_device_type.go defines the HardwareDeviceType enum and its methods.

// Package types provides the value types shared by the decode session, its
// hardware backends and its bitstream parsers.
package types

import (
	"fmt"
	"strings"
)

type HardwareDeviceType int

const (
	// the constants are copied from libav's enum AVHWDeviceType:
	HardwareDeviceTypeCUDA         = HardwareDeviceType(0x2)
	HardwareDeviceTypeD3D11VA      = HardwareDeviceType(0x7)
	HardwareDeviceTypeDRM          = HardwareDeviceType(0x8)
	HardwareDeviceTypeDXVA2        = HardwareDeviceType(0x4)
	HardwareDeviceTypeMediaCodec   = HardwareDeviceType(0xa)
	HardwareDeviceTypeNone         = HardwareDeviceType(0x0)
	HardwareDeviceTypeOpenCL       = HardwareDeviceType(0x9)
	HardwareDeviceTypeQSV          = HardwareDeviceType(0x5)
	HardwareDeviceTypeVAAPI        = HardwareDeviceType(0x3)
	HardwareDeviceTypeVDPAU        = HardwareDeviceType(0x1)
	HardwareDeviceTypeVideoToolbox = HardwareDeviceType(0x6)
	HardwareDeviceTypeVulkan       = HardwareDeviceType(0xb)
)

func (r HardwareDeviceType) String() string {
	switch r {
	case HardwareDeviceTypeNone:
		return "none"
	case HardwareDeviceTypeCUDA:
		return "cuda"
	case HardwareDeviceTypeDRM:
		return "drm"
	case HardwareDeviceTypeDXVA2:
		return "dxva2"
	case HardwareDeviceTypeD3D11VA:
		return "d3d11va"
	case HardwareDeviceTypeOpenCL:
		return "opencl"
	case HardwareDeviceTypeQSV:
		return "qsv"
	case HardwareDeviceTypeVAAPI:
		return "vaapi"
	case HardwareDeviceTypeVDPAU:
		return "vdpau"
	case HardwareDeviceTypeVideoToolbox:
		return "videotoolbox"
	case HardwareDeviceTypeMediaCodec:
		return "mediacodec"
	case HardwareDeviceTypeVulkan:
		return "vulkan"
	}
	return fmt.Sprintf("unknown_%X", int64(r))
}

// HardwareDeviceTypeFromString returns -1 if the string does not name
// a known device type.
func HardwareDeviceTypeFromString(s string) HardwareDeviceType {
	s = sanitizeEnumString(s)
	for i := 0; i <= 0xff; i++ {
		hwt := HardwareDeviceType(i)
		if s == hwt.String() {
			return hwt
		}
	}
	return -1
}

func (r *HardwareDeviceType) UnmarshalText(b []byte) error {
	return r.Set(string(b))
}

func (r HardwareDeviceType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Set implements pflag.Value.
func (r *HardwareDeviceType) Set(s string) error {
	v := HardwareDeviceTypeFromString(s)
	if v < 0 {
		return fmt.Errorf("unknown hardware device type: '%s'", s)
	}
	*r = v
	return nil
}

// Type implements pflag.Value.
func (r *HardwareDeviceType) Type() string {
	return "hardware-device-type"
}

func sanitizeEnumString(s string) string {
	return strings.Trim(strings.ToLower(s), " \"\n\r\t")
}
