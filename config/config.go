// Package config provides loading of decode session configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/xaionaro-go/hwdecoder"
	"github.com/xaionaro-go/hwdecoder/reconfig"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/typing"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration of a decode session and the
// device it runs on.
type Config struct {
	// Device
	DeviceType    types.HardwareDeviceType `yaml:"device_type"`
	DeviceName    types.HardwareDeviceName `yaml:"device_name"`
	DeviceOptions types.DictionaryItems    `yaml:"device_options"`

	// Stream
	Codec        types.CodecID    `yaml:"codec"`
	MaxCodedSize types.Resolution `yaml:"max_coded_size"`

	// Output
	Residency types.BufferResidency `yaml:"residency"`
	Layout    types.BufferLayout    `yaml:"layout"`
	Crop      *types.Rect           `yaml:"crop"`
	Resize    *types.Resolution     `yaml:"resize"`

	// Tuning
	ExtraDecodeSurfaces int    `yaml:"extra_decode_surfaces"`
	ReconfigurePolicy   string `yaml:"reconfigure_policy"`
	ReadChunkSize       int    `yaml:"read_chunk_size"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		DeviceType:    types.HardwareDeviceTypeNone,
		Codec:         types.CodecIDH264,
		Residency:     types.BufferResidencyHost,
		Layout:        types.BufferLayoutPacked,
		ReadChunkSize: 64 * 1024,
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse '%s': %w", path, err)
	}

	return cfg, nil
}

func ParsePolicy(s string) (reconfig.Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range []reconfig.Policy{reconfig.PolicyReject, reconfig.PolicyAbsorb, reconfig.PolicyRecreate} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown reconfigure policy: '%s'", s)
}

// ToSessionConfig converts the configuration to hwdecoder.Config.
func (c Config) ToSessionConfig() (hwdecoder.Config, error) {
	if c.Codec == types.CodecIDUndefined {
		return hwdecoder.Config{}, fmt.Errorf("the codec is not set")
	}
	result := hwdecoder.Config{
		Codec:               c.Codec,
		Residency:           c.Residency,
		Layout:              c.Layout,
		MaxCodedSize:        c.MaxCodedSize,
		ExtraDecodeSurfaces: c.ExtraDecodeSurfaces,
	}
	if c.Crop != nil {
		result.Crop = typing.Opt(*c.Crop)
	}
	if c.Resize != nil {
		result.Resize = typing.Opt(*c.Resize)
	}
	if c.ReconfigurePolicy != "" {
		p, err := ParsePolicy(c.ReconfigurePolicy)
		if err != nil {
			return hwdecoder.Config{}, err
		}
		result.ReconfigurePolicy = typing.Opt(p)
	}
	return result, nil
}
