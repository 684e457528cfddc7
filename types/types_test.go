package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictionaryItemsDeduplicate(t *testing.T) {
	require.Equal(
		t,
		DictionaryItems{
			{Key: "b", Value: "0"},
			{Key: "a", Value: "1"},
		},
		DictionaryItems{
			{Key: "a", Value: "0"},
			{Key: "b", Value: "0"},
			{Key: "a", Value: "1"},
		}.Deduplicate(),
	)
}

func TestCodecIDFromString(t *testing.T) {
	for s, expected := range map[string]CodecID{
		"h264":    CodecIDH264,
		"AVC":     CodecIDH264,
		" hevc ":  CodecIDHEVC,
		"h265":    CodecIDHEVC,
		"vp9":     CodecIDVP9,
		"mjpeg":   CodecIDJPEG,
		"theora":  CodecIDUndefined,
		"unknown": CodecIDUndefined,
	} {
		require.Equal(t, expected, CodecIDFromString(s), s)
	}

	var c CodecID
	require.Error(t, c.Set("theora"))
	require.NoError(t, c.Set("av1"))
	require.Equal(t, CodecIDAV1, c)
}

func TestHardwareDeviceTypeFromString(t *testing.T) {
	require.Equal(t, HardwareDeviceTypeVAAPI, HardwareDeviceTypeFromString("VAAPI"))
	require.Equal(t, HardwareDeviceTypeNone, HardwareDeviceTypeFromString("none"))
	require.Equal(t, HardwareDeviceType(-1), HardwareDeviceTypeFromString("voodoo"))

	var hwt HardwareDeviceType
	require.NoError(t, hwt.UnmarshalText([]byte("cuda")))
	require.Equal(t, HardwareDeviceTypeCUDA, hwt)
}

func TestRectParse(t *testing.T) {
	var r Rect
	require.NoError(t, r.Parse("10,20,650,500"))
	require.Equal(t, Rect{Left: 10, Top: 20, Right: 650, Bottom: 500}, r)
	require.Equal(t, 640, r.Width())
	require.Equal(t, 480, r.Height())
	require.Error(t, r.Parse("10x20"))

	var res Resolution
	require.NoError(t, res.Parse("1280x720"))
	require.Equal(t, Resolution{Width: 1280, Height: 720}, res)
	require.True(t, Resolution{Width: 1920, Height: 1080}.Covers(res))
	require.False(t, res.Covers(Resolution{Width: 1920, Height: 100}))
}

func TestBufferResidencyUnmarshal(t *testing.T) {
	var r BufferResidency
	require.NoError(t, r.UnmarshalText([]byte("Device")))
	require.Equal(t, BufferResidencyDevice, r)
	require.Error(t, r.UnmarshalText([]byte("gpu")))

	var l BufferLayout
	require.NoError(t, l.UnmarshalText([]byte("pitched")))
	require.Equal(t, BufferLayoutPitched, l)
}
