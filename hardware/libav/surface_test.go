package libav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwdecoder/types"
)

func format1080p() types.StreamFormat {
	return types.StreamFormat{
		Codec:        types.CodecIDH264,
		ChromaFormat: types.ChromaFormat420,
		BitDepth:     8,
		CodedWidth:   1920,
		CodedHeight:  1088,
		DisplayArea:  types.Rect{Right: 1920, Bottom: 1080},
	}
}

func TestProject(t *testing.T) {
	frameSize := types.Resolution{Width: 1920, Height: 1080}
	format := format1080p()

	for _, tc := range []struct {
		name        string
		displayArea types.Rect
		target      types.Resolution
		expected    projection
	}{
		{
			name:        "coded_size",
			displayArea: format.DisplayArea,
			target:      types.Resolution{Width: 1920, Height: 1088},
			expected:    projection{Size: frameSize},
		},
		{
			name:        "crop",
			displayArea: types.Rect{Left: 100, Top: 50, Right: 740, Bottom: 530},
			target:      types.Resolution{Width: 640, Height: 480},
			expected:    projection{Size: frameSize, OffsetX: 100, OffsetY: 50},
		},
		{
			name:        "odd_crop",
			displayArea: types.Rect{Left: 101, Top: 51, Right: 741, Bottom: 531},
			target:      types.Resolution{Width: 640, Height: 480},
			expected:    projection{Size: frameSize, OffsetX: 100, OffsetY: 50},
		},
		{
			name:        "downscale",
			displayArea: format.DisplayArea,
			target:      types.Resolution{Width: 1280, Height: 720},
			expected:    projection{Size: types.Resolution{Width: 1280, Height: 720}},
		},
		{
			name:        "crop_and_upscale",
			displayArea: types.Rect{Left: 960, Top: 540, Right: 1920, Bottom: 1080},
			target:      types.Resolution{Width: 1920, Height: 1080},
			expected: projection{
				Size:    types.Resolution{Width: 3840, Height: 2160},
				OffsetX: 1920,
				OffsetY: 1080,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := project(frameSize, format, tc.displayArea, int(tc.target.Width), int(tc.target.Height))
			require.Equal(t, tc.expected, p)
			require.GreaterOrEqual(t, int(p.Size.Width), p.OffsetX+int(tc.target.Width))
		})
	}
}

func TestProjectRelativeToFrame(t *testing.T) {
	// libav frames are cropped to the format's display area already
	format := format1080p()
	format.DisplayArea = types.Rect{Left: 8, Top: 8, Right: 1928, Bottom: 1088}
	p := project(
		types.Resolution{Width: 1920, Height: 1080},
		format,
		types.Rect{Left: 16, Top: 8, Right: 656, Bottom: 488},
		640, 480,
	)
	require.Equal(t, 8, p.OffsetX)
	require.Equal(t, 0, p.OffsetY)
}

func TestPlaneOffsets(t *testing.T) {
	size := types.Resolution{Width: 64, Height: 32}

	offsets, pitch := planeOffsets(types.ChromaFormat420, size)
	require.Equal(t, 64, pitch)
	require.Equal(t, []int{0, 2048}, offsets)

	offsets, _ = planeOffsets(types.ChromaFormat444, size)
	require.Equal(t, []int{0, 2048, 4096}, offsets)

	offsets, _ = planeOffsets(types.ChromaFormatMonochrome, size)
	require.Equal(t, []int{0}, offsets)

	offsets, _ = planeOffsets(types.ChromaFormat422, size)
	require.Empty(t, offsets)
}

func TestCapabilitiesRejectHighBitDepth(t *testing.T) {
	ctx := context.Background()
	d, err := NewDevice(ctx, types.HardwareDeviceTypeNone, "", nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	caps, err := d.Capabilities(ctx, types.CodecIDH264, types.ChromaFormat420, 10)
	require.NoError(t, err)
	require.False(t, caps.Supported)

	caps, err = d.Capabilities(ctx, types.CodecIDH264, types.ChromaFormat422, 8)
	require.NoError(t, err)
	require.False(t, caps.Supported)
}
