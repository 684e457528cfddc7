package h264

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/xaionaro-go/hwdecoder/types"
)

// profiles which carry chroma_format_idc and bit depths in the SPS
var highProfiles = map[uint]struct{}{
	100: {}, 110: {}, 122: {}, 244: {}, 44: {}, 83: {}, 86: {},
	118: {}, 128: {}, 138: {}, 139: {}, 134: {}, 135: {},
}

// ParseFormat parses an SPS NAL unit (including its header byte).
func ParseFormat(nalu []byte) (types.StreamFormat, error) {
	sps, err := avc.ParseSPSNALUnit(nalu, true)
	if err != nil {
		return types.StreamFormat{}, fmt.Errorf("unable to parse the SPS: %w", err)
	}
	return FormatFromSPS(sps), nil
}

func FormatFromSPS(sps *avc.SPS) types.StreamFormat {
	chromaFormatIDC := uint(1)
	bitDepth := uint8(8)
	if _, ok := highProfiles[uint(sps.Profile)]; ok {
		chromaFormatIDC = uint(sps.ChromaFormatIDC)
		bitDepth = uint8(8 + sps.BitDepthLumaMinus8)
	}

	var frameMbsOnly uint
	if sps.FrameMbsOnlyFlag {
		frameMbsOnly = 1
	}
	cropUnitX, cropUnitY := uint(1), 2-frameMbsOnly
	chroma := types.ChromaFormat420
	switch chromaFormatIDC {
	case 0:
		chroma = types.ChromaFormatMonochrome
	case 1:
		cropUnitX, cropUnitY = 2, 2*(2-frameMbsOnly)
	case 2:
		chroma = types.ChromaFormat422
		cropUnitX, cropUnitY = 2, 2-frameMbsOnly
	case 3:
		chroma = types.ChromaFormat444
	}

	// Width and Height are already cropped
	var left, right, top, bottom uint
	if sps.FrameCroppingFlag {
		left = sps.FrameCropLeftOffset * cropUnitX
		right = sps.FrameCropRightOffset * cropUnitX
		top = sps.FrameCropTopOffset * cropUnitY
		bottom = sps.FrameCropBottomOffset * cropUnitY
	}

	dpbSize := sps.NumRefFrames
	if sps.VUI != nil && sps.VUI.BitstreamRestrictionFlag {
		dpbSize = max(dpbSize, sps.VUI.MaxDecFrameBuffering)
	}

	return types.StreamFormat{
		Codec:        types.CodecIDH264,
		ChromaFormat: chroma,
		BitDepth:     bitDepth,
		CodedWidth:   uint32(sps.Width + left + right),
		CodedHeight:  uint32(sps.Height + top + bottom),
		DisplayArea: types.Rect{
			Left:   int(left),
			Top:    int(top),
			Right:  int(left + sps.Width),
			Bottom: int(top + sps.Height),
		},
		Progressive: sps.FrameMbsOnlyFlag,
		// the picture being decoded takes a surface on top of the DPB
		MinNumDecodeSurfaces: int(dpbSize) + 1,
	}
}
