package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwdecoder/types"
)

func codecIDToAstiav(codec types.CodecID) astiav.CodecID {
	switch codec {
	case types.CodecIDMPEG2:
		return astiav.CodecIDMpeg2Video
	case types.CodecIDMPEG4:
		return astiav.CodecIDMpeg4
	case types.CodecIDVC1:
		return astiav.CodecIDVc1
	case types.CodecIDH264:
		return astiav.CodecIDH264
	case types.CodecIDHEVC:
		return astiav.CodecIDHevc
	case types.CodecIDVP8:
		return astiav.CodecIDVp8
	case types.CodecIDVP9:
		return astiav.CodecIDVp9
	case types.CodecIDAV1:
		return astiav.CodecIDAv1
	}
	return astiav.CodecIDNone
}

// maxCodedSize is the largest coded size accepted per codec; the software
// decoders go beyond it, but nothing past these levels is expected.
func maxCodedSize(codec types.CodecID) types.Resolution {
	switch codec {
	case types.CodecIDMPEG2, types.CodecIDMPEG4, types.CodecIDVC1:
		return types.Resolution{Width: 4080, Height: 4080}
	case types.CodecIDH264, types.CodecIDVP8:
		return types.Resolution{Width: 4096, Height: 4096}
	}
	return types.Resolution{Width: 8192, Height: 8192}
}

// outputPixelFormat is the pixel format surfaces are laid out in: luma
// followed by semi-planar chroma for 4:2:0, and fully planar 4:4:4.
func outputPixelFormat(chroma types.ChromaFormat) astiav.PixelFormat {
	switch chroma {
	case types.ChromaFormatMonochrome:
		return astiav.PixelFormatGray8
	case types.ChromaFormat420:
		return astiav.PixelFormatNv12
	case types.ChromaFormat444:
		return astiav.PixelFormatYuv444P
	}
	return astiav.PixelFormatNone
}
