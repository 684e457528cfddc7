package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/types"
)

// projection tells how a decoded frame is laid out on a surface: the
// whole frame is converted to Size, and the display area starts at
// (OffsetX, OffsetY) of the result.
type projection struct {
	Size    types.Resolution
	OffsetX int
	OffsetY int
}

// project computes the projection of a frame of the given size. libav
// hands out frames already cropped to formatArea, so displayArea is
// taken relative to it. Decoding at the coded size means no scaling.
// Offsets and sizes are kept even for the subsampled chroma.
func project(
	frameSize types.Resolution,
	format types.StreamFormat,
	displayArea types.Rect,
	targetWidth, targetHeight int,
) projection {
	cropX := max(displayArea.Left-format.DisplayArea.Left, 0)
	cropY := max(displayArea.Top-format.DisplayArea.Top, 0)
	cropW, cropH := displayArea.Width(), displayArea.Height()

	noScaling := (targetWidth == int(format.CodedWidth) && targetHeight == int(format.CodedHeight)) ||
		(targetWidth == cropW && targetHeight == cropH) ||
		cropW <= 0 || cropH <= 0
	if noScaling {
		return projection{
			Size:    frameSize,
			OffsetX: cropX &^ 1,
			OffsetY: cropY &^ 1,
		}
	}

	p := projection{
		OffsetX: (cropX * targetWidth / cropW) &^ 1,
		OffsetY: (cropY * targetHeight / cropH) &^ 1,
	}
	width := ceilDiv(int(frameSize.Width)*targetWidth, cropW)
	height := ceilDiv(int(frameSize.Height)*targetHeight, cropH)
	width = max(width, p.OffsetX+targetWidth)
	height = max(height, p.OffsetY+targetHeight)
	p.Size = types.Resolution{
		Width:  uint32(roundUpEven(width)),
		Height: uint32(roundUpEven(height)),
	}
	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func roundUpEven(v int) int {
	return (v + 1) &^ 1
}

// planeOffsets returns where each plane starts in a buffer packed by
// ImageCopyToBuffer with alignment 1, and the pitch of the planes.
func planeOffsets(
	chroma types.ChromaFormat,
	size types.Resolution,
) (offsets []int, pitch int) {
	pitch = int(size.Width)
	lumaSize := pitch * int(size.Height)
	switch chroma {
	case types.ChromaFormatMonochrome:
		return []int{0}, pitch
	case types.ChromaFormat420:
		return []int{0, lumaSize}, pitch
	case types.ChromaFormat444:
		return []int{0, lumaSize, 2 * lumaSize}, pitch
	}
	return nil, pitch
}

type surface struct {
	pitch  int
	planes [][]byte
	slot   *slot
}

var _ hardware.MappedSurface = (*surface)(nil)

func (s *surface) Pitch() int {
	return s.pitch
}

func (s *surface) Plane(idx int) []byte {
	if idx < 0 || idx >= len(s.planes) {
		return nil
	}
	return s.planes[idx]
}

func (s *surface) Unmap(ctx context.Context) error {
	if !s.slot.mapped {
		return fmt.Errorf("the surface is not mapped")
	}
	s.slot.mapped = false
	return nil
}

func (d *Decoder) MapPicture(
	ctx context.Context,
	pictureIndex int,
	info hardware.DisplayInfo,
) (_ret hardware.MappedSurface, _err error) {
	logger.Tracef(ctx, "MapPicture(%d)", pictureIndex)
	defer func() { logger.Tracef(ctx, "/MapPicture(%d): %v", pictureIndex, _err) }()

	s, err := d.getSlot(pictureIndex)
	if err != nil {
		return nil, err
	}
	if s.pending {
		logger.Warnf(ctx, "the decoder holds back the picture of slot %d (ts %d), it is lost; streams with reordered frames are not supported", pictureIndex, s.timestamp)
		return nil, fmt.Errorf("slot %d: %w", pictureIndex, hardware.ErrPictureNotReady)
	}
	if !s.decoded {
		return nil, fmt.Errorf("slot %d holds no decoded picture", pictureIndex)
	}
	if s.mapped {
		return nil, fmt.Errorf("slot %d is already mapped", pictureIndex)
	}

	frame := s.frame
	if d.hardwarePixelFormat != astiav.PixelFormatNone && frame.PixelFormat() == d.hardwarePixelFormat {
		d.ramFrame.Unref()
		if err := frame.TransferHardwareData(d.ramFrame); err != nil {
			return nil, fmt.Errorf("unable to transfer the frame from the hardware: %w", wrapError("av_hwframe_transfer_data", err))
		}
		frame = d.ramFrame
	}

	frameSize := types.Resolution{Width: uint32(frame.Width()), Height: uint32(frame.Height())}
	proj := project(frameSize, d.format, d.displayArea, d.targetWidth, d.targetHeight)
	dstPixFmt := outputPixelFormat(d.format.ChromaFormat)
	if dstPixFmt == astiav.PixelFormatNone {
		return nil, hardware.ErrNotSupported{What: fmt.Sprintf("chroma format %s", d.format.ChromaFormat)}
	}

	if frame.PixelFormat() != dstPixFmt || proj.Size != frameSize {
		if d.scaler == nil || !d.scaler.Matches(frameSize, frame.PixelFormat(), proj.Size, dstPixFmt) {
			d.scaler, err = newScaler(ctx, frameSize, frame.PixelFormat(), proj.Size, dstPixFmt, astiav.SoftwareScaleContextFlagBilinear)
			if err != nil {
				return nil, err
			}
			logger.Debugf(ctx, "using %s", d.scaler)
		}
		frame, err = d.scaler.Scale(ctx, frame)
		if err != nil {
			return nil, err
		}
	}

	size, err := frame.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("unable to get the image buffer size: %w", err)
	}
	if cap(d.buffer) < size {
		d.buffer = make([]byte, size)
	}
	d.buffer = d.buffer[:size]
	if _, err := frame.ImageCopyToBuffer(d.buffer, 1); err != nil {
		return nil, fmt.Errorf("unable to copy the image: %w", err)
	}

	offsets, pitch := planeOffsets(d.format.ChromaFormat, proj.Size)
	result := &surface{
		pitch: pitch,
		slot:  s,
	}
	for idx, offset := range offsets {
		offsetY := proj.OffsetY
		if idx > 0 && d.format.ChromaFormat == types.ChromaFormat420 {
			offsetY /= 2
		}
		start := offset + offsetY*pitch + proj.OffsetX
		if start > len(d.buffer) {
			start = len(d.buffer)
		}
		result.planes = append(result.planes, d.buffer[start:])
	}
	s.mapped = true
	return result, nil
}
