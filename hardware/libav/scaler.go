package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwdecoder/internal"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/types"
)

// scaler converts decoded frames into the surface layout, scaling them
// on the way if needed.
type scaler struct {
	*astiav.SoftwareScaleContext
	output *astiav.Frame
}

func newScaler(
	ctx context.Context,
	src types.Resolution,
	srcPixFmt astiav.PixelFormat,
	dst types.Resolution,
	dstPixFmt astiav.PixelFormat,
	opts ...astiav.SoftwareScaleContextFlag,
) (*scaler, error) {
	swsCtx, err := astiav.CreateSoftwareScaleContext(
		int(src.Width),
		int(src.Height),
		srcPixFmt,
		int(dst.Width),
		int(dst.Height),
		dstPixFmt,
		astiav.NewSoftwareScaleContextFlags(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create a software scale context: %w", err)
	}
	internal.SetFinalizerFree(ctx, swsCtx)

	output := astiav.AllocFrame()
	internal.SetFinalizerFree(ctx, output)
	output.SetWidth(int(dst.Width))
	output.SetHeight(int(dst.Height))
	output.SetPixelFormat(dstPixFmt)
	if err := output.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("unable to allocate the output frame buffer: %w", err)
	}

	return &scaler{
		SoftwareScaleContext: swsCtx,
		output:               output,
	}, nil
}

func (s *scaler) String() string {
	return fmt.Sprintf(
		"Scaler(%dx%d:%s -> %dx%d:%s)",
		s.SoftwareScaleContext.SourceWidth(),
		s.SoftwareScaleContext.SourceHeight(),
		s.SoftwareScaleContext.SourcePixelFormat(),
		s.SoftwareScaleContext.DestinationWidth(),
		s.SoftwareScaleContext.DestinationHeight(),
		s.SoftwareScaleContext.DestinationPixelFormat(),
	)
}

// Matches reports whether the scaler performs exactly this conversion.
func (s *scaler) Matches(
	src types.Resolution,
	srcPixFmt astiav.PixelFormat,
	dst types.Resolution,
	dstPixFmt astiav.PixelFormat,
) bool {
	return s.SourceResolution() == src &&
		s.SoftwareScaleContext.SourcePixelFormat() == srcPixFmt &&
		s.DestinationResolution() == dst &&
		s.SoftwareScaleContext.DestinationPixelFormat() == dstPixFmt
}

// Scale converts src and returns the resulting frame, which stays valid
// until the next call.
func (s *scaler) Scale(
	ctx context.Context,
	src *astiav.Frame,
) (_ret *astiav.Frame, _err error) {
	logger.Tracef(ctx, "Scale")
	defer func() { logger.Tracef(ctx, "/Scale: %v", _err) }()
	if err := s.SoftwareScaleContext.ScaleFrame(src, s.output); err != nil {
		return nil, fmt.Errorf("unable to scale a frame: %w", err)
	}
	return s.output, nil
}

func (s *scaler) SourceResolution() types.Resolution {
	return types.Resolution{
		Width:  uint32(s.SoftwareScaleContext.SourceWidth()),
		Height: uint32(s.SoftwareScaleContext.SourceHeight()),
	}
}

func (s *scaler) DestinationResolution() types.Resolution {
	return types.Resolution{
		Width:  uint32(s.SoftwareScaleContext.DestinationWidth()),
		Height: uint32(s.SoftwareScaleContext.DestinationHeight()),
	}
}
