package hwdecoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/hwdecoder/geometry"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/internal"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/hwdecoder/reconfig"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/xsync"
)

// HandleEvent is called back by the parser. It may also be called directly,
// in which case it takes the hardware lock itself.
func (s *Session) HandleEvent(
	ctx context.Context,
	ev hardware.Event,
) (_ret hardware.EventResult, _err error) {
	logger.Tracef(ctx, "HandleEvent(%s)", ev)
	defer func() { logger.Tracef(ctx, "/HandleEvent(%s): %v %v", ev, _ret, _err) }()
	return withHardwareLock(ctx, s.hardwareLock, func(ctx context.Context) (hardware.EventResult, error) {
		return xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &s.locker, s.handleEventLocked, ctx, ev)
	})
}

func (s *Session) handleEventLocked(
	ctx context.Context,
	ev hardware.Event,
) (hardware.EventResult, error) {
	if err := s.checkUsableLocked(); err != nil {
		return hardware.EventResult{}, err
	}

	switch ev := ev.(type) {
	case hardware.EventSequence:
		return s.onSequenceLocked(ctx, ev.Format)
	case hardware.EventPictureReady:
		return hardware.EventResult{}, s.onPictureReadyLocked(ctx, ev.Params)
	case hardware.EventPictureDisplay:
		return hardware.EventResult{}, s.onPictureDisplayLocked(ctx, ev.Info)
	default:
		return hardware.EventResult{}, fmt.Errorf("unexpected event type %T", ev)
	}
}

func (s *Session) onSequenceLocked(
	ctx context.Context,
	format types.StreamFormat,
) (hardware.EventResult, error) {
	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "sequence: %s", spew.Sdump(format))
	}

	numSurfaces := max(format.MinNumDecodeSurfaces, 1) + s.Config.ExtraDecodeSurfaces

	var err error
	if s.decoder == nil {
		err = s.configureLocked(ctx, format, numSurfaces)
	} else {
		err = s.reconfigureLocked(ctx, format, numSurfaces)
	}
	if err != nil {
		return hardware.EventResult{}, err
	}
	return hardware.EventResult{NumDecodeSurfaces: s.numDecodeSurfaces}, nil
}

func (s *Session) configureLocked(
	ctx context.Context,
	format types.StreamFormat,
	numSurfaces int,
) error {
	if format.Codec != s.Config.Codec {
		return s.failLocked(ctx, newError(ErrCapability, fmt.Sprintf("the stream is %s while the session is for %s", format.Codec, s.Config.Codec), nil))
	}

	caps, err := s.device.Capabilities(ctx, format.Codec, format.ChromaFormat, format.BitDepth)
	if err != nil {
		return s.failLocked(ctx, newError(ErrResource, "unable to query the decoder capabilities", err))
	}
	logger.Debugf(ctx, "capabilities of %s for %s: %s", s.device, format, caps)
	if !caps.Supported {
		return s.failLocked(ctx, newError(ErrCapability, fmt.Sprintf("%s %s %d-bit is not supported by %s", format.Codec, format.ChromaFormat, format.BitDepth, s.device), nil))
	}
	coded := format.CodedSize()
	if !caps.Fits(coded) {
		return s.failLocked(ctx, newError(ErrCapability, fmt.Sprintf("coded size %s is out of the supported range (%s)", coded, caps), nil))
	}

	maxCoded := s.maxCodedSize.Max(coded)
	if !caps.Fits(maxCoded) {
		clamped := types.Resolution{
			Width:  min(maxCoded.Width, caps.MaxWidth),
			Height: min(maxCoded.Height, caps.MaxHeight),
		}
		if !caps.Fits(clamped) {
			clamped = coded
		}
		logger.Warnf(ctx, "the max coded size %s is not supported by %s, using %s", maxCoded, s.device, clamped)
		maxCoded = clamped
	}

	g := geometry.Resolve(format, s.Config.Crop, s.Config.Resize)
	decoder, err := s.device.NewDecoder(ctx, hardware.DecoderParams{
		Format:            format,
		MaxCodedSize:      maxCoded,
		NumDecodeSurfaces: numSurfaces,
		DisplayArea:       g.DisplayArea,
		TargetWidth:       g.TargetWidth,
		TargetHeight:      g.TargetHeight,
	})
	if err != nil {
		return s.failLocked(ctx, newError(ErrResource, "unable to create the decoder", err))
	}

	s.decoder = decoder
	s.format = format
	s.maxCodedSize = maxCoded
	s.numDecodeSurfaces = numSurfaces
	s.overrideChanged = false
	s.applyGeometryLocked(ctx, g)
	s.state = StateConfigured
	logger.Infof(ctx, "%s: configured for %s, max coded size %s, %d decode surfaces", s, format, maxCoded, numSurfaces)
	return nil
}

func (s *Session) reconfigureLocked(
	ctx context.Context,
	format types.StreamFormat,
	numSurfaces int,
) error {
	decision := reconfig.Decide(reconfig.Input{
		Old:               s.format,
		New:               format,
		OverrideChanged:   s.overrideChanged,
		MaxCodedSize:      s.maxCodedSize,
		NumDecodeSurfaces: s.numDecodeSurfaces,
		Policy:            s.policy,
	})
	logger.Debugf(ctx, "sequence %s -> %s: %s", s.format, format, decision)

	switch decision.Action {
	case reconfig.ActionNoChange:
		if decision.Absorbed {
			logger.Warnf(ctx, "%s: %s", s, decision.Reason)
			return nil
		}
		s.format = format
		return nil
	case reconfig.ActionGeometryOnly:
		g := geometry.Resolve(format, s.Config.Crop, s.Config.Resize)
		if format.CodedSize() == s.format.CodedSize() && !s.Config.Crop.IsSet() && !s.Config.Resize.IsSet() {
			// the hardware target is the coded size, only the copied rows change
			s.format = format
			s.applyGeometryLocked(ctx, g)
			return nil
		}
		if err := s.decoder.Reconfigure(ctx, reconfigureParams(format, s.numDecodeSurfaces, g)); err != nil {
			return s.failLocked(ctx, newError(ErrResource, "unable to reconfigure the decoder", err))
		}
		s.format = format
		s.applyGeometryLocked(ctx, g)
		s.stats.Reconfigurations.Inc()
		return nil
	case reconfig.ActionFullReconfigure:
		return s.fullReconfigureLocked(ctx, format, max(numSurfaces, s.numDecodeSurfaces), decision)
	default:
		return s.failLocked(ctx, newError(ErrReconfigure, decision.Reason, nil))
	}
}

func (s *Session) fullReconfigureLocked(
	ctx context.Context,
	format types.StreamFormat,
	numSurfaces int,
	decision reconfig.Decision,
) error {
	prevState := s.state
	s.state = StateReconfiguring
	g := geometry.Resolve(format, s.Config.Crop, s.Config.Resize)

	if decision.Recreate {
		caps, err := s.device.Capabilities(ctx, format.Codec, format.ChromaFormat, format.BitDepth)
		if err != nil {
			return s.failLocked(ctx, newError(ErrResource, "unable to query the decoder capabilities", err))
		}
		if !caps.Fits(decision.NewMaxCodedSize) {
			return s.failLocked(ctx, newError(ErrReconfigure, fmt.Sprintf("coded size %s is out of the supported range (%s)", decision.NewMaxCodedSize, caps), nil))
		}

		if err := s.decoder.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the previous decoder: %v", err)
		}
		s.decoder = nil
		clear(s.decodeNums)

		decoder, err := s.device.NewDecoder(ctx, hardware.DecoderParams{
			Format:            format,
			MaxCodedSize:      decision.NewMaxCodedSize,
			NumDecodeSurfaces: numSurfaces,
			DisplayArea:       g.DisplayArea,
			TargetWidth:       g.TargetWidth,
			TargetHeight:      g.TargetHeight,
		})
		if err != nil {
			return s.failLocked(ctx, newError(ErrResource, "unable to recreate the decoder", err))
		}
		s.decoder = decoder
		s.maxCodedSize = decision.NewMaxCodedSize
	} else {
		if err := s.decoder.Reconfigure(ctx, reconfigureParams(format, numSurfaces, g)); err != nil {
			return s.failLocked(ctx, newError(ErrResource, "unable to reconfigure the decoder", err))
		}
	}

	s.format = format
	s.numDecodeSurfaces = numSurfaces
	s.overrideChanged = false
	s.applyGeometryLocked(ctx, g)
	s.state = prevState
	s.stats.Reconfigurations.Inc()
	logger.Infof(ctx, "%s: reconfigured for %s (%s), %d decode surfaces", s, format, decision.Reason, numSurfaces)
	return nil
}

func reconfigureParams(
	format types.StreamFormat,
	numSurfaces int,
	g geometry.TargetGeometry,
) hardware.ReconfigureParams {
	return hardware.ReconfigureParams{
		Format:            format,
		NumDecodeSurfaces: numSurfaces,
		DisplayArea:       g.DisplayArea,
		TargetWidth:       g.TargetWidth,
		TargetHeight:      g.TargetHeight,
	}
}

func (s *Session) onPictureReadyLocked(
	ctx context.Context,
	params *hardware.PictureParams,
) error {
	if params == nil {
		return fmt.Errorf("picture parameters are not set")
	}
	if s.decoder == nil {
		return ErrNotConfigured
	}
	if s.overrideChanged {
		if err := s.applyOverridesLocked(ctx); err != nil {
			return err
		}
	}

	params.DecodeOrder = s.nextDecodeNum
	s.nextDecodeNum++
	s.decodeNums[params.PictureIndex] = params.DecodeOrder

	if err := s.decoder.DecodePicture(ctx, params); err != nil {
		return s.failLocked(ctx, newError(ErrResource, fmt.Sprintf("unable to decode picture #%d", params.DecodeOrder), err))
	}
	s.stats.PicturesDecoded.Inc()
	s.state = StateDecoding
	return nil
}

// applyOverridesLocked passes crop/resize overrides changed since the last
// sequence header to the decoder. Streams often carry no new sequence
// header for a long time.
func (s *Session) applyOverridesLocked(ctx context.Context) error {
	g := s.geometry
	if err := s.decoder.Reconfigure(ctx, reconfigureParams(s.format, s.numDecodeSurfaces, g)); err != nil {
		return s.failLocked(ctx, newError(ErrResource, "unable to apply the crop/resize overrides", err))
	}
	s.overrideChanged = false
	s.stats.Reconfigurations.Inc()
	logger.Infof(ctx, "%s: the decoder now targets %dx%d", s, g.TargetWidth, g.TargetHeight)
	return nil
}

func (s *Session) onPictureDisplayLocked(
	ctx context.Context,
	info hardware.DisplayInfo,
) error {
	if s.decoder == nil {
		return ErrNotConfigured
	}

	decodeNum, ok := s.decodeNums[info.PictureIndex]
	if !ok {
		logger.Warnf(ctx, "displaying slot %d which was never decoded", info.PictureIndex)
	}
	delete(s.decodeNums, info.PictureIndex)

	err := s.outputPictureLocked(ctx, info)
	switch {
	case err == nil:
		s.stats.PicturesDisplayed.Inc()
		return nil
	case s.fatalErr != nil:
		return err
	case errors.Is(err, hardware.ErrPictureNotReady):
		s.stats.PictureErrors.Inc()
		s.stats.PicturesNotReady.Inc()
		logger.Warnf(ctx, "picture #%d (slot %d, ts %d) is dropped: the decoder did not output it in time (%d such pictures so far)", decodeNum, info.PictureIndex, info.Timestamp, s.stats.PicturesNotReady.Load())
		return nil
	default:
		s.stats.PictureErrors.Inc()
		logger.Errorf(ctx, "unable to output picture #%d (slot %d, ts %d): %v", decodeNum, info.PictureIndex, info.Timestamp, err)
		return nil
	}
}

// outputPictureLocked copies the decoded picture into a pooled buffer and
// puts it onto the ready list.
func (s *Session) outputPictureLocked(
	ctx context.Context,
	info hardware.DisplayInfo,
) (_err error) {
	logger.Tracef(ctx, "outputPictureLocked(%d)", info.PictureIndex)
	defer func() { logger.Tracef(ctx, "/outputPictureLocked(%d): %v", info.PictureIndex, _err) }()

	surface, err := s.decoder.MapPicture(ctx, info.PictureIndex, info)
	if err != nil {
		return fmt.Errorf("unable to map slot %d: %w", info.PictureIndex, err)
	}

	buf, err := s.pool.Acquire(ctx)
	if err != nil {
		if err := surface.Unmap(ctx); err != nil {
			logger.Errorf(ctx, "unable to unmap slot %d: %v", info.PictureIndex, err)
		}
		return s.failLocked(ctx, newError(ErrResource, "unable to get an output buffer", err))
	}

	err = s.copyPlanesLocked(ctx, buf, surface)
	if unmapErr := surface.Unmap(ctx); unmapErr != nil {
		logger.Errorf(ctx, "unable to unmap slot %d: %v", info.PictureIndex, unmapErr)
	}
	if err != nil {
		if err := s.pool.Return(ctx, buf); err != nil {
			logger.Errorf(ctx, "unable to return %s to the pool: %v", buf, err)
		}
		return err
	}

	status, err := s.decoder.DecodeStatus(ctx, info.PictureIndex)
	switch {
	case err != nil:
		logger.Warnf(ctx, "unable to get the decode status of slot %d: %v", info.PictureIndex, err)
	case status.IsCorrupt():
		s.stats.PicturesCorrupt.Inc()
		logger.Warnf(ctx, "the picture in slot %d (ts %d) is corrupt: %s", info.PictureIndex, info.Timestamp, status)
	}

	buf.Timestamp = info.Timestamp
	if err := s.pool.MarkReady(ctx, buf); err != nil {
		return fmt.Errorf("unable to mark %s as ready: %w", buf, err)
	}
	return nil
}

func (s *Session) copyPlanesLocked(
	ctx context.Context,
	buf *pool.Buffer,
	surface hardware.MappedSurface,
) error {
	g := s.geometry
	internal.Assert(ctx, buf.Pitch >= g.RowBytes() && len(buf.Data) >= buf.Pitch*g.Rows(), buf.String(), g.String())
	srcPitch := surface.Pitch()
	rowBytes := min(g.RowBytes(), srcPitch)

	offsetRows := 0
	for idx := range g.NumPlanes() {
		height := g.PlaneHeight(idx)
		src := surface.Plane(idx)
		rows := min(height, availableRows(len(src), srcPitch, rowBytes))
		if rows < height {
			// the decoder has not caught up with a new target size yet
			logger.Debugf(ctx, "plane %d of the surface has %d rows instead of %d", idx, rows, height)
		}
		dst := buf.Plane(offsetRows, height)
		if err := s.copier.CopyPlane(ctx, dst, buf.Pitch, src, srcPitch, rowBytes, rows); err != nil {
			return fmt.Errorf("unable to copy plane %d: %w", idx, err)
		}
		offsetRows += height
	}

	if err := s.copier.Synchronize(ctx); err != nil {
		return fmt.Errorf("unable to synchronize the copy: %w", err)
	}
	return nil
}

func availableRows(size, pitch, rowBytes int) int {
	if pitch <= 0 || size < rowBytes {
		return 0
	}
	return (size-rowBytes)/pitch + 1
}
