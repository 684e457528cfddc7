// session.go implements the lifecycle of a hardware decode session.

// Package hwdecoder manages hardware video decode sessions: it drives a
// bitstream parser and a hardware decoder, follows mid-stream format
// changes and copies decoded pictures into pooled output buffers.
package hwdecoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/hwdecoder/geometry"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/hwdecoder/reconfig"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

type Config struct {
	Codec     types.CodecID
	Residency types.BufferResidency
	Layout    types.BufferLayout

	Crop   typing.Optional[types.Rect]
	Resize typing.Optional[types.Resolution]

	// MaxCodedSize is a hint of the largest coded size the stream may
	// switch to; the decoder is created large enough for it.
	MaxCodedSize types.Resolution

	// ExtraDecodeSurfaces is added to the amount of decode surfaces the
	// stream requires.
	ExtraDecodeSurfaces int

	// ReconfigurePolicy overrides reconfig.DefaultPolicy of the codec.
	ReconfigurePolicy typing.Optional[reconfig.Policy]

	// HardwareLocker serializes the hardware API calls. Sessions sharing
	// a hardware context must share the locker. A private one is used if
	// nil.
	HardwareLocker *xsync.Mutex
}

type Session struct {
	Config Config

	device        hardware.Device
	copier        hardware.Copier
	parser        hardware.Parser
	pool          *pool.Pool
	hardwareLock  *xsync.Mutex
	policy        reconfig.Policy
	locker        xsync.Mutex
	stats         statistics
	nextDecodeNum uint64

	// the fields below are protected by locker
	state             State
	fatalErr          error
	decoder           hardware.Decoder
	format            types.StreamFormat
	geometry          geometry.TargetGeometry
	maxCodedSize      types.Resolution
	numDecodeSurfaces int
	overrideChanged   bool
	decodeNums        map[int]uint64
}

var (
	_ hardware.EventHandler = (*Session)(nil)
	_ types.Closer          = (*Session)(nil)
)

func New(
	ctx context.Context,
	device hardware.Device,
	parserFactory hardware.ParserFactory,
	cfg Config,
) (_ret *Session, _err error) {
	logger.Tracef(ctx, "New(%s, %s)", device, cfg.Codec)
	defer func() { logger.Tracef(ctx, "/New(%s, %s): %v", device, cfg.Codec, _err) }()

	if device == nil {
		return nil, fmt.Errorf("the device is not set")
	}
	if cfg.Codec <= types.CodecIDUndefined || cfg.Codec >= types.EndOfCodecID {
		return nil, newError(ErrCapability, fmt.Sprintf("invalid codec %s", cfg.Codec), nil)
	}

	var allocator pool.Allocator
	switch cfg.Residency {
	case types.BufferResidencyHost:
		allocator = pool.HostAllocator{}
	case types.BufferResidencyDevice:
		provider, ok := device.(hardware.DeviceMemoryProvider)
		if !ok {
			return nil, newError(ErrCapability, fmt.Sprintf("%s cannot allocate device memory", device), nil)
		}
		allocator = provider.DeviceAllocator()
	default:
		return nil, fmt.Errorf("unknown buffer residency %s", cfg.Residency)
	}

	s := &Session{
		Config:       cfg,
		device:       device,
		copier:       device.Copier(),
		pool:         pool.New(allocator, pool.Layout{}),
		hardwareLock: cfg.HardwareLocker,
		policy:       reconfig.DefaultPolicy(cfg.Codec),
		maxCodedSize: cfg.MaxCodedSize,
		decodeNums:   map[int]uint64{},
	}
	if s.hardwareLock == nil {
		s.hardwareLock = &xsync.Mutex{}
	}
	if cfg.ReconfigurePolicy.IsSet() {
		s.policy = cfg.ReconfigurePolicy.Get()
	}
	if s.copier == nil {
		s.copier = hardware.HostCopier{}
	}

	parser, err := parserFactory.NewParser(ctx, cfg.Codec, s)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a %s parser: %w", cfg.Codec, err)
	}
	s.parser = parser
	return s, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s@%s)", s.Config.Codec, s.device)
}

func (s *Session) State() State {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &s.locker, func() State {
		return s.state
	})
}

// Format returns the stream format the decoder is currently configured for.
func (s *Session) Format() types.StreamFormat {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &s.locker, func() types.StreamFormat {
		return s.format
	})
}

func (s *Session) Geometry() geometry.TargetGeometry {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &s.locker, func() geometry.TargetGeometry {
		return s.geometry
	})
}

// SetReconfigureParams changes the crop/resize overrides. The frame size
// of the produced frames changes immediately, the decoder is reconfigured
// on the next sequence header or picture, whichever comes first.
func (s *Session) SetReconfigureParams(
	ctx context.Context,
	crop typing.Optional[types.Rect],
	resize typing.Optional[types.Resolution],
) (_err error) {
	logger.Debugf(ctx, "SetReconfigureParams(%v, %v)", crop, resize)
	defer func() { logger.Debugf(ctx, "/SetReconfigureParams(%v, %v): %v", crop, resize, _err) }()
	return xsync.DoA3R1(ctx, &s.locker, s.setReconfigureParamsLocked, ctx, crop, resize)
}

func (s *Session) setReconfigureParamsLocked(
	ctx context.Context,
	crop typing.Optional[types.Rect],
	resize typing.Optional[types.Resolution],
) error {
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	if optionalEqual(crop, s.Config.Crop) && optionalEqual(resize, s.Config.Resize) {
		return nil
	}
	s.Config.Crop = crop
	s.Config.Resize = resize
	if s.decoder == nil {
		return nil
	}
	s.overrideChanged = true
	s.applyGeometryLocked(ctx, geometry.Resolve(s.format, crop, resize))
	return nil
}

func optionalEqual[T comparable](a, b typing.Optional[T]) bool {
	if a.IsSet() != b.IsSet() {
		return false
	}
	return !a.IsSet() || a.Get() == b.Get()
}

func (s *Session) applyGeometryLocked(ctx context.Context, g geometry.TargetGeometry) {
	logger.Debugf(ctx, "output geometry: %s", g)
	s.geometry = g
	s.pool.SetLayout(ctx, pool.LayoutFor(g, s.Config.Residency, s.Config.Layout))
}

func (s *Session) checkUsableLocked() error {
	if s.state == StateDestroyed {
		return ErrClosed
	}
	if s.fatalErr != nil {
		return fmt.Errorf("%w: %w", ErrSessionUnusable, s.fatalErr)
	}
	return nil
}

// failLocked makes the session unusable.
func (s *Session) failLocked(ctx context.Context, err error) error {
	logger.Errorf(ctx, "%s: fatal: %v", s, err)
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	return err
}

// Close releases the parser, then the decoder, then the buffers held by
// the pool. Frames owned by the caller stay valid until returned.
func (s *Session) Close(ctx context.Context) (_err error) {
	// the hardware must be released even if the caller gave up already
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	_, err := withHardwareLock(ctx, s.hardwareLock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, xsync.DoA1R1(ctx, &s.locker, s.closeLocked, ctx)
	})
	return err
}

func (s *Session) closeLocked(ctx context.Context) error {
	if s.state == StateDestroyed {
		return nil
	}
	s.state = StateDestroyed

	var errs []error
	if s.parser != nil {
		if err := s.parser.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to close the parser: %w", err))
		}
	}
	if s.decoder != nil {
		if err := s.decoder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to close the decoder: %w", err))
		}
		s.decoder = nil
	}
	if err := s.pool.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unable to close the pool: %w", err))
	}
	return errors.Join(errs...)
}
