package libav

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/unsafetools"
)

type slot struct {
	frame     *astiav.Frame
	pending   bool
	decoded   bool
	corrupt   bool
	mapped    bool
	timestamp int64
}

// Decoder decodes into a ring of libav frames, one per picture index.
// libav manages its own reference pictures, so a slot only holds the
// output of the picture last submitted into it.
type Decoder struct {
	device              *Device
	codecContext        *astiav.CodecContext
	hardwarePixelFormat astiav.PixelFormat

	packet   *astiav.Packet
	spare    *astiav.Frame
	ramFrame *astiav.Frame
	slots    []*slot
	scaler   *scaler
	buffer   []byte

	format       types.StreamFormat
	displayArea  types.Rect
	targetWidth  int
	targetHeight int

	closer *astikit.Closer
}

var _ hardware.Decoder = (*Decoder)(nil)

func newDecoder(
	ctx context.Context,
	device *Device,
	codec *astiav.Codec,
	hwPixFmt astiav.PixelFormat,
	params hardware.DecoderParams,
) (_ret *Decoder, _err error) {
	d := &Decoder{
		device:              device,
		hardwarePixelFormat: hwPixFmt,
		format:              params.Format,
		displayArea:         params.DisplayArea,
		targetWidth:         params.TargetWidth,
		targetHeight:        params.TargetHeight,
		closer:              astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = d.closer.Close()
		}
	}()

	d.codecContext = astiav.AllocCodecContext(codec)
	if d.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for %s", codec.Name())
	}
	d.closer.Add(d.codecContext.Free)
	d.codecContext.SetFlags(d.codecContext.Flags() | astiav.CodecContextFlags(astiav.CodecContextFlagLowDelay))
	d.codecContext.SetWidth(int(params.Format.CodedWidth))
	d.codecContext.SetHeight(int(params.Format.CodedHeight))

	if hwPixFmt != astiav.PixelFormatNone {
		d.codecContext.SetHardwareDeviceContext(device.hardwareDeviceContext)
		d.codecContext.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
			for _, pf := range pfs {
				if pf == hwPixFmt {
					return pf
				}
			}
			logger.Errorf(ctx, "the decoder does not offer %s", hwPixFmt)
			return astiav.PixelFormatNone
		})
	}

	if err := d.codecContext.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("unable to open the codec context: %w", wrapError("avcodec_open2", err))
	}

	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "codec_context: %s", spew.Sdump(unsafetools.FieldByNameInValue(reflect.ValueOf(d.codecContext), "c").Elem().Elem().Interface()))
	}

	d.packet = astiav.AllocPacket()
	d.closer.Add(d.packet.Free)
	d.spare = d.allocFrame()
	d.ramFrame = d.allocFrame()
	d.growSlots(params.NumDecodeSurfaces)

	logger.Debugf(ctx, "opened decoder %s on %s with %d slots", codec.Name(), device, len(d.slots))
	return d, nil
}

func (d *Decoder) allocFrame() *astiav.Frame {
	f := astiav.AllocFrame()
	d.closer.Add(f.Free)
	return f
}

func (d *Decoder) growSlots(n int) {
	for len(d.slots) < n {
		d.slots = append(d.slots, &slot{frame: d.allocFrame()})
	}
}

func (d *Decoder) getSlot(idx int) (*slot, error) {
	if idx < 0 || idx >= len(d.slots) {
		return nil, fmt.Errorf("picture index %d is out of range [0, %d)", idx, len(d.slots))
	}
	return d.slots[idx], nil
}

func (d *Decoder) Reconfigure(
	ctx context.Context,
	params hardware.ReconfigureParams,
) (_err error) {
	logger.Tracef(ctx, "Reconfigure(%s)", params.Format)
	defer func() { logger.Tracef(ctx, "/Reconfigure(%s): %v", params.Format, _err) }()

	for idx, s := range d.slots {
		if s.mapped {
			return fmt.Errorf("slot %d is still mapped", idx)
		}
	}
	d.format = params.Format
	d.displayArea = params.DisplayArea
	d.targetWidth = params.TargetWidth
	d.targetHeight = params.TargetHeight
	d.growSlots(params.NumDecodeSurfaces)
	return nil
}

func (d *Decoder) DecodePicture(
	ctx context.Context,
	params *hardware.PictureParams,
) (_err error) {
	logger.Tracef(ctx, "DecodePicture(%d, %d)", params.PictureIndex, params.Timestamp)
	defer func() { logger.Tracef(ctx, "/DecodePicture(%d, %d): %v", params.PictureIndex, params.Timestamp, _err) }()

	s, err := d.getSlot(params.PictureIndex)
	if err != nil {
		return err
	}
	if s.mapped {
		return fmt.Errorf("slot %d is still mapped", params.PictureIndex)
	}
	s.frame.Unref()
	s.pending, s.decoded, s.corrupt = true, false, false
	s.timestamp = params.Timestamp

	d.packet.Unref()
	if err := d.packet.FromData(params.Bitstream); err != nil {
		return fmt.Errorf("unable to fill the packet: %w", err)
	}
	d.packet.SetPts(params.Timestamp)
	d.packet.SetDts(params.Timestamp)
	if params.IsKeyFrame {
		d.packet.SetFlags(d.packet.Flags().Add(astiav.PacketFlagKey))
	}

	if err := d.codecContext.SendPacket(d.packet); err != nil {
		return wrapError("avcodec_send_packet", err)
	}
	return d.receiveFrames(ctx)
}

// receiveFrames moves every frame libav has ready into the slot waiting
// for it (matched by timestamp).
func (d *Decoder) receiveFrames(ctx context.Context) error {
	for {
		err := d.codecContext.ReceiveFrame(d.spare)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		default:
			return wrapError("avcodec_receive_frame", err)
		}

		s := d.pendingSlot(d.spare.Pts())
		if s == nil {
			logger.Warnf(ctx, "no slot waits for a frame with pts %d, dropping it", d.spare.Pts())
			d.spare.Unref()
			continue
		}
		s.frame, d.spare = d.spare, s.frame
		s.pending, s.decoded = false, true
		s.corrupt = s.frame.Flags().Has(astiav.FrameFlagCorrupt)
	}
}

func (d *Decoder) pendingSlot(pts int64) *slot {
	for _, s := range d.slots {
		if s.pending && s.timestamp == pts {
			return s
		}
	}
	return nil
}

func (d *Decoder) DecodeStatus(
	ctx context.Context,
	pictureIndex int,
) (hardware.DecodeStatus, error) {
	s, err := d.getSlot(pictureIndex)
	if err != nil {
		return hardware.DecodeStatusUnknown, err
	}
	switch {
	case s.pending:
		return hardware.DecodeStatusInProgress, nil
	case !s.decoded:
		return hardware.DecodeStatusUnknown, nil
	case s.corrupt:
		return hardware.DecodeStatusErrorConcealed, nil
	}
	return hardware.DecodeStatusSuccess, nil
}

func (d *Decoder) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	d.slots = nil
	d.scaler = nil
	return d.closer.Close()
}
