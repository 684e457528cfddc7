// Package libav implements the hardware decoder boundary on top of libav
// (via go-astiav): decoding runs on the selected libav hardware device
// type, or in software with HardwareDeviceTypeNone.
package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/internal"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/types"
	"github.com/xaionaro-go/xsync"
)

type Device struct {
	DeviceType types.HardwareDeviceType
	DeviceName types.HardwareDeviceName
	Options    types.DictionaryItems

	locker                xsync.Mutex
	hardwareDeviceContext *astiav.HardwareDeviceContext
	closer                *astikit.Closer
}

var (
	_ hardware.Device = (*Device)(nil)
	_ types.Closer    = (*Device)(nil)
)

func NewDevice(
	ctx context.Context,
	deviceType types.HardwareDeviceType,
	deviceName types.HardwareDeviceName,
	options types.DictionaryItems,
) (_ret *Device, _err error) {
	logger.Tracef(ctx, "NewDevice(%s, '%s')", deviceType, deviceName)
	defer func() { logger.Tracef(ctx, "/NewDevice(%s, '%s'): %v", deviceType, deviceName, _err) }()

	d := &Device{
		DeviceType: deviceType,
		DeviceName: deviceName,
		Options:    options.Deduplicate(),
		closer:     astikit.NewCloser(),
	}
	if deviceType == types.HardwareDeviceTypeNone {
		return d, nil
	}

	hwCtx, err := astiav.CreateHardwareDeviceContext(
		astiav.HardwareDeviceType(deviceType),
		string(deviceName),
		dictionaryToAstiav(ctx, d.Options),
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create hardware (%s:%s) device context: %w", deviceType, deviceName, wrapError("CreateHardwareDeviceContext", err))
	}
	d.hardwareDeviceContext = hwCtx
	d.closer.Add(hwCtx.Free)
	logger.Debugf(ctx, "created a hardware device context %p for %s", hwCtx, d)
	return d, nil
}

func (d *Device) String() string {
	if d.DeviceName == "" {
		return fmt.Sprintf("libav:%s", d.DeviceType)
	}
	return fmt.Sprintf("libav:%s:%s", d.DeviceType, d.DeviceName)
}

func (d *Device) Copier() hardware.Copier {
	return hardware.HostCopier{}
}

func (d *Device) Capabilities(
	ctx context.Context,
	codecID types.CodecID,
	chroma types.ChromaFormat,
	bitDepth uint8,
) (_ret hardware.Capabilities, _err error) {
	logger.Tracef(ctx, "Capabilities(%s, %s, %d)", codecID, chroma, bitDepth)
	defer func() { logger.Tracef(ctx, "/Capabilities(%s, %s, %d): %v %v", codecID, chroma, bitDepth, _ret, _err) }()

	caps := hardware.Capabilities{
		MinWidth:  16,
		MinHeight: 16,
	}
	if bitDepth != 8 || outputPixelFormat(chroma) == astiav.PixelFormatNone {
		return caps, nil
	}
	codec := astiav.FindDecoder(codecIDToAstiav(codecID))
	if codec == nil {
		return caps, nil
	}
	if d.DeviceType != types.HardwareDeviceTypeNone {
		if _, ok := d.hardwarePixelFormat(ctx, codec); !ok {
			return caps, nil
		}
	}

	maxSize := maxCodedSize(codecID)
	caps.Supported = true
	caps.MaxWidth = maxSize.Width
	caps.MaxHeight = maxSize.Height
	return caps, nil
}

// hardwarePixelFormat finds the pixel format the codec decodes into on
// this device type using a device context.
func (d *Device) hardwarePixelFormat(
	ctx context.Context,
	codec *astiav.Codec,
) (astiav.PixelFormat, bool) {
	for _, hwCfg := range codec.HardwareConfigs() {
		logger.Tracef(ctx, "hw config: %v %v %v", hwCfg.PixelFormat(), hwCfg.MethodFlags(), hwCfg.HardwareDeviceType())
		if hwCfg.HardwareDeviceType() != astiav.HardwareDeviceType(d.DeviceType) {
			continue
		}
		if !hwCfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			continue
		}
		return hwCfg.PixelFormat(), true
	}
	return astiav.PixelFormatNone, false
}

func (d *Device) NewDecoder(
	ctx context.Context,
	params hardware.DecoderParams,
) (hardware.Decoder, error) {
	return xsync.DoA2R2(ctx, &d.locker, d.newDecoderLocked, ctx, params)
}

func (d *Device) newDecoderLocked(
	ctx context.Context,
	params hardware.DecoderParams,
) (_ret hardware.Decoder, _err error) {
	logger.Tracef(ctx, "newDecoderLocked(%s)", params.Format)
	defer func() { logger.Tracef(ctx, "/newDecoderLocked(%s): %v", params.Format, _err) }()

	codec := astiav.FindDecoder(codecIDToAstiav(params.Format.Codec))
	if codec == nil {
		return nil, hardware.ErrNotSupported{What: fmt.Sprintf("libav decoder for %s", params.Format.Codec)}
	}

	hwPixFmt := astiav.PixelFormatNone
	if d.DeviceType != types.HardwareDeviceTypeNone {
		var ok bool
		hwPixFmt, ok = d.hardwarePixelFormat(ctx, codec)
		if !ok {
			return nil, hardware.ErrNotSupported{What: fmt.Sprintf("%s on %s", params.Format.Codec, d)}
		}
	}

	return newDecoder(ctx, d, codec, hwPixFmt, params)
}

// Close frees the device context; it must outlive all the decoders.
func (d *Device) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	return xsync.DoR1(ctx, &d.locker, d.closer.Close)
}

func dictionaryToAstiav(
	ctx context.Context,
	items types.DictionaryItems,
) *astiav.Dictionary {
	if len(items) == 0 {
		return nil
	}

	result := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, result)
	for _, opt := range items {
		logger.Tracef(ctx, "setting option: %s=%s", opt.Key, opt.Value)
		result.Set(opt.Key, opt.Value, 0)
	}
	return result
}
