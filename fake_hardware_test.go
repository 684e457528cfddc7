package hwdecoder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/hwdecoder/geometry"
	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/hwdecoder/types"
)

type fakeDevice struct {
	Caps          hardware.Capabilities
	CapsErr       error
	NewDecoderErr error
	CallDelay     time.Duration

	locker   sync.Mutex
	log      []string
	decoders []*fakeDecoder
	corrupt  map[int64]bool
	heldBack map[int64]bool

	active     atomic.Int32
	violations atomic.Int32
}

var _ hardware.Device = (*fakeDevice)(nil)

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		Caps: hardware.Capabilities{
			Supported: true,
			MinWidth:  16,
			MinHeight: 16,
			MaxWidth:  4096,
			MaxHeight: 4096,
		},
		corrupt:  map[int64]bool{},
		heldBack: map[int64]bool{},
	}
}

func (d *fakeDevice) String() string {
	return "fake"
}

func (d *fakeDevice) record(format string, args ...any) {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.log = append(d.log, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) Log() []string {
	d.locker.Lock()
	defer d.locker.Unlock()
	return append([]string{}, d.log...)
}

func (d *fakeDevice) Decoders() []*fakeDecoder {
	d.locker.Lock()
	defer d.locker.Unlock()
	return append([]*fakeDecoder{}, d.decoders...)
}

func (d *fakeDevice) MarkCorrupt(timestamp int64) {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.corrupt[timestamp] = true
}

// HoldBack makes the picture with the given timestamp look like one the
// decoder keeps for reordering.
func (d *fakeDevice) HoldBack(timestamp int64) {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.heldBack[timestamp] = true
}

func (d *fakeDevice) isHeldBack(timestamp int64) bool {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.heldBack[timestamp]
}

func (d *fakeDevice) isCorrupt(timestamp int64) bool {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.corrupt[timestamp]
}

// enter detects hardware calls overlapping in time, which must never
// happen while the hardware lock is honored.
func (d *fakeDevice) enter() func() {
	if d.active.Inc() > 1 {
		d.violations.Inc()
	}
	if d.CallDelay > 0 {
		time.Sleep(d.CallDelay)
	}
	return func() { d.active.Dec() }
}

func (d *fakeDevice) Capabilities(
	ctx context.Context,
	codec types.CodecID,
	chroma types.ChromaFormat,
	bitDepth uint8,
) (hardware.Capabilities, error) {
	defer d.enter()()
	return d.Caps, d.CapsErr
}

func (d *fakeDevice) NewDecoder(
	ctx context.Context,
	params hardware.DecoderParams,
) (hardware.Decoder, error) {
	defer d.enter()()
	if d.NewDecoderErr != nil {
		return nil, d.NewDecoderErr
	}
	dec := &fakeDecoder{
		device: d,
		Params: params,
		chroma: params.Format.ChromaFormat,
		bpp:    geometry.BytesPerPixel(params.Format.BitDepth),
		width:  params.TargetWidth,
		height: params.TargetHeight,
		slots:  map[int]int64{},
	}
	d.locker.Lock()
	d.decoders = append(d.decoders, dec)
	d.locker.Unlock()
	d.record("NewDecoder(%s, max %s, %d surfaces)", params.Format.CodedSize(), params.MaxCodedSize, params.NumDecodeSurfaces)
	return dec, nil
}

func (d *fakeDevice) Copier() hardware.Copier {
	return hardware.HostCopier{}
}

type fakeDecoder struct {
	device *fakeDevice
	Params hardware.DecoderParams

	chroma types.ChromaFormat
	bpp    int
	width  int
	height int

	Reconfigurations []hardware.ReconfigureParams
	slots            map[int]int64
	Closed           bool
}

var _ hardware.Decoder = (*fakeDecoder)(nil)

func (d *fakeDecoder) Reconfigure(ctx context.Context, params hardware.ReconfigureParams) error {
	defer d.device.enter()()
	d.Reconfigurations = append(d.Reconfigurations, params)
	d.width, d.height = params.TargetWidth, params.TargetHeight
	d.device.record("Reconfigure(%s -> %dx%d)", params.Format.CodedSize(), params.TargetWidth, params.TargetHeight)
	return nil
}

func (d *fakeDecoder) DecodePicture(ctx context.Context, params *hardware.PictureParams) error {
	defer d.device.enter()()
	d.slots[params.PictureIndex] = params.Timestamp
	return nil
}

// fillByte is the value a fake surface holding the picture with the given
// timestamp is filled with.
func fillByte(timestamp int64) byte {
	return byte(timestamp/1000) + 1
}

func (d *fakeDecoder) MapPicture(
	ctx context.Context,
	pictureIndex int,
	info hardware.DisplayInfo,
) (hardware.MappedSurface, error) {
	defer d.device.enter()()
	timestamp, ok := d.slots[pictureIndex]
	if !ok {
		return nil, fmt.Errorf("slot %d is empty", pictureIndex)
	}
	if d.device.isHeldBack(timestamp) {
		return nil, hardware.ErrPictureNotReady
	}

	rowBytes := d.width * d.bpp
	surface := &fakeSurface{pitch: rowBytes + 64}
	chromaRows := d.height
	if d.chroma == types.ChromaFormat420 {
		chromaRows = (d.height + 1) / 2
	}
	surface.planes = append(surface.planes, filled(d.height*surface.pitch, fillByte(timestamp)))
	for range d.chroma.NumChromaPlanes() {
		surface.planes = append(surface.planes, filled(chromaRows*surface.pitch, fillByte(timestamp)+100))
	}
	return surface, nil
}

func (d *fakeDecoder) DecodeStatus(ctx context.Context, pictureIndex int) (hardware.DecodeStatus, error) {
	defer d.device.enter()()
	if d.device.isCorrupt(d.slots[pictureIndex]) {
		return hardware.DecodeStatusErrorConcealed, nil
	}
	return hardware.DecodeStatusSuccess, nil
}

func (d *fakeDecoder) Close(ctx context.Context) error {
	defer d.device.enter()()
	d.Closed = true
	d.device.record("decoder.Close")
	return nil
}

func filled(size int, value byte) []byte {
	result := make([]byte, size)
	for idx := range result {
		result[idx] = value
	}
	return result
}

type fakeSurface struct {
	pitch  int
	planes [][]byte
}

func (s *fakeSurface) Pitch() int {
	return s.pitch
}

func (s *fakeSurface) Plane(idx int) []byte {
	if idx >= len(s.planes) {
		return nil
	}
	return s.planes[idx]
}

func (s *fakeSurface) Unmap(ctx context.Context) error {
	return nil
}

type fakeParser struct {
	device   *fakeDevice
	handler  hardware.EventHandler
	onPacket func(ctx context.Context, p *fakeParser, pkt hardware.Packet) error

	NumSurfaces int
	Packets     []hardware.Packet
}

func (p *fakeParser) Parse(ctx context.Context, pkt hardware.Packet) error {
	p.Packets = append(p.Packets, pkt)
	if p.onPacket == nil {
		return nil
	}
	return p.onPacket(ctx, p, pkt)
}

func (p *fakeParser) Close(ctx context.Context) error {
	p.device.record("parser.Close")
	return nil
}

func (p *fakeParser) sequence(ctx context.Context, format types.StreamFormat) error {
	res, err := p.handler.HandleEvent(ctx, hardware.EventSequence{Format: format})
	if err != nil {
		return err
	}
	p.NumSurfaces = res.NumDecodeSurfaces
	return nil
}

func (p *fakeParser) picture(ctx context.Context, idx int, timestamp int64) error {
	_, err := p.handler.HandleEvent(ctx, hardware.EventPictureReady{Params: &hardware.PictureParams{
		PictureIndex: idx,
		Bitstream:    []byte{0, 0, 1, 0x65},
		IsKeyFrame:   idx == 0,
		Timestamp:    timestamp,
	}})
	return err
}

func (p *fakeParser) display(ctx context.Context, idx int, timestamp int64) error {
	_, err := p.handler.HandleEvent(ctx, hardware.EventPictureDisplay{Info: hardware.DisplayInfo{
		PictureIndex:     idx,
		Timestamp:        timestamp,
		ProgressiveFrame: true,
	}})
	return err
}

// simpleScript emits a sequence header for the first packet and for every
// packet with PacketFlagDiscontinuity, then decodes and displays one
// picture per packet.
func simpleScript(format *types.StreamFormat) func(ctx context.Context, p *fakeParser, pkt hardware.Packet) error {
	count := 0
	return func(ctx context.Context, p *fakeParser, pkt hardware.Packet) error {
		if pkt.IsEndOfStream() {
			return nil
		}
		if count == 0 || pkt.Flags.Has(hardware.PacketFlagDiscontinuity) {
			if err := p.sequence(ctx, *format); err != nil {
				return err
			}
		}
		idx := count % p.NumSurfaces
		count++
		if err := p.picture(ctx, idx, pkt.Timestamp); err != nil {
			return err
		}
		return p.display(ctx, idx, pkt.Timestamp)
	}
}

// fakeDeviceWithMemory also allocates output buffers "in device memory".
type fakeDeviceWithMemory struct {
	*fakeDevice
	Allocator pool.HostAllocator
}

var _ hardware.DeviceMemoryProvider = (*fakeDeviceWithMemory)(nil)

func (d *fakeDeviceWithMemory) DeviceAllocator() pool.Allocator {
	return d.Allocator
}

func newTestSession(
	ctx context.Context,
	device *fakeDevice,
	cfg Config,
	script func(ctx context.Context, p *fakeParser, pkt hardware.Packet) error,
) (*Session, *fakeParser, error) {
	return newTestSessionOn(ctx, device, device, cfg, script)
}

func newTestSessionOn(
	ctx context.Context,
	hwDevice hardware.Device,
	device *fakeDevice,
	cfg Config,
	script func(ctx context.Context, p *fakeParser, pkt hardware.Packet) error,
) (*Session, *fakeParser, error) {
	var parser *fakeParser
	factory := hardware.ParserFactoryFunc(func(
		ctx context.Context,
		codec types.CodecID,
		handler hardware.EventHandler,
	) (hardware.Parser, error) {
		parser = &fakeParser{
			device:   device,
			handler:  handler,
			onPacket: script,
		}
		return parser, nil
	})
	s, err := New(ctx, hwDevice, factory, cfg)
	return s, parser, err
}

func format1080p() types.StreamFormat {
	return types.StreamFormat{
		Codec:                types.CodecIDH264,
		ChromaFormat:         types.ChromaFormat420,
		BitDepth:             8,
		CodedWidth:           1920,
		CodedHeight:          1088,
		DisplayArea:          types.Rect{Left: 0, Top: 0, Right: 1920, Bottom: 1080},
		Progressive:          true,
		MinNumDecodeSurfaces: 4,
	}
}
