// parser.go implements a low-latency H.264 Annex-B parser.

// Package h264 is an H.264 Annex-B bitstream parser driving a decode
// session: it reports sequence headers, splits the stream into access
// units and hands every picture out for display right after it is
// decoded.
//
// Pictures are displayed in decode order, so streams with B-frames are
// expected to be encoded without reordering.
package h264

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/types"
)

type Parser struct {
	handler hardware.EventHandler

	lastSPS     []byte
	format      types.StreamFormat
	numSurfaces int
	nextSlot    int

	accessUnit   []byte
	hasSlice     bool
	isKeyFrame   bool
	auTimestamp  int64
	skippedUnits uint64
}

var _ hardware.Parser = (*Parser)(nil)

// NewParser is a hardware.ParserFactoryFunc.
func NewParser(
	ctx context.Context,
	codec types.CodecID,
	handler hardware.EventHandler,
) (hardware.Parser, error) {
	if codec != types.CodecIDH264 {
		return nil, hardware.ErrNotSupported{What: fmt.Sprintf("codec %s", codec)}
	}
	return &Parser{
		handler: handler,
	}, nil
}

func (p *Parser) Parse(
	ctx context.Context,
	pkt hardware.Packet,
) (_err error) {
	logger.Tracef(ctx, "Parse(%d bytes, %d)", len(pkt.Data), pkt.Timestamp)
	defer func() { logger.Tracef(ctx, "/Parse(%d bytes, %d): %v", len(pkt.Data), pkt.Timestamp, _err) }()

	if pkt.Flags.Has(hardware.PacketFlagDiscontinuity) {
		if err := p.flush(ctx); err != nil {
			return err
		}
	}

	for _, nalu := range splitAnnexB(pkt.Data) {
		if err := p.parseNALU(ctx, nalu, pkt.Timestamp); err != nil {
			return err
		}
	}

	if pkt.IsEndOfStream() || pkt.Flags.Has(hardware.PacketFlagEndOfPicture) {
		return p.flush(ctx)
	}
	return nil
}

func (p *Parser) parseNALU(
	ctx context.Context,
	nalu []byte,
	timestamp int64,
) error {
	t := nalType(nalu)
	switch {
	case isVCL(t):
		if startsPicture(nalu) && p.hasSlice {
			if err := p.flush(ctx); err != nil {
				return err
			}
		}
	case t == nalTypeSPS, t == nalTypePPS, t == nalTypeSEI, t == nalTypeAUD:
		// these may only precede the first slice of an access unit
		if p.hasSlice {
			if err := p.flush(ctx); err != nil {
				return err
			}
		}
	case t == nalTypeEndOfSequence, t == nalTypeEndOfStream:
		return p.flush(ctx)
	}

	if t == nalTypeSPS {
		if err := p.onSPS(ctx, nalu); err != nil {
			return err
		}
	}

	if len(p.accessUnit) == 0 {
		p.auTimestamp = timestamp
	}
	p.accessUnit = append(p.accessUnit, startCode...)
	p.accessUnit = append(p.accessUnit, nalu...)
	if isVCL(t) {
		p.hasSlice = true
		if t == nalTypeIDR {
			p.isKeyFrame = true
		}
	}
	return nil
}

func (p *Parser) onSPS(ctx context.Context, nalu []byte) error {
	if bytes.Equal(nalu, p.lastSPS) {
		return nil
	}
	format, err := ParseFormat(nalu)
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "new SPS: %s", format)

	res, err := p.handler.HandleEvent(ctx, hardware.EventSequence{Format: format})
	if err != nil {
		return fmt.Errorf("the sequence %s was rejected: %w", format, err)
	}
	p.lastSPS = append(p.lastSPS[:0], nalu...)
	p.format = format
	p.numSurfaces = max(res.NumDecodeSurfaces, 1)
	p.nextSlot %= p.numSurfaces
	return nil
}

// flush submits the pending access unit and displays it.
func (p *Parser) flush(ctx context.Context) error {
	if !p.hasSlice {
		return nil
	}
	defer p.reset()

	if p.lastSPS == nil {
		p.skippedUnits++
		logger.Debugf(ctx, "skipping an access unit preceding the first SPS (%d skipped so far)", p.skippedUnits)
		return nil
	}

	slot := p.nextSlot
	p.nextSlot = (p.nextSlot + 1) % p.numSurfaces

	bitstream := make([]byte, len(p.accessUnit))
	copy(bitstream, p.accessUnit)
	_, err := p.handler.HandleEvent(ctx, hardware.EventPictureReady{Params: &hardware.PictureParams{
		PictureIndex: slot,
		Bitstream:    bitstream,
		IsKeyFrame:   p.isKeyFrame,
		Timestamp:    p.auTimestamp,
	}})
	if err != nil {
		return fmt.Errorf("unable to submit the picture: %w", err)
	}

	_, err = p.handler.HandleEvent(ctx, hardware.EventPictureDisplay{Info: hardware.DisplayInfo{
		PictureIndex:     slot,
		Timestamp:        p.auTimestamp,
		ProgressiveFrame: p.format.Progressive,
	}})
	if err != nil {
		return fmt.Errorf("unable to display the picture: %w", err)
	}
	return nil
}

func (p *Parser) reset() {
	p.accessUnit = p.accessUnit[:0]
	p.hasSlice = false
	p.isKeyFrame = false
}

func (p *Parser) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	p.reset()
	p.lastSPS = nil
	return nil
}
