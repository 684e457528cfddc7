package hwdecoder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/hwdecoder/hardware"
	"github.com/xaionaro-go/hwdecoder/logger"
	"github.com/xaionaro-go/hwdecoder/pool"
	"github.com/xaionaro-go/xsync"
)

// Decode feeds a packet and returns the frames that became ready, in
// display order, with their timestamps. The frames stay owned by the
// session and are valid until the next call of Decode. Empty data means
// the end of the stream and flushes the pictures still held by the parser.
func (s *Session) Decode(
	ctx context.Context,
	data []byte,
	flags hardware.PacketFlags,
	timestamp int64,
) (_frames []*pool.Buffer, _timestamps []int64, _err error) {
	logger.Tracef(ctx, "Decode(%d bytes, %d)", len(data), timestamp)
	defer func() { logger.Tracef(ctx, "/Decode(%d bytes, %d): %d %v", len(data), timestamp, len(_frames), _err) }()

	s.pool.ReclaimReady(ctx)
	if err := s.feed(ctx, data, flags, timestamp); err != nil {
		return nil, nil, err
	}
	frames := s.pool.Ready()
	return frames, timestampsOf(frames), nil
}

// DecodeAndTake is Decode, except that the caller takes the ownership of
// the returned frames and must give them back with ReturnFrames.
func (s *Session) DecodeAndTake(
	ctx context.Context,
	data []byte,
	flags hardware.PacketFlags,
	timestamp int64,
) (_frames []*pool.Buffer, _timestamps []int64, _err error) {
	logger.Tracef(ctx, "DecodeAndTake(%d bytes, %d)", len(data), timestamp)
	defer func() { logger.Tracef(ctx, "/DecodeAndTake(%d bytes, %d): %d %v", len(data), timestamp, len(_frames), _err) }()

	s.pool.ReclaimReady(ctx)
	err := s.feed(ctx, data, flags, timestamp)
	frames := s.pool.DrainRemoved(ctx, math.MaxInt)
	if err != nil {
		// the frames decoded before the failure are still handed out
		return frames, timestampsOf(frames), err
	}
	return frames, timestampsOf(frames), nil
}

func (s *Session) feed(
	ctx context.Context,
	data []byte,
	flags hardware.PacketFlags,
	timestamp int64,
) error {
	pkt := hardware.Packet{
		Data:      data,
		Timestamp: timestamp,
		Flags:     flags,
	}
	if len(data) == 0 {
		pkt.Flags |= hardware.PacketFlagEndOfStream
	}

	_, err := withHardwareLock(ctx, s.hardwareLock, func(ctx context.Context) (struct{}, error) {
		err := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, s.checkUsableLocked)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.parser.Parse(ctx, pkt)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrSessionUnusable) {
		return err
	}
	if fatalErr := s.fatalError(); fatalErr != nil {
		return fmt.Errorf("%w: %w", ErrSessionUnusable, fatalErr)
	}
	return fmt.Errorf("unable to parse the packet: %w", err)
}

func (s *Session) fatalError() error {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &s.locker, func() error {
		return s.fatalErr
	})
}

// ReturnFrames gives back frames taken with DecodeAndTake.
func (s *Session) ReturnFrames(
	ctx context.Context,
	frames ...*pool.Buffer,
) error {
	var errs []error
	for _, frame := range frames {
		if err := s.pool.Return(ctx, frame); err != nil {
			errs = append(errs, fmt.Errorf("unable to return %s: %w", frame, err))
		}
	}
	return errors.Join(errs...)
}

func timestampsOf(frames []*pool.Buffer) []int64 {
	result := make([]int64, len(frames))
	for idx, frame := range frames {
		result[idx] = frame.Timestamp
	}
	return result
}
