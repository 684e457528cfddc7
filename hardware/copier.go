package hardware

import (
	"context"
	"fmt"
)

// Copier copies 2D planes. Copies may complete asynchronously;
// Synchronize waits for all of them.
type Copier interface {
	CopyPlane(
		ctx context.Context,
		dst []byte, dstPitch int,
		src []byte, srcPitch int,
		rowBytes, rows int,
	) error
	Synchronize(ctx context.Context) error
}

// HostCopier copies synchronously in host memory.
type HostCopier struct{}

var _ Copier = HostCopier{}

func (HostCopier) CopyPlane(
	ctx context.Context,
	dst []byte, dstPitch int,
	src []byte, srcPitch int,
	rowBytes, rows int,
) error {
	if rows <= 0 || rowBytes <= 0 {
		return nil
	}
	if dstPitch < rowBytes || srcPitch < rowBytes {
		return fmt.Errorf("pitch is less than the row size: dst:%d src:%d row:%d", dstPitch, srcPitch, rowBytes)
	}
	if need := (rows-1)*dstPitch + rowBytes; len(dst) < need {
		return fmt.Errorf("destination is too small: %d < %d", len(dst), need)
	}
	if need := (rows-1)*srcPitch + rowBytes; len(src) < need {
		return fmt.Errorf("source is too small: %d < %d", len(src), need)
	}
	if dstPitch == rowBytes && srcPitch == rowBytes {
		copy(dst[:rows*rowBytes], src)
		return nil
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*dstPitch:y*dstPitch+rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
	return nil
}

func (HostCopier) Synchronize(ctx context.Context) error {
	return nil
}
