package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/hwdecoder/logger"
)

// SetFinalizerFree frees the libav object once it is garbage collected.
// It must not be used on objects freed explicitly.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}
