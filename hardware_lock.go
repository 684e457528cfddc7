package hwdecoder

import (
	"context"

	"github.com/xaionaro-go/xsync"
)

type ctxKeyHardwareLockedT struct{}

var ctxKeyHardwareLocked = ctxKeyHardwareLockedT{}

// withHardwareLock runs fn holding the hardware lock. The parser calls the
// session back from within Parse, which already runs under the lock; the
// context tells such nested calls apart so they do not lock twice.
func withHardwareLock[R any](
	ctx context.Context,
	locker *xsync.Mutex,
	fn func(context.Context) (R, error),
) (R, error) {
	if held, _ := ctx.Value(ctxKeyHardwareLocked).(*xsync.Mutex); held == locker {
		return fn(ctx)
	}

	var (
		ret R
		err error
	)
	locker.Do(ctx, func() {
		ret, err = fn(context.WithValue(ctx, ctxKeyHardwareLocked, locker))
	})
	return ret, err
}
