// Package internal holds small helpers shared across hwdecoder packages.
package internal

import (
	"context"

	"github.com/xaionaro-go/hwdecoder/logger"
)

// Assert panics (through the logger, so the message is flushed) if the
// condition does not hold.
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}

	logger.Panicf(ctx, "assertion failed: %v", extraArgs)
}
