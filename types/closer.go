package types

import (
	"context"
)

// Closer is implemented by everything owning hardware resources: devices,
// decoders and sessions.
type Closer interface {
	Close(context.Context) error
}
