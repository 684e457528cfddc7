package hardware

import (
	"errors"
	"fmt"
)

// ErrPictureNotReady is returned by Decoder.MapPicture for a picture the
// decoder has not output yet.
var ErrPictureNotReady = errors.New("the decoder has not output the picture yet")

// Error is a failure reported by the hardware API, with its native code.
type Error struct {
	Op   string
	Code int
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

type ErrNotSupported struct {
	What string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("not supported: %s", e.What)
}
