package hwdecoder

import (
	"errors"
	"fmt"

	"github.com/xaionaro-go/hwdecoder/hardware"
)

var (
	// ErrCapability is the category of errors caused by the hardware not
	// supporting the stream: codec, chroma format, bit depth or size.
	ErrCapability = errors.New("the hardware does not support the stream")

	// ErrReconfigure is the category of errors caused by a mid-stream
	// format change the decoder cannot follow.
	ErrReconfigure = errors.New("unable to reconfigure the decoder")

	// ErrResource is the category of errors caused by failing hardware
	// API calls.
	ErrResource = errors.New("a hardware call failed")

	ErrSessionUnusable = errors.New("the session is unusable after a fatal error")
	ErrClosed          = errors.New("the session is closed")
	ErrNotConfigured   = errors.New("the session has not received a sequence header yet")
)

// Error is a fatal session error. errors.Is matches it against its
// Category (ErrCapability, ErrReconfigure or ErrResource) and the cause.
type Error struct {
	Category error
	Reason   string

	// Code is the native code of the failed hardware call, if any.
	Code int

	Err error
}

func newError(category error, reason string, err error) Error {
	e := Error{
		Category: category,
		Reason:   reason,
		Err:      err,
	}
	var hwErr hardware.Error
	if errors.As(err, &hwErr) {
		e.Code = hwErr.Code
	}
	return e
}

func (e Error) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Category, e.Reason)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e Error) Unwrap() []error {
	result := []error{e.Category}
	if e.Err != nil {
		result = append(result, e.Err)
	}
	return result
}
