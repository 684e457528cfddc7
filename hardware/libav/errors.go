package libav

import (
	"errors"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwdecoder/hardware"
)

// errorCode extracts the native AVERROR code; -1 if there is none.
func errorCode(err error) int {
	var avErr astiav.Error
	if errors.As(err, &avErr) {
		return int(avErr)
	}
	return -1
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return hardware.Error{
		Op:   op,
		Code: errorCode(err),
		Err:  err,
	}
}
