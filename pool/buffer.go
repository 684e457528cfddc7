package pool

import (
	"fmt"

	"github.com/xaionaro-go/hwdecoder/types"
)

type Handle uint64

type bufferState int

const (
	bufferStateBorrowed = bufferState(iota)
	bufferStateFree
	bufferStateReady
	bufferStateReleased
)

// Buffer is a single output frame: planes stacked one after another, each
// row Pitch bytes apart.
type Buffer struct {
	Handle    Handle
	Data      []byte
	Pitch     int
	Size      int
	Residency types.BufferResidency
	Timestamp int64

	pool  *Pool
	state bufferState
}

func (b *Buffer) String() string {
	if b == nil {
		return "Buffer(nil)"
	}
	return fmt.Sprintf("Buffer(#%d, %d bytes, pitch %d)", b.Handle, b.Size, b.Pitch)
}

// Plane returns height rows starting offsetRows rows into the buffer.
func (b *Buffer) Plane(offsetRows, height int) []byte {
	start := offsetRows * b.Pitch
	end := start + height*b.Pitch
	if end > len(b.Data) {
		end = len(b.Data)
	}
	if start > end {
		return nil
	}
	return b.Data[start:end]
}
