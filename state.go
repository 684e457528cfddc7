package hwdecoder

import (
	"fmt"
)

type State int

const (
	StateUninitialized = State(iota)
	StateConfigured
	StateDecoding
	StateReconfiguring
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateDecoding:
		return "decoding"
	case StateReconfiguring:
		return "reconfiguring"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("unknown_state_%d", int(s))
}
