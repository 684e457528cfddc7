// Package reconfig decides how a decode session reacts to a new sequence
// header: ignore it, update the output geometry only, reconfigure the
// hardware decoder, or give up.
package reconfig

import (
	"fmt"

	"github.com/xaionaro-go/hwdecoder/types"
)

type Action int

const (
	ActionNoChange = Action(iota)
	ActionGeometryOnly
	ActionFullReconfigure
	ActionUnsupported
)

func (a Action) String() string {
	switch a {
	case ActionNoChange:
		return "no_change"
	case ActionGeometryOnly:
		return "geometry_only"
	case ActionFullReconfigure:
		return "full_reconfigure"
	case ActionUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("unknown_action_%d", int(a))
}

// Policy tells what to do when a stream outgrows the largest coded size
// the decoder's surface ring was created for.
type Policy int

const (
	// PolicyReject makes the growth a fatal error.
	PolicyReject = Policy(iota)

	// PolicyAbsorb lets the underlying driver handle the growth itself;
	// the session proceeds without touching the decoder.
	PolicyAbsorb

	// PolicyRecreate destroys the decoder and creates it again with
	// a larger surface ring.
	PolicyRecreate
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyAbsorb:
		return "absorb"
	case PolicyRecreate:
		return "recreate"
	}
	return fmt.Sprintf("unknown_policy_%d", int(p))
}

func DefaultPolicy(codec types.CodecID) Policy {
	switch codec {
	case types.CodecIDVP9, types.CodecIDAV1:
		return PolicyAbsorb
	case types.CodecIDH264, types.CodecIDHEVC:
		return PolicyRecreate
	}
	return PolicyReject
}

type Input struct {
	Old StreamFormat
	New StreamFormat

	// OverrideChanged is set when the user changed the crop or resize
	// override since the last sequence header.
	OverrideChanged bool

	// MaxCodedSize is the largest coded size the decoder was created for.
	MaxCodedSize types.Resolution

	// NumDecodeSurfaces is the size of the current decode surface ring.
	NumDecodeSurfaces int

	Policy Policy
}

type StreamFormat = types.StreamFormat

type Decision struct {
	Action Action
	Reason string

	// Absorbed is set with ActionNoChange when the coded size outgrew
	// MaxCodedSize but the driver handles that on its own.
	Absorbed bool

	// Recreate is set with ActionFullReconfigure when the decoder cannot
	// be reconfigured in place and has to be created again with NewMaxCodedSize.
	Recreate        bool
	NewMaxCodedSize types.Resolution
}

func (d Decision) String() string {
	return fmt.Sprintf("%s (%s)", d.Action, d.Reason)
}

// Decide is a pure function of its input.
func Decide(in Input) Decision {
	switch {
	case in.New.Codec != in.Old.Codec:
		return unsupported("codec changed from %s to %s", in.Old.Codec, in.New.Codec)
	case in.New.BitDepth != in.Old.BitDepth:
		return unsupported("bit depth changed from %d to %d", in.Old.BitDepth, in.New.BitDepth)
	case in.New.ChromaFormat != in.Old.ChromaFormat:
		return unsupported("chroma format changed from %s to %s", in.Old.ChromaFormat, in.New.ChromaFormat)
	}

	newCoded := in.New.CodedSize()
	if !in.MaxCodedSize.Covers(newCoded) {
		if in.OverrideChanged {
			return unsupported("coded size %s exceeds the maximum %s while an explicit reconfiguration is pending", newCoded, in.MaxCodedSize)
		}
		switch in.Policy {
		case PolicyAbsorb:
			return Decision{
				Action:   ActionNoChange,
				Reason:   fmt.Sprintf("coded size %s exceeds the maximum %s; left to the driver", newCoded, in.MaxCodedSize),
				Absorbed: true,
			}
		case PolicyRecreate:
			return Decision{
				Action:          ActionFullReconfigure,
				Reason:          fmt.Sprintf("coded size %s exceeds the maximum %s; recreating the decoder", newCoded, in.MaxCodedSize),
				Recreate:        true,
				NewMaxCodedSize: in.MaxCodedSize.Max(newCoded),
			}
		default:
			return unsupported("coded size %s exceeds the maximum %s", newCoded, in.MaxCodedSize)
		}
	}

	if in.OverrideChanged {
		return Decision{
			Action: ActionFullReconfigure,
			Reason: "crop/resize override changed",
		}
	}

	if in.New.MinNumDecodeSurfaces > in.NumDecodeSurfaces {
		return Decision{
			Action: ActionFullReconfigure,
			Reason: fmt.Sprintf("required decode surfaces grew from %d to %d", in.NumDecodeSurfaces, in.New.MinNumDecodeSurfaces),
		}
	}

	codedChanged := newCoded != in.Old.CodedSize()
	displayChanged := in.New.DisplayArea != in.Old.DisplayArea
	if codedChanged || displayChanged {
		return Decision{
			Action: ActionGeometryOnly,
			Reason: fmt.Sprintf("coded changed: %t, display area changed: %t", codedChanged, displayChanged),
		}
	}

	return Decision{
		Action: ActionNoChange,
		Reason: "nothing relevant changed",
	}
}

func unsupported(format string, args ...any) Decision {
	return Decision{
		Action: ActionUnsupported,
		Reason: fmt.Sprintf(format, args...),
	}
}
