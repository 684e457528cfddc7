package hwdecoder

import (
	"go.uber.org/atomic"

	"github.com/xaionaro-go/hwdecoder/pool"
)

type statistics struct {
	PicturesDecoded   atomic.Uint64
	PicturesDisplayed atomic.Uint64
	PicturesCorrupt   atomic.Uint64
	PictureErrors     atomic.Uint64
	PicturesNotReady  atomic.Uint64
	Reconfigurations  atomic.Uint64
}

type Statistics struct {
	PicturesDecoded   uint64
	PicturesDisplayed uint64

	// PicturesCorrupt counts pictures the decoder reported as corrupt; they
	// are delivered anyway.
	PicturesCorrupt uint64

	// PictureErrors counts pictures which could not be delivered.
	PictureErrors uint64

	// PicturesNotReady is the part of PictureErrors the decoder had not
	// output by the time the picture was due for display.
	PicturesNotReady uint64

	Reconfigurations uint64

	Pool pool.Stats
}

func (s *Session) Stats() Statistics {
	return Statistics{
		PicturesDecoded:   s.stats.PicturesDecoded.Load(),
		PicturesDisplayed: s.stats.PicturesDisplayed.Load(),
		PicturesCorrupt:   s.stats.PicturesCorrupt.Load(),
		PictureErrors:     s.stats.PictureErrors.Load(),
		PicturesNotReady:  s.stats.PicturesNotReady.Load(),
		Reconfigurations:  s.stats.Reconfigurations.Load(),
		Pool:              s.pool.Stats(),
	}
}
