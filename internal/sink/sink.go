package sink

import (
	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

// The encoded stream is carried as 2-channel S16LE, so one frame on the
// wire is 4 bytes. Every sink must only ever emit whole frames.
const FrameBytes = 4

// One of the three mutually exclusive output strategies, selected at
// startup and fixed for the run.
//
// Run consumes the encoded byte ring until shutdown is complete and only
// then returns. All sinks handle "cancellation requested but ring
// non-empty" by continuing to drain, so already-encoded audio is not
// silently discarded on a normal stop.
type Sink interface {
	Run(ring *spsc.Ring[byte], flag *cancel.Flag) error
}
