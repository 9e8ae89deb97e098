// Package capture is the boundary to the audio-session layer that
// delivers raw capture buffers into the pipeline.
//
// The real session layer (virtual sink registration, format negotiation,
// endpoint discovery) is an external collaborator; the pipeline only
// depends on this interface.
package capture

import (
	"github.com/hmcalister/ac3live/internal/normalizer"
)

// A producer of raw capture buffers.
//
// Start begins delivery and returns immediately; deliver is then invoked
// from the source's own thread for every capture buffer until Close.
// The buffers are raw and untrusted; the normalizer validates them.
type Source interface {
	Start(deliver func(normalizer.Buffer)) error

	// Stop delivering and release the source. After Close returns no
	// further deliver calls are made.
	Close()
}
