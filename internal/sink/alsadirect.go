package sink

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hmcalister/ac3live/internal/alsa"
	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

const (
	// The hardware device takes 2-channel S16LE PCM, 4 bytes per frame.
	// Identical in size to the stream framing, but a distinct contract:
	// this is what the device write format demands, not what the encoder
	// happens to produce.
	hardwareFrameBytes = 4

	directReadBuffer   = 2048
	directPollInterval = 500 * time.Microsecond
)

// Push-based output straight to an ALSA hardware device, bypassing any
// sound server. Used together with the alsactl guard that flips the
// device's IEC958 output into non-audio (passthrough) mode.
//
// Bytes are staged until a whole hardware frame boundary is reached
// before a device write is issued; the device never sees a torn frame.
type ALSADirect struct {
	logger *slog.Logger
	device alsa.Device
}

func NewALSADirect(device alsa.Device) *ALSADirect {
	return &ALSADirect{
		logger: slog.Default().With("component", "alsa direct sink"),
		device: device,
	}
}

func (s *ALSADirect) Run(ring *spsc.Ring[byte], flag *cancel.Flag) error {
	staging := make([]byte, 0, directReadBuffer+hardwareFrameBytes)
	buffer := make([]byte, directReadBuffer)

	for {
		n := ring.TryRead(buffer)
		if n == 0 {
			if flag.Canceled() {
				if len(staging) > 0 {
					// Never write a torn frame, not even at shutdown.
					s.logger.Debug("discarding trailing partial hardware frame",
						"bytes", len(staging),
					)
				}
				s.device.Drain()
				return nil
			}
			time.Sleep(directPollInterval)
			continue
		}

		staging = append(staging, buffer[:n]...)
		whole := len(staging) - len(staging)%hardwareFrameBytes
		if whole == 0 {
			continue
		}

		if err := s.writeRecovering(staging[:whole]); err != nil {
			if flag.Canceled() {
				s.device.Drain()
				return nil
			}
			return err
		}
		staging = staging[:copy(staging, staging[whole:])]
	}
}

// Write whole frames to the device, going through the device's own
// recovery primitive once on failure. A write that still fails after
// recovery, or a failed recovery, is fatal to the output path.
func (s *ALSADirect) writeRecovering(frames []byte) error {
	err := s.device.Write(frames)
	if err == nil {
		return nil
	}

	s.logger.Warn("hardware write failed, attempting device recovery", "err", err)
	if recoverErr := s.device.Recover(err); recoverErr != nil {
		return fmt.Errorf("hardware device recovery failed: %w", recoverErr)
	}
	if err := s.device.Write(frames); err != nil {
		return fmt.Errorf("hardware write failed after recovery: %w", err)
	}
	return nil
}
