package sink

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

const (
	streamReadBuffer   = 4096
	streamPollInterval = 500 * time.Microsecond
)

// Implemented by writers that buffer, e.g. a bufio.Writer. Stream
// flushes after every write so the byte stream leaves the process with
// no added latency; writers without a Flush (plain files, pipes) are
// taken to be unbuffered already.
type Flusher interface {
	Flush() error
}

// Raw emission of the encoded byte stream onto an io.Writer, typically
// standard output for piping into some other tool.
type Stream struct {
	logger *slog.Logger
	writer io.Writer
}

func NewStream(writer io.Writer) *Stream {
	return &Stream{
		logger: slog.Default().With("component", "stream sink"),
		writer: writer,
	}
}

func (s *Stream) Run(ring *spsc.Ring[byte], flag *cancel.Flag) error {
	flusher, _ := s.writer.(Flusher)
	buffer := make([]byte, streamReadBuffer)

	for {
		n := ring.TryRead(buffer)
		if n == 0 {
			// Only exit once cancellation is requested AND the ring has
			// been drained, so no encoded audio is discarded on a stop.
			if flag.Canceled() {
				s.logger.Info("stream sink drained")
				return nil
			}
			time.Sleep(streamPollInterval)
			continue
		}

		if _, err := s.writer.Write(buffer[:n]); err != nil {
			if flag.Canceled() {
				return nil
			}
			return fmt.Errorf("writing encoded stream: %w", err)
		}
		if flusher != nil {
			if err := flusher.Flush(); err != nil {
				if flag.Canceled() {
					return nil
				}
				return fmt.Errorf("flushing encoded stream: %w", err)
			}
		}
	}
}
