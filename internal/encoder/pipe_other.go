//go:build !linux

package encoder

import (
	"log/slog"
	"os"
)

// Pipe buffer sizing is a Linux fcntl; elsewhere the platform default
// stands and worst-case latency is correspondingly larger.
func shrinkPipeBuffer(_ *os.File, logger *slog.Logger) {
	logger.Debug("pipe buffer shrinking not supported on this platform")
}
