//go:build linux

package encoder

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// One page, roughly 20ms of the encoded stream. The kernel default of
// 64KiB would sit more than a quarter second of audio between us and
// ffmpeg before either side noticed.
const targetPipeBufferBytes = 4096

// Shrink the kernel buffer of the given pipe end. Best-effort: some
// kernels or sandboxes refuse, which costs latency but nothing else.
//
// Goes through SyscallConn rather than Fd() so the file stays pollable
// and write deadlines keep working on it.
func shrinkPipeBuffer(pipe *os.File, logger *slog.Logger) {
	warn := func(err error) {
		logger.Warn("could not shrink encoder pipe buffer",
			"targetBytes", targetPipeBufferBytes,
			"err", err,
		)
	}

	raw, err := pipe.SyscallConn()
	if err != nil {
		warn(err)
		return
	}
	var fcntlErr error
	if err := raw.Control(func(fd uintptr) {
		_, fcntlErr = unix.FcntlInt(fd, unix.F_SETPIPE_SZ, targetPipeBufferBytes)
	}); err != nil {
		warn(err)
		return
	}
	if fcntlErr != nil {
		warn(fcntlErr)
	}
}
