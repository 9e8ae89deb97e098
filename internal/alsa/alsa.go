// Package alsa isolates direct hardware playback behind a minimal
// capability interface, so the rest of the pipeline never touches
// platform audio plumbing directly.
package alsa

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// A hardware playback device accepting 2-channel 16-bit little-endian
// PCM frames at 48kHz.
//
// Error values crossing this boundary are opaque strings: callers
// classify them only as "recoverable via Recover" or fatal, never by
// inspecting platform error codes.
type Device interface {
	// Write a whole number of hardware frames. Blocks while the device
	// buffer is full.
	Write(frames []byte) error

	// The device's own recovery primitive, invoked after a failed
	// Write with the error that caused it. A non-nil return means the
	// device is unusable.
	Recover(cause error) error

	// Block until the device's internal buffer has played out.
	// Best-effort.
	Drain()

	Close() error
}

// Open the platform playback device by its ALSA name (e.g. "hw:0,2").
//
// The shipped implementation drives an external `aplay` writer process:
// its standard input is the device, a respawn is the recovery primitive,
// and closing stdin and waiting for exit is the drain. This keeps the
// capability surface honest without binding the build to a native audio
// library.
func Open(deviceName string, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	device := &aplayDevice{
		logger:     logger.With("component", "alsa device", "device", deviceName),
		deviceName: deviceName,
	}
	if err := device.spawn(); err != nil {
		return nil, err
	}
	return device, nil
}

// --------------------------------------------------------------------------------

type aplayDevice struct {
	logger     *slog.Logger
	deviceName string

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (d *aplayDevice) spawn() error {
	cmd := exec.Command("aplay",
		"-q",
		"-D", d.deviceName,
		"-t", "raw",
		"-f", "S16_LE",
		"-r", "48000",
		"-c", "2",
		"-",
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening hardware writer stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning hardware writer: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.logger.Info("hardware writer started", "pid", cmd.Process.Pid)
	return nil
}

func (d *aplayDevice) Write(frames []byte) error {
	if d.cmd == nil {
		return errors.New("hardware device is closed")
	}
	if _, err := d.stdin.Write(frames); err != nil {
		return fmt.Errorf("hardware write: %v", err)
	}
	return nil
}

// Reap the dead writer and spawn a fresh one against the same device.
func (d *aplayDevice) Recover(cause error) error {
	d.logger.Warn("recovering hardware writer", "cause", cause)
	d.reap()
	if err := d.spawn(); err != nil {
		return fmt.Errorf("hardware recovery: %v", err)
	}
	return nil
}

// Closing stdin lets the writer play out whatever it has buffered and
// exit; waiting for it is the drain.
func (d *aplayDevice) Drain() {
	if d.cmd == nil {
		return
	}
	d.logger.Debug("draining hardware writer")
	d.reap()
}

func (d *aplayDevice) Close() error {
	d.reap()
	return nil
}

func (d *aplayDevice) reap() {
	if d.cmd == nil {
		return
	}
	_ = d.stdin.Close()
	if err := d.cmd.Wait(); err != nil {
		d.logger.Debug("hardware writer exited abnormally", "err", err)
	}
	d.cmd = nil
	d.stdin = nil
}
