package sink

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

const (
	playbackChannels   = 2
	playbackSampleRate = 48000

	playbackPollInterval = 20 * time.Millisecond
)

// Live playback through a system audio device.
//
// Pull-based: the device's data callback requests a quantum of bytes at
// its own pace and we fill it from the byte ring, applying a
// jitter-buffer priming policy so output does not start until a full
// quantum is buffered. The encoded stream is bit-exact S16LE as far as
// the device is concerned, which is exactly what passthrough-capable
// hardware wants.
type Playback struct {
	logger *slog.Logger
	uuid   uuid.UUID
	target Target
}

func NewPlayback(target Target) *Playback {
	uuid := uuid.New()
	return &Playback{
		logger: slog.Default().With(
			"component", "playback sink",
			"uuid", uuid,
		),
		uuid:   uuid,
		target: target,
	}
}

func (p *Playback) Run(ring *spsc.Ring[byte], flag *cancel.Flag) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing playback context: %w", err)
	}
	defer ctx.Uninit() //nolint:errcheck

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = playbackChannels
	deviceConfig.SampleRate = playbackSampleRate
	deviceConfig.Alsa.NoMMap = 1

	if !p.target.AutoRoute() {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return fmt.Errorf("listing playback devices: %w", err)
		}
		found := false
		for _, info := range infos {
			// Numeric targets resolve to a name as well, and that is
			// what gets matched: device ids here are opaque handles,
			// not the session-layer numeric ids a user would type.
			if strings.Contains(info.Name(), p.target.Name) {
				deviceConfig.Playback.DeviceID = info.ID.Pointer()
				p.logger.Info("matched playback target", "device", info.Name())
				found = true
				break
			}
		}
		if !found {
			p.logger.Warn("playback target not found, using default device",
				"target", p.target.Name,
			)
		}
	}

	// Written by the device callback thread, read by the drain wait
	// below, hence atomic.
	var primed atomic.Bool
	onSendFrames := func(outputSamples, _ []byte, _ uint32) {
		primed.Store(fillPlaybackQuantum(ring, outputSamples, primed.Load()))
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}
	p.logger.Info("playback device started")

	for !flag.Canceled() {
		time.Sleep(playbackPollInterval)
	}

	// Keep playing until starved so a normal stop does not cut off
	// audio that was already encoded.
	for !playbackDrained(ring, primed.Load()) {
		time.Sleep(playbackPollInterval)
	}

	if err := device.Stop(); err != nil {
		p.logger.Warn("error stopping playback device", "err", err)
	}
	p.logger.Info("playback device stopped")
	return nil
}

// Whether the shutdown drain wait can stop.
//
// A primed sink is still consuming, so waiting for it to starve the
// ring is productive. An unprimed sink only emits silence: a residue
// smaller than one quantum will never prime it again once the encoder
// has stopped, so waiting on the ring level would hang shutdown.
func playbackDrained(ring *spsc.Ring[byte], primed bool) bool {
	if !primed {
		return true
	}
	return ring.Len() < FrameBytes
}

// Fill one playback quantum from the ring, returning the new priming
// state.
//
// Unprimed callbacks emit pure silence while waiting for a full
// quantum's worth of buffered bytes. Primed callbacks emit
// min(available, quantum) rounded down to a whole frame; if that rounds
// to zero the sink un-primes and falls back to silence rather than
// emitting a partial or stale frame. Either way the full quantum is
// always written so the playback clock stays stable.
func fillPlaybackQuantum(ring *spsc.Ring[byte], out []byte, primed bool) bool {
	quantum := len(out)
	if quantum == 0 {
		return primed
	}

	if !primed {
		zeroFill(out)
		return ring.Len() >= quantum
	}

	available := min(ring.Len(), quantum)
	available -= available % FrameBytes
	if available == 0 {
		zeroFill(out)
		return false
	}

	n := ring.TryRead(out[:available])
	zeroFill(out[n:])
	return true
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
