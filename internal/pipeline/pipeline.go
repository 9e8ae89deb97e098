// Package pipeline wires the capture, encoder and output stages
// together and owns their shared transports and shutdown.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hmcalister/ac3live/internal/capture"
	"github.com/hmcalister/ac3live/internal/encoder"
	"github.com/hmcalister/ac3live/internal/normalizer"
	"github.com/hmcalister/ac3live/internal/sink"
	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

// Roughly 100ms of audio at 48kHz.
const defaultBufferFrames = 4800

type Options struct {
	// Sample ring capacity in audio frames. Defaults to ~100ms.
	BufferFrames int

	// Encoded byte ring capacity. Defaults to four times the sample
	// ring's element count, ample for the encoded stream.
	ByteRingBytes int

	Encoder encoder.Config

	// The output strategy for this run. Required.
	Sink sink.Sink

	// Optional: a capture source to drive the normalizer. When nil the
	// caller is expected to push deliveries through Normalizer itself
	// (the live session layer does exactly that).
	Source capture.Source
}

// A fully wired encoding pipeline.
//
// The two rings are strictly single-producer single-consumer: the
// normalizer writes and the encoder feeder reads the sample ring, the
// encoder reader writes and the sink reads the byte ring. The
// cancellation flag is the only value shared wider than that.
type Pipeline struct {
	logger *slog.Logger
	opts   Options

	flag       *cancel.Flag
	sampleRing *spsc.Ring[float32]
	byteRing   *spsc.Ring[byte]
	norm       *normalizer.Normalizer
}

func New(opts Options) (*Pipeline, error) {
	if opts.Sink == nil {
		return nil, errors.New("pipeline requires an output sink")
	}

	bufferFrames := opts.BufferFrames
	if bufferFrames <= 0 {
		bufferFrames = defaultBufferFrames
	}
	sampleCapacity := bufferFrames * normalizer.Channels
	byteCapacity := opts.ByteRingBytes
	if byteCapacity <= 0 {
		byteCapacity = sampleCapacity * 4
	}

	logger := slog.Default().With("component", "pipeline")
	sampleRing := spsc.NewRing[float32](sampleCapacity)
	byteRing := spsc.NewRing[byte](byteCapacity)

	return &Pipeline{
		logger:     logger,
		opts:       opts,
		flag:       cancel.NewFlag(),
		sampleRing: sampleRing,
		byteRing:   byteRing,
		norm:       normalizer.New(sampleRing, logger),
	}, nil
}

// The normalizer owning the sample ring's writer end. External session
// layers feed their capture callbacks through this.
func (p *Pipeline) Normalizer() *normalizer.Normalizer {
	return p.norm
}

// Request a clean stop. Safe from any goroutine, including signal
// handlers; Run then unwinds and returns.
func (p *Pipeline) Shutdown() {
	p.logger.Info("pipeline shutdown requested")
	p.flag.Cancel()
}

// Run the pipeline until Shutdown is called or a stage fails.
//
// The sink runs on the calling goroutine and the encoder supervisor on
// its own. The returned error reflects whichever of the output path or
// the encoder path failed first, joined into one message if both failed
// while unwinding; a clean cancellation returns nil even if in-flight
// data was discarded at the instant of shutdown.
func (p *Pipeline) Run() error {
	encoderDone := make(chan error, 1)
	go func() {
		err := encoder.RunWithConfig(p.sampleRing, p.byteRing, p.flag, p.opts.Encoder)
		if err != nil {
			// Encoder path failed: unwind the output path too.
			p.flag.Cancel()
		}
		encoderDone <- err
	}()

	if p.opts.Source != nil {
		if err := p.opts.Source.Start(func(buf normalizer.Buffer) {
			p.norm.Deliver(buf)
		}); err != nil {
			p.flag.Cancel()
			<-encoderDone
			return fmt.Errorf("capture path: %w", err)
		}
		defer p.opts.Source.Close()
	}

	sinkErr := p.opts.Sink.Run(p.byteRing, p.flag)
	// Whether this was a clean stop or a sink failure, the encoder must
	// come down before we can report anything.
	p.flag.Cancel()
	encoderErr := <-encoderDone

	if dropped := p.norm.DroppedFrames(); dropped > 0 {
		p.logger.Info("capture frames dropped due to full sample ring", "frames", dropped)
	}

	switch {
	case sinkErr != nil && encoderErr != nil:
		return errors.Join(
			fmt.Errorf("output path: %w", sinkErr),
			fmt.Errorf("encoder path: %w", encoderErr),
		)
	case sinkErr != nil:
		return fmt.Errorf("output path: %w", sinkErr)
	case encoderErr != nil:
		return fmt.Errorf("encoder path: %w", encoderErr)
	}
	return nil
}
