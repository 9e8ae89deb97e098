package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

const (
	inputChannels = 6
	sampleRateHz  = 48000

	// The spdif muxer emits 2-channel S16LE frames, 4 bytes each.
	outputFrameBytes = 4

	// Bounds on the stdout read chunk. Large reads make the
	// output->playback pressure bursty, tiny reads burn syscalls.
	minStdoutReadBuffer = 512
	maxStdoutReadBuffer = 1024

	// How long the subprocess gets to exit on its own during shutdown
	// before it is killed. Pipe reads cannot be interrupted by the
	// cancellation flag, so this deadline is what bounds shutdown.
	processExitDeadline = 500 * time.Millisecond

	ringBackoff = 250 * time.Microsecond
)

// Tuning knobs for the encoder subprocess and its feeder.
//
// The zero value is usable: zero or negative numeric fields are clamped
// to 1 before use and an empty FFmpegPath means "ffmpeg" from PATH.
type Config struct {
	// Passed through as ffmpeg's -thread_queue_size.
	ThreadQueueSize int

	// How many audio frames the feeder moves per stdin write.
	FeederChunkFrames int

	// Collect and periodically log per-stage latency statistics.
	ProfileLatency bool

	// Path of the encoder binary. Overridable so tests can substitute a
	// stub process.
	FFmpegPath string
}

func DefaultConfig() Config {
	return Config{
		ThreadQueueSize:   128,
		FeederChunkFrames: 128,
	}
}

// Run the encoder with default configuration. See RunWithConfig.
func Run(input *spsc.Ring[float32], output *spsc.Ring[byte], flag *cancel.Flag) error {
	return RunWithConfig(input, output, flag, DefaultConfig())
}

// Supervise one ffmpeg subprocess for the lifetime of the pipeline.
//
// A feeder goroutine drains the sample ring into the process stdin. The
// stdout reader deliberately owns the calling goroutine rather than a
// second spawned worker, so this function blocks until the flag is
// canceled (or the pipeline fails) and the subprocess has been reaped.
//
// The returned error is the first fatal condition observed while the
// pipeline was still meant to be running, preferring a reader-side error
// over a forced kill over a bad exit status. After an external
// cancellation every subprocess hiccup is expected shutdown noise and
// suppressed; a clean stop returns nil.
func RunWithConfig(input *spsc.Ring[float32], output *spsc.Ring[byte], flag *cancel.Flag, config Config) error {
	logger := slog.Default().With("component", "encoder")
	logger.Info("starting encoder subprocess")

	threadQueueSize := max(config.ThreadQueueSize, 1)
	feederChunkFrames := max(config.FeederChunkFrames, 1)
	ffmpegPath := config.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	// Input: raw interleaved F32LE 5.1 on stdin.
	// Output: AC-3 at its 640k ceiling, wrapped by -f spdif into the
	// IEC 61937 framing the hardware expects, on stdout.
	// The remaining flags strip every internal buffer ffmpeg would
	// otherwise put between the two.
	cmd := exec.Command(ffmpegPath,
		"-y",
		"-f", "f32le",
		"-ar", "48000",
		"-ac", "6",
		"-i", "pipe:0",
		"-c:a", "ac3",
		"-b:a", "640k",
		"-f", "spdif",
		"-fflags", "+nobuffer",
		"-flags", "+low_delay",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-flush_packets", "1",
		"-avioflags", "direct",
		"-thread_queue_size", fmt.Sprint(threadQueueSize),
		"pipe:1",
	)

	// Plumb explicit os.Pipe pairs instead of StdinPipe/StdoutPipe so the
	// kernel pipe buffers are real fds we can shrink below.
	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating encoder stdin pipe: %w", err)
	}
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		return fmt.Errorf("creating encoder stdout pipe: %w", err)
	}

	cmd.Stdin = stdinRead
	cmd.Stdout = stdoutWrite
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		stdoutRead.Close()
		stdoutWrite.Close()
		return fmt.Errorf("spawning encoder process: %w", err)
	}

	// The child owns its ends now.
	stdinRead.Close()
	stdoutWrite.Close()
	defer stdoutRead.Close()

	// Cap the latency the kernel itself can add between us and ffmpeg.
	shrinkPipeBuffer(stdinWrite, logger)
	shrinkPipeBuffer(stdoutRead, logger)

	outputCapacity := output.Cap()
	readChunkSize := outputCapacity / 8
	readChunkSize = min(max(readChunkSize, minStdoutReadBuffer), maxStdoutReadBuffer)
	readChunkSize -= readChunkSize % outputFrameBytes
	if readChunkSize == 0 {
		readChunkSize = outputFrameBytes
	}
	logger.Info("encoder stdout read chunk sized",
		"chunkBytes", readChunkSize,
		"outputRingCapacity", outputCapacity,
	)

	var prof *latencyProfiler
	var profStop chan struct{}
	if config.ProfileLatency {
		prof = newLatencyProfiler()
		profStop = make(chan struct{})
		go prof.runReporter(profStop, logger)
	}

	// Internal stop for the feeder: a reader-side failure must bring the
	// feeder down too, even though the external flag was never canceled,
	// or the join below would hang.
	feederStop := cancel.NewFlag()

	feederDone := make(chan error, 1)
	go func() {
		err := runFeeder(input, stdinWrite, flag, feederStop, feederChunkFrames, prof)
		// The feeder owns the stdin end: dropping it on the way out
		// signals EOF, letting the process flush its last packets and
		// exit so the reader unblocks.
		stdinWrite.Close()
		feederDone <- err
	}()

	readerErr := runReader(output, stdoutRead, flag, readChunkSize, prof)
	feederStop.Cancel()
	// A feeder blocked mid-write on a full pipe cannot observe any flag.
	// Expiring the write deadline bounds that block so the join below
	// cannot hang.
	_ = stdinWrite.SetWriteDeadline(time.Now())

	logger.Info("stopping encoder subprocess")

	// Join the feeder first. Its error only matters if the reader saw
	// nothing worse and the pipeline was still meant to be running.
	if err := <-feederDone; err != nil && readerErr == nil {
		readerErr = err
	}

	forcedKill := false
	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var exitErr error
	select {
	case exitErr = <-waitDone:
	case <-time.After(processExitDeadline):
		forcedKill = true
		_ = cmd.Process.Kill()
		// Kill guarantees the wait completes, so this cannot hang.
		exitErr = <-waitDone
	}

	if prof != nil {
		close(profStop)
	}

	if flag.Canceled() {
		// Externally requested shutdown: the process was torn down on
		// purpose, so none of the above counts as failure.
		return nil
	}

	if readerErr != nil {
		return readerErr
	}
	if forcedKill {
		return errors.New("encoder process did not terminate in time and was killed")
	}
	if exitErr != nil {
		return fmt.Errorf("encoder process exited abnormally: %w", exitErr)
	}
	return nil
}

// --------------------------------------------------------------------------------
// Feeder: sample ring -> encoder stdin

func runFeeder(input *spsc.Ring[float32], stdin *os.File, flag, stop *cancel.Flag, chunkFrames int, prof *latencyProfiler) error {
	chunk := make([]float32, chunkFrames*inputChannels)
	byteBuffer := make([]byte, 0, len(chunk)*4)

	for !flag.Canceled() && !stop.Canceled() {
		available := input.Len()
		if available == 0 {
			time.Sleep(ringBackoff)
			continue
		}

		queueDelayMs := float64(available) / (inputChannels * sampleRateHz) * 1000.0
		n := input.TryRead(chunk[:min(available, len(chunk))])
		if n == 0 {
			time.Sleep(ringBackoff)
			continue
		}

		batchStarted := time.Now()
		byteBuffer = byteBuffer[:0]
		for _, sample := range chunk[:n] {
			byteBuffer = binary.LittleEndian.AppendUint32(byteBuffer, math.Float32bits(sample))
		}

		// os.File writes are straight syscalls onto the pipe, so there
		// is no userspace buffer left to flush between us and ffmpeg.
		ioStarted := time.Now()
		if _, err := stdin.Write(byteBuffer); err != nil {
			if flag.Canceled() {
				// Expected shutdown noise, the pipe is being torn down.
				return nil
			}
			return fmt.Errorf("writing to encoder stdin: %w", err)
		}

		if prof != nil {
			prof.recordFeeder(
				msSince(batchStarted),
				queueDelayMs,
				msSince(ioStarted),
			)
		}
	}
	return nil
}

// --------------------------------------------------------------------------------
// Reader: encoder stdout -> byte ring

func runReader(output *spsc.Ring[byte], stdout *os.File, flag *cancel.Flag, chunkSize int, prof *latencyProfiler) error {
	readBuffer := make([]byte, chunkSize)

	for {
		readStarted := time.Now()
		n, err := stdout.Read(readBuffer)

		if n > 0 {
			queueDelayMs := float64(output.Len()) / (outputFrameBytes * sampleRateHz) * 1000.0
			backpressureMs := 0.0

			written := 0
			abandoned := false
			for written < n {
				written += output.TryWrite(readBuffer[written:n])
				if written == n {
					break
				}
				// Ring full: this is the pipeline's primary backpressure
				// point. Once shutdown is requested the consumer side may
				// never drain again, so abandon instead of spinning.
				if flag.Canceled() {
					abandoned = true
					break
				}
				time.Sleep(100 * time.Microsecond)
				backpressureMs += 0.1
			}

			if prof != nil {
				prof.recordReader(msSince(readStarted), queueDelayMs, backpressureMs)
			}
			if abandoned {
				return nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if flag.Canceled() {
					return nil
				}
				return errors.New("encoder stdout closed unexpectedly")
			}
			if flag.Canceled() {
				return nil
			}
			return fmt.Errorf("reading encoder stdout: %w", err)
		}
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
