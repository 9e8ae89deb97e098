package capture

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/hmcalister/ac3live/internal/normalizer"
)

const s16SampleBytes = 2

// A capture source that replays a .WAV file in real time, delivering
// interleaved S16LE buffers with the stride and size the file's channel
// layout implies.
//
// Mostly useful for demos and end-to-end testing: the deliveries travel
// the same untrusted-buffer path a live session would use, so the whole
// normalizer ladder is exercised without any audio session running.
type FileSource struct {
	logger *slog.Logger
	uuid   uuid.UUID

	decoder    *wav.Decoder
	fileHandle *os.File

	deliveryInterval  time.Duration
	framesPerDelivery int

	shutdownOnce sync.Once
	done         chan struct{}
}

// Open a .WAV file as a capture source. Each delivery carries
// deliveryInterval's worth of frames at the file's own sample rate.
func NewFileSource(audioFilePath string, deliveryInterval time.Duration) (*FileSource, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"component", "file capture source",
		"uuid", uuid,
	)

	f, err := os.Open(audioFilePath)
	if err != nil {
		logger.Error("could not open audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		logger.Error("could not decode audio file",
			"audioFile", audioFilePath,
			"err", decoder.Err(),
		)
		f.Close()
		return nil, errors.New("invalid wav file")
	}

	framesPerDelivery := int(float64(decoder.SampleRate) *
		float64(deliveryInterval) / float64(time.Second))
	if framesPerDelivery <= 0 {
		f.Close()
		return nil, errors.New("non-positive frames per delivery")
	}

	logger.Debug("loaded audio file",
		"audioFile", audioFilePath,
		"sampleRate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"framesPerDelivery", framesPerDelivery,
	)

	return &FileSource{
		logger:            logger,
		uuid:              uuid,
		decoder:           decoder,
		fileHandle:        f,
		deliveryInterval:  deliveryInterval,
		framesPerDelivery: framesPerDelivery,
		done:              make(chan struct{}),
	}, nil
}

func (s *FileSource) Start(deliver func(normalizer.Buffer)) error {
	buf, err := s.decoder.FullPCMBuffer()
	if err != nil {
		s.logger.Error("could not read PCM data from audio file", "err", err)
		return err
	}

	channels := int(s.decoder.NumChans)
	stride := channels * s16SampleBytes
	samplesPerDelivery := s.framesPerDelivery * channels

	go func() {
		ticker := time.NewTicker(s.deliveryInterval)
		defer ticker.Stop()

		for start := 0; start < len(buf.Data); start += samplesPerDelivery {
			end := min(start+samplesPerDelivery, len(buf.Data))
			data := interleavedS16(buf, start, end)

			select {
			case <-ticker.C:
				deliver(normalizer.Buffer{
					Data:   data,
					Offset: 0,
					Size:   len(data),
					Stride: stride,
				})
			case <-s.done:
				return
			}
		}
		s.logger.Debug("finished replaying file")
	}()
	return nil
}

// Serialize a slice of the decoded PCM buffer into the interleaved
// S16LE byte layout a live session delivery would carry.
func interleavedS16(buf *goaudio.IntBuffer, start, end int) []byte {
	data := make([]byte, 0, (end-start)*s16SampleBytes)
	for _, sample := range buf.Data[start:end] {
		data = binary.LittleEndian.AppendUint16(data, uint16(int16(sample)))
	}
	return data
}

func (s *FileSource) Close() {
	s.shutdownOnce.Do(func() {
		close(s.done)
		s.fileHandle.Close()
	})
}
