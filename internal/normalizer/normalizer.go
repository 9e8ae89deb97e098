package normalizer

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/hmcalister/ac3live/pkg/spsc"
)

const (
	// The pipeline's canonical capture format: 5.1 surround,
	// interleaved 32-bit little-endian floats at 48kHz.
	Channels   = 6
	SampleRate = 48000

	floatBytes = 4
	s16Bytes   = 2
)

// A single capture delivery in whatever layout the session layer handed us.
//
// When two or more Planes are present the buffer is planar: one plane of
// little-endian float32 samples per channel. Otherwise Data holds a single
// interleaved plane described by Offset, Size and Stride (bytes per frame).
//
// None of the fields are trusted. Every offset, size and stride is
// validated before any numeric interpretation, so a confused or hostile
// session layer can at worst produce silence.
type Buffer struct {
	Planes [][]byte

	Data   []byte
	Offset int
	Size   int
	Stride int
}

// --------------------------------------------------------------------------------
// Parsing

// Interpret data[offset : offset+size] as little-endian float32 samples.
//
// The offset must be 4-byte aligned and the size a multiple of 4, both in
// bounds. Reports ok=false for anything else, never panicking.
func ParseFloatPlane(data []byte, offset, size int) ([]float32, bool) {
	if offset < 0 || size < 0 || offset%floatBytes != 0 || size%floatBytes != 0 {
		return nil, false
	}
	if offset+size < offset || offset+size > len(data) {
		return nil, false
	}

	plane := data[offset : offset+size]
	samples := make([]float32, size/floatBytes)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(plane[i*floatBytes:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, true
}

// Interpret data[offset : offset+size] as interleaved float32 frames of
// the given channel count, truncating any trailing partial frame.
func ParseInterleavedFloat(data []byte, offset, size, channels int) ([]float32, bool) {
	if channels < 1 || channels > Channels {
		return nil, false
	}
	samples, ok := ParseFloatPlane(data, offset, size)
	if !ok {
		return nil, false
	}
	return samples[:len(samples)-len(samples)%channels], true
}

// Infer a channel layout from the frame stride and parse the plane into
// canonical 6-channel interleaved floats, zero-padding missing channels.
//
// The ladder, in order:
//  1. stride divisible by 4 implies stride/4 float32 channels,
//  2. otherwise stride divisible by 2 implies stride/2 signed 16-bit PCM
//     channels, each sample scaled by 1/32768 (the divisor exceeds the
//     negative extreme's magnitude, so no clamping is needed),
//  3. otherwise the whole plane is treated as flat 6-channel float32.
//
// Channel counts outside [1, 6], a size that is not a whole number of
// strides, or a plane shorter than one stride all disqualify a rung.
func ParseInterleavedStride(data []byte, offset, size, stride int) ([]float32, bool) {
	if stride > 0 && size >= stride {
		if stride%floatBytes == 0 {
			channels := stride / floatBytes
			if channels >= 1 && channels <= Channels && size%stride == 0 {
				return parseStridedFloat(data, offset, size, channels)
			}
		} else if stride%s16Bytes == 0 {
			channels := stride / s16Bytes
			if channels >= 1 && channels <= Channels && size%stride == 0 {
				return parseStridedS16(data, offset, size, channels)
			}
		}
	}

	// No usable stride. Assume the plane is already in canonical layout.
	return ParseInterleavedFloat(data, offset, size, Channels)
}

func parseStridedFloat(data []byte, offset, size, channels int) ([]float32, bool) {
	samples, ok := ParseFloatPlane(data, offset, size)
	if !ok {
		return nil, false
	}
	return padToCanonical(samples, channels), true
}

func parseStridedS16(data []byte, offset, size, channels int) ([]float32, bool) {
	if offset < 0 || size < 0 || offset%s16Bytes != 0 {
		return nil, false
	}
	if offset+size < offset || offset+size > len(data) {
		return nil, false
	}

	plane := data[offset : offset+size]
	samples := make([]float32, size/s16Bytes)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(plane[i*s16Bytes:]))
		samples[i] = float32(v) / 32768.0
	}
	return padToCanonical(samples, channels), true
}

// Re-interleave samples of the given channel count into 6-channel frames,
// filling the channels the input does not carry with silence.
func padToCanonical(samples []float32, channels int) []float32 {
	if channels == Channels {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames*Channels)
	for f := 0; f < frames; f++ {
		copy(out[f*Channels:], samples[f*channels:(f+1)*channels])
	}
	return out
}

// Parse a planar buffer: one float32 plane per channel. The frame count
// is the minimum sample count across planes; channels beyond the sixth
// are ignored and channels absent (or shorter) are silent.
func parsePlanar(planes [][]byte) ([]float32, bool) {
	perChannel := make([][]float32, 0, Channels)
	frames := -1
	for i, plane := range planes {
		if i == Channels {
			break
		}
		samples, ok := ParseFloatPlane(plane, 0, len(plane))
		if !ok {
			return nil, false
		}
		perChannel = append(perChannel, samples)
		if frames < 0 || len(samples) < frames {
			frames = len(samples)
		}
	}
	if frames <= 0 {
		return nil, false
	}

	out := make([]float32, frames*Channels)
	for ch, samples := range perChannel {
		for f := 0; f < frames; f++ {
			out[f*Channels+ch] = samples[f]
		}
	}
	return out, true
}

// --------------------------------------------------------------------------------
// Normalizer

// Converts capture deliveries into canonical interleaved frames on the
// sample ring. Holds the single writer end of the ring, so it must only
// be driven from one capture thread at a time.
type Normalizer struct {
	logger *slog.Logger
	ring   *spsc.Ring[float32]

	droppedFrames atomic.Uint64
}

func New(ring *spsc.Ring[float32], logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		logger: logger,
		ring:   ring,
	}
}

// Parse one capture delivery and queue the resulting frames.
//
// Only whole 6-sample frames are ever written: if the ring's free space
// is not frame-aligned it is truncated down and the remainder dropped,
// surfaced through DroppedFrames rather than as an error. A delivery
// that cannot be parsed queues nothing; previously queued audio is
// unaffected and the caller simply waits for the next delivery.
//
// Returns the number of frames queued.
func (n *Normalizer) Deliver(buf Buffer) int {
	var samples []float32
	var ok bool
	if len(buf.Planes) >= 2 {
		samples, ok = parsePlanar(buf.Planes)
	} else {
		data := buf.Data
		if len(buf.Planes) == 1 {
			data = buf.Planes[0]
		}
		samples, ok = ParseInterleavedStride(data, buf.Offset, buf.Size, buf.Stride)
	}
	if !ok || len(samples) == 0 {
		return 0
	}

	wantFrames := len(samples) / Channels
	freeFrames := n.ring.Free() / Channels
	writeFrames := min(wantFrames, freeFrames)

	if writeFrames > 0 {
		// Free was checked from the writer side, so this cannot fall short.
		n.ring.TryWrite(samples[:writeFrames*Channels])
	}
	if dropped := wantFrames - writeFrames; dropped > 0 {
		n.droppedFrames.Add(uint64(dropped))
	}
	return writeFrames
}

// The total number of whole frames dropped because the sample ring had
// no room for them. Diagnostic only.
func (n *Normalizer) DroppedFrames() uint64 {
	return n.droppedFrames.Load()
}
