package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcalister/ac3live/pkg/spsc"
)

func filledRing(t *testing.T, data []byte) *spsc.Ring[byte] {
	t.Helper()
	ring := spsc.NewRing[byte](1024)
	require.Equal(t, len(data), ring.TryWrite(data))
	return ring
}

func TestUnprimedQuantumIsSilence(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3, 4})
	out := []byte{9, 9, 9, 9, 9, 9, 9, 9}

	primed := fillPlaybackQuantum(ring, out, false)

	assert.False(t, primed, "half a quantum must not prime the sink")
	assert.Equal(t, make([]byte, 8), out)
	assert.Equal(t, 4, ring.Len(), "unprimed callbacks must not consume")
}

func TestPrimingTriggersOnFullQuantum(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	out := make([]byte, 8)

	primed := fillPlaybackQuantum(ring, out, false)

	assert.True(t, primed)
	// The priming callback itself still emits silence; audio starts on
	// the next one.
	assert.Equal(t, make([]byte, 8), out)
	assert.Equal(t, 8, ring.Len())
}

func TestPrimedQuantumDrainsRing(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	ring := filledRing(t, payload)
	out := make([]byte, 8)

	primed := fillPlaybackQuantum(ring, out, true)

	assert.True(t, primed)
	assert.Equal(t, payload, out)
	assert.Equal(t, 0, ring.Len())
}

func TestPrimedPartialQuantumPadsWithSilence(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3, 4})
	out := []byte{9, 9, 9, 9, 9, 9, 9, 9}

	primed := fillPlaybackQuantum(ring, out, true)

	assert.True(t, primed)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, out)
}

func TestPrimedQuantumRoundsDownToWholeFrames(t *testing.T) {
	// 6 bytes available: one whole frame plus a torn half.
	ring := filledRing(t, []byte{1, 2, 3, 4, 5, 6})
	out := make([]byte, 8)

	primed := fillPlaybackQuantum(ring, out, true)

	assert.True(t, primed)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, out)
	assert.Equal(t, 2, ring.Len(), "the torn tail stays buffered")
}

func TestStarvedPrimedQuantumUnprimes(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	out := []byte{9, 9, 9, 9}

	primed := fillPlaybackQuantum(ring, out, true)

	assert.False(t, primed, "an empty ring must drop the sink back to priming")
	assert.Equal(t, make([]byte, 4), out)
}

func TestSubFrameAvailabilityAlsoUnprimes(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3})
	out := make([]byte, 8)

	primed := fillPlaybackQuantum(ring, out, true)

	assert.False(t, primed)
	assert.Equal(t, make([]byte, 8), out)
	assert.Equal(t, 3, ring.Len())
}

func TestUnprimedSubQuantumResidueDoesNotBlockDrain(t *testing.T) {
	// A stop can leave a few whole frames behind, fewer than one device
	// quantum. An unprimed callback only ever emits silence over such a
	// residue, so the shutdown wait must not keep watching the ring
	// level: it would never move again.
	residue := make([]byte, 512)
	for i := range residue {
		residue[i] = byte(i)
	}
	ring := filledRing(t, residue)
	out := make([]byte, 1920)

	primed := false
	for iter := 0; iter < 1000; iter++ {
		primed = fillPlaybackQuantum(ring, out, primed)
		require.False(t, primed)

		assert.False(t, playbackDrained(ring, true),
			"a primed sink with queued frames is still draining")
		assert.True(t, playbackDrained(ring, primed),
			"an unprimed sink must be considered drained regardless of residue")
	}
	assert.Equal(t, len(residue), ring.Len(), "unprimed callbacks never consume")
}

func TestPrimedSinkDrainsBeforeBeingConsideredDone(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	out := make([]byte, 4)

	primed := true
	for primed && !playbackDrained(ring, primed) {
		primed = fillPlaybackQuantum(ring, out, primed)
	}
	assert.Less(t, ring.Len(), FrameBytes)
}

func TestZeroLengthQuantumKeepsState(t *testing.T) {
	ring := filledRing(t, []byte{1, 2, 3, 4})

	assert.True(t, fillPlaybackQuantum(ring, nil, true))
	assert.False(t, fillPlaybackQuantum(ring, nil, false))
	assert.Equal(t, 4, ring.Len())
}
