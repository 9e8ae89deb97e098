package sink

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcalister/ac3live/pkg/cancel"
	"github.com/hmcalister/ac3live/pkg/spsc"
)

// Counts flushes and can be told to start failing.
type flushRecorder struct {
	bytes.Buffer
	flushes  int
	writeErr error
	flushErr error
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.Buffer.Write(p)
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return f.flushErr
}

func runStream(ring *spsc.Ring[byte], flag *cancel.Flag, stream *Stream) chan error {
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ring, flag)
	}()
	return done
}

func waitForStream(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("stream sink did not stop in time")
		return nil
	}
}

func TestStreamDrainsRingBeforeStopping(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	flag := cancel.NewFlag()
	payload := []byte("encoded audio bytes, allegedly")
	require.Equal(t, len(payload), ring.TryWrite(payload))

	var out bytes.Buffer
	done := runStream(ring, flag, NewStream(&out))

	// Cancellation with bytes still queued: the sink must emit them all
	// before returning.
	flag.Cancel()
	require.NoError(t, waitForStream(t, done))
	assert.Equal(t, payload, out.Bytes())
	assert.Equal(t, 0, ring.Len())
}

func TestStreamForwardsWhileRunning(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	flag := cancel.NewFlag()
	recorder := &flushRecorder{}
	done := runStream(ring, flag, NewStream(recorder))

	first := []byte{0x72, 0xF8, 0x1F, 0x4E}
	require.Equal(t, len(first), ring.TryWrite(first))
	assert.Eventually(t, func() bool {
		return ring.Len() == 0
	}, time.Second, time.Millisecond)

	flag.Cancel()
	require.NoError(t, waitForStream(t, done))
	assert.Equal(t, first, recorder.Bytes())
	assert.GreaterOrEqual(t, recorder.flushes, 1, "buffered writers must be flushed per write")
}

func TestStreamWriteErrorIsFatal(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	flag := cancel.NewFlag()
	recorder := &flushRecorder{writeErr: errors.New("downstream gone")}
	require.Equal(t, 4, ring.TryWrite([]byte{1, 2, 3, 4}))

	err := waitForStream(t, runStream(ring, flag, NewStream(recorder)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing encoded stream")
}

func TestStreamFlushErrorIsFatal(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	flag := cancel.NewFlag()
	recorder := &flushRecorder{flushErr: errors.New("flush refused")}
	require.Equal(t, 4, ring.TryWrite([]byte{1, 2, 3, 4}))

	err := waitForStream(t, runStream(ring, flag, NewStream(recorder)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flushing encoded stream")
}

func TestStreamErrorsSuppressedAfterCancellation(t *testing.T) {
	ring := spsc.NewRing[byte](1024)
	flag := cancel.NewFlag()
	recorder := &flushRecorder{writeErr: errors.New("torn down")}
	require.Equal(t, 4, ring.TryWrite([]byte{1, 2, 3, 4}))

	flag.Cancel()
	assert.NoError(t, waitForStream(t, runStream(ring, flag, NewStream(recorder))))
}
