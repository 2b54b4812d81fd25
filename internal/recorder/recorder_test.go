package recorder

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/Faiz-k/Intentify/internal/media"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

type fakeAudioStream struct {
	packets chan media.AudioPacket
	done    chan struct{}
	err     error
	once    sync.Once
}

func newFakeAudioStream() *fakeAudioStream {
	return &fakeAudioStream{
		packets: make(chan media.AudioPacket),
		done:    make(chan struct{}),
	}
}

func (s *fakeAudioStream) Packets() <-chan media.AudioPacket { return s.packets }
func (s *fakeAudioStream) Format() media.AudioFormat {
	return media.AudioFormat{Codec: "opus", SampleRate: 48000, Channels: 1, PreSkip: 312}
}
func (s *fakeAudioStream) Done() <-chan struct{} { return s.done }
func (s *fakeAudioStream) Err() error            { return s.err }
func (s *fakeAudioStream) Stop() error {
	s.once.Do(func() {
		close(s.packets)
		close(s.done)
	})
	return nil
}

func (s *fakeAudioStream) send(n int, from time.Duration) {
	for i := 0; i < n; i++ {
		s.packets <- media.AudioPacket{
			Data:      []byte{0xfc, 0xff, 0xfe, byte(i)},
			Timestamp: from + time.Duration(i)*20*time.Millisecond,
		}
	}
}

type chunkCollector struct {
	mu     sync.Mutex
	chunks [][]byte
	notify chan struct{}
}

func newChunkCollector() *chunkCollector {
	return &chunkCollector{notify: make(chan struct{}, 64)}
}

func (c *chunkCollector) onData(b []byte) {
	c.mu.Lock()
	c.chunks = append(c.chunks, b)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *chunkCollector) joined() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}

func (c *chunkCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func waitDone(t *testing.T, r *Recorder) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not finish")
	}
}

func TestRecorderProducesWebM(t *testing.T) {
	stream := newFakeAudioStream()
	chunks := newChunkCollector()

	r := New(stream, Options{}, chunks.onData)
	require.NoError(t, r.Start())
	assert.Equal(t, StateRecording, r.State())

	stream.send(150, 0)
	stream.Stop()
	waitDone(t, r)

	assert.NoError(t, r.Err())
	assert.Equal(t, StateStopped, r.State())

	data := chunks.joined()
	require.NotEmpty(t, data)
	assert.True(t, bytes.HasPrefix(data, ebmlMagic))
	assert.True(t, bytes.Contains(data, []byte("webm")))
	assert.True(t, bytes.Contains(data, []byte("A_OPUS")))
	assert.True(t, bytes.Contains(data, []byte("OpusHead")))
}

func TestRecorderWithoutPacketsProducesNothing(t *testing.T) {
	stream := newFakeAudioStream()
	chunks := newChunkCollector()

	r := New(stream, Options{}, chunks.onData)
	require.NoError(t, r.Start())
	r.Stop()
	waitDone(t, r)

	assert.NoError(t, r.Err())
	assert.Zero(t, chunks.count())
	stream.Stop()
}

func TestRecorderTimeslice(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Now())
	stream := newFakeAudioStream()
	chunks := newChunkCollector()

	r := New(stream, Options{Timeslice: time.Second, Clock: fakeClock}, chunks.onData)
	require.NoError(t, r.Start())

	// The second send only completes once the first packet was muxed
	stream.send(2, 0)

	require.Eventually(t, fakeClock.HasWaiters, time.Second, 5*time.Millisecond)
	fakeClock.Step(time.Second)

	select {
	case <-chunks.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk after timeslice elapsed")
	}
	assert.True(t, bytes.HasPrefix(chunks.joined(), ebmlMagic))

	stream.send(50, 40*time.Millisecond)
	r.Stop()
	waitDone(t, r)
	stream.Stop()

	assert.GreaterOrEqual(t, chunks.count(), 2)
	assert.True(t, bytes.HasPrefix(chunks.joined(), ebmlMagic))
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	stream := newFakeAudioStream()
	r := New(stream, Options{}, nil)
	require.NoError(t, r.Start())

	for i := 0; i < 3; i++ {
		r.Stop()
	}
	waitDone(t, r)
	assert.Error(t, r.Start())
	stream.Stop()
}

func TestRecorderStopBeforeStart(t *testing.T) {
	stream := newFakeAudioStream()
	r := New(stream, Options{}, nil)
	r.Stop()
	waitDone(t, r)
	assert.Equal(t, StateStopped, r.State())
	assert.Error(t, r.Start())
}

func TestRecorderReportsStreamFailure(t *testing.T) {
	stream := newFakeAudioStream()
	stream.err = errors.New("device unplugged")
	r := New(stream, Options{}, nil)
	require.NoError(t, r.Start())

	stream.send(3, 0)
	stream.Stop()
	waitDone(t, r)

	require.Error(t, r.Err())
	assert.Contains(t, r.Err().Error(), "device unplugged")
}

func TestRecorderStopKeepsDeliveredPackets(t *testing.T) {
	stream := &fakeAudioStream{
		packets: make(chan media.AudioPacket, 10),
		done:    make(chan struct{}),
	}
	for i := 0; i < 10; i++ {
		stream.packets <- media.AudioPacket{
			Data:      []byte{0xfc, 0xff, 0xfe, byte(i)},
			Timestamp: time.Duration(i) * 20 * time.Millisecond,
		}
	}
	chunks := newChunkCollector()

	r := New(stream, Options{}, chunks.onData)
	require.NoError(t, r.Start())
	r.Stop()
	waitDone(t, r)
	stream.Stop()

	require.NoError(t, r.Err())
	assert.Equal(t, uint64(10), r.muxer.frameCount)
	assert.Contains(t, r.muxer.Stats(), "frames=10")
	assert.True(t, bytes.HasPrefix(chunks.joined(), ebmlMagic))
}

type closeCountingWriter struct {
	bytes.Buffer
	closes int
}

func (w *closeCountingWriter) Close() error {
	w.closes++
	return nil
}

func TestWebMMuxerClosesWriterAfterFailedWrite(t *testing.T) {
	w := &closeCountingWriter{}
	m := NewWebMMuxer(w, media.AudioFormat{Channels: 1})
	// State left behind by a failed block write.
	m.initialized = true

	require.NoError(t, m.Close())
	assert.Equal(t, 1, w.closes)
	assert.ErrorIs(t, m.WriteOpusFrame([]byte{0xfc}, 0), io.ErrClosedPipe)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, w.closes)
}

func TestWebMMuxerClosesWriterWithoutPackets(t *testing.T) {
	w := &closeCountingWriter{}
	m := NewWebMMuxer(w, media.AudioFormat{Channels: 1})
	require.NoError(t, m.Close())
	assert.Equal(t, 1, w.closes)
	assert.Zero(t, w.Len())
}

func TestOpusHead(t *testing.T) {
	head := opusHead(media.AudioFormat{Channels: 2, SampleRate: 44100, PreSkip: 312})
	require.Len(t, head, 19)
	assert.Equal(t, "OpusHead", string(head[:8]))
	assert.Equal(t, byte(1), head[8])
	assert.Equal(t, byte(2), head[9])
	assert.Equal(t, []byte{0x38, 0x01}, head[10:12])
	assert.Equal(t, []byte{0x44, 0xac, 0x00, 0x00}, head[12:16])
}
