package recorder

import (
	"bytes"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/util"
)

// State of a Recorder.
type State int

const (
	StateInactive State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// finalizeTimeout bounds how long Close of the container may take.
const finalizeTimeout = 2 * time.Second

// Options configures a Recorder.
type Options struct {
	// Timeslice is the interval at which encoded data is handed to the
	// data callback. Zero delivers everything once, at the end.
	Timeslice time.Duration

	Clock clock.WithTicker
}

// Recorder encodes an audio stream into WebM/Opus and hands the bytes to a
// callback in time-sliced chunks. The concatenation of all chunks is a
// playable file.
type Recorder struct {
	stream media.AudioStream
	opts   Options
	onData func([]byte)

	sink  *chunkSink
	muxer *WebMMuxer

	mu    sync.Mutex
	state State
	err   error

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a recorder for stream. onData is called from the recorder's
// goroutine and never concurrently.
func New(stream media.AudioStream, opts Options, onData func([]byte)) *Recorder {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	sink := newChunkSink()
	return &Recorder{
		stream: stream,
		opts:   opts,
		onData: onData,
		sink:   sink,
		muxer:  NewWebMMuxer(sink, stream.Format()),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins consuming the stream.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInactive {
		return errors.Errorf("recorder is %s", r.state)
	}
	r.state = StateRecording
	go r.run()
	return nil
}

// Stop asks the recorder to finish. It returns immediately; Done is closed
// once the last chunk has been delivered. Calling Stop more than once, or on
// a recorder that was never started, is harmless.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	r.mu.Lock()
	if r.state == StateInactive {
		r.state = StateStopped
		close(r.done)
	}
	r.mu.Unlock()
}

// Done is closed when the recorder has finished and flushed all data.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Err reports why recording ended early, nil for a requested stop.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) run() {
	logger := util.ComponentLogger("recorder")

	var tick <-chan time.Time
	if r.opts.Timeslice > 0 {
		ticker := r.opts.Clock.NewTicker(r.opts.Timeslice)
		defer ticker.Stop()
		tick = ticker.C()
	}

	var failure error
	packets := r.stream.Packets()
	start := time.Now()

loop:
	for {
		select {
		case <-r.stopCh:
			failure = r.drain(packets)
			break loop
		case pkt, ok := <-packets:
			if !ok {
				if err := r.stream.Err(); err != nil {
					failure = errors.Wrap(err, "audio stream ended")
				}
				break loop
			}
			if err := r.muxer.WriteOpusFrame(pkt.Data, pkt.Timestamp); err != nil {
				failure = err
				break loop
			}
		case <-tick:
			r.flush()
		}
	}

	if err := r.muxer.Close(); err != nil && failure == nil {
		failure = err
	}
	select {
	case <-r.sink.closed:
	case <-time.After(finalizeTimeout):
		logger.Warn("WebM container did not finalize in time")
	}
	r.flush()

	if failure != nil {
		logger.Warn("Recording ended with error", "error", failure, "stats", r.muxer.Stats())
	} else {
		logger.Info("Recording finished", "stats", r.muxer.Stats(), "elapsed", time.Since(start).Truncate(time.Millisecond))
	}

	r.mu.Lock()
	r.err = failure
	r.state = StateStopped
	r.mu.Unlock()
	close(r.done)
}

// drain muxes the packets the stream already delivered when a stop arrives.
func (r *Recorder) drain(packets <-chan media.AudioPacket) error {
	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if err := r.muxer.WriteOpusFrame(pkt.Data, pkt.Timestamp); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (r *Recorder) flush() {
	if chunk := r.sink.take(); len(chunk) > 0 && r.onData != nil {
		r.onData(chunk)
	}
}

// chunkSink collects container bytes between flushes. ebml-go writes from
// its own goroutine, hence the lock.
type chunkSink struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	closed    chan struct{}
	closeOnce sync.Once
}

func newChunkSink() *chunkSink {
	return &chunkSink{closed: make(chan struct{})}
}

func (s *chunkSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *chunkSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *chunkSink) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}
