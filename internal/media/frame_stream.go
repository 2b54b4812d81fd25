package media

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/pipeline"
)

// frameStream is the ScreenStream shared by all screen backends. Backends
// publish frames and call finish exactly once when their producer ends.
type frameStream struct {
	broadcaster *pipeline.Broadcaster[Frame]
	release     func()

	mu     sync.RWMutex
	latest Frame
	has    bool
	err    error

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneOnce  sync.Once
}

func newFrameStream(name string, release func()) *frameStream {
	return &frameStream{
		broadcaster: pipeline.NewBroadcaster[Frame](name),
		release:     release,
		first:       make(chan struct{}),
		done:        make(chan struct{}),
		stopCh:      make(chan struct{}),
	}
}

// decodeFrame reads the dimensions of an encoded image.
func decodeFrame(data []byte, contentType string) (Frame, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errors.Wrap(err, "failed to decode frame header")
	}
	if contentType == "" {
		contentType = "image/" + format
	}
	return Frame{
		Data:        data,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
		CapturedAt:  time.Now(),
	}, nil
}

func (s *frameStream) publish(f Frame) {
	s.mu.Lock()
	s.latest = f
	s.has = true
	s.mu.Unlock()

	s.firstOnce.Do(func() { close(s.first) })
	s.broadcaster.Broadcast(f)
}

// finish marks the producer as ended. The latest frame stays available.
func (s *frameStream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.broadcaster.Close()
		close(s.done)
	})
}

func (s *frameStream) stopping() <-chan struct{} {
	return s.stopCh
}

func (s *frameStream) LatestFrame() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

func (s *frameStream) Subscribe(subscriberID string, bufferSize int) <-chan Frame {
	return s.broadcaster.Subscribe(subscriberID, bufferSize)
}

func (s *frameStream) Unsubscribe(subscriberID string) {
	s.broadcaster.Unsubscribe(subscriberID)
}

func (s *frameStream) Done() <-chan struct{} { return s.done }

func (s *frameStream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Stop releases the backend and waits for its producer to finish.
func (s *frameStream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.release != nil {
			s.release()
		}
		<-s.done
	})
	return nil
}
