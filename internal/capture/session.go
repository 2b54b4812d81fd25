package capture

import (
	"context"
	"sync"

	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/media"
)

// session is one recording attempt. The controller creates it in Start and
// it is finished once it reaches Idle again.
type session struct {
	id string

	mu       sync.Mutex
	audio    media.AudioStream
	screen   media.ScreenStream
	recorder Recorder
	surface  Surface
	chunks   [][]byte
	frame    *frame.Frame

	stopCh   chan struct{}
	stopOnce sync.Once

	cancelCh      chan struct{}
	cancelOnce    sync.Once
	acquireCancel context.CancelFunc
	uploadCancel  context.CancelFunc

	done   chan struct{}
	result Result
}

func newSession(id string) *session {
	return &session{
		id:       id,
		stopCh:   make(chan struct{}),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// requestStop closes the stop channel. Only the first call has an effect.
func (s *session) requestStop() bool {
	stopped := false
	s.stopOnce.Do(func() {
		close(s.stopCh)
		stopped = true
	})
	return stopped
}

func (s *session) cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
	})

	s.mu.Lock()
	acquireCancel, uploadCancel := s.acquireCancel, s.uploadCancel
	s.mu.Unlock()
	if acquireCancel != nil {
		acquireCancel()
	}
	if uploadCancel != nil {
		uploadCancel()
	}
}

func (s *session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

func (s *session) appendChunk(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, b)
}

func (s *session) recordedChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// setFrame stores the extracted frame. It refuses a second frame.
func (s *session) setFrame(f frame.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		return false
	}
	s.frame = &f
	return true
}

// releaseAll stops the recorder, both streams and the control surface,
// whichever of them are still held. Every resource is released at most once
// and calling it again is a no-op.
func (s *session) releaseAll() {
	s.mu.Lock()
	rec, audio, screen, surf := s.recorder, s.audio, s.screen, s.surface
	s.recorder, s.audio, s.screen, s.surface = nil, nil, nil, nil
	s.mu.Unlock()

	if rec != nil {
		rec.Stop()
		<-rec.Done()
	}
	if audio != nil {
		audio.Stop()
	}
	if screen != nil {
		screen.Stop()
	}
	if surf != nil {
		surf.Close()
	}
}
