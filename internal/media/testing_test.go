package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

type stubAudioStream struct {
	packets  chan AudioPacket
	done     chan struct{}
	stopOnce sync.Once
	stops    atomic.Int32
}

func newStubAudioStream() *stubAudioStream {
	return &stubAudioStream{
		packets: make(chan AudioPacket),
		done:    make(chan struct{}),
	}
}

func (s *stubAudioStream) Packets() <-chan AudioPacket { return s.packets }
func (s *stubAudioStream) Format() AudioFormat         { return AudioFormat{Codec: "opus", Channels: 1, SampleRate: 48000} }
func (s *stubAudioStream) Done() <-chan struct{}       { return s.done }
func (s *stubAudioStream) Err() error                  { return nil }
func (s *stubAudioStream) Stop() error {
	s.stops.Add(1)
	s.stopOnce.Do(func() {
		close(s.packets)
		close(s.done)
	})
	return nil
}

type funcAudioSource func(ctx context.Context) (AudioStream, error)

func (f funcAudioSource) OpenAudio(ctx context.Context) (AudioStream, error) { return f(ctx) }

type funcScreenSource func(ctx context.Context) (ScreenStream, error)

func (f funcScreenSource) OpenScreen(ctx context.Context) (ScreenStream, error) { return f(ctx) }
