package media

import (
	"context"
	"time"
)

// AudioFormat describes the encoded audio carried by an AudioStream.
type AudioFormat struct {
	Codec      string // always "opus" for now
	SampleRate uint32 // input sample rate reported by the encoder
	Channels   uint8
	PreSkip    uint16
	OutputGain uint16
}

// AudioPacket is one encoded audio frame.
type AudioPacket struct {
	Data      []byte
	Timestamp time.Duration // offset from the first packet of the stream
}

// Frame is one still image taken from a screen stream.
type Frame struct {
	Data        []byte
	ContentType string // image/jpeg or image/png
	Width       int
	Height      int
	CapturedAt  time.Time
}

// AudioStream is a live microphone stream. Stop releases the underlying
// device and may be called any number of times.
type AudioStream interface {
	// Packets delivers encoded audio until the stream ends or is stopped.
	Packets() <-chan AudioPacket

	// Format returns the encoding parameters negotiated when the stream opened.
	Format() AudioFormat

	// Done is closed once the stream has ended and all its goroutines exited.
	Done() <-chan struct{}

	// Err reports why the stream ended, nil for a requested stop.
	Err() error

	Stop() error
}

// ScreenStream is a live screen-sharing stream. It keeps the most recent
// frame available until it is stopped.
type ScreenStream interface {
	// LatestFrame returns the most recent frame, if any arrived yet.
	LatestFrame() (Frame, bool)

	// Subscribe returns a channel receiving every new frame.
	Subscribe(subscriberID string, bufferSize int) <-chan Frame

	// Unsubscribe removes a frame subscriber.
	Unsubscribe(subscriberID string)

	Done() <-chan struct{}
	Err() error
	Stop() error
}

// AudioSource opens microphone streams.
type AudioSource interface {
	OpenAudio(ctx context.Context) (AudioStream, error)
}

// ScreenSource opens screen streams.
type ScreenSource interface {
	OpenScreen(ctx context.Context) (ScreenStream, error)
}
