package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/media"
)

// MimeType is the container and codec of everything a Recorder produces.
const MimeType = "audio/webm;codecs=opus"

// WebMMuxer wraps Opus packets into a WebM container using at-wat/ebml-go.
// Nothing is written before the first packet, so an empty recording stays
// empty.
type WebMMuxer struct {
	writer      io.WriteCloser
	format      media.AudioFormat
	audioWriter webm.BlockWriteCloser
	logger      *slog.Logger
	initialized bool
	closed      bool
	frameCount  uint64
	lastTs      time.Duration

	mu    sync.Mutex
	fatal error
}

// NewWebMMuxer creates a muxer writing to w. w is closed by the muxer once
// the container is finalized.
func NewWebMMuxer(w io.WriteCloser, format media.AudioFormat) *WebMMuxer {
	return &WebMMuxer{
		writer: w,
		format: format,
		logger: slog.With("component", "webm_muxer"),
	}
}

// opusHead builds the identification header stored as the track's codec
// private data (RFC 7845 section 5.1).
func opusHead(f media.AudioFormat) []byte {
	channels := f.Channels
	if channels == 0 {
		channels = 1
	}
	rate := f.SampleRate
	if rate == 0 {
		rate = 48000
	}

	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1
	head[9] = channels
	binary.LittleEndian.PutUint16(head[10:], f.PreSkip)
	binary.LittleEndian.PutUint32(head[12:], rate)
	binary.LittleEndian.PutUint16(head[16:], f.OutputGain)
	head[18] = 0
	return head
}

// WriteHeader initializes the container with a single Opus track.
func (m *WebMMuxer) WriteHeader() error {
	if m.initialized {
		return nil
	}

	channels := m.format.Channels
	if channels == 0 {
		channels = 1
	}

	writers, err := webm.NewSimpleBlockWriter(m.writer, []webm.TrackEntry{
		{
			Name:            "Audio",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "A_OPUS",
			CodecPrivate:    opusHead(m.format),
			TrackType:       2,
			DefaultDuration: 20000000,
			Audio: &webm.Audio{
				SamplingFrequency: 48000.0,
				Channels:          uint64(channels),
			},
		},
	}, mkvcore.WithOnFatalHandler(func(err error) {
		m.logger.Warn("WebM writer failed", "error", err)
		m.mu.Lock()
		m.fatal = err
		m.mu.Unlock()
	}))
	if err != nil {
		return errors.Wrap(err, "failed to create webm writer")
	}

	m.audioWriter = writers[0]
	m.initialized = true
	m.logger.Debug("WebM container initialized", "channels", channels)
	return nil
}

// WriteOpusFrame appends one Opus packet at the given stream offset.
func (m *WebMMuxer) WriteOpusFrame(data []byte, ts time.Duration) error {
	if len(data) == 0 {
		return nil
	}
	if m.closed {
		return io.ErrClosedPipe
	}
	m.mu.Lock()
	fatal := m.fatal
	m.mu.Unlock()
	if fatal != nil {
		return fatal
	}

	if !m.initialized {
		if err := m.WriteHeader(); err != nil {
			return err
		}
	}
	if m.audioWriter == nil {
		return io.ErrClosedPipe
	}

	// Block timestamps must not go backwards
	if ts < m.lastTs {
		ts = m.lastTs
	}
	m.lastTs = ts

	if _, err := m.audioWriter.Write(true, int64(ts/time.Millisecond), data); err != nil {
		m.audioWriter = nil
		return errors.Wrapf(err, "failed to write opus frame %d", m.frameCount)
	}
	m.frameCount++

	if m.frameCount%250 == 0 {
		m.logger.Debug("WebM audio progress", "frames", m.frameCount, "duration", m.lastTs.Truncate(time.Millisecond))
	}
	return nil
}

// Close finalizes the container. When no packet was written, or a write
// left the block writer unusable, the underlying writer is closed directly.
func (m *WebMMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.audioWriter == nil {
		return m.writer.Close()
	}

	err := m.audioWriter.Close()
	m.audioWriter = nil
	m.logger.Debug("WebM container finalized", "frames", m.frameCount)
	if err != nil {
		return errors.Wrap(err, "failed to finalize webm container")
	}
	return nil
}

// Stats reports what has been muxed so far.
func (m *WebMMuxer) Stats() string {
	return fmt.Sprintf("frames=%d duration=%s", m.frameCount, m.lastTs.Truncate(time.Millisecond))
}
