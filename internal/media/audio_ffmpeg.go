package media

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/util"
)

// opusGranuleRate is the fixed granule clock of Ogg/Opus streams.
const opusGranuleRate = 48000

// FFmpegAudioSource records the microphone through an ffmpeg subprocess that
// encodes Opus into an Ogg stream on stdout.
type FFmpegAudioSource struct {
	FFmpegPath string
	Format     string // pulse, alsa, avfoundation, dshow
	Device     string
	Channels   int
	Bitrate    string
}

func (s *FFmpegAudioSource) args() []string {
	channels := s.Channels
	if channels <= 0 {
		channels = 1
	}
	bitrate := s.Bitrate
	if bitrate == "" {
		bitrate = "64k"
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", s.Format,
		"-i", s.Device,
		"-vn",
		"-ac", strconv.Itoa(channels),
		"-ar", "48000",
		"-c:a", "libopus",
		"-b:a", bitrate,
		"-application", "voip",
		"-frame_duration", "20",
		// One Opus packet per Ogg page
		"-page_duration", "20000",
		"-flush_packets", "1",
		"-f", "ogg",
		"pipe:1",
	}
}

// OpenAudio starts the encoder and returns once the Opus identification
// header has been read, which proves the device actually opened.
func (s *FFmpegAudioSource) OpenAudio(ctx context.Context) (AudioStream, error) {
	logger := util.ComponentLogger("audio_source")

	if s.Device == "" || s.Format == "" {
		return nil, errors.Wrap(ErrDeviceUnavailable, "microphone: no audio input configured")
	}

	ffmpeg := s.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	proc, err := startProcess(ffmpeg, s.args(), logger)
	if err != nil {
		return nil, classifyFailure("microphone", "", err)
	}

	type opened struct {
		reader *oggreader.OggReader
		header *oggreader.OggHeader
		err    error
	}
	openedCh := make(chan opened, 1)
	go func() {
		reader, header, err := oggreader.NewWith(proc.stdout)
		openedCh <- opened{reader: reader, header: header, err: err}
	}()

	select {
	case <-ctx.Done():
		proc.stop()
		<-openedCh
		return nil, classifyFailure("microphone", "", ctx.Err())
	case o := <-openedCh:
		if o.err != nil {
			proc.stop()
			return nil, proc.failure("microphone", o.err)
		}

		format := AudioFormat{
			Codec:      "opus",
			SampleRate: o.header.SampleRate,
			Channels:   o.header.Channels,
			PreSkip:    o.header.PreSkip,
			OutputGain: o.header.OutputGain,
		}
		stream := newOggAudioStream(proc, o.reader, format, logger)
		go stream.readLoop()

		logger.Info("Microphone opened", "device", s.Device, "channels", format.Channels, "sample_rate", format.SampleRate)
		return stream, nil
	}
}

type oggAudioStream struct {
	proc   *process
	reader *oggreader.OggReader
	format AudioFormat
	logger *slog.Logger

	packets  chan AudioPacket
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func newOggAudioStream(proc *process, reader *oggreader.OggReader, format AudioFormat, logger *slog.Logger) *oggAudioStream {
	return &oggAudioStream{
		proc:    proc,
		reader:  reader,
		format:  format,
		logger:  logger,
		packets: make(chan AudioPacket, 256),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *oggAudioStream) readLoop() {
	defer close(s.done)
	defer close(s.packets)

	var base uint64
	first := true

	for {
		payload, header, err := s.reader.ParseNextPage()
		if err != nil {
			select {
			case <-s.stopCh:
				// Requested stop, the read error is expected
			default:
				s.setErr(s.proc.failure("microphone", err))
				s.logger.Warn("Microphone stream ended", "error", s.Err())
			}
			return
		}

		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		if first {
			base = header.GranulePosition
			first = false
		}
		var ts time.Duration
		if header.GranulePosition > base {
			ts = time.Duration(header.GranulePosition-base) * time.Second / opusGranuleRate
		}

		select {
		case s.packets <- AudioPacket{Data: payload, Timestamp: ts}:
		case <-s.stopCh:
			return
		}
	}
}

func (s *oggAudioStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *oggAudioStream) Packets() <-chan AudioPacket { return s.packets }

func (s *oggAudioStream) Format() AudioFormat { return s.format }

func (s *oggAudioStream) Done() <-chan struct{} { return s.done }

func (s *oggAudioStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop terminates the encoder and waits for the read loop to exit.
func (s *oggAudioStream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.proc.stop()
		<-s.done
		s.logger.Info("Microphone released")
	})
	return nil
}
