package media

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/util"
)

// mpjpegBoundary is the part boundary ffmpeg's mpjpeg muxer uses by default.
const mpjpegBoundary = "ffmpeg"

// FFmpegScreenSource shares the screen through an ffmpeg subprocess that
// writes a multipart JPEG stream to stdout.
type FFmpegScreenSource struct {
	FFmpegPath string
	Format     string // x11grab, avfoundation, gdigrab
	Input      string
	FPS        int
}

func (s *FFmpegScreenSource) args() []string {
	fps := s.FPS
	if fps <= 0 {
		fps = 2
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", s.Format,
	}

	switch s.Format {
	case "avfoundation":
		// avfoundation only accepts rates the device advertises
		args = append(args, "-capture_cursor", "1", "-framerate", "30")
	case "x11grab", "gdigrab":
		args = append(args, "-framerate", strconv.Itoa(fps))
	}

	return append(args,
		"-i", s.Input,
		"-an",
		"-vf", "fps="+strconv.Itoa(fps),
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-f", "mpjpeg",
		"pipe:1",
	)
}

// OpenScreen starts the grabber and returns once the first frame arrived.
func (s *FFmpegScreenSource) OpenScreen(ctx context.Context) (ScreenStream, error) {
	logger := util.ComponentLogger("screen_source")

	if s.Format == "" || s.Input == "" {
		return nil, errors.Wrap(ErrDeviceUnavailable, "screen: no screen input configured")
	}

	ffmpeg := s.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	proc, err := startProcess(ffmpeg, s.args(), logger)
	if err != nil {
		return nil, classifyFailure("screen", "", err)
	}

	stream := newFrameStream("screen", proc.stop)
	go func() {
		err := readMultipartFrames(proc.stdout, mpjpegBoundary, stream.publish)
		select {
		case <-stream.stopping():
			stream.finish(nil)
		default:
			stream.finish(proc.failure("screen", err))
		}
	}()

	select {
	case <-ctx.Done():
		stream.Stop()
		return nil, classifyFailure("screen", "", ctx.Err())
	case <-stream.done:
		err := stream.Err()
		if err == nil {
			err = errors.Wrap(ErrDeviceUnavailable, "screen: grabber ended before the first frame")
		}
		proc.stop()
		return nil, err
	case <-stream.first:
		f, _ := stream.LatestFrame()
		logger.Info("Screen sharing started", "input", s.Input, "width", f.Width, "height", f.Height)
		return stream, nil
	}
}

// readMultipartFrames parses a multipart/x-mixed-replace style stream and
// publishes each image part. It returns when the stream ends.
func readMultipartFrames(r io.Reader, boundary string, publish func(Frame)) error {
	logger := util.ComponentLogger("screen_source")
	mr := multipart.NewReader(r, boundary)

	for {
		part, err := mr.NextPart()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}

		frame, err := decodeFrame(data, part.Header.Get("Content-Type"))
		if err != nil {
			logger.Debug("Skipping undecodable frame", "size", len(data), "error", err)
			continue
		}
		publish(frame)
	}
}
