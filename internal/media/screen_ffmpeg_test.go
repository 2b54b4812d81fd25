package media

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMPJPEG(t *testing.T, parts ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.SetBoundary(mpjpegBoundary))
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "image/jpeg")
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf
}

func TestReadMultipartFrames(t *testing.T) {
	stream := writeMPJPEG(t,
		encodeTestJPEG(t, 64, 48),
		[]byte("not an image"),
		encodeTestJPEG(t, 32, 16),
	)

	var frames []Frame
	err := readMultipartFrames(stream, mpjpegBoundary, func(f Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2, "undecodable parts are skipped")

	assert.Equal(t, 64, frames[0].Width)
	assert.Equal(t, 48, frames[0].Height)
	assert.Equal(t, "image/jpeg", frames[0].ContentType)
	assert.Equal(t, 32, frames[1].Width)
	assert.Equal(t, 16, frames[1].Height)
}

func TestReadMultipartFramesTruncated(t *testing.T) {
	stream := writeMPJPEG(t, encodeTestJPEG(t, 8, 8))
	truncated := bytes.NewReader(stream.Bytes()[:stream.Len()/2])

	count := 0
	err := readMultipartFrames(truncated, mpjpegBoundary, func(Frame) { count++ })
	assert.Error(t, err)
	assert.Zero(t, count)
}

func TestFFmpegScreenSourceArgs(t *testing.T) {
	s := &FFmpegScreenSource{Format: "x11grab", Input: ":0.0", FPS: 4}
	args := s.args()
	assert.Contains(t, args, "mpjpeg")
	assert.Contains(t, args, "fps=4")
	assert.Contains(t, args, ":0.0")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestFrameStreamKeepsLatestFrameAfterFinish(t *testing.T) {
	fs := newFrameStream("test", nil)
	f, err := decodeFrame(encodeTestPNG(t, 10, 20), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.ContentType)

	sub := fs.Subscribe("preview", 1)
	fs.publish(f)
	got := <-sub
	assert.Equal(t, 10, got.Width)

	fs.finish(nil)
	_, open := <-sub
	assert.False(t, open)

	latest, ok := fs.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, 20, latest.Height)
	assert.NoError(t, fs.Stop())
}
