package capture

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/recorder"
)

// Artifact is what one capture produces: the recorded audio, possibly empty,
// and exactly one still frame. It is not modified after it is built.
type Artifact struct {
	Audio            []byte
	AudioContentType string

	Frame            []byte
	FrameContentType string
	Width            int
	Height           int
}

// NewArtifact joins recorded chunks and the extracted frame.
func NewArtifact(chunks [][]byte, f frame.Frame) (*Artifact, error) {
	if len(f.PNG) == 0 || f.Width <= 0 || f.Height <= 0 {
		return nil, errors.Wrap(ErrNoFrameAvailable, "artifact requires a frame")
	}
	return &Artifact{
		Audio:            bytes.Join(chunks, nil),
		AudioContentType: recorder.MimeType,
		Frame:            f.PNG,
		FrameContentType: frame.ContentType,
		Width:            f.Width,
		Height:           f.Height,
	}, nil
}

// HasAudio reports whether any audio was recorded.
func (a *Artifact) HasAudio() bool {
	return len(a.Audio) > 0
}
