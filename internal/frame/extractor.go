// Package frame turns the live screen stream into the single still image
// that accompanies a recording.
package frame

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/util"
)

// ErrNoFrameAvailable is returned when no usable still image can be produced.
var ErrNoFrameAvailable = errors.New("no frame available")

// ContentType of every extracted frame.
const ContentType = "image/png"

// Source is the part of a screen stream the extractor needs.
type Source interface {
	LatestFrame() (media.Frame, bool)
}

// Frame is an encoded still image.
type Frame struct {
	PNG    []byte
	Width  int
	Height int
}

// Extractor rasterises screen frames into PNG.
type Extractor struct {
	// MaxWidth downscales wider frames, keeping the aspect ratio. Zero keeps
	// the native size.
	MaxWidth int
}

// Extract draws the most recent frame of src into an off-screen raster and
// encodes it.
func (e *Extractor) Extract(src Source) (Frame, error) {
	if src == nil {
		return Frame{}, errors.Wrap(ErrNoFrameAvailable, "no screen stream")
	}
	f, ok := src.LatestFrame()
	if !ok || len(f.Data) == 0 {
		return Frame{}, errors.Wrap(ErrNoFrameAvailable, "screen stream has not produced a frame")
	}
	return e.FromReader(bytes.NewReader(f.Data))
}

// FromReader rasterises an arbitrary encoded image.
func (e *Extractor) FromReader(r io.Reader) (Frame, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return Frame{}, errors.Wrapf(ErrNoFrameAvailable, "failed to decode image: %v", err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Frame{}, errors.Wrapf(ErrNoFrameAvailable, "image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}

	w, h := b.Dx(), b.Dy()
	if e.MaxWidth > 0 && w > e.MaxWidth {
		h = h * e.MaxWidth / w
		if h == 0 {
			h = 1
		}
		w = e.MaxWidth
	}

	raster := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(raster, raster.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(raster, raster.Bounds(), img, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, raster); err != nil {
		return Frame{}, errors.Wrapf(ErrNoFrameAvailable, "failed to encode png: %v", err)
	}

	util.ComponentLogger("frame_extractor").Debug("Frame extracted",
		"source_format", format, "width", w, "height", h, "size", buf.Len())

	return Frame{PNG: buf.Bytes(), Width: w, Height: h}, nil
}

// FromFile rasterises the image stored at path.
func (e *Extractor) FromFile(path string) (Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Frame{}, errors.Wrapf(ErrNoFrameAvailable, "failed to open image: %v", err)
	}
	defer f.Close()
	return e.FromReader(f)
}
