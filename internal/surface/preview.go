package surface

import (
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"github.com/Faiz-k/Intentify/internal/media"
)

const previewBoundary = "intentifyframe"

// mjpegWriter writes frames as a multipart/x-mixed-replace stream, which
// browsers render in a plain <img>.
type mjpegWriter struct {
	mw *multipart.Writer
}

func newMJPEGWriter(w io.Writer) *mjpegWriter {
	mw := multipart.NewWriter(w)
	// Constant boundary, always valid
	_ = mw.SetBoundary(previewBoundary)
	return &mjpegWriter{mw: mw}
}

func (m *mjpegWriter) contentType() string {
	return "multipart/x-mixed-replace; boundary=" + previewBoundary
}

func (m *mjpegWriter) writeFrame(f media.Frame) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(f.Data)))
	part, err := m.mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
