package capture

import (
	"errors"

	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/media"
)

// Failures reported by the controller. All of them can be matched with
// errors.Is, also through the wrapping the controller adds.
var (
	ErrPermissionDenied  = media.ErrPermissionDenied
	ErrDeviceUnavailable = media.ErrDeviceUnavailable
	ErrCancelled         = media.ErrCancelled
	ErrNoFrameAvailable  = frame.ErrNoFrameAvailable

	ErrRecordingFailed = errors.New("recording failed")
	ErrUploadFailed    = errors.New("upload failed")
	ErrCancelledByUser = errors.New("capture cancelled by user")
	ErrBusy            = errors.New("a capture session is already active")
)

// UploadError means the capture itself succeeded but handing it to the
// backend did not. The artifact can be passed to RetryUpload.
type UploadError struct {
	Artifact *Artifact
	Err      error
}

func (e *UploadError) Error() string {
	return "upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() []error {
	return []error{ErrUploadFailed, e.Err}
}
