package media

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrPermissionDenied is returned when the user or the OS refuses access to a source.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeviceUnavailable is returned when no matching device or source exists.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrCancelled is returned when an acquisition is abandoned before it resolved.
	ErrCancelled = errors.New("acquisition cancelled")
)

var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"not authorized",
	"not authorised",
	"access denied",
	"unauthorized",
}

var deviceMarkers = []string{
	"no such file or directory",
	"no such device",
	"cannot open",
	"can't open",
	"could not find",
	"input/output error",
	"connection refused",
	"cannot open display",
	"invalid device",
	"i/o error",
}

// classifyFailure maps a failed source start onto the acquisition taxonomy.
// stderr is the tail of the process' diagnostic output, err the error that
// ended the attempt.
func classifyFailure(source, stderr string, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCancelled) {
			return pkgerrors.Wrapf(ErrCancelled, "%s: %v", source, err)
		}
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		if errors.Is(err, exec.ErrNotFound) {
			return pkgerrors.Wrapf(ErrDeviceUnavailable, "%s: %v", source, err)
		}
	}

	detail := lastLine(stderr)
	lower := strings.ToLower(stderr)

	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return pkgerrors.Wrapf(ErrPermissionDenied, "%s: %s", source, detail)
		}
	}

	if detail == "" && err != nil {
		detail = err.Error()
	}
	for _, marker := range deviceMarkers {
		if strings.Contains(lower, marker) {
			return pkgerrors.Wrapf(ErrDeviceUnavailable, "%s: %s", source, detail)
		}
	}

	if detail == "" {
		detail = "source ended before producing data"
	}
	return pkgerrors.Wrapf(ErrDeviceUnavailable, "%s: %s", source, detail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
