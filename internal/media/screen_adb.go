package media

import (
	"context"
	"strings"
	"time"

	adb "github.com/basiooo/goadb"
	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/util"
)

// ADBScreenSource shares the screen of an attached Android device by polling
// screencap through the local adb server.
type ADBScreenSource struct {
	Serial   string // empty picks the first online device
	Interval time.Duration
	Port     int
}

// OpenScreen resolves the device and returns once the first screenshot was taken.
func (s *ADBScreenSource) OpenScreen(ctx context.Context) (ScreenStream, error) {
	logger := util.ComponentLogger("adb_screen_source")

	port := s.Port
	if port == 0 {
		port = adb.AdbPort
	}
	client, err := adb.NewWithConfig(adb.ServerConfig{Port: port})
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "screen: failed to create adb client on port %d: %v", port, err)
	}

	serial := s.Serial
	if serial == "" {
		serials, err := client.ListDeviceSerials()
		if err != nil {
			return nil, errors.Wrapf(ErrDeviceUnavailable, "screen: failed to list adb devices: %v", err)
		}
		if len(serials) == 0 {
			return nil, errors.Wrap(ErrDeviceUnavailable, "screen: no android device attached")
		}
		serial = serials[0]
	}

	device := client.Device(adb.DeviceWithSerial(serial))
	state, err := device.State()
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "screen: device %s: %v", serial, err)
	}
	switch state {
	case adb.StateOnline:
	case adb.StateUnauthorized:
		return nil, errors.Wrapf(ErrPermissionDenied, "screen: device %s has not authorized this computer", serial)
	default:
		return nil, errors.Wrapf(ErrDeviceUnavailable, "screen: device %s is %s", serial, state)
	}

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	grab := func() (Frame, error) {
		out, err := device.RunCommand("screencap", "-p")
		if err != nil {
			return Frame{}, err
		}
		if strings.HasPrefix(out, "error") || len(out) == 0 {
			return Frame{}, errors.Errorf("screencap failed: %s", strings.TrimSpace(out))
		}
		return decodeFrame([]byte(out), "image/png")
	}

	stream := newFrameStream("adb_screen", nil)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		failures := 0
		for {
			frame, err := grab()
			if err != nil {
				failures++
				logger.Warn("screencap failed", "serial", serial, "error", err, "failures", failures)
				if failures >= 3 {
					stream.finish(errors.Wrapf(ErrDeviceUnavailable, "screen: device %s: %v", serial, err))
					return
				}
			} else {
				failures = 0
				stream.publish(frame)
			}

			select {
			case <-stream.stopping():
				stream.finish(nil)
				return
			case <-ticker.C:
			}
		}
	}()

	select {
	case <-ctx.Done():
		stream.Stop()
		return nil, classifyFailure("screen", "", ctx.Err())
	case <-stream.done:
		return nil, stream.Err()
	case <-stream.first:
		f, _ := stream.LatestFrame()
		logger.Info("Android screen sharing started", "serial", serial, "width", f.Width, "height", f.Height)
		return stream, nil
	}
}
