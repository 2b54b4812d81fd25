package media

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStubScreenStream(t *testing.T) *frameStream {
	fs := newFrameStream("stub_screen", nil)
	fs.release = func() { fs.finish(nil) }
	f, err := decodeFrame(encodeTestPNG(t, 4, 4), "")
	require.NoError(t, err)
	fs.publish(f)
	return fs
}

func blockingAudio() AudioSource {
	return funcAudioSource(func(ctx context.Context) (AudioStream, error) {
		<-ctx.Done()
		return nil, classifyFailure("microphone", "", ctx.Err())
	})
}

func blockingScreen() ScreenSource {
	return funcScreenSource(func(ctx context.Context) (ScreenStream, error) {
		<-ctx.Done()
		return nil, classifyFailure("screen", "", ctx.Err())
	})
}

func TestAcquireBothSources(t *testing.T) {
	audio := newStubAudioStream()
	screen := newStubScreenStream(t)

	a := NewAcquirer(
		funcAudioSource(func(context.Context) (AudioStream, error) { return audio, nil }),
		funcScreenSource(func(context.Context) (ScreenStream, error) { return screen, nil }),
		0,
	)

	gotAudio, gotScreen, err := a.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, audio, gotAudio)
	assert.Same(t, screen, gotScreen)
	assert.Zero(t, audio.stops.Load())

	gotAudio.Stop()
	gotScreen.Stop()
}

func TestAcquireScreenDeniedReleasesMicrophone(t *testing.T) {
	audio := newStubAudioStream()

	a := NewAcquirer(
		funcAudioSource(func(context.Context) (AudioStream, error) { return audio, nil }),
		funcScreenSource(func(context.Context) (ScreenStream, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, errors.Wrap(ErrPermissionDenied, "screen: not authorized")
		}),
		0,
	)

	gotAudio, gotScreen, err := a.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, gotAudio)
	assert.Nil(t, gotScreen)
	assert.Equal(t, int32(1), audio.stops.Load())
}

func TestAcquireFailureCancelsPendingRequest(t *testing.T) {
	a := NewAcquirer(
		blockingAudio(),
		funcScreenSource(func(context.Context) (ScreenStream, error) {
			return nil, errors.Wrap(ErrDeviceUnavailable, "screen: no display")
		}),
		0,
	)

	_, _, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquireMicrophoneDeniedReleasesScreen(t *testing.T) {
	screen := newStubScreenStream(t)

	a := NewAcquirer(
		funcAudioSource(func(context.Context) (AudioStream, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, errors.Wrap(ErrPermissionDenied, "microphone: denied")
		}),
		funcScreenSource(func(context.Context) (ScreenStream, error) { return screen, nil }),
		0,
	)

	_, _, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	select {
	case <-screen.Done():
	default:
		t.Fatal("screen stream was not stopped")
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAcquirer(blockingAudio(), blockingScreen(), 0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := a.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAcquireTimeout(t *testing.T) {
	a := NewAcquirer(blockingAudio(), blockingScreen(), 20*time.Millisecond)

	_, _, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}
