package media

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Faiz-k/Intentify/internal/util"
)

// Acquirer obtains a microphone stream and a screen stream in parallel.
// It never returns only one of them.
type Acquirer struct {
	audio   AudioSource
	screen  ScreenSource
	timeout time.Duration
}

// NewAcquirer creates an acquirer. A zero timeout waits as long as the
// sources do.
func NewAcquirer(audio AudioSource, screen ScreenSource, timeout time.Duration) *Acquirer {
	return &Acquirer{
		audio:   audio,
		screen:  screen,
		timeout: timeout,
	}
}

// Acquire requests both sources concurrently and joins them. When either
// request fails the other is cancelled, anything already obtained is
// stopped, and the first failure is returned.
func (a *Acquirer) Acquire(ctx context.Context) (AudioStream, ScreenStream, error) {
	logger := util.ComponentLogger("acquirer")

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		audio  AudioStream
		screen ScreenStream
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.audio.OpenAudio(gctx)
		if err != nil {
			return err
		}
		audio = s
		return nil
	})
	g.Go(func() error {
		s, err := a.screen.OpenScreen(gctx)
		if err != nil {
			return err
		}
		screen = s
		return nil
	})

	if err := g.Wait(); err != nil {
		if audio != nil {
			logger.Info("Discarding microphone stream after failed acquisition")
			audio.Stop()
		}
		if screen != nil {
			logger.Info("Discarding screen stream after failed acquisition")
			screen.Stop()
		}
		if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
			err = errors.Wrapf(ErrCancelled, "%v", err)
		}
		logger.Warn("Acquisition failed", "error", err, "duration", time.Since(start))
		return nil, nil, err
	}

	logger.Info("Sources acquired", "duration", time.Since(start))
	return audio, screen, nil
}
