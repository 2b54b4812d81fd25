// Package capture coordinates one screen-plus-voice recording: acquiring
// the microphone and the screen, recording, extracting a still frame at
// stop time, and uploading both, while releasing every device and window on
// every exit path.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/Faiz-k/Intentify/internal/api"
	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/surface"
	"github.com/Faiz-k/Intentify/internal/util"
)

// Acquirer obtains both live streams or neither.
type Acquirer interface {
	Acquire(ctx context.Context) (media.AudioStream, media.ScreenStream, error)
}

// Recorder encodes the audio stream. Done is closed once all data has been
// handed to the data callback.
type Recorder interface {
	Start() error
	Stop()
	Done() <-chan struct{}
	Err() error
}

// RecorderFactory creates a recorder delivering encoded chunks to onData.
type RecorderFactory func(stream media.AudioStream, onData func([]byte)) Recorder

// Surface is an open control surface.
type Surface interface {
	URL() string
	Signals() <-chan surface.StopSignal
	Degraded() error
	Close() error
}

// SurfaceOpener opens the control surface of a session.
type SurfaceOpener interface {
	Open(ctx context.Context, sessionID string, preview surface.PreviewSource) (Surface, error)
}

// SurfaceOpenerFunc adapts a function to SurfaceOpener.
type SurfaceOpenerFunc func(ctx context.Context, sessionID string, preview surface.PreviewSource) (Surface, error)

func (f SurfaceOpenerFunc) Open(ctx context.Context, sessionID string, preview surface.PreviewSource) (Surface, error) {
	return f(ctx, sessionID, preview)
}

// FrameExtractor produces the still frame from the screen stream.
type FrameExtractor interface {
	Extract(src frame.Source) (frame.Frame, error)
}

// Uploader hands a finished capture to the backend.
type Uploader interface {
	UploadCapture(ctx context.Context, sessionID string, audio, screen []byte) (*api.CaptureResult, error)
}

// Deps are the controller's collaborators. Surface may be nil, in which
// case recording is stopped from the hosting UI only.
type Deps struct {
	Acquirer    Acquirer
	NewRecorder RecorderFactory
	Surface     SurfaceOpener
	Extractor   FrameExtractor
	Uploader    Uploader
}

// Config holds the controller's limits.
type Config struct {
	// MaxDuration stops a recording automatically. Zero disables the limit.
	MaxDuration time.Duration

	// UploadTimeout bounds the upload call. Zero disables the limit.
	UploadTimeout time.Duration

	Clock clock.WithTicker
}

// DegradedEvent reports that recording continues without a working control
// surface. URL is set when the page is served but could not be shown.
type DegradedEvent struct {
	SessionID string
	URL       string
	Err       error
}

// Callbacks notify the hosting UI. They are called from controller
// goroutines and must not block for long.
type Callbacks struct {
	OnTranscript    func(transcript string)
	OnScreenSummary func(summary string)
	OnStateChange   func(sessionID string, from, to State)
	OnDegraded      func(DegradedEvent)
}

// Result is the outcome of a session.
type Result struct {
	SessionID     string
	Transcript    string
	ScreenSummary string
	Artifact      *Artifact
	Err           error
}

// Controller runs at most one capture session at a time.
type Controller struct {
	deps   Deps
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current *session
	last    *session
}

// NewController creates an idle controller.
func NewController(deps Deps, cfg Config, cb Callbacks) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Controller{
		deps:   deps,
		cfg:    cfg,
		cb:     cb,
		logger: util.ComponentLogger("capture"),
		state:  StateIdle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves the controller to a new state on behalf of s. It is a
// no-op when s is no longer the current session.
func (c *Controller) transition(s *session, to State) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	if to == StateIdle {
		c.current = nil
		c.last = s
	}
	c.mu.Unlock()

	c.logger.Debug("State changed", "session_id", s.id, "from", from, "to", to)
	if c.cb.OnStateChange != nil && from != to {
		c.cb.OnStateChange(s.id, from, to)
	}
}

// begin creates a session from Idle.
func (c *Controller) begin(sessionID string, to State) (*session, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrBusy, "controller is %s", state)
	}
	s := newSession(sessionID)
	c.current = s
	c.mu.Unlock()

	c.transition(s, to)
	return s, nil
}

// Start acquires both sources and begins recording. It returns once
// recording runs, or with the acquisition error after everything obtained
// was released again. Cancelling ctx later cancels the session.
func (c *Controller) Start(ctx context.Context, sessionID string) error {
	s, err := c.begin(sessionID, StateAcquiring)
	if err != nil {
		return err
	}

	acquireCtx, acquireCancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.acquireCancel = acquireCancel
	s.mu.Unlock()
	defer acquireCancel()

	// Cancel may have run before acquireCancel was set
	if s.cancelled() {
		acquireCancel()
	}

	c.logger.Info("Acquiring microphone and screen", "session_id", s.id)
	audio, screen, err := c.deps.Acquirer.Acquire(acquireCtx)
	if err != nil {
		if s.cancelled() {
			err = fmt.Errorf("%w: %w", ErrCancelledByUser, err)
		}
		c.fail(s, err)
		return err
	}

	s.mu.Lock()
	s.audio = audio
	s.screen = screen
	s.mu.Unlock()

	if s.cancelled() || ctx.Err() != nil {
		err := errors.Wrap(ErrCancelledByUser, "cancelled while acquiring")
		c.fail(s, err)
		return err
	}

	rec := c.deps.NewRecorder(audio, s.appendChunk)
	s.mu.Lock()
	s.recorder = rec
	s.mu.Unlock()
	if err := rec.Start(); err != nil {
		err = errors.Wrapf(ErrRecordingFailed, "failed to start recorder: %v", err)
		c.fail(s, err)
		return err
	}
	c.transition(s, StateRecording)
	c.logger.Info("Recording started", "session_id", s.id)

	c.openSurface(ctx, s, screen)

	go c.run(ctx, s, rec, screen)
	return nil
}

func (c *Controller) openSurface(ctx context.Context, s *session, screen media.ScreenStream) {
	if c.deps.Surface == nil {
		return
	}

	surf, err := c.deps.Surface.Open(ctx, s.id, screen)
	if err != nil {
		c.logger.Warn("Control surface unavailable, stop from the terminal", "session_id", s.id, "error", err)
		c.degraded(DegradedEvent{SessionID: s.id, Err: err})
		return
	}

	s.mu.Lock()
	s.surface = surf
	s.mu.Unlock()

	if err := surf.Degraded(); err != nil {
		c.degraded(DegradedEvent{SessionID: s.id, URL: surf.URL(), Err: err})
	}
}

func (c *Controller) degraded(ev DegradedEvent) {
	if c.cb.OnDegraded != nil {
		c.cb.OnDegraded(ev)
	}
}

// Stop ends the current recording. It may be called any number of times
// from any goroutine; only the first call during Recording has an effect.
func (c *Controller) Stop() {
	c.stop("terminal")
}

// HandleStopSignal applies a stop message from the control surface. Messages
// outside Recording are ignored.
func (c *Controller) HandleStopSignal(sig surface.StopSignal) {
	if sig.Type != surface.StopMessageType {
		c.logger.Debug("Ignoring unknown control message", "type", sig.Type)
		return
	}
	c.stop("control surface")
}

func (c *Controller) stop(trigger string) {
	c.mu.Lock()
	s, state := c.current, c.state
	c.mu.Unlock()

	if s == nil || state != StateRecording {
		c.logger.Debug("Stop ignored", "trigger", trigger, "state", state)
		return
	}
	if s.requestStop() {
		c.logger.Info("Stopping recording", "session_id", s.id, "trigger", trigger)
	}
}

// Cancel abandons the current session without uploading. During an upload
// it aborts the request. It returns false when there is nothing to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	s, state := c.current, c.state
	c.mu.Unlock()

	if s == nil || state == StateIdle || state == StateError {
		return false
	}
	c.logger.Info("Cancelling capture", "session_id", s.id, "state", state)
	s.cancel()
	return true
}

// Done is closed when the current or most recent session has finished.
// It returns nil when no session ever ran.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.done
	}
	if c.last != nil {
		return c.last.done
	}
	return nil
}

// Wait blocks until the current or most recent session has finished and
// returns its result.
func (c *Controller) Wait(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	s := c.current
	if s == nil {
		s = c.last
	}
	c.mu.Unlock()

	if s == nil {
		return nil, errors.New("no capture session")
	}

	select {
	case <-s.done:
		res := s.result
		return &res, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run drives a session from Recording to Idle.
func (c *Controller) run(ctx context.Context, s *session, rec Recorder, screen media.ScreenStream) {
	var maxDuration <-chan time.Time
	if c.cfg.MaxDuration > 0 {
		timer := c.cfg.Clock.NewTimer(c.cfg.MaxDuration)
		defer timer.Stop()
		maxDuration = timer.C()
	}

	s.mu.Lock()
	var signals <-chan surface.StopSignal
	if s.surface != nil {
		signals = s.surface.Signals()
	}
	s.mu.Unlock()

	stopCh := s.stopCh
	screenDone := screen.Done()

	for recording := true; recording; {
		select {
		case <-s.cancelCh:
			c.fail(s, errors.Wrap(ErrCancelledByUser, "cancelled while recording"))
			return
		case <-ctx.Done():
			c.fail(s, errors.Wrapf(ErrCancelledByUser, "cancelled while recording: %v", ctx.Err()))
			return
		case <-stopCh:
			stopCh = nil
			rec.Stop()
		case sig, ok := <-signals:
			signals = nil
			if ok {
				c.HandleStopSignal(sig)
			}
		case <-maxDuration:
			maxDuration = nil
			c.logger.Info("Maximum recording duration reached", "session_id", s.id, "max_duration", c.cfg.MaxDuration)
			c.stop("max duration")
		case <-screenDone:
			screenDone = nil
			c.logger.Info("Screen sharing ended", "session_id", s.id, "error", screen.Err())
			c.stop("screen ended")
		case <-rec.Done():
			recording = false
		}
	}

	c.transition(s, StateFinalizing)
	if err := rec.Err(); err != nil {
		c.fail(s, errors.Wrapf(ErrRecordingFailed, "%v", err))
		return
	}

	f, err := c.deps.Extractor.Extract(screen)
	if err != nil {
		c.fail(s, err)
		return
	}
	if !s.setFrame(f) {
		c.fail(s, errors.Wrap(ErrNoFrameAvailable, "frame already extracted"))
		return
	}

	artifact, err := NewArtifact(s.recordedChunks(), f)
	if err != nil {
		c.fail(s, err)
		return
	}
	if s.cancelled() {
		c.fail(s, errors.Wrap(ErrCancelledByUser, "cancelled before upload"))
		return
	}

	c.transition(s, StateUploading)
	s.releaseAll()
	c.logger.Info("Capture finished, uploading",
		"session_id", s.id,
		"audio_bytes", len(artifact.Audio),
		"frame", fmt.Sprintf("%dx%d", artifact.Width, artifact.Height))

	c.upload(ctx, s, artifact)
}

// RetryUpload uploads a previously built artifact again. It runs from Idle
// and returns once the upload resolved.
func (c *Controller) RetryUpload(ctx context.Context, sessionID string, artifact *Artifact) (*Result, error) {
	if artifact == nil || len(artifact.Frame) == 0 {
		return nil, errors.Wrap(ErrNoFrameAvailable, "nothing to upload")
	}
	s, err := c.begin(sessionID, StateUploading)
	if err != nil {
		return nil, err
	}

	c.upload(ctx, s, artifact)
	res := s.result
	return &res, res.Err
}

// SubmitImage uploads a single image without audio.
func (c *Controller) SubmitImage(ctx context.Context, sessionID string, f frame.Frame) (*Result, error) {
	artifact, err := NewArtifact(nil, f)
	if err != nil {
		return nil, err
	}
	return c.RetryUpload(ctx, sessionID, artifact)
}

func (c *Controller) upload(ctx context.Context, s *session, artifact *Artifact) {
	var (
		uploadCtx context.Context
		cancel    context.CancelFunc
	)
	if c.cfg.UploadTimeout > 0 {
		uploadCtx, cancel = context.WithTimeout(ctx, c.cfg.UploadTimeout)
	} else {
		uploadCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	s.mu.Lock()
	s.uploadCancel = cancel
	s.mu.Unlock()
	if s.cancelled() {
		cancel()
	}

	start := time.Now()
	res, err := c.deps.Uploader.UploadCapture(uploadCtx, s.id, artifact.Audio, artifact.Frame)
	if err != nil {
		if s.cancelled() {
			err = fmt.Errorf("%w: %w", ErrCancelledByUser, err)
		}
		c.logger.Warn("Upload failed", "session_id", s.id, "error", err, "duration", time.Since(start))
		c.finish(s, Result{
			SessionID: s.id,
			Artifact:  artifact,
			Err:       &UploadError{Artifact: artifact, Err: err},
		})
		return
	}

	if res == nil {
		res = &api.CaptureResult{SessionID: s.id}
	}
	c.logger.Info("Upload finished", "session_id", s.id, "duration", time.Since(start))
	c.finish(s, Result{
		SessionID:     s.id,
		Transcript:    res.Transcript,
		ScreenSummary: res.ScreenSummary,
		Artifact:      artifact,
	})
}

// finish ends a session that got as far as the upload.
func (c *Controller) finish(s *session, res Result) {
	s.releaseAll()
	s.result = res
	c.transition(s, StateIdle)

	if res.Err == nil {
		if res.Transcript != "" && c.cb.OnTranscript != nil {
			c.cb.OnTranscript(res.Transcript)
		}
		if res.ScreenSummary != "" && c.cb.OnScreenSummary != nil {
			c.cb.OnScreenSummary(res.ScreenSummary)
		}
	}
	close(s.done)
}

// fail ends a session before the upload. Everything still held is released.
func (c *Controller) fail(s *session, err error) {
	c.transition(s, StateError)
	s.releaseAll()

	c.logger.Warn("Capture failed", "session_id", s.id, "error", err)
	s.result = Result{SessionID: s.id, Err: err}
	c.transition(s, StateIdle)
	close(s.done)
}
