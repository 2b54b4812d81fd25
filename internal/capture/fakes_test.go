package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/Faiz-k/Intentify/internal/api"
	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/pipeline"
	"github.com/Faiz-k/Intentify/internal/recorder"
	"github.com/Faiz-k/Intentify/internal/surface"
)

const testSessionID = "3f1e2d4c-5b6a-4789-8abc-def012345678"

// tracker counts resources that were acquired and not yet released.
type tracker struct {
	mu       sync.Mutex
	open     map[string]int
	acquired map[string]int
}

func newTracker() *tracker {
	return &tracker{open: map[string]int{}, acquired: map[string]int{}}
}

func (t *tracker) acquire(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[kind]++
	t.acquired[kind]++
}

func (t *tracker) release(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[kind]--
}

func (t *tracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, v := range t.open {
		n += v
	}
	return n
}

func (t *tracker) isOpen(kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[kind] > 0
}

func (t *tracker) count(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquired[kind]
}

type fakeAudio struct {
	tracker *tracker
	packets chan media.AudioPacket
	done    chan struct{}
	once    sync.Once
	err     error
}

func newFakeAudio(tr *tracker, n int) *fakeAudio {
	a := &fakeAudio{
		tracker: tr,
		packets: make(chan media.AudioPacket, n+1),
		done:    make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		a.packets <- media.AudioPacket{
			Data:      []byte{0xfc, 0xff, 0xfe, byte(i)},
			Timestamp: time.Duration(i) * 20 * time.Millisecond,
		}
	}
	tr.acquire("microphone")
	return a
}

func (a *fakeAudio) Packets() <-chan media.AudioPacket { return a.packets }
func (a *fakeAudio) Format() media.AudioFormat {
	return media.AudioFormat{Codec: "opus", SampleRate: 48000, Channels: 1}
}
func (a *fakeAudio) Done() <-chan struct{} { return a.done }
func (a *fakeAudio) Err() error            { return a.err }
func (a *fakeAudio) Stop() error {
	a.once.Do(func() {
		close(a.done)
		a.tracker.release("microphone")
	})
	return nil
}

// end simulates the device going away mid recording.
func (a *fakeAudio) end(err error) {
	a.err = err
	close(a.packets)
}

type fakeScreen struct {
	*pipeline.Broadcaster[media.Frame]
	tracker *tracker
	frame   media.Frame
	has     bool
	done    chan struct{}
	endOnce sync.Once
	once    sync.Once

	mu      sync.Mutex
	stopped bool
}

func newFakeScreen(tr *tracker, f *media.Frame) *fakeScreen {
	s := &fakeScreen{
		Broadcaster: pipeline.NewBroadcaster[media.Frame]("fake_screen"),
		tracker:     tr,
		done:        make(chan struct{}),
	}
	if f != nil {
		s.frame, s.has = *f, true
	}
	tr.acquire("screen")
	return s
}

// LatestFrame behaves like a real capture: a stopped stream has no frame.
func (s *fakeScreen) LatestFrame() (media.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return media.Frame{}, false
	}
	return s.frame, s.has
}

func (s *fakeScreen) Done() <-chan struct{} { return s.done }
func (s *fakeScreen) Err() error            { return nil }

// end simulates the user stopping screen sharing from the OS.
func (s *fakeScreen) end() {
	s.endOnce.Do(func() { close(s.done) })
}

func (s *fakeScreen) Stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.end()
		s.Close()
		s.tracker.release("screen")
	})
	return nil
}

type audioSourceFunc func(ctx context.Context) (media.AudioStream, error)

func (f audioSourceFunc) OpenAudio(ctx context.Context) (media.AudioStream, error) { return f(ctx) }

type screenSourceFunc func(ctx context.Context) (media.ScreenStream, error)

func (f screenSourceFunc) OpenScreen(ctx context.Context) (media.ScreenStream, error) { return f(ctx) }

type fakeSurface struct {
	tracker  *tracker
	signals  chan surface.StopSignal
	degraded error
	once     sync.Once
}

func (s *fakeSurface) URL() string                        { return "http://127.0.0.1:1/s/token/" }
func (s *fakeSurface) Signals() <-chan surface.StopSignal { return s.signals }
func (s *fakeSurface) Degraded() error                    { return s.degraded }
func (s *fakeSurface) Close() error {
	s.once.Do(func() { s.tracker.release("surface") })
	return nil
}

type uploadCall struct {
	sessionID string
	audio     []byte
	screen    []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	calls   []uploadCall
	results []*api.CaptureResult
	errs    []error
	block   chan struct{}
	started chan struct{}
	// nilResult makes successful calls return a nil result.
	nilResult bool
}

func (u *fakeUploader) UploadCapture(ctx context.Context, sessionID string, audio, screen []byte) (*api.CaptureResult, error) {
	u.mu.Lock()
	n := len(u.calls)
	u.calls = append(u.calls, uploadCall{sessionID, audio, screen})
	u.mu.Unlock()

	if u.block != nil {
		if u.started != nil {
			u.started <- struct{}{}
		}
		select {
		case <-u.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var err error
	if n < len(u.errs) {
		err = u.errs[n]
	}
	if err != nil {
		return nil, err
	}
	if u.nilResult {
		return nil, nil
	}
	res := &api.CaptureResult{SessionID: sessionID}
	if n < len(u.results) && u.results[n] != nil {
		res = u.results[n]
	}
	return res, nil
}

func (u *fakeUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func (u *fakeUploader) call(i int) uploadCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[i]
}

type countingExtractor struct {
	inner   *frame.Extractor
	tracker *tracker
	mu      sync.Mutex
	calls   int
	// screenLive records, per call, whether the screen was still held.
	screenLive []bool
}

func (e *countingExtractor) Extract(src frame.Source) (frame.Frame, error) {
	live := e.tracker == nil || e.tracker.isOpen("screen")
	e.mu.Lock()
	e.calls++
	e.screenLive = append(e.screenLive, live)
	e.mu.Unlock()
	return e.inner.Extract(src)
}

func (e *countingExtractor) liveCalls() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.screenLive...)
}

func (e *countingExtractor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var (
	fullHDOnce  sync.Once
	fullHDFrame media.Frame
)

func fullHD(t *testing.T) *media.Frame {
	fullHDOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
		img.Set(10, 10, color.RGBA{B: 255, A: 255})
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, nil))
		fullHDFrame = media.Frame{Data: buf.Bytes(), ContentType: "image/jpeg", Width: 1920, Height: 1080}
	})
	f := fullHDFrame
	return &f
}

type transition struct {
	from, to State
}

// harness wires a controller to fakes. Fields are set before build.
type harness struct {
	t *testing.T

	packets     int
	frame       *media.Frame
	audioErr    error
	screenErr   error
	blockAcq    bool
	noSurface   bool
	surfaceErr  error
	maxDuration time.Duration

	tracker   *tracker
	clock     *clocktesting.FakeClock
	uploader  *fakeUploader
	extractor *countingExtractor

	mu          sync.Mutex
	audio       *fakeAudio
	screen      *fakeScreen
	surface     *fakeSurface
	transitions []transition
	transcripts []string
	summaries   []string
	degraded    []DegradedEvent

	ctrl *Controller
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:        t,
		packets:  150,
		frame:    fullHD(t),
		tracker:  newTracker(),
		clock:    clocktesting.NewFakeClock(time.Now()),
		uploader: &fakeUploader{},
	}
}

func (h *harness) build() *harness {
	audioSrc := audioSourceFunc(func(ctx context.Context) (media.AudioStream, error) {
		if h.blockAcq {
			<-ctx.Done()
			return nil, media.ErrCancelled
		}
		if h.audioErr != nil {
			return nil, h.audioErr
		}
		a := newFakeAudio(h.tracker, h.packets)
		h.mu.Lock()
		h.audio = a
		h.mu.Unlock()
		return a, nil
	})
	screenSrc := screenSourceFunc(func(ctx context.Context) (media.ScreenStream, error) {
		if h.blockAcq {
			<-ctx.Done()
			return nil, media.ErrCancelled
		}
		if h.screenErr != nil {
			// Let the microphone win the race so it has to be released
			time.Sleep(20 * time.Millisecond)
			return nil, h.screenErr
		}
		s := newFakeScreen(h.tracker, h.frame)
		h.mu.Lock()
		h.screen = s
		h.mu.Unlock()
		return s, nil
	})

	h.extractor = &countingExtractor{inner: &frame.Extractor{}, tracker: h.tracker}
	deps := Deps{
		Acquirer: media.NewAcquirer(audioSrc, screenSrc, 0),
		NewRecorder: func(stream media.AudioStream, onData func([]byte)) Recorder {
			return recorder.New(stream, recorder.Options{}, onData)
		},
		Extractor: h.extractor,
		Uploader:  h.uploader,
	}
	if !h.noSurface {
		deps.Surface = SurfaceOpenerFunc(func(ctx context.Context, sessionID string, preview surface.PreviewSource) (Surface, error) {
			if h.surfaceErr != nil {
				return nil, h.surfaceErr
			}
			h.tracker.acquire("surface")
			s := &fakeSurface{tracker: h.tracker, signals: make(chan surface.StopSignal, 1)}
			h.mu.Lock()
			h.surface = s
			h.mu.Unlock()
			return s, nil
		})
	}

	h.ctrl = NewController(deps, Config{MaxDuration: h.maxDuration, Clock: h.clock}, Callbacks{
		OnTranscript: func(s string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transcripts = append(h.transcripts, s)
		},
		OnScreenSummary: func(s string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.summaries = append(h.summaries, s)
		},
		OnStateChange: func(_ string, from, to State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transitions = append(h.transitions, transition{from, to})
		},
		OnDegraded: func(ev DegradedEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.degraded = append(h.degraded, ev)
		},
	})
	return h
}

func (h *harness) wait() (*Result, error) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.ctrl.Wait(ctx)
	require.NotErrorIs(h.t, err, context.DeadlineExceeded, "session did not finish")
	return res, err
}

// drained waits until the recorder consumed every queued packet.
func (h *harness) drained() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.audio != nil && len(h.audio.packets) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func (h *harness) countTransitionsTo(to State) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, tr := range h.transitions {
		if tr.to == to {
			n++
		}
	}
	return n
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []State{}
	for _, tr := range h.transitions {
		out = append(out, tr.to)
	}
	return out
}

func (h *harness) fakeSurface() *fakeSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surface
}
