// Package surface serves the detached control window shown while a capture
// is recording. The window lives in the user's browser and talks back over
// a same-origin websocket.
package surface

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gorilla/websocket"
	"github.com/pkg/browser"
	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/procgroup"
	"github.com/Faiz-k/Intentify/internal/util"
)

// StopMessageType identifies the stop message sent by the control page.
const StopMessageType = "intentify-stop-capture"

// StopSignal is the single message the control page sends.
type StopSignal struct {
	Type string `json:"type"`
}

// PreviewSource feeds the live preview of the control page.
type PreviewSource interface {
	LatestFrame() (media.Frame, bool)
	Subscribe(subscriberID string, bufferSize int) <-chan media.Frame
	Unsubscribe(subscriberID string)
}

// Options configures how control surfaces are served and shown.
type Options struct {
	// Addr is the listen address, 127.0.0.1:0 when empty.
	Addr string

	// BrowserCommand launches the window instead of the default browser.
	// "{url}" is replaced by the page URL, which is appended otherwise.
	BrowserCommand string

	// OpenBrowser opens a URL in the default browser.
	OpenBrowser func(url string) error
}

//go:embed control.html
var controlPage string

var controlTemplate = template.Must(template.New("control").Parse(controlPage))

// Opener opens one control surface per capture session.
type Opener struct {
	opts Options
}

func NewOpener(opts Options) *Opener {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = browser.OpenURL
	}
	return &Opener{opts: opts}
}

// Open starts serving the control page and shows it. A failure to listen is
// returned as an error. A failure to show the window is not: the returned
// handle reports it through Degraded and keeps serving so the user can open
// the URL manually.
func (o *Opener) Open(ctx context.Context, sessionID string, preview PreviewSource) (*Handle, error) {
	ln, err := net.Listen("tcp", o.opts.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen for control surface")
	}

	h := &Handle{
		sessionID: sessionID,
		token:     uniuri.NewLen(32),
		preview:   preview,
		signals:   make(chan StopSignal, 1),
		closing:   make(chan struct{}),
		conns:     make(map[*wsConn]struct{}),
		logger:    util.ComponentLogger("surface").With("session_id", sessionID),
	}
	h.url = fmt.Sprintf("http://%s/s/%s/", ln.Addr().String(), h.token)
	h.upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /s/{token}/{$}", h.authorized(h.handlePage))
	mux.HandleFunc("GET /s/{token}/ws", h.authorized(h.handleWebSocket))
	mux.HandleFunc("GET /s/{token}/preview", h.authorized(h.handlePreview))

	h.server = &http.Server{
		Handler:           loggingMiddleware(h.logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.served = make(chan struct{})
	go func() {
		defer close(h.served)
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Warn("Control surface server stopped", "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		h.Close()
		return nil, err
	}

	if err := o.show(h); err != nil {
		h.degraded = err
		h.logger.Warn("Failed to show control surface", "addr", ln.Addr().String(), "error", err)
	} else {
		h.logger.Info("Control surface opened", "addr", ln.Addr().String())
	}
	return h, nil
}

func (o *Opener) show(h *Handle) error {
	if o.opts.BrowserCommand == "" {
		return o.opts.OpenBrowser(h.url)
	}

	args := strings.Fields(o.opts.BrowserCommand)
	replaced := false
	for i, a := range args {
		if strings.Contains(a, "{url}") {
			args[i] = strings.ReplaceAll(a, "{url}", h.url)
			replaced = true
		}
	}
	if !replaced {
		args = append(args, h.url)
	}

	cmd := exec.Command(args[0], args[1:]...)
	procgroup.Isolate(cmd)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to launch %s", args[0])
	}
	h.window = cmd
	go cmd.Wait()
	return nil
}

// sameOrigin only lets the control page itself open the websocket.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Handle is an open control surface.
type Handle struct {
	sessionID string
	token     string
	url       string
	preview   PreviewSource
	degraded  error
	logger    *slog.Logger

	server   *http.Server
	served   chan struct{}
	upgrader websocket.Upgrader
	window   *exec.Cmd

	signals    chan StopSignal
	signalOnce sync.Once

	mu        sync.Mutex
	conns     map[*wsConn]struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

// URL of the control page.
func (h *Handle) URL() string { return h.url }

// Signals delivers at most one stop signal.
func (h *Handle) Signals() <-chan StopSignal { return h.signals }

// Degraded is non-nil when the window could not be shown.
func (h *Handle) Degraded() error { return h.degraded }

// Close tells connected pages to close, stops serving and terminates the
// window process if this surface launched one. It is safe to call more
// than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closing)

		h.mu.Lock()
		conns := make([]*wsConn, 0, len(h.conns))
		for c := range h.conns {
			conns = append(conns, c)
		}
		h.mu.Unlock()
		for _, c := range conns {
			c.writeJSON(map[string]string{"type": "close"})
			c.conn.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			h.server.Close()
		}
		<-h.served

		if h.window != nil && h.window.Process != nil {
			_ = h.window.Process.Kill()
		}
		h.logger.Info("Control surface closed")
	})
	return nil
}

func (h *Handle) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.PathValue("token")), []byte(h.token)) != 1 {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

func (h *Handle) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := controlTemplate.Execute(w, struct {
		SessionID string
		StopType  string
	}{h.sessionID, StopMessageType})
	if err != nil {
		h.logger.Warn("Failed to render control page", "error", err)
	}
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	return c.conn.WriteJSON(v)
}

func (h *Handle) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade control websocket", "error", err)
		return
	}
	c := &wsConn{conn: conn}

	h.mu.Lock()
	select {
	case <-h.closing:
		h.mu.Unlock()
		c.writeJSON(map[string]string{"type": "close"})
		conn.Close()
		return
	default:
	}
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg StopSignal
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Control websocket closed", "error", err)
			}
			return
		}

		switch msg.Type {
		case StopMessageType:
			h.deliver(msg)
		default:
			h.logger.Debug("Ignoring control message", "type", msg.Type)
		}
	}
}

func (h *Handle) deliver(sig StopSignal) {
	delivered := false
	h.signalOnce.Do(func() {
		h.signals <- sig
		delivered = true
	})
	if delivered {
		h.logger.Info("Stop requested from control surface")
	} else {
		h.logger.Debug("Duplicate stop signal ignored")
	}
}

func (h *Handle) handlePreview(w http.ResponseWriter, r *http.Request) {
	if h.preview == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	subscriberID := "preview-" + uniuri.New()
	frames := h.preview.Subscribe(subscriberID, 2)
	defer h.preview.Unsubscribe(subscriberID)

	mw := newMJPEGWriter(w)
	w.Header().Set("Content-Type", mw.contentType())
	w.Header().Set("Cache-Control", "no-store")

	if f, ok := h.preview.LatestFrame(); ok {
		if err := mw.writeFrame(f); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := mw.writeFrame(f); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
