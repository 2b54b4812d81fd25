// Package api is the client of the Intentify backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/Faiz-k/Intentify/config"
	"github.com/Faiz-k/Intentify/internal/profile"
	"github.com/Faiz-k/Intentify/internal/util"
	"github.com/Faiz-k/Intentify/internal/version"
)

// Multipart layout of a capture upload.
const (
	AudioField       = "audio"
	AudioFilename    = "audio.webm"
	AudioContentType = "audio/webm"
	ScreenField      = "screen"
	ScreenFilename   = "screenshot.png"
	ScreenContent    = "image/png"
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api responded %d", e.StatusCode)
	}
	return fmt.Sprintf("api responded %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey authenticates every request with a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey != "" {
		base := c.httpClient
		c.httpClient = &http.Client{
			Timeout:       base.Timeout,
			CheckRedirect: base.CheckRedirect,
			Jar:           base.Jar,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.apiKey, TokenType: "Bearer"}),
				Base:   base.Transport,
			},
		}
	}
	return c
}

// NewFromConfig creates a client for the current profile, falling back to
// the configured endpoint when no profile is selected. An explicitly given
// endpoint (flag, environment or config file) wins over the profile's base
// URL while the profile still supplies the API key.
func NewFromConfig() (*Client, error) {
	pm, err := profile.Default()
	if err != nil {
		return nil, err
	}

	baseURL := config.GetAPIURL()
	var opts []Option
	if p := pm.GetCurrent(); p != nil {
		if !config.APIURLOverridden() {
			baseURL = pm.GetEffectiveBaseURL()
		}
		key, err := pm.GetCurrentAPIKey()
		if err != nil {
			return nil, errors.Wrapf(err, "profile %s", pm.GetCurrentProfileID())
		}
		if key != "" {
			opts = append(opts, WithAPIKey(key))
		}
	}
	return New(baseURL, opts...), nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// StartSession creates a new session.
func (c *Client) StartSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("session", "start"), struct{}{}, &s); err != nil {
		return nil, errors.Wrap(err, "failed to start session")
	}
	return &s, nil
}

// GetSession fetches a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("session", sessionID), nil, &s); err != nil {
		return nil, errors.Wrapf(err, "failed to get session %s", sessionID)
	}
	return &s, nil
}

// GeneratePrompts asks the backend to turn a session into prompts.
func (c *Client) GeneratePrompts(ctx context.Context, sessionID string, req GenerateRequest) (*Prompts, error) {
	var p Prompts
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("prompts", sessionID, "generate"), req, &p); err != nil {
		return nil, errors.Wrapf(err, "failed to generate prompts for session %s", sessionID)
	}
	return &p, nil
}

// Models reports the availability of the backend's inference models.
func (c *Client) Models(ctx context.Context) (*ModelStatus, error) {
	var m ModelStatus
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("health", "models"), nil, &m); err != nil {
		return nil, errors.Wrap(err, "failed to check models")
	}
	return &m, nil
}

// UploadCapture sends the recorded audio and the still frame in one
// request. Empty audio is left out of the form.
func (c *Client) UploadCapture(ctx context.Context, sessionID string, audio, screen []byte) (*CaptureResult, error) {
	var files []formFile
	if len(audio) > 0 {
		files = append(files, formFile{AudioField, AudioFilename, AudioContentType, audio})
	}
	if len(screen) > 0 {
		files = append(files, formFile{ScreenField, ScreenFilename, ScreenContent, screen})
	}
	if len(files) == 0 {
		return nil, errors.New("nothing to upload")
	}

	var res CaptureResult
	if err := c.doMultipart(ctx, c.endpoint("session", sessionID, "capture"), files, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to upload capture for session %s", sessionID)
	}
	return &res, nil
}

// UploadAudio transcribes a standalone recording into the session.
func (c *Client) UploadAudio(ctx context.Context, sessionID string, audio []byte) (*CaptureResult, error) {
	if len(audio) == 0 {
		return nil, errors.New("audio is empty")
	}
	var res CaptureResult
	files := []formFile{{"file", AudioFilename, AudioContentType, audio}}
	if err := c.doMultipart(ctx, c.endpoint("session", sessionID, "audio"), files, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to upload audio for session %s", sessionID)
	}
	return &res, nil
}

// UploadScreen describes a standalone screenshot into the session.
func (c *Client) UploadScreen(ctx context.Context, sessionID string, screen []byte) (*CaptureResult, error) {
	if len(screen) == 0 {
		return nil, errors.New("screenshot is empty")
	}
	var res CaptureResult
	files := []formFile{{"file", ScreenFilename, ScreenContent, screen}}
	if err := c.doMultipart(ctx, c.endpoint("session", sessionID, "screen"), files, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to upload screen for session %s", sessionID)
	}
	return &res, nil
}

type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func (c *Client) doMultipart(ctx context.Context, target string, files []formFile, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return errors.Wrapf(err, "failed to create form part %s", f.field)
		}
		if _, err := part.Write(f.data); err != nil {
			return errors.Wrapf(err, "failed to write form part %s", f.field)
		}
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "failed to finish form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return errors.Wrapf(err, "failed to create request from url: %s", target)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrapf(err, "failed to create request from url: %s", target)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	logger := util.ComponentLogger("api")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logger.Debug("API request", "method", req.Method, "url", req.URL.String(), "content_length", req.ContentLength)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
		logger.Debug("API error", "status", resp.StatusCode, "detail", apiErr.Detail)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

// parseDetail extracts the "detail" field of an error body. Validation
// errors carry a list there, which is kept as raw JSON.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
