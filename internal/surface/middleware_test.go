package surface

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/s/abcdef/", "/s/***/"},
		{"/s/abcdef/ws", "/s/***/ws"},
		{"/s/abcdef", "/s/***"},
		{"/s/", "/s/"},
		{"/favicon.ico", "/favicon.ico"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactPath(tt.path), tt.path)
	}
}

func TestLoggingMiddlewareHidesToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s/Zq81mXc0VbLr7TnPq2WsYe4UoIa9KdHf/preview", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotContains(t, buf.String(), "Zq81mXc0VbLr7TnPq2WsYe4UoIa9KdHf")
	assert.Contains(t, buf.String(), "path=/s/***/preview")
	assert.Contains(t, buf.String(), "status=418")
}
