package surface

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lw.status == 0 {
		lw.status = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.length += n
	return n, err
}

func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("http.Hijacker interface is not supported")
	}
	return hj.Hijack()
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", lw.status,
			"bytes", lw.length,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

// redactPath masks the access token in /s/{token}/... paths.
func redactPath(p string) string {
	rest, ok := strings.CutPrefix(p, "/s/")
	if !ok || rest == "" {
		return p
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/s/***" + rest[i:]
	}
	return "/s/***"
}
