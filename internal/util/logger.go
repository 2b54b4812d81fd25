package util

import (
	"fmt"
	"log"
	"log/slog"
)

// ComponentLogger returns the global logger tagged with a component name.
func ComponentLogger(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// Logger wraps slog and provides traditional log.Printf style methods
type Logger struct {
	slogLogger *slog.Logger
}

// GetCompatLogger returns a logger that provides both slog and traditional log.Printf style methods
func GetCompatLogger() *Logger {
	return &Logger{
		slogLogger: GetLogger(),
	}
}

// Printf provides log.Printf compatibility while using slog internally
func (l *Logger) Printf(format string, v ...interface{}) {
	l.slogLogger.Info(fmt.Sprintf(format, v...))
}

// SetupGlobalLogger routes the standard log package through slog so that
// libraries logging with log.Printf end up in the same stream.
func SetupGlobalLogger() {
	logger := GetCompatLogger()
	log.SetFlags(0)
	log.SetOutput(&logWriter{logger: logger.slogLogger})
}

type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	w.logger.Debug(msg)
	return len(p), nil
}
