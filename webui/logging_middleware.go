package webui

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingMiddleware writes one structured log line per HTTP request.
type LoggingMiddleware struct {
	logger       *zap.Logger
	skipPaths    map[string]bool
	logUserAgent bool
}

// LoggingMiddlewareConfig configures a LoggingMiddleware.
type LoggingMiddlewareConfig struct {
	Logger *zap.Logger

	// SkipPaths are not logged (e.g. health checks polled by monitors)
	SkipPaths []string

	LogUserAgent bool
}

// NewLoggingMiddleware creates a request logger.
func NewLoggingMiddleware(config LoggingMiddlewareConfig) *LoggingMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipPaths[p] = true
	}

	return &LoggingMiddleware{
		logger:       logger.Named("http"),
		skipPaths:    skipPaths,
		logUserAgent: config.LogUserAgent,
	}
}

// Handler wraps next with request logging. 5xx responses log at error
// level, 4xx at warn, everything else at debug.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", getClientIP(r)),
			zap.Int64("bytes", wrapped.bytesWritten),
		}
		if m.logUserAgent {
			fields = append(fields, zap.String("user_agent", r.UserAgent()))
		}
		if ce := m.logger.Check(levelForStatus(wrapped.statusCode), "request"); ce != nil {
			ce.Write(fields...)
		}
	})
}

func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.DebugLevel
	}
}

// responseWriterWrapper captures the status code and body size.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.wroteHeader = true
	w.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// getClientIP prefers proxy headers over the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
