package util

import (
	"net/http"
	"strings"
	"time"
)

// responseMeta records what the handler actually sent. Report uploads and
// summaries vary wildly in size, so the byte count ends up in the log line.
type responseMeta struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (m *responseMeta) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeta) Write(p []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(p)
	m.bytes += n
	return n, err
}

// WithRequestLog emits one structured line per request. It logs through the
// context logger, so when WithRequestID wraps this middleware the line
// carries the request_id automatically.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meta := &responseMeta{ResponseWriter: w}
		next.ServeHTTP(meta, r)

		status := meta.status
		if status == 0 {
			status = http.StatusOK
		}
		LoggerFromContext(r.Context()).Info(
			"http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", meta.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
