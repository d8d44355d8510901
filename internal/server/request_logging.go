package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *loggingResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestID picks the upstream trace id when present.
func requestID(r *http.Request) string {
	for _, header := range []string{"X-Amzn-Trace-Id", requestIDHeader} {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return "dev-" + uuid.NewString()
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isHealthPath(path string) bool {
	return path == "/" || path == "/.well-known/healthcheck.json"
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		w.Header().Set(requestIDHeader, id)

		state := &requestState{
			id:     id,
			logger: s.log().With("req_id", id, "req_ip", clientIP(r)),
		}
		r = r.WithContext(withRequestState(r.Context(), state))

		if isHealthPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &loggingResponseWriter{ResponseWriter: w}
		state.logger.Debug("request", "method", r.Method, "uri", r.RequestURI, "user_agent", r.UserAgent())
		next.ServeHTTP(rw, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.Status(),
			"size", rw.size,
			"ms", float64(time.Since(start).Microseconds()) / 1000,
		}
		if state.errName != "" {
			fields = append(fields, "err_code", state.errName)
		}

		if rw.Status() >= 500 {
			state.logger.Error("response", fields...)
			return
		}
		state.logger.Info("response", fields...)
	})
}
