package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/x3na-dev/x3na/internal/observability"
)

// callerKeyHeader identifies the acting participant, operator, or admin on
// every mutating request. The engine's capability table decides what the
// key may do; the server only carries it through.
const callerKeyHeader = "X-Caller-Key"

func callerKey(r *http.Request) string {
	return r.Header.Get(callerKeyHeader)
}

// requestLogging logs method, route, status, and latency for every request
// and feeds the HTTP metrics.
func requestLogging(log zerolog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			if metrics != nil {
				metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rw.status)).Inc()
				metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("duration", elapsed).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// requireCaller rejects mutating requests that carry no caller key.
func requireCaller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if callerKey(r) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": fmt.Sprintf("missing %s header", callerKeyHeader),
			})
			return
		}
		next(w, r)
	}
}
