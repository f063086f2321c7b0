package gateway

import (
	"net/http"
	"runtime/debug"
	"time"
)

// recoverer turns a panicking handler into a 500 and logs the stack. A bad
// request must never take the process down.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.metrics.RecordError("http", "panic")
				s.logger.ErrorContext(r.Context(), "http handler panic",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			s.logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()
		next.ServeHTTP(w, r)
	})
}
