package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/avolkov/thermalscan/internal/api/response"
)

// Recovery converts handler panics into 500 responses. The upload path feeds
// attacker-controlled archives into decoders, so the log keeps enough request
// context to reproduce a crashing submission.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"content_length", r.ContentLength,
					"content_type", r.Header.Get("Content-Type"),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
