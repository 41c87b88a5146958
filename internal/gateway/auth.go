package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// authMiddleware returns a chi-compatible middleware that validates a
// Bearer token in constant time. Failed attempts share a token bucket so
// the token cannot be brute-forced quickly.
func authMiddleware(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	failures := rate.NewLimiter(rate.Every(time.Second), 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if ok && constantTimeEqual(after, token) {
				next.ServeHTTP(w, r)
				return
			}

			if !failures.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			logger.Warn("unauthorized request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
