package middleware

import (
	"context"
	"net/http"
)

type allowFunc interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}

// RateLimit rejects callers that exceed the shared request allowance with
// 429. The limiter is backed by redis so the window holds across
// instances; identity comes from the authenticated principal when
// present, falling back to client IP for unauthenticated routes.
func RateLimit(limiter allowFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				clientID = xri
			}
			if p, ok := PrincipalFrom(r.Context()); ok {
				clientID = p.ID.String()
			}
			ok, _ := limiter.Allow(r.Context(), clientID)
			if !ok {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
