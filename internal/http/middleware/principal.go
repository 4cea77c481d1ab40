package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/booking"
)

type principalKey struct{}

// Principal extracts the authenticated actor from the headers set by the
// upstream auth layer. Requests without an identity are rejected; the
// scheduling core never guesses who is calling.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			http.Error(w, "missing or invalid user identity", http.StatusUnauthorized)
			return
		}
		role := booking.Role(r.Header.Get("X-User-Role"))
		switch role {
		case booking.RolePatient, booking.RoleProvider:
		default:
			http.Error(w, "missing or invalid user role", http.StatusUnauthorized)
			return
		}
		p := booking.Principal{ID: id, Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// PrincipalFrom returns the actor attached by the Principal middleware.
func PrincipalFrom(ctx context.Context) (booking.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(booking.Principal)
	return p, ok
}
