package middleware

import (
	"net/http"
	"strings"
)

// defaultCORSHeaders covers the JSON API plus the principal headers the
// authenticated routes require.
var defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-User-ID", "X-User-Role"}

// CORSOptions configures the CORS middleware. An origin of "*" allows
// any origin; empty AllowedHeaders falls back to the API defaults.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedHeaders []string
}

// CORS answers cross-origin requests for the configured origin allowlist
// and short-circuits preflights.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			allowAny = true
		default:
			allowed[origin] = struct{}{}
		}
	}

	headers := opts.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	headerList := strings.Join(headers, ", ")
	const methodList = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, listed := allowed[origin]
			if origin != "" && (allowAny || listed) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", headerList)
				h.Set("Access-Control-Allow-Methods", methodList)
				h.Set("Access-Control-Max-Age", "600")
			}

			if isPreflight(r, origin) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPreflight(r *http.Request, origin string) bool {
	return r.Method == http.MethodOptions && origin != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}
