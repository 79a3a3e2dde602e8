package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WithAPIKey wraps next with header-based API-key auth. Requests under
// /public/ bypass the check. An empty key disables auth entirely.
func WithAPIKey(header, key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/public/") {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(header)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
