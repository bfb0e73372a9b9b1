// Package auth guards the admin API with a shared key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAPIKey is chi middleware that accepts "Authorization: Bearer <key>"
// or "X-API-Key: <key>". An empty key rejects every request.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || !valid(presented(r), key) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="phishguard"`)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presented(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	// EventSource cannot set headers
	return r.URL.Query().Get("api_key")
}

func valid(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
