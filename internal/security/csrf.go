package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// CSRF enforces the double-submit pattern on cookie-authenticated writes:
// the header value must equal the cookie of the same name. Bearer requests
// are exempt.
type CSRF struct {
	Name string
}

// Middleware rejects unsafe methods whose token is missing or mismatched.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "X-CSRF-Token"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if auth := strings.TrimSpace(r.Header.Get("Authorization")); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(name))
		cookie, err := r.Cookie(name)
		if token == "" || err != nil || cookie.Value == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REQUIRED", "missing csrf token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
