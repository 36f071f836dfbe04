package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Middleware authenticates admin requests from the session cookie or a
// Bearer token.
type Middleware struct {
	Service    *Service
	CookieName string
}

// RequireAdmin rejects requests without a valid admin session.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
			return
		}
		admin, err := m.Service.ParseToken(m.extractToken(r))
		if err != nil {
			if _, ok := common.AsAppError(err); !ok {
				err = unauthorized(err)
			}
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdmin(r.Context(), admin)))
	})
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.CookieName != "" {
		if cookie, err := r.Cookie(m.CookieName); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
