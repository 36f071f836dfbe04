package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()"},
}

// Headers sets response headers suited to a JSON API. Strict-Transport-Security
// is only sent on requests that arrived over HTTPS.
type Headers struct {
	HSTS       bool
	HSTSMaxAge time.Duration
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	hsts := fmt.Sprintf("max-age=%d; includeSubDomains", int64(maxAge.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for _, kv := range apiHeaders {
			out.Set(kv[0], kv[1])
		}
		if h.HSTS && overTLS(r) {
			out.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
