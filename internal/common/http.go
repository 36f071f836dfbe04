package common

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP returns the host part of RemoteAddr. Forwarded headers are only
// honoured through middleware.RealIP, which is mounted when the proxy in front
// of the service is trusted.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Origin derives the public origin of the site that issued the request.
// The Origin header wins, then the configured fallback, then the Host header.
func Origin(r *http.Request, fallback string) string {
	if origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/"); origin != "" && origin != "null" {
		return origin
	}
	if fb := strings.TrimRight(strings.TrimSpace(fallback), "/"); fb != "" {
		return fb
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// LimitParam reads ?limit= clamped to [1, max], defaulting to def.
func LimitParam(r *http.Request, def, max int) int {
	limit := QueryInt(r, "limit", def)
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// FormatCents renders minor units as a decimal string, e.g. 45000 -> "450.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) < 2 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + frac
}

// QueryInt reads an integer query parameter, returning def when it is absent
// or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return def
	}
	return v
}
