package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/obs"
)

// Config describes one limited route group.
type Config struct {
	// Name labels metrics and prefixes keys.
	Name   string
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// PerMinute limits each client IP to max requests per minute.
func PerMinute(name string, max int) Config {
	return Config{Name: name, Key: ByClientIP, Window: time.Minute, Max: max}
}

// ByClientIP keys requests by the caller's address.
func ByClientIP(r *http.Request) string {
	return common.ClientIP(r)
}

// Handler enforces a Config in front of the next handler. Limiter failures
// are logged and the request is let through.
type Handler struct {
	Limiter Allower
	Config  Config
	Logger  zerolog.Logger
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.Name + ":" + h.Config.Key(r)
		d, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			h.Logger.Warn().Err(err).Str("limiter", h.Config.Name).Msg("rate limiter unavailable")
			obs.Inc(obs.RateLimitTotal, h.Config.Name, "error")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(h.Config.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			obs.Inc(obs.RateLimitTotal, h.Config.Name, "limited")
			WriteLimited(w, time.Until(d.ResetAt))
			return
		}
		obs.Inc(obs.RateLimitTotal, h.Config.Name, "allowed")
		next.ServeHTTP(w, r)
	})
}

// WriteLimited sends the 429 response with a Retry-After header.
func WriteLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
}
