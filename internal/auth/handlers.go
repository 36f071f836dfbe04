package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// CSRFCookieName is the double-submit cookie checked by security.CSRF.
const CSRFCookieName = "X-CSRF-Token"

// Throttle limits login attempts per client.
type Throttle interface {
	Take(ctx context.Context, key string) (bool, time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// Handler exposes the admin session endpoints.
type Handler struct {
	Service        *Service
	Throttle       Throttle
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	Logger         zerolog.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	ip := common.ClientIP(r)
	if h.Throttle != nil {
		ok, wait, err := h.Throttle.Take(r.Context(), "login:"+ip)
		if err != nil {
			h.Logger.Warn().Err(err).Msg("login limiter unavailable")
		} else if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts", nil)
			return
		}
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Service.Login(req.Username, req.Password)
	if err != nil {
		h.Logger.Info().Str("remote_ip", ip).Msg("admin login rejected")
		common.WriteError(w, err)
		return
	}
	if h.Throttle != nil {
		if err := h.Throttle.Reset(r.Context(), "login:"+ip); err != nil {
			h.Logger.Warn().Err(err).Msg("reset login limiter")
		}
	}
	csrf, err := newCSRFToken()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.setCookie(w, h.CookieName, sess.Token, sess.ExpiresAt, true)
	h.setCookie(w, CSRFCookieName, csrf, sess.ExpiresAt, false)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"username":   sess.Admin.Username,
			"role":       sess.Admin.Role,
			"expires_at": sess.ExpiresAt,
			"csrf_token": csrf,
		},
	})
}

// Logout handles POST /api/v1/admin/logout.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.clearCookie(w, h.CookieName, true)
	h.clearCookie(w, CSRFCookieName, false)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/admin/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	admin, ok := common.AdminFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": admin})
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, expires time.Time, httpOnly bool) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string, httpOnly bool) {
	if name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   h.CookieDomain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}

func newCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
