package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/coastmedia-api/internal/ratelimit"
)

const testSecret = "test-secret-value"

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	if cfg.Username == "" {
		cfg.Username = "owner"
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		cfg.Password = "hunter2"
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func login(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.7:1234"
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginIssuesSessionAndCSRFCookies(t *testing.T) {
	svc := newTestService(t, Config{})
	h := &Handler{Service: svc, CookieName: "admin_session", CookieSameSite: http.SameSiteLaxMode}

	rec := login(h, `{"username":"owner","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	session := cookieNamed(rec, "admin_session")
	require.NotNil(t, session)
	require.True(t, session.HttpOnly)
	csrf := cookieNamed(rec, CSRFCookieName)
	require.NotNil(t, csrf)
	require.False(t, csrf.HttpOnly)

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "owner", body.Data["username"])
	require.Equal(t, csrf.Value, body.Data["csrf_token"])

	admin, err := svc.ParseToken(session.Value)
	require.NoError(t, err)
	require.Equal(t, "owner", admin.Username)
	require.Equal(t, RoleAdmin, admin.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := &Handler{Service: newTestService(t, Config{}), CookieName: "admin_session"}
	for _, body := range []string{
		`{"username":"owner","password":"wrong"}`,
		`{"username":"someone","password":"hunter2"}`,
	} {
		rec := login(h, body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"Invalid credentials","code":"INVALID_CREDENTIALS"}`, rec.Body.String())
		require.Nil(t, cookieNamed(rec, "admin_session"))
	}
}

func TestLoginWithArgon2Hash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	svc := newTestService(t, Config{PasswordHash: hash, Password: "ignored"})

	_, err = svc.Login("owner", "correct horse")
	require.NoError(t, err)
	_, err = svc.Login("owner", "ignored")
	require.Error(t, err)
}

func TestLoginThrottle(t *testing.T) {
	limiter, err := ratelimit.NewLoginLimiter(memory.NewStore(), "2-M")
	require.NoError(t, err)
	h := &Handler{Service: newTestService(t, Config{}), Throttle: limiter, CookieName: "admin_session"}

	require.Equal(t, http.StatusUnauthorized, login(h, `{"username":"owner","password":"x"}`).Code)
	require.Equal(t, http.StatusUnauthorized, login(h, `{"username":"owner","password":"x"}`).Code)
	rec := login(h, `{"username":"owner","password":"hunter2"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginThrottleIgnoresForwardedFor(t *testing.T) {
	limiter, err := ratelimit.NewLoginLimiter(memory.NewStore(), "2-M")
	require.NoError(t, err)
	h := &Handler{Service: newTestService(t, Config{}), Throttle: limiter, CookieName: "admin_session"}

	codes := make([]int, 0, 4)
	for i := range 4 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", strings.NewReader(`{"username":"owner","password":"x"}`))
		req.RemoteAddr = "198.51.100.7:5000"
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRequireAdmin(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, Config{SessionTTL: time.Hour})
	svc.WithNow(func() time.Time { return now })
	sess, err := svc.Login("owner", "hunter2")
	require.NoError(t, err)

	mw := Middleware{Service: svc, CookieName: "admin_session"}
	me := mw.RequireAdmin(http.HandlerFunc((&Handler{}).Me))

	call := func(mod func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/me", nil)
		mod(req)
		rec := httptest.NewRecorder()
		me.ServeHTTP(rec, req)
		return rec
	}

	rec := call(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "admin_session", Value: sess.Token}) })
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"username":"owner","role":"admin"}}`, rec.Body.String())

	rec = call(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sess.Token) })
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusUnauthorized, call(func(*http.Request) {}).Code)
	require.Equal(t, http.StatusUnauthorized, call(func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	}).Code)

	now = now.Add(2 * time.Hour)
	require.Equal(t, http.StatusUnauthorized, call(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "admin_session", Value: sess.Token})
	}).Code, "expired sessions are refused")
}

func TestParseTokenRequiresAdminRole(t *testing.T) {
	svc := newTestService(t, Config{})
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject("owner").
		Issuer("coastmedia-api").
		Audience([]string{"coastmedia-admin"}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("role", "editor").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	_, err = svc.ParseToken(string(signed))
	require.Error(t, err)
	require.Contains(t, err.Error(), "admin role required")

	other, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("another-secret")))
	require.NoError(t, err)
	_, err = svc.ParseToken(string(other))
	require.Error(t, err)

	hs512, err := jwt.Sign(tok, jwt.WithKey(jwa.HS512, []byte(testSecret)))
	require.NoError(t, err)
	_, err = svc.ParseToken(string(hs512))
	require.Error(t, err, "only HS256 is accepted")
}

func TestLogoutClearsCookies(t *testing.T) {
	h := &Handler{CookieName: "admin_session"}
	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/logout", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, -1, cookieNamed(rec, "admin_session").MaxAge)
	require.Equal(t, -1, cookieNamed(rec, CSRFCookieName).MaxAge)
}

func TestNewServiceRequiresSecretAndCredentials(t *testing.T) {
	_, err := NewService(Config{Username: "a", Password: "b"})
	require.Error(t, err)
	_, err = NewService(Config{Secret: "s", Password: "b"})
	require.Error(t, err)
	_, err = NewService(Config{Secret: "s", Username: "a"})
	require.Error(t, err)
}
