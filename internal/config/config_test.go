package config_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/config"
)

func setEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	env := map[string]string{
		"APP_ENV":               "development",
		"PORT":                  "",
		"DATABASE_URL":          "postgres://localhost/coastmedia",
		"REDIS_URL":             "redis://localhost:6379/0",
		"ADMIN_JWT_SECRET":      "secret",
		"ADMIN_SESSION_TTL":     "",
		"PAYMENT_PROVIDER":      "",
		"STRIPE_SECRET_KEY":     "",
		"STRIPE_WEBHOOK_SECRET": "",
		"CART_TTL":              "",
		"COOKIE_SAMESITE":       "",
		"COOKIE_SECURE":         "",
		"BREAKER_FAILURE_RATIO": "",
		"CORS_ALLOWED_ORIGINS":  "",
		"PUBLIC_BASE_URL":       "",
		"TRUST_PROXY_HEADERS":   "",
	}
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, nil)
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 168*time.Hour, cfg.AdminSessionTTL)
	require.Equal(t, "admin_session", cfg.AdminCookieName)
	require.Equal(t, 720*time.Hour, cfg.CartTTL)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, 0.5, cfg.BreakerFailureRatio)
	require.Equal(t, "sandbox", cfg.PaymentProvider, "stripe without a key falls back to sandbox outside production")
}

func TestLoadRequiresSecrets(t *testing.T) {
	setEnv(t, map[string]string{"ADMIN_JWT_SECRET": ""})
	_, err := config.Load()
	require.EqualError(t, err, "ADMIN_JWT_SECRET is required")

	setEnv(t, map[string]string{"APP_ENV": "production"})
	_, err = config.Load()
	require.EqualError(t, err, "STRIPE_SECRET_KEY is required")

	setEnv(t, map[string]string{
		"APP_ENV":               "production",
		"STRIPE_SECRET_KEY":     "sk_live_x",
		"STRIPE_WEBHOOK_SECRET": "whsec_x",
	})
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "stripe", cfg.PaymentProvider)
	require.True(t, cfg.CookieSecure)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setEnv(t, map[string]string{"PAYMENT_PROVIDER": "paypal"})
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadReportsMalformedValues(t *testing.T) {
	setEnv(t, map[string]string{
		"CART_TTL":              "30 days",
		"BREAKER_FAILURE_RATIO": "2",
		"COOKIE_SECURE":         "maybe",
	})
	_, err := config.Load()
	require.ErrorContains(t, err, "CART_TTL")
	require.ErrorContains(t, err, "BREAKER_FAILURE_RATIO")
	require.ErrorContains(t, err, "COOKIE_SECURE")
}

func TestLoadStoresSkipsSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coastmedia")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("CATALOG_CACHE_TTL", "")

	st, err := config.LoadStores()
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/coastmedia", st.DatabaseURL)
	require.Empty(t, st.RedisURL)
	require.Equal(t, time.Minute, st.CatalogCacheTTL)

	t.Setenv("DATABASE_URL", "")
	_, err = config.LoadStores()
	require.Error(t, err)
}

func TestCORSOriginsNeverWildcard(t *testing.T) {
	setEnv(t, nil)
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Empty(t, cfg.CORSOrigins())
	require.False(t, cfg.TrustProxyHeaders)

	setEnv(t, map[string]string{"PUBLIC_BASE_URL": "https://1coastmedia.com/"})
	cfg, err = config.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://1coastmedia.com"}, cfg.CORSOrigins())

	setEnv(t, map[string]string{
		"PUBLIC_BASE_URL":      "https://1coastmedia.com",
		"CORS_ALLOWED_ORIGINS": "*, https://admin.1coastmedia.com/",
		"TRUST_PROXY_HEADERS":  "true",
	})
	cfg, err = config.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://admin.1coastmedia.com"}, cfg.CORSOrigins())
	require.True(t, cfg.TrustProxyHeaders)
}
