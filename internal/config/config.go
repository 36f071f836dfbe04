package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	PublicBaseURL      string
	CORSAllowedOrigins []string
	MigrateOnStart     bool
	TrustProxyHeaders  bool

	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string
	AdminJWTSecret    string
	AdminSessionTTL   time.Duration
	AdminCookieName   string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	PaymentProvider     string
	StripeSecretKey     string
	StripeWebhookSecret string
	SandboxWebhookKey   string
	GatewayTimeout      time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	CatalogCacheTTL   time.Duration
	CartTTL           time.Duration
	IdempotencyTTL    time.Duration
	WebhookReplayTTL  time.Duration
	AnalyticsCacheTTL time.Duration

	CheckoutRateLimit int
	LeadRateLimit     int
	PageviewRateLimit int
	RateLimitWindow   time.Duration
	LoginRateLimit    string
	BodyLimitBytes    int64

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	AdminNotifyEmail   string
	WorkerConcurrency  int
	LockTTL            time.Duration

	Obs Observability
}

// Observability groups logging, metrics, tracing and operational timings.
type Observability struct {
	LogFormat string
	LogLevel  string

	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string

	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TraceSampleRatio  float64
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	ReadyDBTimeout    time.Duration
	ReadyRedisTimeout time.Duration
	ShutdownDrain     time.Duration
}

func loadObservability(src *source) Observability {
	return Observability{
		LogFormat:         src.str("OBS_LOG_FORMAT", "json"),
		LogLevel:          src.str("OBS_LOG_LEVEL", "info"),
		MetricsEnabled:    src.boolean("OBS_ENABLE_PROMETHEUS", true),
		MetricsNamespace:  src.str("OBS_METRICS_NAMESPACE", "coastmedia"),
		MetricsBuckets:    src.str("OBS_METRICS_BUCKETS_MS", ""),
		TracingEnabled:    src.boolean("OBS_ENABLE_TRACING", true),
		TracingExporter:   src.str("OBS_TRACING_EXPORTER", "otlp"),
		OTLPEndpoint:      src.str("OBS_OTLP_ENDPOINT", ""),
		TraceSampleRatio:  src.float("OBS_TRACING_SAMPLING_RATIO", 1),
		PprofEnabled:      src.boolean("OBS_ENABLE_PPROF", false),
		PprofUser:         src.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
		PprofPass:         src.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
		ReadyDBTimeout:    src.millis("HEALTH_READY_DB_TIMEOUT_MS", 500*time.Millisecond),
		ReadyRedisTimeout: src.millis("HEALTH_READY_REDIS_TIMEOUT_MS", 300*time.Millisecond),
		ShutdownDrain:     src.millis("SHUTDOWN_DRAIN_DELAY_MS", 2*time.Second),
	}
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		AppEnv:             src.str("APP_ENV", "development"),
		Port:               src.str("PORT", "8080"),
		DatabaseURL:        src.str("DATABASE_URL", ""),
		RedisURL:           src.str("REDIS_URL", ""),
		PublicBaseURL:      strings.TrimRight(src.str("PUBLIC_BASE_URL", ""), "/"),
		CORSAllowedOrigins: src.list("CORS_ALLOWED_ORIGINS"),
		MigrateOnStart:     src.boolean("MIGRATE_ON_START", false),
		TrustProxyHeaders:  src.boolean("TRUST_PROXY_HEADERS", false),

		AdminUser:         src.str("ADMIN_USER", ""),
		AdminPassword:     src.str("ADMIN_PASSWORD", ""),
		AdminPasswordHash: src.str("ADMIN_PASSWORD_HASH", ""),
		AdminJWTSecret:    src.str("ADMIN_JWT_SECRET", ""),
		AdminSessionTTL:   src.duration("ADMIN_SESSION_TTL", 7*24*time.Hour),
		AdminCookieName:   src.str("ADMIN_COOKIE_NAME", "admin_session"),
		CookieDomain:      src.str("COOKIE_DOMAIN", ""),
		CookieSecure:      src.boolean("COOKIE_SECURE", false),
		CookieSameSite:    src.sameSite("COOKIE_SAMESITE"),

		PaymentProvider:     strings.ToLower(src.str("PAYMENT_PROVIDER", "stripe")),
		StripeSecretKey:     src.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: src.str("STRIPE_WEBHOOK_SECRET", ""),
		SandboxWebhookKey:   src.str("SANDBOX_WEBHOOK_KEY", "sandbox-secret"),
		GatewayTimeout:      src.duration("GATEWAY_TIMEOUT", 10*time.Second),
		BreakerMinRequests:  src.integer("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio: src.ratio("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeout:  src.duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		CatalogCacheTTL:   src.duration("CATALOG_CACHE_TTL", time.Minute),
		CartTTL:           src.duration("CART_TTL", 30*24*time.Hour),
		IdempotencyTTL:    src.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		WebhookReplayTTL:  src.duration("WEBHOOK_REPLAY_TTL", 72*time.Hour),
		AnalyticsCacheTTL: src.duration("ANALYTICS_CACHE_TTL", time.Minute),

		CheckoutRateLimit: src.integer("CHECKOUT_RATE_LIMIT", 10),
		LeadRateLimit:     src.integer("LEAD_RATE_LIMIT", 5),
		PageviewRateLimit: src.integer("PAGEVIEW_RATE_LIMIT", 120),
		RateLimitWindow:   src.duration("RATE_LIMIT_WINDOW", time.Minute),
		LoginRateLimit:    src.str("LOGIN_RATE_LIMIT", "5-M"),
		BodyLimitBytes:    int64(src.integer("BODY_LIMIT_BYTES", 1<<20)),

		NotifyEmailEnabled: src.boolean("NOTIFY_EMAIL_ENABLED", true),
		NotifyEmailFrom:    src.str("NOTIFY_EMAIL_FROM", "no-reply@1coastmedia.com"),
		AdminNotifyEmail:   src.str("ADMIN_NOTIFY_EMAIL", ""),
		WorkerConcurrency:  src.integer("WORKER_CONCURRENCY", 5),
		LockTTL:            src.duration("LOCK_TTL", 30*time.Second),

		Obs: loadObservability(src),
	}
	if err := src.err(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		cfg.CookieSecure = true
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, req := range []struct{ key, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"REDIS_URL", c.RedisURL},
		{"ADMIN_JWT_SECRET", c.AdminJWTSecret},
	} {
		if req.value == "" {
			return errors.New(req.key + " is required")
		}
	}
	switch c.PaymentProvider {
	case "stripe":
		if c.IsProduction() {
			if c.StripeSecretKey == "" {
				return errors.New("STRIPE_SECRET_KEY is required")
			}
			if c.StripeWebhookSecret == "" {
				return errors.New("STRIPE_WEBHOOK_SECRET is required")
			}
		}
		if c.StripeSecretKey == "" {
			c.PaymentProvider = "sandbox"
		}
	case "sandbox":
		if c.IsProduction() {
			return errors.New("PAYMENT_PROVIDER=sandbox is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	return nil
}

// Stores is the subset of settings the catalogctl commands need.
type Stores struct {
	DatabaseURL     string
	RedisURL        string
	CatalogCacheTTL time.Duration
}

// LoadStores reads only the database and cache settings. Unlike Load it does
// not require admin or payment secrets.
func LoadStores() (*Stores, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	st := &Stores{
		DatabaseURL:     src.str("DATABASE_URL", ""),
		RedisURL:        src.str("REDIS_URL", ""),
		CatalogCacheTTL: src.duration("CATALOG_CACHE_TTL", time.Minute),
	}
	if err := src.err(); err != nil {
		return nil, err
	}
	if st.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return st, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// AdminConfigured reports whether admin credentials are present.
func (c *Config) AdminConfigured() bool {
	return c.AdminUser != "" && (c.AdminPassword != "" || c.AdminPasswordHash != "")
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// CORSOrigins returns the origins allowed to make credentialed requests.
// Without an explicit list only PUBLIC_BASE_URL is allowed, and with neither
// set no cross-origin request is allowed. A wildcard is never returned.
func (c *Config) CORSOrigins() []string {
	origins := make([]string, 0, len(c.CORSAllowedOrigins))
	for _, o := range c.CORSAllowedOrigins {
		if o != "*" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	if len(origins) == 0 && c.PublicBaseURL != "" {
		origins = append(origins, c.PublicBaseURL)
	}
	return origins
}
