package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/analytics"
	"github.com/noah-isme/coastmedia-api/internal/app"
	"github.com/noah-isme/coastmedia-api/internal/audit"
	"github.com/noah-isme/coastmedia-api/internal/auth"
	"github.com/noah-isme/coastmedia-api/internal/cart"
	"github.com/noah-isme/coastmedia-api/internal/catalog"
	"github.com/noah-isme/coastmedia-api/internal/checkout"
	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/config"
	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/health"
	"github.com/noah-isme/coastmedia-api/internal/leads"
	"github.com/noah-isme/coastmedia-api/internal/notify"
	"github.com/noah-isme/coastmedia-api/internal/obs"
	"github.com/noah-isme/coastmedia-api/internal/order"
	"github.com/noah-isme/coastmedia-api/internal/payment"
	"github.com/noah-isme/coastmedia-api/internal/ratelimit"
	"github.com/noah-isme/coastmedia-api/internal/resilience"
	"github.com/noah-isme/coastmedia-api/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).
		With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := cfg.Obs.MetricsNamespace
	metricsEnabled := cfg.Obs.MetricsEnabled
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "coastmedia-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.TraceSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := app.OpenPostgres(startCtx, cfg.DatabaseURL, "coastmedia-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		m, err := app.NewMigrator(pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("prepare migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, metricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var notifiers []events.Notifier
	if cfg.NotifyEmailEnabled {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse asynq redis url")
		}
		taskClient := asynq.NewClient(redisOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		notifiers = append(notifiers, notify.TaskNotifier{Client: taskClient, MaxRetry: 10})
	}
	bus := &events.Bus{Store: events.PgStore{DB: pool}, Notifiers: notifiers}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:  catalog.PgStore{DB: pool},
		Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	cartService, err := cart.NewService(cart.ServiceConfig{
		Store:   cart.RedisStore{R: redisClient, TTL: cfg.CartTTL},
		Catalog: catalogService,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise cart service")
	}
	cartHandler := &cart.Handler{Svc: cartService}

	gateway, gateways, err := buildGateway(cfg, metricsNamespace, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment gateway")
	}
	orderStore := order.PgStore{DB: pool, Logger: logger}

	checkoutService, err := checkout.NewService(checkout.ServiceConfig{
		Orders:  orderStore,
		Gateway: gateway,
		Catalog: catalogService,
		Carts:   cartService,
		Events:  bus,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout service")
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutService, PublicBaseURL: cfg.PublicBaseURL}

	webhookHandler := payment.Webhook{
		Gateways:  gateways,
		MaxBody:   cfg.BodyLimitBytes,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Orders:    orderStore,
		Events:    bus,
		Logger:    logger,
	}

	leadService, err := leads.NewService(leads.ServiceConfig{Store: leads.PgStore{DB: pool}, Events: bus, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise lead service")
	}
	leadHandler := &leads.Handler{Svc: leadService}

	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Store: analytics.PgStore{DB: pool},
		R:     redisClient,
		TTL:   cfg.AnalyticsCacheTTL,
	}}
	orderAdmin := &order.AdminHandler{Store: orderStore}

	auditStore := audit.PgStore{DB: pool}
	auditor := audit.Recorder{
		Service: &audit.Service{Store: auditStore, Enabled: true},
		OnError: func(err error) { logger.Warn().Err(err).Msg("audit_record_failed") },
	}
	auditHandler := audit.Handler{Store: auditStore}

	authService, err := auth.NewService(auth.Config{
		Username:     cfg.AdminUser,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		Secret:       cfg.AdminJWTSecret,
		SessionTTL:   cfg.AdminSessionTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	if !cfg.AdminConfigured() {
		logger.Warn().Msg("admin credentials not configured; admin login disabled")
	}
	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	loginLimiter, err := ratelimit.NewLoginLimiter(limiterStore, cfg.LoginRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise login limiter")
	}
	authHandler := &auth.Handler{
		Service:        authService,
		Throttle:       loginLimiter,
		CookieName:     cfg.AdminCookieName,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
		Logger:         logger,
	}
	requireAdmin := auth.Middleware{Service: authService, CookieName: cfg.AdminCookieName}.RequireAdmin
	csrf := security.CSRF{Name: auth.CSRFCookieName}.Middleware

	sliding := ratelimit.SlidingWindow{Client: redisClient, Prefix: "rl:"}
	limit := func(name string, max int) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: sliding,
			Config:  ratelimit.Config{Name: name, Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: max},
			Logger:  logger,
		}.Middleware
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{HSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", auth.CSRFCookieName},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		debug := r.With()
		if cfg.Obs.PprofUser != "" {
			debug = r.With(middleware.BasicAuth("pprof", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPass}))
		}
		debug.Mount("/debug", middleware.Profiler())
	}

	healthHandler := &health.Handler{Probes: []health.Probe{
		health.Postgres(pool, cfg.Obs.ReadyDBTimeout),
		health.Redis(redisClient, cfg.Obs.ReadyRedisTimeout),
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/webhooks/payment/{provider}", webhookHandler.Handle)

		api.Group(func(v chi.Router) {
			v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

			v.Get("/catalog", catalogHandler.Catalog)
			v.Get("/catalog/addons", catalogHandler.Addons)

			v.Route("/carts", func(c chi.Router) {
				c.With(idem.Middleware).Post("/", cartHandler.Create)
				c.Get("/{id}", cartHandler.Get)
				c.Post("/{id}/toggle", cartHandler.Toggle)
				c.Put("/{id}/plan", cartHandler.SetPlan)
				c.Put("/{id}/contact", cartHandler.SetContact)
				c.Delete("/{id}/items", cartHandler.Clear)
				c.Get("/{id}/quote", cartHandler.Quote)
			})

			v.With(limit("checkout", cfg.CheckoutRateLimit), idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
			v.With(limit("lead", cfg.LeadRateLimit)).Post("/forms/lead", leadHandler.Submit)
			v.With(limit("pageview", cfg.PageviewRateLimit)).Post("/events/pageview", leadHandler.Pageview)

			v.Route("/admin", func(a chi.Router) {
				a.Post("/login", authHandler.Login)
				a.Post("/logout", authHandler.Logout)

				a.Group(func(admin chi.Router) {
					admin.Use(requireAdmin)
					admin.Use(csrf)
					admin.Use(auditor.Writes)
					admin.Get("/me", authHandler.Me)

					admin.Get("/services", catalogHandler.AdminListServices)
					admin.Post("/services", catalogHandler.AdminCreateService)
					admin.Put("/services/{key}", catalogHandler.AdminUpdateService)
					admin.Delete("/services/{key}", catalogHandler.AdminDeleteService)
					admin.Get("/addons", catalogHandler.AdminListAddons)
					admin.Post("/addons", catalogHandler.AdminCreateAddon)
					admin.Put("/addons/{key}", catalogHandler.AdminUpdateAddon)
					admin.Delete("/addons/{key}", catalogHandler.AdminDeleteAddon)
					admin.Get("/bundles", catalogHandler.AdminListBundles)
					admin.Post("/bundles", catalogHandler.AdminCreateBundle)
					admin.Put("/bundles/{key}", catalogHandler.AdminUpdateBundle)
					admin.Delete("/bundles/{key}", catalogHandler.AdminDeleteBundle)

					admin.Get("/orders", orderAdmin.List)
					admin.Get("/orders/{id}", orderAdmin.Get)
					admin.Get("/customers", orderAdmin.Customers)
					admin.Get("/leads", leadHandler.AdminList)
					admin.Get("/metrics", analyticsHandler.Metrics)
					admin.Get("/metrics/pages", analyticsHandler.TopPages)
					admin.Get("/audit-logs", auditHandler.List)
				})
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("payment_provider", gateway.Name()).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		healthHandler.Drain()
		logger.Info().Msg("shutdown requested; draining")
		time.Sleep(cfg.Obs.ShutdownDrain)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
		logger.Info().Msg("server stopped")
	}
}

// buildGateway returns the checkout gateway wrapped with the breaker and
// instrumentation, plus the webhook verifiers keyed by provider name.
func buildGateway(cfg *config.Config, metricsNamespace string, logger zerolog.Logger) (payment.Gateway, map[string]payment.Gateway, error) {
	var base payment.Gateway
	switch cfg.PaymentProvider {
	case "stripe":
		sg, err := payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Timeout:       cfg.GatewayTimeout,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		base = sg
	default:
		base = payment.SandboxGateway{Secret: cfg.SandboxWebhookKey}
	}
	breakerMetrics, err := resilience.NewMetrics(metricsNamespace, nil)
	if err != nil {
		return nil, nil, err
	}
	breaker := resilience.New(resilience.Settings{
		Name:         base.Name(),
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		Cooldown:     cfg.BreakerOpenTimeout,
		Tripping:     payment.TripsBreaker,
		Metrics:      breakerMetrics,
		Logger:       logger,
	})
	gw := payment.InstrumentedGateway{Next: payment.BreakerGateway{Next: base, Breaker: breaker}}
	return gw, map[string]payment.Gateway{base.Name(): gw}, nil
}
