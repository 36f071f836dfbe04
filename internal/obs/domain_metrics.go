package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutSessionTotal counts checkout session attempts by provider, plan and outcome.
	CheckoutSessionTotal *prometheus.CounterVec
	// CheckoutSessionLatency records gateway latency in milliseconds.
	CheckoutSessionLatency *prometheus.HistogramVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// CatalogCacheTotal counts catalog snapshot cache lookups.
	CatalogCacheTotal *prometheus.CounterVec
	// CartMutationTotal counts cart mutations by operation.
	CartMutationTotal *prometheus.CounterVec
	// LeadSubmissionsTotal counts lead form submissions.
	LeadSubmissionsTotal *prometheus.CounterVec
	// NotifyEmailTotal counts notification emails by topic and result.
	NotifyEmailTotal *prometheus.CounterVec
	// RateLimitTotal counts limiter decisions by limiter name.
	RateLimitTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics creates the domain collectors once per process.
// Until it runs every collector is nil and Inc is a no-op.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		counter := func(name, help string, labels ...string) *prometheus.CounterVec {
			return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			}, labels))
		}
		CheckoutSessionTotal = counter("checkout_session_total", "Checkout session creation outcomes.", "provider", "plan", "result")
		PaymentWebhookTotal = counter("payment_webhook_total", "Processed payment webhooks by outcome.", "provider", "result")
		CatalogCacheTotal = counter("catalog_cache_total", "Catalog snapshot cache lookups by result.", "result")
		CartMutationTotal = counter("cart_mutation_total", "Cart mutations by operation.", "op")
		LeadSubmissionsTotal = counter("lead_submissions_total", "Lead form submissions by result.", "result")
		NotifyEmailTotal = counter("notify_email_total", "Notification emails by topic and result.", "topic", "result")
		RateLimitTotal = counter("rate_limit_total", "Rate limiter decisions by limiter and result.", "limiter", "result")
		CheckoutSessionLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_session_duration_ms",
			Help:      "Latency of checkout gateway calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider"}))
	})
}

// Inc increments vec when it has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
