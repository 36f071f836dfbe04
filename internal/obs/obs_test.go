package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/obs"
)

func TestHTTPMetricsLabelsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("coastmedia", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/api/v1/carts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/carts/abc", nil))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/carts/{id}", "204")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "unmatched", "404")))
	require.NotZero(t, testutil.CollectAndCount(metrics.Duration))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))

	again := obs.NewHTTPMetrics("coastmedia", nil, registry)
	require.Same(t, metrics.Requests, again.Requests)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25, 100}, obs.ParseBucketsCSV("100, 5,x,-1,25,5"))
	require.Empty(t, obs.ParseBucketsCSV(""))
}

func TestRequestLoggerRecordsRouteAndAdmin(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Route("/api/v1/admin", func(admin chi.Router) {
		admin.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := common.WithAdmin(r.Context(), common.Admin{Username: "root", Role: "admin"})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		admin.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/api/v1/admin/orders/{id}", entry["route"])
	require.Equal(t, "root", entry["admin"])
	require.Equal(t, float64(http.StatusOK), entry["status"])
	require.NotEmpty(t, entry["request_id"])
}

func TestDomainMetricsIncIsNilSafe(t *testing.T) {
	require.NotPanics(t, func() { obs.Inc(nil, "a") })
	obs.MustRegisterDomainMetrics("coastmedia_test", prometheus.NewRegistry())
	obs.Inc(obs.CartMutationTotal, "toggle")
	require.Equal(t, float64(1), testutil.ToFloat64(obs.CartMutationTotal.WithLabelValues("toggle")))
}
