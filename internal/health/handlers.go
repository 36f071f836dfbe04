// Package health serves liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// Probe checks one dependency within Timeout.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Postgres probes a pgx pool.
func Postgres(pool *pgxpool.Pool, timeout time.Duration) Probe {
	return Probe{Name: "db", Timeout: timeout, Check: pool.Ping}
}

// Redis probes a Redis client with PING.
func Redis(rdb redis.Cmdable, timeout time.Duration) Probe {
	return Probe{Name: "redis", Timeout: timeout, Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// Handler serves /health/live and /health/ready. The zero value is ready and
// has no probes.
type Handler struct {
	Probes   []Probe
	draining atomic.Bool
}

// Drain makes Ready answer 503 so load balancers stop routing before the
// server shuts down.
func (h *Handler) Drain() { h.draining.Store(true) }

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and answers 200 only when all pass.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	results := make([]string, len(h.Probes))
	var g errgroup.Group
	for i, p := range h.Probes {
		g.Go(func() error {
			timeout := p.Timeout
			if timeout <= 0 {
				timeout = 500 * time.Millisecond
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			results[i] = "ok"
			if err := p.Check(ctx); err != nil {
				results[i] = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	body := map[string]string{"status": "ok"}
	code := http.StatusOK
	for i, p := range h.Probes {
		body[p.Name] = results[i]
		if results[i] != "ok" {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, body)
}
