package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
	"github.com/noah-isme/coastmedia-api/internal/resilience"
)

// TripsBreaker reports whether err means the provider itself is failing.
// Rejected sessions and calls the caller gave up on leave the breaker alone.
func TripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrProviderDown)
}

// BreakerGateway guards session creation with a circuit breaker built with
// TripsBreaker as its failure test.
type BreakerGateway struct {
	Next    Gateway
	Breaker *resilience.Breaker
}

// Name implements Gateway.
func (g BreakerGateway) Name() string { return g.Next.Name() }

// CreateSession implements Gateway.
func (g BreakerGateway) CreateSession(ctx context.Context, p pricing.CheckoutPayload, opts SessionOptions) (Session, error) {
	if g.Breaker == nil {
		return g.Next.CreateSession(ctx, p, opts)
	}
	var out Session
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Next.CreateSession(ctx, p, opts)
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, err
}

// VerifyWebhook implements Gateway.
func (g BreakerGateway) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	return g.Next.VerifyWebhook(r, body)
}
