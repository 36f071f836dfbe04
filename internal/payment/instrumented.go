package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/coastmedia-api/internal/obs"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// InstrumentedGateway records a span, an outcome counter and latency for
// every session request.
type InstrumentedGateway struct {
	Next Gateway
}

// Name implements Gateway.
func (g InstrumentedGateway) Name() string { return g.Next.Name() }

// CreateSession implements Gateway.
func (g InstrumentedGateway) CreateSession(ctx context.Context, p pricing.CheckoutPayload, opts SessionOptions) (Session, error) {
	provider := g.Next.Name()
	ctx, span := obs.Tracer().Start(ctx, "payment.CreateSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", provider),
		attribute.String("payment.plan", string(p.Plan)),
		attribute.Int("payment.lines", len(p.Lines)),
		attribute.Int64("payment.amount", p.Total()),
	)

	start := time.Now()
	sess, err := g.Next.CreateSession(ctx, p, opts)
	if obs.CheckoutSessionLatency != nil {
		obs.CheckoutSessionLatency.WithLabelValues(provider).Observe(obs.Millis(time.Since(start)))
	}
	result := outcome(err)
	obs.Inc(obs.CheckoutSessionTotal, provider, string(p.Plan), result)
	span.SetAttributes(attribute.String("payment.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return Session{}, err
	}
	span.SetAttributes(attribute.String("payment.session_id", sess.ID))
	return sess, nil
}

// VerifyWebhook implements Gateway.
func (g InstrumentedGateway) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	return g.Next.VerifyWebhook(r, body)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrProviderDown):
		return "provider_down"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}
