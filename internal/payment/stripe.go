package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// StripeConfig configures StripeGateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
	Logger  zerolog.Logger
}

// StripeGateway creates Stripe Checkout sessions.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
}

// NewStripeGateway builds a gateway with its own client so no global Stripe
// state is touched. The SDK's automatic retries are disabled.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("payment: stripe secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	backendCfg := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     stripeLogger{logger: cfg.Logger},
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		return bc
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg()),
	})
	return &StripeGateway{client: sc, webhookSecret: cfg.WebhookSecret}, nil
}

// Name implements Gateway.
func (g *StripeGateway) Name() string { return "stripe" }

// CreateSession implements Gateway.
func (g *StripeGateway) CreateSession(ctx context.Context, p pricing.CheckoutPayload, opts SessionOptions) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(p.Mode)),
		SuccessURL:          stripe.String(opts.SuccessURL),
		CancelURL:           stripe.String(opts.CancelURL),
		AllowPromotionCodes: stripe.Bool(opts.AllowPromotionCodes),
	}
	if opts.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(opts.CustomerEmail)
	}
	if opts.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(opts.ClientReferenceID)
	}
	for _, line := range p.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(line.Name),
			Metadata: line.Metadata,
		}
		if line.Description != "" {
			product.Description = stripe.String(line.Description)
		}
		price := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(p.Currency),
			UnitAmount:  stripe.Int64(line.UnitAmountMinorUnits),
			ProductData: product,
		}
		if line.RecurringInterval != "" {
			price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(line.RecurringInterval),
			}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: price,
			Quantity:  stripe.Int64(line.Quantity),
		})
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	for k, v := range opts.Metadata {
		params.AddMetadata(k, v)
	}
	if opts.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(opts.IdempotencyKey)
	}
	params.Context = ctx

	cs, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, mapStripeError(ctx, err)
	}
	return Session{ID: cs.ID, URL: cs.URL}, nil
}

// VerifyWebhook implements Gateway.
func (g *StripeGateway) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
	default:
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = cs.ID
	out.OrderID = cs.Metadata["order_id"]
	if out.OrderID == "" {
		out.OrderID = cs.ClientReferenceID
	}
	out.AmountTotal = cs.AmountTotal
	out.CustomerEmail = cs.CustomerEmail
	if cs.CustomerDetails != nil {
		if cs.CustomerDetails.Email != "" {
			out.CustomerEmail = cs.CustomerDetails.Email
		}
		out.CustomerName = cs.CustomerDetails.Name
	}
	switch {
	case cs.PaymentIntent != nil:
		out.PaymentIntent = cs.PaymentIntent.ID
	case cs.Subscription != nil:
		out.PaymentIntent = cs.Subscription.ID
	}
	out.Paid = out.Type == EventAsyncPaymentSucceeded ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	return out, nil
}

// mapStripeError converts SDK errors into ErrProviderDown or ErrRejected.
// A call abandoned by the caller's context returns the context error instead,
// so it never counts against the provider.
func mapStripeError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("payment: create session: %w", ctxErr)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrProviderDown, stripeErr.Msg)
		}
		return fmt.Errorf("%w: %s", ErrRejected, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrProviderDown, err)
}
