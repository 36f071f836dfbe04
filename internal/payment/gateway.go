package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

var (
	// ErrProviderDown marks network failures and provider 5xx responses.
	ErrProviderDown = errors.New("payment: provider unavailable")
	// ErrRejected marks requests the provider refused.
	ErrRejected = errors.New("payment: request rejected")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("payment: checkout temporarily unavailable")
	// ErrInvalidSignature is returned when a webhook fails verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
)

// Provider event types the webhook acts on.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// SessionOptions carries the per-order settings of a checkout session.
type SessionOptions struct {
	SuccessURL          string
	CancelURL           string
	CustomerEmail       string
	ClientReferenceID   string
	Metadata            map[string]string
	AllowPromotionCodes bool
	IdempotencyKey      string
}

// Session is the gateway's hosted checkout page.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// WebhookEvent is a verified provider notification. Paid is set only when
// the event confirms that money was collected.
type WebhookEvent struct {
	ID            string
	Type          string
	Paid          bool
	OrderID       string
	SessionID     string
	PaymentIntent string
	AmountTotal   int64
	CustomerEmail string
	CustomerName  string
}

// Gateway opens hosted checkout sessions and verifies payment webhooks.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, p pricing.CheckoutPayload, opts SessionOptions) (Session, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error)
}
