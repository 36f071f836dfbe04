package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// SandboxSignatureHeader carries the hex HMAC-SHA256 of a sandbox webhook body.
const SandboxSignatureHeader = "X-Sandbox-Signature"

// SandboxGateway is an offline gateway for development and tests. Session ids
// are derived from the client reference so repeated calls agree.
type SandboxGateway struct {
	Secret string
}

// Name implements Gateway.
func (SandboxGateway) Name() string { return "sandbox" }

// CreateSession implements Gateway. The returned URL goes straight to the
// success page.
func (g SandboxGateway) CreateSession(_ context.Context, p pricing.CheckoutPayload, opts SessionOptions) (Session, error) {
	if len(p.Lines) == 0 {
		return Session{}, fmt.Errorf("%w: no line items", ErrRejected)
	}
	for _, line := range p.Lines {
		if line.UnitAmountMinorUnits <= 0 {
			return Session{}, fmt.Errorf("%w: line %q has no amount", ErrRejected, line.Name)
		}
	}
	ref := opts.ClientReferenceID
	if ref == "" {
		ref = opts.Metadata["order_id"]
	}
	id := "cs_sandbox_" + common.Fingerprint(ref)[:24]
	target := opts.SuccessURL
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return Session{ID: id, URL: target + sep + "session_id=" + url.QueryEscape(id)}, nil
}

// SandboxEvent is the body of a sandbox webhook.
type SandboxEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	SessionID     string `json:"session_id"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
}

// Sign returns the signature header value for body.
func (g SandboxGateway) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook implements Gateway.
func (g SandboxGateway) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	if g.Secret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: sandbox secret not configured", ErrInvalidSignature)
	}
	provided, err := hex.DecodeString(strings.TrimSpace(r.Header.Get(SandboxSignatureHeader)))
	if err != nil || len(provided) == 0 {
		return WebhookEvent{}, fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	expected, _ := hex.DecodeString(g.Sign(body))
	if !hmac.Equal(expected, provided) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var evt SandboxEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode sandbox event: %w", err)
	}
	if evt.Type == "" {
		return WebhookEvent{}, errors.New("sandbox event type is required")
	}
	return WebhookEvent{
		ID:            evt.ID,
		Type:          evt.Type,
		Paid:          evt.Type == EventCheckoutCompleted || evt.Type == EventAsyncPaymentSucceeded,
		OrderID:       evt.OrderID,
		SessionID:     evt.SessionID,
		PaymentIntent: evt.PaymentIntent,
		AmountTotal:   evt.AmountTotal,
		CustomerEmail: evt.CustomerEmail,
		CustomerName:  evt.CustomerName,
	}, nil
}
