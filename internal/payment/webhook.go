package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/obs"
	"github.com/noah-isme/coastmedia-api/internal/order"
)

// Confirmer applies a payment confirmation to the order it references.
type Confirmer interface {
	MarkPaid(ctx context.Context, c order.Confirmation) (order.PaidResult, error)
}

// DefaultWebhookBodyLimit caps webhook payloads when Webhook.MaxBody is unset.
const DefaultWebhookBodyLimit int64 = 1 << 20

// Webhook handles payment provider callbacks: signature verification, replay
// protection and the paid transition.
type Webhook struct {
	Gateways  map[string]Gateway
	MaxBody   int64
	Replay    *redis.Client
	ReplayTTL time.Duration
	Orders    Confirmer
	Events    events.Emitter
	Logger    zerolog.Logger
}

// Handle processes POST /api/v1/webhooks/payment/{provider}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil || len(h.Gateways) == 0 {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	gateway, ok := h.Gateways[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultWebhookBodyLimit
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			obs.Inc(obs.PaymentWebhookTotal, providerKey, "too_large")
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	evt, err := gateway.VerifyWebhook(r, body)
	if err != nil {
		obs.Inc(obs.PaymentWebhookTotal, providerKey, "invalid")
		h.Logger.Warn().Err(err).Str("provider", providerKey).Msg("payment_webhook_rejected")
		if errors.Is(err, ErrInvalidSignature) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "invalid webhook payload", nil)
		return
	}

	ctx := r.Context()
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		id := evt.ID
		if id == "" {
			id = common.Fingerprint(string(body))
		}
		replayKey = fmt.Sprintf("wh:%s:%s", providerKey, id)
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay guard unavailable", nil)
			return
		}
		if !fresh {
			obs.Inc(obs.PaymentWebhookTotal, providerKey, "duplicate")
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}
	release := func() {
		if replayKey != "" {
			_ = h.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
	}

	if !evt.Paid {
		obs.Inc(obs.PaymentWebhookTotal, providerKey, "ignored")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	res, err := h.Orders.MarkPaid(ctx, order.Confirmation{
		OrderID:       evt.OrderID,
		SessionID:     evt.SessionID,
		PaymentIntent: evt.PaymentIntent,
		AmountTotal:   evt.AmountTotal,
		CustomerEmail: evt.CustomerEmail,
		CustomerName:  evt.CustomerName,
	})
	if err != nil {
		release()
		switch {
		case errors.Is(err, order.ErrNotFound):
			obs.Inc(obs.PaymentWebhookTotal, providerKey, "not_found")
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		case errors.Is(err, order.ErrInvalidTransition):
			obs.Inc(obs.PaymentWebhookTotal, providerKey, "invalid_state")
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order cannot be marked paid", nil)
		default:
			obs.Inc(obs.PaymentWebhookTotal, providerKey, "error")
			h.Logger.Error().Err(err).Str("provider", providerKey).Str("order_id", evt.OrderID).Msg("payment_webhook_failed")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to record payment", nil)
		}
		return
	}
	if res.AlreadyPaid {
		obs.Inc(obs.PaymentWebhookTotal, providerKey, "already_paid")
		common.JSON(w, http.StatusOK, map[string]any{"received": true, "orderId": res.OrderID})
		return
	}

	obs.Inc(obs.PaymentWebhookTotal, providerKey, "paid")
	if h.Events != nil {
		_, err := h.Events.Emit(ctx, events.TopicCheckoutPaid, res.OrderID, map[string]any{
			"order_id":       res.OrderID,
			"email":          res.Email,
			"name":           res.Name,
			"plan":           string(res.Plan),
			"total_cents":    res.TotalCents,
			"session_id":     evt.SessionID,
			"payment_intent": evt.PaymentIntent,
			"provider":       providerKey,
		})
		if err != nil {
			h.Logger.Warn().Err(err).Str("order_id", res.OrderID).Msg("checkout_paid_event_failed")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"received": true, "orderId": res.OrderID})
}
