package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/cart"
	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/order"
	"github.com/noah-isme/coastmedia-api/internal/payment"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// OrderStore persists orders across the checkout lifecycle.
type OrderStore interface {
	CreatePending(ctx context.Context, d order.Draft) (order.Order, error)
	MarkAwaitingPayment(ctx context.Context, id, sessionID string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// CatalogSource supplies the snapshot line items are rebuilt from.
type CatalogSource interface {
	PricingCatalog(ctx context.Context) (pricing.Catalog, error)
}

// CartSource loads and discards server-side carts.
type CartSource interface {
	Get(ctx context.Context, id string) (*cart.Cart, error)
	Discard(ctx context.Context, id string) error
}

// Request is the body of POST /api/v1/checkout.
type Request struct {
	Plan    string           `json:"plan"`
	Cart    []Entry          `json:"cart"`
	Contact *pricing.Contact `json:"contact"`
	CartID  string           `json:"cartId,omitempty"`
	// Origin is the site origin used for redirect URLs.
	Origin string `json:"-"`
}

// Entry is one cart row as sent by the storefront. Names and prices sent by
// the client are ignored.
type Entry struct {
	Service string     `json:"service,omitempty"`
	Bundle  string     `json:"bundle,omitempty"`
	Addons  []AddonRef `json:"addons,omitempty"`
}

// Result is returned to the storefront after the gateway accepted the session.
type Result struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

// Service turns a cart into a pending order and a gateway session.
type Service struct {
	orders  OrderStore
	gateway payment.Gateway
	catalog CatalogSource
	carts   CartSource
	events  events.Emitter
	logger  zerolog.Logger
	newID   func() string
}

// ServiceConfig groups Service dependencies. Carts and Events are optional.
type ServiceConfig struct {
	Orders  OrderStore
	Gateway payment.Gateway
	Catalog CatalogSource
	Carts   CartSource
	Events  events.Emitter
	Logger  zerolog.Logger
	NewID   func() string
}

// NewService constructs a checkout Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Orders == nil {
		return nil, errors.New("checkout: order store is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		orders:  cfg.Orders,
		gateway: cfg.Gateway,
		catalog: cfg.Catalog,
		carts:   cfg.Carts,
		events:  cfg.Events,
		logger:  cfg.Logger,
		newID:   newID,
	}, nil
}

// Checkout prices the request against the current catalog, records a pending
// order and opens a gateway session for it. The gateway is called once.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	req.CartID = strings.TrimSpace(req.CartID)
	if req.CartID == "" && len(req.Cart) == 0 {
		return Result{}, common.BadRequest("cart", "Cart empty", pricing.ErrEmptyCart)
	}

	sel, contact, err := s.selection(ctx, req)
	if err != nil {
		return Result{}, err
	}
	plan := sel.Plan
	if raw := strings.TrimSpace(req.Plan); raw != "" || req.CartID == "" {
		parsed, ok := pricing.ParsePlan(raw)
		if !ok {
			return Result{}, common.BadRequest("plan", "Invalid plan", pricing.ErrInvalidPlan)
		}
		plan = parsed
	}

	cat, err := s.catalog.PricingCatalog(ctx)
	if err != nil {
		return Result{}, common.NewAppError("INTERNAL", "catalog unavailable", http.StatusInternalServerError, err)
	}
	payload, err := pricing.ToCheckoutPayload(pricing.BuildLineItems(sel, cat, plan), plan, contact)
	if err != nil {
		var ve *pricing.ValidationError
		if errors.As(err, &ve) {
			return Result{}, common.BadRequest(ve.Field, ve.Message, err)
		}
		return Result{}, err
	}

	orderID := s.newID()
	if _, err := s.orders.CreatePending(ctx, order.DraftFromPayload(orderID, s.gateway.Name(), payload)); err != nil {
		return Result{}, common.NewAppError("INTERNAL", "unable to create order", http.StatusInternalServerError, err)
	}

	origin := strings.TrimRight(req.Origin, "/")
	metadata := map[string]string{"order_id": orderID}
	for k, v := range payload.Metadata {
		metadata[k] = v
	}
	sess, err := s.gateway.CreateSession(ctx, payload, payment.SessionOptions{
		SuccessURL:          origin + "/?status=success",
		CancelURL:           origin + "/?status=cancelled",
		CustomerEmail:       payload.Contact.Email,
		ClientReferenceID:   orderID,
		Metadata:            metadata,
		AllowPromotionCodes: true,
		IdempotencyKey:      "checkout:" + orderID,
	})
	if err != nil {
		return Result{}, s.fail(ctx, orderID, payload, err)
	}

	if err := s.orders.MarkAwaitingPayment(ctx, orderID, sess.ID); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID).Msg("mark order awaiting payment")
	}
	s.emit(ctx, events.TopicCheckoutStarted, orderID, map[string]any{
		"order_id":    orderID,
		"session_id":  sess.ID,
		"plan":        string(plan),
		"total_cents": payload.Total(),
		"email":       payload.Contact.Email,
		"provider":    s.gateway.Name(),
	})
	if req.CartID != "" && s.carts != nil {
		if err := s.carts.Discard(ctx, req.CartID); err != nil {
			s.logger.Warn().Err(err).Str("cart_id", req.CartID).Msg("discard cart after checkout")
		}
	}
	return Result{URL: sess.URL, SessionID: sess.ID, OrderID: orderID}, nil
}

// selection merges the stored cart (when referenced) with the request entries.
func (s *Service) selection(ctx context.Context, req Request) (pricing.Selection, pricing.Contact, error) {
	var (
		sel     pricing.Selection
		contact pricing.Contact
	)
	if req.CartID != "" {
		if s.carts == nil {
			return sel, contact, common.NotFound("cart not found", cart.ErrNotFound)
		}
		c, err := s.carts.Get(ctx, req.CartID)
		if err != nil {
			return sel, contact, err
		}
		sel = c.Selection
		contact = c.Contact
	}
	for _, e := range req.Cart {
		if key := strings.TrimSpace(e.Service); key != "" {
			sel.Services = append(sel.Services, key)
		}
		if key := strings.TrimSpace(e.Bundle); key != "" {
			sel.Bundles = append(sel.Bundles, key)
		}
		for _, a := range e.Addons {
			if key := strings.TrimSpace(a.ID); key != "" {
				sel.Addons = append(sel.Addons, key)
			}
		}
	}
	if req.Contact != nil {
		contact = *req.Contact
	}
	return sel, contact, nil
}

func (s *Service) fail(ctx context.Context, orderID string, payload pricing.CheckoutPayload, cause error) error {
	s.logger.Error().Err(cause).Str("order_id", orderID).Str("provider", s.gateway.Name()).Msg("checkout session failed")
	if err := s.orders.MarkFailed(ctx, orderID, cause.Error()); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID).Msg("mark order failed")
	}
	s.emit(ctx, events.TopicCheckoutFailed, orderID, map[string]any{
		"order_id":    orderID,
		"plan":        string(payload.Plan),
		"total_cents": payload.Total(),
		"provider":    s.gateway.Name(),
		"reason":      cause.Error(),
	})
	if errors.Is(cause, payment.ErrUnavailable) {
		return common.NewAppError("CHECKOUT_UNAVAILABLE", "checkout temporarily unavailable", http.StatusServiceUnavailable, cause)
	}
	return common.NewAppError("CHECKOUT_FAILED", "checkout failed", http.StatusBadGateway, cause)
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, topic, orderID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("emit checkout event")
	}
}
