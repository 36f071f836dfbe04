package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/obs"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// CatalogSource supplies the catalog snapshot used for quotes.
type CatalogSource interface {
	PricingCatalog(ctx context.Context) (pricing.Catalog, error)
}

// Service loads, mutates and persists carts.
type Service struct {
	store   Store
	catalog CatalogSource
	now     func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store   Store
	Catalog CatalogSource
	Now     func() time.Time
}

// NewService constructs a cart Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("cart: store is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("cart: catalog is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: cfg.Store, catalog: cfg.Catalog, now: now}, nil
}

// Quote is the priced view of a cart.
type Quote struct {
	Plan      pricing.Plan       `json:"plan"`
	Total     pricing.Money      `json:"total"`
	LineItems []pricing.LineItem `json:"lineItems"`
}

// Create persists a new empty cart.
func (s *Service) Create(ctx context.Context) (*Cart, error) {
	c := New(uuid.NewString(), s.now().UTC())
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	obs.Inc(obs.CartMutationTotal, "create")
	return c, nil
}

// Get loads a cart by id.
func (s *Service) Get(ctx context.Context, id string) (*Cart, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.NotFound("cart not found", ErrNotFound)
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFound("cart not found", err)
		}
		return nil, err
	}
	return c, nil
}

// Toggle flips a key in the named collection.
func (s *Service) Toggle(ctx context.Context, id string, kind Kind, key string) (*Cart, error) {
	if key == "" {
		return nil, common.BadRequest("key", "key is required", nil)
	}
	return s.mutate(ctx, id, "toggle_"+string(kind), func(c *Cart) error {
		if _, ok := c.Toggle(kind, key); !ok {
			return common.BadRequest("kind", "kind must be service, bundle or addon", nil)
		}
		return nil
	})
}

// SetPlan changes the billing plan.
func (s *Service) SetPlan(ctx context.Context, id, raw string) (*Cart, error) {
	plan, ok := pricing.ParsePlan(raw)
	if !ok {
		return nil, common.BadRequest("plan", "Invalid plan", pricing.ErrInvalidPlan)
	}
	return s.mutate(ctx, id, "set_plan", func(c *Cart) error {
		c.SetPlan(plan)
		return nil
	})
}

// SetContact stores contact details. Required fields are checked at checkout.
func (s *Service) SetContact(ctx context.Context, id string, contact pricing.Contact) (*Cart, error) {
	return s.mutate(ctx, id, "set_contact", func(c *Cart) error {
		c.SetContact(contact)
		return nil
	})
}

// Clear empties the selection.
func (s *Service) Clear(ctx context.Context, id string) (*Cart, error) {
	return s.mutate(ctx, id, "clear", func(c *Cart) error {
		c.Clear()
		return nil
	})
}

// Discard removes a cart after a successful checkout.
func (s *Service) Discard(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	obs.Inc(obs.CartMutationTotal, "discard")
	return nil
}

// Quote prices the cart against a fresh catalog snapshot.
func (s *Service) Quote(ctx context.Context, id string) (Quote, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	cat, err := s.catalog.PricingCatalog(ctx)
	if err != nil {
		return Quote{}, err
	}
	plan := c.Selection.Plan
	if !plan.Valid() {
		plan = pricing.PlanOneTime
	}
	items := pricing.BuildLineItems(c.Selection, cat, plan)
	return Quote{Plan: plan, Total: pricing.Sum(items), LineItems: items}, nil
}

func (s *Service) mutate(ctx context.Context, id, op string, fn func(*Cart) error) (*Cart, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, common.NewAppError("INTERNAL", "unable to save cart", http.StatusInternalServerError, err)
	}
	obs.Inc(obs.CartMutationTotal, op)
	return c, nil
}
