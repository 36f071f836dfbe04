package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/obs"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,79}$`)

// Service serves catalog snapshots from cache and applies admin writes.
type Service struct {
	store    Store
	cache    *Cache
	loads    singleflight.Group
	validate *validator.Validate
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a catalog Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("catalogkey", func(fl validator.FieldLevel) bool {
		return keyPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("catalog: register validation: %w", err)
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, validate: v, logger: cfg.Logger}, nil
}

// Snapshot returns the cached catalog, loading it from the store on a miss.
// Concurrent misses share one store load. Cache failures are logged and fall
// through to the store.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, gen, hit, err := s.cache.Load(ctx)
	switch {
	case err != nil:
		obs.Inc(obs.CatalogCacheTotal, "error")
		s.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	case hit:
		obs.Inc(obs.CatalogCacheTotal, "hit")
		return snap, nil
	case s.cache.enabled():
		obs.Inc(obs.CatalogCacheTotal, "miss")
	}

	v, err, _ := s.loads.Do(strconv.FormatInt(gen, 10), func() (any, error) {
		snap, err := s.store.LoadSnapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load catalog: %w", err)
		}
		if err := s.cache.Store(ctx, gen, snap); err != nil {
			s.logger.Warn().Err(err).Msg("catalog_cache_write_failed")
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// PricingCatalog returns the snapshot in the pricing engine's shape.
func (s *Service) PricingCatalog(ctx context.Context) (pricing.Catalog, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return pricing.Catalog{}, err
	}
	return snap.Pricing(), nil
}

// View returns the public catalog read model.
func (s *Service) View(ctx context.Context) (View, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return View{}, err
	}
	return BuildView(snap), nil
}

// Addons returns filtered public add-ons.
func (s *Service) Addons(ctx context.Context, q AddonQuery) ([]AddonView, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rows := FilterAddons(snap.Addons, q)
	out := make([]AddonView, 0, len(rows))
	for _, a := range rows {
		out = append(out, addonView(a))
	}
	return out, nil
}

// Invalidate drops the cached snapshot.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_invalidate_failed")
	}
}

// PriceInput carries per-plan amounts in major units. Nil means absent.
// Amounts are capped at pricing.MaxUnitCents.
type PriceInput struct {
	OneTime *float64 `json:"oneTime" yaml:"oneTime" validate:"omitempty,gte=0,lte=999999.99"`
	Monthly *float64 `json:"monthly" yaml:"monthly" validate:"omitempty,gte=0,lte=999999.99"`
}

func (p PriceInput) cents() (*int64, *int64) {
	var oneTime, monthly *int64
	if p.OneTime != nil {
		oneTime = pricing.FromMajor(*p.OneTime).Pointer()
	}
	if p.Monthly != nil {
		monthly = pricing.FromMajor(*p.Monthly).Pointer()
	}
	return oneTime, monthly
}

// ServiceInput is the admin payload for services.
type ServiceInput struct {
	Key       string     `json:"key" yaml:"key" validate:"required,catalogkey"`
	Name      string     `json:"name" yaml:"name" validate:"required,max=200"`
	Blurb     string     `json:"blurb" yaml:"blurb" validate:"max=2000"`
	Category  string     `json:"category" yaml:"category" validate:"max=100"`
	Badge     string     `json:"badge" yaml:"badge" validate:"max=100"`
	MinTerm   string     `json:"minTerm" yaml:"minTerm" validate:"max=100"`
	SLA       string     `json:"sla" yaml:"sla" validate:"max=200"`
	Popular   bool       `json:"popular" yaml:"popular"`
	Includes  []string   `json:"includes" yaml:"includes" validate:"dive,max=300"`
	Base      PriceInput `json:"base" yaml:"base"`
	SortOrder int        `json:"sortOrder" yaml:"sortOrder"`
}

func (in ServiceInput) model() Service {
	oneTime, monthly := in.Base.cents()
	return Service{
		Key:          strings.TrimSpace(in.Key),
		Name:         strings.TrimSpace(in.Name),
		Blurb:        in.Blurb,
		Category:     in.Category,
		Badge:        in.Badge,
		MinTerm:      in.MinTerm,
		SLA:          in.SLA,
		Popular:      in.Popular,
		Includes:     nonNil(in.Includes),
		OneTimeCents: oneTime,
		MonthlyCents: monthly,
		SortOrder:    in.SortOrder,
	}
}

// AddonInput is the admin payload for add-ons.
type AddonInput struct {
	Key                string     `json:"key" yaml:"key" validate:"required,catalogkey"`
	Name               string     `json:"name" yaml:"name" validate:"required,max=200"`
	Description        string     `json:"description" yaml:"description" validate:"max=2000"`
	Short              string     `json:"short" yaml:"short" validate:"max=300"`
	Badge              string     `json:"badge" yaml:"badge" validate:"max=100"`
	Popular            bool       `json:"popular" yaml:"popular"`
	ServiceID          string     `json:"serviceId" yaml:"serviceId" validate:"omitempty,catalogkey"`
	ApplicableServices []string   `json:"applicableServices" yaml:"applicableServices" validate:"dive,required"`
	Price              PriceInput `json:"price" yaml:"price"`
}

func (in AddonInput) model() Addon {
	oneTime, monthly := in.Price.cents()
	applicable := in.ApplicableServices
	if len(applicable) == 0 {
		if in.ServiceID != "" {
			applicable = []string{in.ServiceID}
		} else {
			applicable = []string{pricing.ApplicableToAll}
		}
	}
	return Addon{
		Key:                strings.TrimSpace(in.Key),
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		Short:              in.Short,
		Badge:              in.Badge,
		Popular:            in.Popular,
		ServiceID:          in.ServiceID,
		ApplicableServices: applicable,
		OneTimeCents:       oneTime,
		MonthlyCents:       monthly,
	}
}

// BundleInput is the admin payload for bundles.
type BundleInput struct {
	Key         string     `json:"key" yaml:"key" validate:"required,catalogkey"`
	Name        string     `json:"name" yaml:"name" validate:"required,max=200"`
	Description string     `json:"description" yaml:"description" validate:"max=2000"`
	Includes    []string   `json:"includes" yaml:"includes" validate:"dive,max=300"`
	Savings     string     `json:"savings" yaml:"savings" validate:"max=200"`
	Price       PriceInput `json:"price" yaml:"price"`
}

func (in BundleInput) model() Bundle {
	oneTime, monthly := in.Price.cents()
	return Bundle{
		Key:          strings.TrimSpace(in.Key),
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Includes:     nonNil(in.Includes),
		Savings:      in.Savings,
		OneTimeCents: oneTime,
		MonthlyCents: monthly,
	}
}

// ListServices returns services for the admin list.
func (s *Service) ListServices(ctx context.Context) ([]Service, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Services, nil
}

// ListAddons returns add-ons, optionally scoped to a service key.
func (s *Service) ListAddons(ctx context.Context, serviceKey string) ([]Addon, error) {
	return s.store.ListAddons(ctx, serviceKey)
}

// ListBundles returns bundles for the admin list.
func (s *Service) ListBundles(ctx context.Context) ([]Bundle, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Bundles, nil
}

// CreateService inserts a service. An existing key is a conflict.
func (s *Service) CreateService(ctx context.Context, in ServiceInput) (Service, error) {
	if err := s.check(in); err != nil {
		return Service{}, err
	}
	out, err := s.store.CreateService(ctx, in.model())
	return out, s.afterWrite(ctx, "service", err)
}

// UpdateService replaces the service identified by key.
func (s *Service) UpdateService(ctx context.Context, key string, in ServiceInput) (Service, error) {
	in.Key = key
	if err := s.check(in); err != nil {
		return Service{}, err
	}
	out, err := s.store.UpdateService(ctx, in.model())
	return out, s.afterWrite(ctx, "service", err)
}

// DeleteService removes a service.
func (s *Service) DeleteService(ctx context.Context, key string) error {
	return s.afterWrite(ctx, "service", s.store.DeleteService(ctx, key))
}

// CreateAddon inserts an add-on.
func (s *Service) CreateAddon(ctx context.Context, in AddonInput) (Addon, error) {
	if err := s.check(in); err != nil {
		return Addon{}, err
	}
	out, err := s.store.CreateAddon(ctx, in.model())
	return out, s.afterWrite(ctx, "addon", err)
}

// UpdateAddon replaces the add-on identified by key.
func (s *Service) UpdateAddon(ctx context.Context, key string, in AddonInput) (Addon, error) {
	in.Key = key
	if err := s.check(in); err != nil {
		return Addon{}, err
	}
	out, err := s.store.UpdateAddon(ctx, in.model())
	return out, s.afterWrite(ctx, "addon", err)
}

// DeleteAddon removes an add-on.
func (s *Service) DeleteAddon(ctx context.Context, key string) error {
	return s.afterWrite(ctx, "addon", s.store.DeleteAddon(ctx, key))
}

// CreateBundle inserts a bundle.
func (s *Service) CreateBundle(ctx context.Context, in BundleInput) (Bundle, error) {
	if err := s.check(in); err != nil {
		return Bundle{}, err
	}
	out, err := s.store.CreateBundle(ctx, in.model())
	return out, s.afterWrite(ctx, "bundle", err)
}

// UpdateBundle replaces the bundle identified by key.
func (s *Service) UpdateBundle(ctx context.Context, key string, in BundleInput) (Bundle, error) {
	in.Key = key
	if err := s.check(in); err != nil {
		return Bundle{}, err
	}
	out, err := s.store.UpdateBundle(ctx, in.model())
	return out, s.afterWrite(ctx, "bundle", err)
}

// DeleteBundle removes a bundle.
func (s *Service) DeleteBundle(ctx context.Context, key string) error {
	return s.afterWrite(ctx, "bundle", s.store.DeleteBundle(ctx, key))
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		msg := fmt.Sprintf("%s is invalid", field)
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "catalogkey":
			msg = fmt.Sprintf("%s must be lowercase letters, digits or dashes", field)
		case "max":
			msg = fmt.Sprintf("%s is too long", field)
		case "gte":
			msg = fmt.Sprintf("%s must not be negative", field)
		}
		return common.BadRequest(field, msg, err)
	}
	return common.BadRequest("", "invalid payload", err)
}

// afterWrite maps store errors and invalidates the snapshot after a successful write.
func (s *Service) afterWrite(ctx context.Context, kind string, err error) error {
	switch {
	case err == nil:
		s.Invalidate(ctx)
		return nil
	case errors.Is(err, ErrKeyExists):
		return common.Conflict("KEY_CONFLICT", kind+" key already exists", err)
	case errors.Is(err, ErrNotFound):
		return common.NotFound(kind+" not found", err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
