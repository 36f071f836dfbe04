package catalog

import (
	"slices"
	"time"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// Service is a sellable service row.
type Service struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Blurb        string    `json:"blurb"`
	Category     string    `json:"category"`
	Badge        string    `json:"badge"`
	MinTerm      string    `json:"minTerm"`
	SLA          string    `json:"sla"`
	Popular      bool      `json:"popular"`
	Includes     []string  `json:"includes"`
	OneTimeCents *int64    `json:"oneTimeCents"`
	MonthlyCents *int64    `json:"monthlyCents"`
	SortOrder    int       `json:"sortOrder"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Addon is an optional extra that can be attached to services.
type Addon struct {
	Key                string    `json:"key"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Short              string    `json:"short"`
	Badge              string    `json:"badge"`
	Popular            bool      `json:"popular"`
	ServiceID          string    `json:"serviceId,omitempty"`
	ApplicableServices []string  `json:"applicableServices"`
	OneTimeCents       *int64    `json:"oneTimeCents"`
	MonthlyCents       *int64    `json:"monthlyCents"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Applicability returns the normalised applicability set: the explicit set
// plus the legacy service_id, or "all" when both are empty. ListAddons filters
// with the same rule in SQL.
func (a Addon) Applicability() []string {
	out := slices.Clone(a.ApplicableServices)
	if a.ServiceID != "" && !slices.Contains(out, a.ServiceID) {
		out = append(out, a.ServiceID)
	}
	if len(out) == 0 {
		return []string{pricing.ApplicableToAll}
	}
	return out
}

// AppliesTo reports whether the add-on can be sold with serviceKey.
func (a Addon) AppliesTo(serviceKey string) bool {
	for _, s := range a.Applicability() {
		if s == pricing.ApplicableToAll || s == serviceKey {
			return true
		}
	}
	return false
}

// Bundle is a package priced as one unit.
type Bundle struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Includes     []string  `json:"includes"`
	Savings      string    `json:"savings"`
	OneTimeCents *int64    `json:"oneTimeCents"`
	MonthlyCents *int64    `json:"monthlyCents"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Snapshot is the full catalog read in one go.
type Snapshot struct {
	Services []Service `json:"services"`
	Addons   []Addon   `json:"addons"`
	Bundles  []Bundle  `json:"bundles"`
}

// Pricing converts the snapshot into the pricing engine's view. NULL price
// columns become absent amounts.
func (s Snapshot) Pricing() pricing.Catalog {
	cat := pricing.Catalog{
		Services: make([]pricing.CatalogItem, 0, len(s.Services)),
		Addons:   make([]pricing.CatalogItem, 0, len(s.Addons)),
		Bundles:  make([]pricing.CatalogItem, 0, len(s.Bundles)),
	}
	for _, svc := range s.Services {
		cat.Services = append(cat.Services, pricing.CatalogItem{
			Key:     svc.Key,
			Name:    svc.Name,
			Price:   priceOf(svc.OneTimeCents, svc.MonthlyCents),
			MinTerm: svc.MinTerm,
		})
	}
	for _, a := range s.Addons {
		cat.Addons = append(cat.Addons, pricing.CatalogItem{
			Key:           a.Key,
			Name:          a.Name,
			Price:         priceOf(a.OneTimeCents, a.MonthlyCents),
			Applicability: a.Applicability(),
		})
	}
	for _, b := range s.Bundles {
		cat.Bundles = append(cat.Bundles, pricing.CatalogItem{
			Key:   b.Key,
			Name:  b.Name,
			Price: priceOf(b.OneTimeCents, b.MonthlyCents),
		})
	}
	return cat
}

func priceOf(oneTime, monthly *int64) pricing.Price {
	return pricing.Price{OneTime: pricing.FromPointer(oneTime), Monthly: pricing.FromPointer(monthly)}
}
