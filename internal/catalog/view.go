package catalog

import (
	"sort"
	"strings"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// PriceView renders per-plan amounts in major units. Absent amounts render as 0.
type PriceView struct {
	OneTime float64 `json:"oneTime"`
	Monthly float64 `json:"monthly"`
}

// AddonView is the public representation of an add-on.
type AddonView struct {
	Key                string    `json:"key"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Short              string    `json:"short"`
	Badge              string    `json:"badge"`
	Popular            bool      `json:"popular"`
	Price              PriceView `json:"price"`
	ApplicableServices []string  `json:"applicableServices"`
}

// ServiceView is the public representation of a service with its applicable add-ons.
type ServiceView struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Blurb    string      `json:"blurb"`
	Category string      `json:"category,omitempty"`
	Badge    string      `json:"badge,omitempty"`
	MinTerm  string      `json:"minTerm,omitempty"`
	SLA      string      `json:"sla,omitempty"`
	Popular  bool        `json:"popular"`
	Base     PriceView   `json:"base"`
	Includes []string    `json:"includes"`
	AddOns   []AddonView `json:"addOns"`
}

// BundleView is the public representation of a bundle.
type BundleView struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Includes    []string  `json:"includes"`
	Savings     string    `json:"savings,omitempty"`
	Price       PriceView `json:"price"`
}

// View is the GET /catalog response body.
type View struct {
	Services []ServiceView `json:"services"`
	Addons   []AddonView   `json:"addons"`
	Bundles  []BundleView  `json:"bundles"`
}

func priceView(oneTime, monthly *int64) PriceView {
	return PriceView{
		OneTime: pricing.Major(pricing.FromPointer(oneTime).OrZero()),
		Monthly: pricing.Major(pricing.FromPointer(monthly).OrZero()),
	}
}

func addonView(a Addon) AddonView {
	return AddonView{
		Key:                a.Key,
		Name:               a.Name,
		Description:        a.Description,
		Short:              a.Short,
		Badge:              a.Badge,
		Popular:            a.Popular,
		Price:              priceView(a.OneTimeCents, a.MonthlyCents),
		ApplicableServices: a.Applicability(),
	}
}

// BuildView groups applicable add-ons under each service.
func BuildView(s Snapshot) View {
	view := View{
		Services: make([]ServiceView, 0, len(s.Services)),
		Addons:   make([]AddonView, 0, len(s.Addons)),
		Bundles:  make([]BundleView, 0, len(s.Bundles)),
	}
	for _, a := range s.Addons {
		view.Addons = append(view.Addons, addonView(a))
	}
	for _, svc := range s.Services {
		sv := ServiceView{
			Key:      svc.Key,
			Name:     svc.Name,
			Blurb:    svc.Blurb,
			Category: svc.Category,
			Badge:    svc.Badge,
			MinTerm:  svc.MinTerm,
			SLA:      svc.SLA,
			Popular:  svc.Popular,
			Base:     priceView(svc.OneTimeCents, svc.MonthlyCents),
			Includes: nonNil(svc.Includes),
			AddOns:   []AddonView{},
		}
		for _, a := range s.Addons {
			if a.AppliesTo(svc.Key) {
				sv.AddOns = append(sv.AddOns, addonView(a))
			}
		}
		view.Services = append(view.Services, sv)
	}
	for _, b := range s.Bundles {
		view.Bundles = append(view.Bundles, BundleView{
			Key:         b.Key,
			Name:        b.Name,
			Description: b.Description,
			Includes:    nonNil(b.Includes),
			Savings:     b.Savings,
			Price:       priceView(b.OneTimeCents, b.MonthlyCents),
		})
	}
	return view
}

// AddonQuery filters and orders add-ons.
type AddonQuery struct {
	Search  string
	Service string
	Sort    string
	Plan    pricing.Plan
}

// Recognised AddonQuery.Sort values.
const (
	SortPopular   = "popular"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortName      = "name"
)

// FilterAddons applies a search/service filter and a stable sort.
func FilterAddons(addons []Addon, q AddonQuery) []Addon {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	plan := q.Plan
	if !plan.Valid() {
		plan = pricing.PlanOneTime
	}
	out := make([]Addon, 0, len(addons))
	for _, a := range addons {
		if q.Service != "" && !a.AppliesTo(q.Service) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Name), needle) &&
			!strings.Contains(strings.ToLower(a.Description), needle) {
			continue
		}
		out = append(out, a)
	}

	price := func(a Addon) pricing.Money {
		return pricing.PriceForPlan(pricing.CatalogItem{Price: priceOf(a.OneTimeCents, a.MonthlyCents)}, plan)
	}
	byName := func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) }

	switch q.Sort {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool {
			if pi, pj := price(out[i]), price(out[j]); pi != pj {
				return pi < pj
			}
			return byName(i, j)
		})
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool {
			if pi, pj := price(out[i]), price(out[j]); pi != pj {
				return pi > pj
			}
			return byName(i, j)
		})
	case SortName:
		sort.SliceStable(out, byName)
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Popular != out[j].Popular {
				return out[i].Popular
			}
			return byName(i, j)
		})
	}
	return out
}
