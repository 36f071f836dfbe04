package pricing

import "fmt"

// LineKind tells base lines apart from add-on lines.
type LineKind string

const (
	KindBase  LineKind = "base"
	KindAddon LineKind = "addon"
)

// LineItem is a billable line derived from a selection. It is never stored.
type LineItem struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	UnitAmount Money    `json:"unitAmount"`
	Kind       LineKind `json:"kind"`
	Recurring  bool     `json:"recurring"`
	// Source is the collection the key belongs to: service, bundle or addon.
	Source string `json:"source"`
}

// PriceForPlan returns the item's price for plan, or zero when absent.
// A missing monthly price never falls back to the one-time price, and vice versa.
func PriceForPlan(item CatalogItem, plan Plan) Money {
	return item.Price.For(plan).OrZero()
}

// BuildLineItems prices a selection against a catalog snapshot. Services are
// emitted first, then bundles, then add-ons, each in selection order. Unknown
// keys, repeated keys, add-ons that do not apply to any selected service and
// zero-amount lines are skipped.
func BuildLineItems(sel Selection, cat Catalog, plan Plan) []LineItem {
	idx := cat.Index()
	recurring := plan.Recurring()
	items := make([]LineItem, 0, len(sel.Services)+len(sel.Bundles)+len(sel.Addons))

	serviceKeys := make([]string, 0, len(sel.Services))
	for _, key := range dedupe(sel.Services) {
		svc, ok := idx.Service(key)
		if !ok {
			continue
		}
		serviceKeys = append(serviceKeys, key)
		if amount := PriceForPlan(svc, plan); amount > 0 {
			items = append(items, LineItem{
				Key:        key,
				Label:      fmt.Sprintf("%s - Base (%s)", svc.Name, plan.Label()),
				UnitAmount: amount,
				Kind:       KindBase,
				Recurring:  recurring,
				Source:     "service",
			})
		}
	}

	for _, key := range dedupe(sel.Bundles) {
		bundle, ok := idx.Bundle(key)
		if !ok {
			continue
		}
		if amount := PriceForPlan(bundle, plan); amount > 0 {
			items = append(items, LineItem{
				Key:        key,
				Label:      fmt.Sprintf("%s - Bundle (%s)", bundle.Name, plan.Label()),
				UnitAmount: amount,
				Kind:       KindBase,
				Recurring:  recurring,
				Source:     "bundle",
			})
		}
	}

	for _, key := range dedupe(sel.Addons) {
		addon, ok := idx.Addon(key)
		if !ok || !addon.AppliesTo(serviceKeys) {
			continue
		}
		if amount := PriceForPlan(addon, plan); amount > 0 {
			items = append(items, LineItem{
				Key:        key,
				Label:      addon.Name,
				UnitAmount: amount,
				Kind:       KindAddon,
				Recurring:  recurring,
				Source:     "addon",
			})
		}
	}
	return items
}

// CartTotal is the sum of the selection's line item amounts under its own plan.
func CartTotal(sel Selection, cat Catalog) Money {
	return Sum(BuildLineItems(sel, cat, sel.Plan))
}

// Sum adds up line amounts.
func Sum(items []LineItem) Money {
	var total Money
	for _, it := range items {
		total += it.UnitAmount
	}
	return total
}

func dedupe(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
