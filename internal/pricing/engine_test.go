package pricing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

func testCatalog() pricing.Catalog {
	return pricing.Catalog{
		Services: []pricing.CatalogItem{
			{Key: "web", Name: "Website", Price: pricing.Price{OneTime: pricing.Cents(30000), Monthly: pricing.Cents(5000)}},
			{Key: "seo", Name: "SEO", Price: pricing.Price{Monthly: pricing.Cents(20000)}, MinTerm: "3 months"},
			{Key: "free", Name: "Consult", Price: pricing.Price{OneTime: pricing.Cents(0)}},
		},
		Addons: []pricing.CatalogItem{
			{Key: "web-seo", Name: "On-page SEO", Price: pricing.Price{OneTime: pricing.Cents(15000)}, Applicability: []string{pricing.ApplicableToAll}},
			{Key: "web-only", Name: "Extra page", Price: pricing.Price{OneTime: pricing.Cents(4000), Monthly: pricing.Cents(1000)}, Applicability: []string{"web"}},
			{Key: "orphan", Name: "Orphan", Price: pricing.Price{OneTime: pricing.Cents(999)}},
		},
		Bundles: []pricing.CatalogItem{
			{Key: "growth", Name: "Growth Wave", Price: pricing.Price{OneTime: pricing.Cents(250000)}},
		},
	}
}

func TestPriceForPlanNeverFallsBack(t *testing.T) {
	cat := testCatalog()
	seo := cat.Services[1]
	require.Equal(t, pricing.Money(0), pricing.PriceForPlan(seo, pricing.PlanOneTime))
	require.Equal(t, pricing.Money(20000), pricing.PriceForPlan(seo, pricing.PlanMonthly))

	addon := cat.Addons[0]
	require.Equal(t, pricing.Money(0), pricing.PriceForPlan(addon, pricing.PlanMonthly))
	require.Equal(t, pricing.Money(0), pricing.PriceForPlan(addon, pricing.Plan("weekly")))
	require.Equal(t, pricing.Money(0), pricing.PriceForPlan(pricing.CatalogItem{}, pricing.PlanOneTime))
}

func TestBuildLineItemsOneTimeScenario(t *testing.T) {
	sel := pricing.Selection{Services: []string{"web"}, Addons: []string{"web-seo"}, Plan: pricing.PlanOneTime}
	items := pricing.BuildLineItems(sel, testCatalog(), sel.Plan)

	require.Len(t, items, 2)
	require.Equal(t, "Website - Base (One-time)", items[0].Label)
	require.Equal(t, pricing.KindBase, items[0].Kind)
	require.Equal(t, pricing.KindAddon, items[1].Kind)
	for _, it := range items {
		require.False(t, it.Recurring)
	}
	require.Equal(t, pricing.Money(45000), pricing.CartTotal(sel, testCatalog()))
}

func TestBuildLineItemsMonthlyDropsAbsentAddon(t *testing.T) {
	sel := pricing.Selection{Services: []string{"web"}, Addons: []string{"web-seo"}, Plan: pricing.PlanMonthly}
	items := pricing.BuildLineItems(sel, testCatalog(), sel.Plan)

	require.Len(t, items, 1)
	require.Equal(t, "web", items[0].Key)
	require.True(t, items[0].Recurring)
	require.Equal(t, pricing.Money(5000), pricing.CartTotal(sel, testCatalog()))
}

func TestAddonApplicability(t *testing.T) {
	cat := testCatalog()

	with := pricing.BuildLineItems(pricing.Selection{Services: []string{"web"}, Addons: []string{"web-only"}}, cat, pricing.PlanOneTime)
	require.Len(t, with, 2)
	require.Equal(t, "web-only", with[1].Key)

	without := pricing.BuildLineItems(pricing.Selection{Services: []string{"seo"}, Addons: []string{"web-only"}}, cat, pricing.PlanMonthly)
	require.Len(t, without, 1)
	require.Equal(t, "seo", without[0].Key)

	orphan := pricing.BuildLineItems(pricing.Selection{Services: []string{"web"}, Addons: []string{"orphan"}}, cat, pricing.PlanOneTime)
	require.Len(t, orphan, 1, "add-on with no applicability set is never billed")
}

func TestBuildLineItemsOrderingAndFiltering(t *testing.T) {
	sel := pricing.Selection{
		Addons:   []string{"web-only", "web-seo", "web-seo", "missing"},
		Bundles:  []string{"growth"},
		Services: []string{"free", "web", "unknown", "web"},
	}
	items := pricing.BuildLineItems(sel, testCatalog(), pricing.PlanOneTime)

	keys := make([]string, 0, len(items))
	for _, it := range items {
		require.NotZero(t, it.UnitAmount)
		keys = append(keys, it.Key)
	}
	require.Equal(t, []string{"web", "growth", "web-only", "web-seo"}, keys)
	require.Equal(t, "Growth Wave - Bundle (One-time)", items[1].Label)
	require.Equal(t, pricing.KindBase, items[1].Kind)
}

func TestCartTotalMatchesLineItems(t *testing.T) {
	cat := testCatalog()
	for _, plan := range []pricing.Plan{pricing.PlanOneTime, pricing.PlanMonthly} {
		sel := pricing.Selection{
			Services: []string{"web", "seo"},
			Bundles:  []string{"growth"},
			Addons:   []string{"web-seo", "web-only"},
			Plan:     plan,
		}
		var sum pricing.Money
		for _, it := range pricing.BuildLineItems(sel, cat, plan) {
			sum += it.UnitAmount
		}
		require.Equal(t, sum, pricing.CartTotal(sel, cat))
	}
}

func TestFromMajorRoundsOncePerAmount(t *testing.T) {
	require.Equal(t, pricing.Money(1999), pricing.FromMajor(19.99).Cents)
	require.Equal(t, pricing.Money(30000), pricing.FromMajor(300).Cents)
	require.True(t, pricing.FromMajor(0).Set)
	require.Equal(t, pricing.Money(0), pricing.FromMajor(-4).Cents)
	require.Equal(t, pricing.MaxUnitCents, pricing.FromMajor(999999.99).Cents)
	require.False(t, pricing.FromMajor(1e17).Set)
	require.False(t, pricing.FromMajor(1e300).Set)
}

func TestToCheckoutPayload(t *testing.T) {
	contact := pricing.Contact{Name: " Ada ", Email: "ada@example.com", Company: "Analytical", Notes: "call me"}

	t.Run("one-time payment", func(t *testing.T) {
		sel := pricing.Selection{Services: []string{"web"}, Addons: []string{"web-seo"}}
		items := pricing.BuildLineItems(sel, testCatalog(), pricing.PlanOneTime)
		payload, err := pricing.ToCheckoutPayload(items, pricing.PlanOneTime, contact)
		require.NoError(t, err)
		require.Equal(t, pricing.ModePayment, payload.Mode)
		require.Equal(t, "usd", payload.Currency)
		require.Len(t, payload.Lines, 2)
		require.Empty(t, payload.Lines[0].RecurringInterval)
		require.Equal(t, pricing.Money(30000), payload.Lines[0].UnitAmountMinorUnits)
		require.Equal(t, "Ada", payload.Contact.Name)
		require.Equal(t, "Analytical", payload.Metadata["customer_company"])
		require.Equal(t, pricing.Money(45000), payload.Total())
	})

	t.Run("monthly subscription", func(t *testing.T) {
		sel := pricing.Selection{Services: []string{"seo"}}
		items := pricing.BuildLineItems(sel, testCatalog(), pricing.PlanMonthly)
		payload, err := pricing.ToCheckoutPayload(items, pricing.PlanMonthly, contact)
		require.NoError(t, err)
		require.Equal(t, pricing.ModeSubscription, payload.Mode)
		require.Equal(t, "month", payload.Lines[0].RecurringInterval)
	})

	t.Run("empty cart", func(t *testing.T) {
		_, err := pricing.ToCheckoutPayload(nil, pricing.PlanOneTime, contact)
		require.True(t, pricing.IsValidationError(err))
		require.ErrorIs(t, err, pricing.ErrEmptyCart)
	})

	t.Run("zero amount lines do not count", func(t *testing.T) {
		_, err := pricing.ToCheckoutPayload([]pricing.LineItem{{Key: "x", Label: "x"}}, pricing.PlanOneTime, contact)
		require.ErrorIs(t, err, pricing.ErrEmptyCart)
	})

	t.Run("invalid email", func(t *testing.T) {
		items := pricing.BuildLineItems(pricing.Selection{Services: []string{"web"}}, testCatalog(), pricing.PlanOneTime)
		_, err := pricing.ToCheckoutPayload(items, pricing.PlanOneTime, pricing.Contact{Name: "Ada", Email: "not-an-email"})
		var verr *pricing.ValidationError
		require.True(t, errors.As(err, &verr))
		require.Equal(t, "email", verr.Field)
		require.ErrorIs(t, err, pricing.ErrInvalidEmail)
	})

	t.Run("missing name", func(t *testing.T) {
		items := pricing.BuildLineItems(pricing.Selection{Services: []string{"web"}}, testCatalog(), pricing.PlanOneTime)
		_, err := pricing.ToCheckoutPayload(items, pricing.PlanOneTime, pricing.Contact{Email: "ada@example.com"})
		require.ErrorIs(t, err, pricing.ErrMissingName)
	})

	t.Run("invalid plan", func(t *testing.T) {
		_, err := pricing.ToCheckoutPayload(nil, pricing.Plan("yearly"), contact)
		require.ErrorIs(t, err, pricing.ErrInvalidPlan)
	})
}

func TestNoApplicableItemsFailsCheckout(t *testing.T) {
	sel := pricing.Selection{Addons: []string{"web-only"}, Plan: pricing.PlanOneTime}
	items := pricing.BuildLineItems(sel, testCatalog(), sel.Plan)
	require.Empty(t, items)

	_, err := pricing.ToCheckoutPayload(items, sel.Plan, pricing.Contact{Name: "Ada", Email: "ada@example.com"})
	require.True(t, pricing.IsValidationError(err))
}

func TestParsePlan(t *testing.T) {
	p, ok := pricing.ParsePlan("one_time")
	require.True(t, ok)
	require.Equal(t, pricing.PlanOneTime, p)
	p, ok = pricing.ParsePlan("monthly")
	require.True(t, ok)
	require.Equal(t, pricing.PlanMonthly, p)
	_, ok = pricing.ParsePlan("annual")
	require.False(t, ok)
}
