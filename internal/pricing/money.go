package pricing

import "math"

// Money represents a monetary value stored in minor units (cents).
type Money = int64

// MaxUnitCents is the largest amount a single line may carry, the ceiling
// Stripe accepts for unit_amount.
const MaxUnitCents Money = 99_999_999

// Amount is an optional price. The zero value is an absent price.
type Amount struct {
	Cents Money
	Set   bool
}

// Cents builds a present amount from minor units. Negative values are clamped to zero.
func Cents(v Money) Amount {
	if v < 0 {
		v = 0
	}
	return Amount{Cents: v, Set: true}
}

// FromMajor converts a major-unit value (dollars) to a present amount,
// rounding once to the nearest cent. Values above MaxUnitCents are absent.
func FromMajor(v float64) Amount {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Round(v*100) > float64(MaxUnitCents) {
		return Amount{}
	}
	return Cents(Money(math.Round(v * 100)))
}

// FromPointer maps a nullable minor-unit column onto an Amount.
func FromPointer(v *int64) Amount {
	if v == nil {
		return Amount{}
	}
	return Cents(*v)
}

// OrZero returns the amount in cents, or zero when absent.
func (a Amount) OrZero() Money {
	if !a.Set || a.Cents < 0 {
		return 0
	}
	return a.Cents
}

// Pointer is the inverse of FromPointer.
func (a Amount) Pointer() *int64 {
	if !a.Set {
		return nil
	}
	v := a.Cents
	return &v
}

// Major renders an amount in major units for API responses.
func Major(v Money) float64 {
	return float64(v) / 100
}

// Price holds the per-plan amounts of a catalog item.
type Price struct {
	OneTime Amount
	Monthly Amount
}

// For returns the amount configured for plan without consulting the other plan.
func (p Price) For(plan Plan) Amount {
	switch plan {
	case PlanOneTime:
		return p.OneTime
	case PlanMonthly:
		return p.Monthly
	default:
		return Amount{}
	}
}
