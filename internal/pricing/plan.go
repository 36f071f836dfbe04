package pricing

import "strings"

// Plan discriminates between one-time and recurring monthly billing.
type Plan string

const (
	PlanOneTime Plan = "oneTime"
	PlanMonthly Plan = "monthly"
)

// Mode is the billing mode understood by the checkout gateway.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// ParsePlan accepts the canonical plan names plus the snake/kebab spellings
// older clients send.
func ParsePlan(raw string) (Plan, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "onetime", "one_time", "one-time":
		return PlanOneTime, true
	case "monthly":
		return PlanMonthly, true
	default:
		return Plan(raw), false
	}
}

// Valid reports whether p is one of the recognised plans.
func (p Plan) Valid() bool {
	return p == PlanOneTime || p == PlanMonthly
}

// Recurring reports whether line items billed under p repeat monthly.
func (p Plan) Recurring() bool {
	return p == PlanMonthly
}

// Mode maps the plan to a gateway billing mode.
func (p Plan) Mode() Mode {
	if p == PlanMonthly {
		return ModeSubscription
	}
	return ModePayment
}

// Label is the human readable suffix used in line item names.
func (p Plan) Label() string {
	if p == PlanMonthly {
		return "Monthly"
	}
	return "One-time"
}
