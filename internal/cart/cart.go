package cart

import (
	"time"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// Kind names a selection collection.
type Kind string

const (
	KindService Kind = "service"
	KindBundle  Kind = "bundle"
	KindAddon   Kind = "addon"
)

// Cart is a persisted selection plus the contact details typed so far.
type Cart struct {
	ID        string            `json:"id"`
	Selection pricing.Selection `json:"selection"`
	Contact   pricing.Contact   `json:"contact"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// New returns an empty cart on the one-time plan.
func New(id string, now time.Time) *Cart {
	return &Cart{
		ID:        id,
		Selection: pricing.Selection{Services: []string{}, Bundles: []string{}, Addons: []string{}, Plan: pricing.PlanOneTime},
		UpdatedAt: now,
	}
}

// ToggleService adds key if absent and removes it otherwise. It reports
// whether the key is selected afterwards.
func (c *Cart) ToggleService(key string) bool {
	var on bool
	c.Selection.Services, on = toggle(c.Selection.Services, key)
	return on
}

// ToggleBundle toggles a bundle key.
func (c *Cart) ToggleBundle(key string) bool {
	var on bool
	c.Selection.Bundles, on = toggle(c.Selection.Bundles, key)
	return on
}

// ToggleAddon toggles an add-on key. Applicability is not checked here; the
// pricing engine drops add-ons that do not apply.
func (c *Cart) ToggleAddon(key string) bool {
	var on bool
	c.Selection.Addons, on = toggle(c.Selection.Addons, key)
	return on
}

// Toggle dispatches on kind. ok is false for an unknown kind.
func (c *Cart) Toggle(kind Kind, key string) (selected, ok bool) {
	switch kind {
	case KindService:
		return c.ToggleService(key), true
	case KindBundle:
		return c.ToggleBundle(key), true
	case KindAddon:
		return c.ToggleAddon(key), true
	default:
		return false, false
	}
}

// Clear empties the selection and keeps plan and contact.
func (c *Cart) Clear() {
	c.Selection.Services = []string{}
	c.Selection.Bundles = []string{}
	c.Selection.Addons = []string{}
}

// SetPlan switches the billing plan.
func (c *Cart) SetPlan(plan pricing.Plan) {
	c.Selection.Plan = plan
}

// SetContact replaces the stored contact details.
func (c *Cart) SetContact(contact pricing.Contact) {
	c.Contact = contact.Normalize()
}

func toggle(keys []string, key string) ([]string, bool) {
	for i, k := range keys {
		if k == key {
			out := make([]string, 0, len(keys)-1)
			out = append(out, keys[:i]...)
			return append(out, keys[i+1:]...), false
		}
	}
	return append(keys, key), true
}
