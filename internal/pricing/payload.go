package pricing

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Currency is the only currency the catalog is priced in.
const Currency = "usd"

const maxNotesInDescription = 400

var validate = validator.New(validator.WithRequiredStructEnabled())

// Contact is the customer information attached to a checkout attempt.
type Contact struct {
	Name    string `json:"name" validate:"max=200"`
	Email   string `json:"email" validate:"max=320"`
	Phone   string `json:"phone,omitempty" validate:"max=64"`
	Company string `json:"company,omitempty" validate:"max=200"`
	Notes   string `json:"notes,omitempty" validate:"max=5000"`
}

// Normalize trims surrounding whitespace from every field.
func (c Contact) Normalize() Contact {
	return Contact{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Phone:   strings.TrimSpace(c.Phone),
		Company: strings.TrimSpace(c.Company),
		Notes:   strings.TrimSpace(c.Notes),
	}
}

// ValidateContact checks the required contact fields.
func ValidateContact(c Contact) error {
	c = c.Normalize()
	if c.Name == "" {
		return invalid("name", "Name is required", ErrMissingName)
	}
	if c.Email == "" || validate.Var(c.Email, "email") != nil {
		return invalid("email", "A valid email is required", ErrInvalidEmail)
	}
	if err := validate.Struct(c); err != nil {
		field := "contact"
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field = strings.ToLower(verrs[0].Field())
		}
		return invalid(field, field+" is too long", err)
	}
	return nil
}

// PayloadLine is one gateway line item.
type PayloadLine struct {
	Name                 string            `json:"name"`
	UnitAmountMinorUnits Money             `json:"unitAmountMinorUnits"`
	RecurringInterval    string            `json:"recurringInterval,omitempty"`
	Quantity             int64             `json:"quantity"`
	Description          string            `json:"description,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// CheckoutPayload is the structure handed to a checkout gateway.
type CheckoutPayload struct {
	Mode     Mode              `json:"mode"`
	Plan     Plan              `json:"plan"`
	Currency string            `json:"currency"`
	Lines    []PayloadLine     `json:"lines"`
	Contact  Contact           `json:"contact"`
	Metadata map[string]string `json:"metadata"`
}

// Total returns the sum of all line amounts.
func (p CheckoutPayload) Total() Money {
	var total Money
	for _, l := range p.Lines {
		total += l.UnitAmountMinorUnits * l.Quantity
	}
	return total
}

// ToCheckoutPayload validates its inputs and produces a gateway payload.
// Validation runs in order: plan, billable lines, contact.
func ToCheckoutPayload(items []LineItem, plan Plan, contact Contact) (CheckoutPayload, error) {
	if !plan.Valid() {
		return CheckoutPayload{}, invalid("plan", "Invalid plan", ErrInvalidPlan)
	}
	contact = contact.Normalize()

	description := ""
	if contact.Notes != "" {
		description = "Notes: " + truncate(contact.Notes, maxNotesInDescription)
	}

	lines := make([]PayloadLine, 0, len(items))
	for _, it := range items {
		if it.UnitAmount <= 0 {
			continue
		}
		line := PayloadLine{
			Name:                 it.Label,
			UnitAmountMinorUnits: it.UnitAmount,
			Quantity:             1,
			Description:          description,
			Metadata: map[string]string{
				"key":    it.Key,
				"type":   string(it.Kind),
				"source": it.Source,
				"plan":   string(plan),
			},
		}
		if plan.Recurring() {
			line.RecurringInterval = "month"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return CheckoutPayload{}, invalid("cart", "Cart empty", ErrEmptyCart)
	}
	if err := ValidateContact(contact); err != nil {
		return CheckoutPayload{}, err
	}

	return CheckoutPayload{
		Mode:     plan.Mode(),
		Plan:     plan,
		Currency: Currency,
		Lines:    lines,
		Contact:  contact,
		Metadata: map[string]string{
			"plan":             string(plan),
			"customer_name":    contact.Name,
			"customer_company": contact.Company,
			"customer_phone":   contact.Phone,
			"notes":            truncate(contact.Notes, maxNotesInDescription),
		},
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
