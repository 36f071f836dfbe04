package order

import (
	"errors"
	"time"

	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusFailed          Status = "failed"
	StatusPaid            Status = "paid"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// allowedFrom lists the states each target may be entered from.
var allowedFrom = map[Status][]Status{
	StatusAwaitingPayment: {StatusPending},
	StatusFailed:          {StatusPending, StatusAwaitingPayment},
	StatusPaid:            {StatusPending, StatusAwaitingPayment, StatusFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Item is a persisted line of an order.
type Item struct {
	Position          int    `json:"position"`
	Type              string `json:"type"`
	Source            string `json:"source"`
	Key               string `json:"key"`
	Name              string `json:"name"`
	AmountCents       int64  `json:"amountCents"`
	RecurringInterval string `json:"recurringInterval,omitempty"`
	Quantity          int    `json:"quantity"`
}

// Order is a checkout attempt and its payment state.
type Order struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	Plan          pricing.Plan    `json:"plan"`
	Currency      string          `json:"currency"`
	TotalCents    int64           `json:"totalCents"`
	Contact       pricing.Contact `json:"contact"`
	ContactEmail  string          `json:"contactEmail"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	Provider      string          `json:"provider"`
	SessionID     *string         `json:"sessionId,omitempty"`
	PaymentIntent *string         `json:"paymentIntent,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Items         []Item          `json:"items,omitempty"`
}

// Draft is what checkout persists before calling the gateway.
type Draft struct {
	ID       string
	Plan     pricing.Plan
	Currency string
	Provider string
	Contact  pricing.Contact
	Items    []Item
}

// DraftFromPayload converts a validated gateway payload into a Draft.
func DraftFromPayload(id, provider string, p pricing.CheckoutPayload) Draft {
	items := make([]Item, 0, len(p.Lines))
	for i, line := range p.Lines {
		items = append(items, Item{
			Position:          i,
			Type:              line.Metadata["type"],
			Source:            line.Metadata["source"],
			Key:               line.Metadata["key"],
			Name:              line.Name,
			AmountCents:       line.UnitAmountMinorUnits,
			RecurringInterval: line.RecurringInterval,
			Quantity:          int(line.Quantity),
		})
	}
	return Draft{ID: id, Plan: p.Plan, Currency: p.Currency, Provider: provider, Contact: p.Contact, Items: items}
}

// Total sums item amounts times quantity.
func (d Draft) Total() int64 {
	var total int64
	for _, it := range d.Items {
		q := int64(it.Quantity)
		if q <= 0 {
			q = 1
		}
		total += it.AmountCents * q
	}
	return total
}

// Confirmation is a provider's notice that an order was paid.
type Confirmation struct {
	OrderID       string
	SessionID     string
	PaymentIntent string
	AmountTotal   int64
	CustomerEmail string
	CustomerName  string
}

// PaidResult describes the order after MarkPaid.
type PaidResult struct {
	OrderID     string
	Email       string
	Name        string
	Plan        pricing.Plan
	TotalCents  int64
	CustomerID  string
	AlreadyPaid bool
}

// Customer aggregates paid orders by email.
type Customer struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	Phone      string    `json:"phone"`
	Orders     int       `json:"orders"`
	SpentCents int64     `json:"spentCents"`
	CreatedAt  time.Time `json:"createdAt"`
}
