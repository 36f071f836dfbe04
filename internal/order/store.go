package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

// PgStore persists orders, order items and customers.
type PgStore struct {
	DB     db.TxBeginner
	Logger zerolog.Logger
}

const orderColumns = `o.id::text, o.status, o.plan, o.currency, o.total_cents, o.contact, o.contact_email,
	COALESCE(c.email, ''), o.provider, o.stripe_session_id, o.stripe_payment_intent, o.failure_reason,
	o.paid_at, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o       Order
		contact []byte
	)
	err := row.Scan(&o.ID, &o.Status, &o.Plan, &o.Currency, &o.TotalCents, &contact, &o.ContactEmail,
		&o.CustomerEmail, &o.Provider, &o.SessionID, &o.PaymentIntent, &o.FailureReason,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &o.Contact); err != nil {
			return Order{}, fmt.Errorf("decode contact: %w", err)
		}
	}
	return o, nil
}

// CreatePending inserts the order and its items in one transaction.
func (s PgStore) CreatePending(ctx context.Context, d Draft) (Order, error) {
	contact, err := json.Marshal(d.Contact)
	if err != nil {
		return Order{}, err
	}
	var out Order
	err = db.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, status, plan, currency, total_cents, contact, contact_email, provider)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, StatusPending, d.Plan, d.Currency, d.Total(), contact, strings.ToLower(d.Contact.Email), d.Provider)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		batch := &pgx.Batch{}
		for _, it := range d.Items {
			var interval *string
			if it.RecurringInterval != "" {
				interval = &it.RecurringInterval
			}
			batch.Queue(`
				INSERT INTO order_items (order_id, position, item_type, source, item_key, name, amount_cents,
					recurring_interval, quantity)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				d.ID, it.Position, it.Type, it.Source, it.Key, it.Name, it.AmountCents, interval, it.Quantity)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		out, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+`
			FROM orders o LEFT JOIN customers c ON c.id = o.customer_id WHERE o.id = $1`, d.ID))
		return err
	})
	if err != nil {
		return Order{}, err
	}
	out.Items = d.Items
	return out, nil
}

// MarkAwaitingPayment stores the gateway session and moves the order on.
func (s PgStore) MarkAwaitingPayment(ctx context.Context, id, sessionID string) error {
	return s.transition(ctx, id, StatusAwaitingPayment, `stripe_session_id = NULLIF($3, '')`, sessionID)
}

// MarkFailed records why the gateway call failed.
func (s PgStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, StatusFailed, `failure_reason = $3`, reason)
}

func (s PgStore) transition(ctx context.Context, id string, to Status, set string, arg any) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE orders SET status = $2, `+set+`, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)`,
		id, to, arg, statusStrings(allowedFrom[to]))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func statusStrings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

// MarkPaid applies a payment confirmation. The order row is locked for the
// duration; an order that is already paid is left untouched.
func (s PgStore) MarkPaid(ctx context.Context, c Confirmation) (PaidResult, error) {
	var res PaidResult
	err := db.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		var (
			status  Status
			email   string
			contact []byte
		)
		row := tx.QueryRow(ctx, `
			SELECT id::text, status, plan, total_cents, contact_email, contact
			FROM orders
			WHERE ($1 <> '' AND id::text = $1) OR ($2 <> '' AND stripe_session_id = $2)
			LIMIT 1
			FOR UPDATE`, c.OrderID, c.SessionID)
		if err := row.Scan(&res.OrderID, &status, &res.Plan, &res.TotalCents, &email, &contact); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		stored, decodeErr := decodeStoredContact(contact)
		if decodeErr != nil {
			s.Logger.Warn().Err(decodeErr).Str("order_id", res.OrderID).Msg("order_contact_decode_failed")
		}
		res.Name = firstNonEmpty(stored.Name, c.CustomerName)
		res.Email = strings.ToLower(firstNonEmpty(email, c.CustomerEmail))

		if status == StatusPaid {
			res.AlreadyPaid = true
			return nil
		}
		if !CanTransition(status, StatusPaid) {
			return ErrInvalidTransition
		}

		var customerID *string
		if res.Email != "" {
			var id string
			err := tx.QueryRow(ctx, `
				INSERT INTO customers (id, email, name, company, phone)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (email) DO UPDATE SET
					name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
					company = CASE WHEN EXCLUDED.company <> '' THEN EXCLUDED.company ELSE customers.company END,
					phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE customers.phone END,
					updated_at = NOW()
				RETURNING id::text`,
				uuid.NewString(), res.Email, res.Name, stored.Company, stored.Phone).Scan(&id)
			if err != nil {
				return fmt.Errorf("upsert customer: %w", err)
			}
			customerID = &id
			res.CustomerID = id
		}

		if c.AmountTotal > 0 {
			res.TotalCents = c.AmountTotal
		}
		_, err := tx.Exec(ctx, `
			UPDATE orders SET
				status = $2,
				stripe_payment_intent = COALESCE(NULLIF($3, ''), stripe_payment_intent),
				stripe_session_id = COALESCE(stripe_session_id, NULLIF($4, '')),
				total_cents = $5,
				contact_email = COALESCE(NULLIF(contact_email, ''), $6),
				customer_id = COALESCE($7, customer_id),
				paid_at = NOW(),
				updated_at = NOW()
			WHERE id = $1`,
			res.OrderID, StatusPaid, c.PaymentIntent, c.SessionID, res.TotalCents, res.Email, customerID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		return nil
	})
	if err != nil {
		return PaidResult{}, err
	}
	return res, nil
}

// List returns the newest orders first.
func (s PgStore) List(ctx context.Context, limit int) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders o LEFT JOIN customers c ON c.id = o.customer_id
		ORDER BY o.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Order, error) { return scanOrder(r) })
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	return out, nil
}

// Get returns one order with its items.
func (s PgStore) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+`
		FROM orders o LEFT JOIN customers c ON c.id = o.customer_id WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	rows, err := s.DB.Query(ctx, `
		SELECT position, item_type, source, item_key, name, amount_cents, COALESCE(recurring_interval, ''), quantity
		FROM order_items WHERE order_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return Order{}, fmt.Errorf("list order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (Item, error) {
		var it Item
		err := r.Scan(&it.Position, &it.Type, &it.Source, &it.Key, &it.Name, &it.AmountCents, &it.RecurringInterval, &it.Quantity)
		return it, err
	})
	if err != nil {
		return Order{}, fmt.Errorf("scan order items: %w", err)
	}
	return o, nil
}

// ListCustomers returns customers with their order counts and paid totals.
func (s PgStore) ListCustomers(ctx context.Context, limit int) ([]Customer, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT c.id::text, c.email, c.name, c.company, c.phone, COUNT(o.id),
			COALESCE(SUM(o.total_cents) FILTER (WHERE o.status = 'paid'), 0), c.created_at
		FROM customers c
		LEFT JOIN orders o ON o.customer_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Customer, error) {
		var c Customer
		err := r.Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.Phone, &c.Orders, &c.SpentCents, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan customers: %w", err)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type storedContact struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
}

// decodeStoredContact reads the contact column. A bad value yields the zero
// contact and an error; the caller still confirms the payment.
func decodeStoredContact(raw []byte) (storedContact, error) {
	var c storedContact
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return storedContact{}, fmt.Errorf("decode contact: %w", err)
	}
	return c, nil
}
