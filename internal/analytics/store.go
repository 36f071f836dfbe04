package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

// Store reads dashboard aggregates.
type Store interface {
	Metrics(ctx context.Context) (Metrics, error)
	TopPages(ctx context.Context, since time.Time, limit int) ([]PageCount, error)
}

// PgStore computes aggregates directly from orders, customers and events.
type PgStore struct {
	DB db.Querier
}

// Metrics implements Store.
func (s PgStore) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.DB.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(total_cents), 0) FROM orders WHERE status = 'paid'),
			(SELECT COUNT(*) FROM orders WHERE status = 'paid'),
			(SELECT COUNT(DISTINCT email) FROM customers),
			(SELECT COUNT(*) FROM events WHERE type = 'pageview')`).
		Scan(&m.RevenueCents, &m.Orders, &m.Customers, &m.Pageviews)
	if err != nil {
		return Metrics{}, fmt.Errorf("query metrics: %w", err)
	}
	return m, nil
}

// TopPages implements Store.
func (s PgStore) TopPages(ctx context.Context, since time.Time, limit int) ([]PageCount, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT COALESCE(NULLIF(data->>'path', ''), '/') AS path, COUNT(*) AS views
		FROM events
		WHERE type = 'pageview' AND created_at >= $1
		GROUP BY 1
		ORDER BY views DESC, path
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query top pages: %w", err)
	}
	defer rows.Close()
	out := []PageCount{}
	for rows.Next() {
		var p PageCount
		if err := rows.Scan(&p.Path, &p.Views); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
