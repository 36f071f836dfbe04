package leads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

// Store persists leads.
type Store interface {
	Insert(ctx context.Context, l Lead) (Lead, error)
	List(ctx context.Context, limit int) ([]Lead, error)
}

// PgStore keeps leads in the leads table.
type PgStore struct {
	DB db.Querier
}

// Insert implements Store.
func (s PgStore) Insert(ctx context.Context, l Lead) (Lead, error) {
	meta, err := json.Marshal(l.Metadata)
	if err != nil {
		return Lead{}, fmt.Errorf("encode lead metadata: %w", err)
	}
	err = s.DB.QueryRow(ctx, `
		INSERT INTO leads (id, name, email, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		l.ID, l.Name, l.Email, l.Message, meta).Scan(&l.CreatedAt)
	if err != nil {
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return l, nil
}

// List implements Store, newest first.
func (s PgStore) List(ctx context.Context, limit int) ([]Lead, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, name, email, message, metadata, created_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()
	out := []Lead{}
	for rows.Next() {
		var (
			l    Lead
			meta []byte
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Message, &meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &l.Metadata)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
