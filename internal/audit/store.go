package audit

import (
	"context"
	"fmt"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

// PgStore persists audit entries in Postgres.
type PgStore struct {
	DB db.Querier
}

// Insert implements Store.
func (s PgStore) Insert(ctx context.Context, e Entry) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_logs (actor, action, resource_type, resource_id, method, path, status, ip, user_agent, request_id, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)`,
		e.Actor, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Status, e.IP, e.UserAgent, e.RequestID, []byte(e.Metadata))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List implements Store, newest first.
func (s PgStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, actor, action, resource_type, COALESCE(resource_id, ''), method, path, status,
		       COALESCE(ip, ''), COALESCE(user_agent, ''), COALESCE(request_id, ''), metadata, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method, &e.Path, &e.Status,
			&e.IP, &e.UserAgent, &e.RequestID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if len(meta) > 0 {
			e.Metadata = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
