package events

import (
	"context"

	"github.com/noah-isme/coastmedia-api/internal/db"
)

// PgStore writes events to the events table.
type PgStore struct {
	DB db.Querier
}

// InsertEvent implements EventStore.
func (s PgStore) InsertEvent(ctx context.Context, ev Event) (Event, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO events (id, type, aggregate_id, data, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at`,
		ev.ID, ev.Type, ev.AggregateID, []byte(ev.Data), ev.OccurredAt).Scan(&ev.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}
