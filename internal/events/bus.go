package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	errNoStore    = errors.New("events: store not configured")
	errNoTopic    = errors.New("events: topic is required")
	errNotJSON    = errors.New("events: payload is not valid json")
	emptyDocument = json.RawMessage(`{}`)
)

// Event is one row of the event log.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId,omitempty"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

type EventStore interface {
	InsertEvent(ctx context.Context, ev Event) (Event, error)
}

// Notifier is handed every stored event, for example to queue an email.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Emitter is what services depend on to publish events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error)
}

// Bus stores events and then hands them to each notifier in order.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit stores a new event and notifies. The stored event is returned even
// when notifiers fail; their errors come back joined. aggregateID may be
// empty for events that are not about one entity.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errNoStore
	}
	ev, err := b.build(topic, aggregateID, payload)
	if err != nil {
		return Event{}, err
	}
	stored, err := b.Store.InsertEvent(ctx, ev)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist %s: %w", ev.Type, err)
	}
	ev = stored

	var errs []error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("events: notify %s: %w", ev.Type, err))
		}
	}
	return ev, errors.Join(errs...)
}

func (b *Bus) build(topic, aggregateID string, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errNoTopic
	}
	data, err := toJSON(payload)
	if err != nil {
		return Event{}, err
	}
	at := time.Now()
	if b.Now != nil {
		at = b.Now()
	}
	return Event{
		ID:          uuid.New(),
		Type:        topic,
		AggregateID: strings.TrimSpace(aggregateID),
		Data:        data,
		OccurredAt:  at.UTC(),
	}, nil
}

// toJSON accepts pre-encoded JSON as string, []byte or json.RawMessage and
// marshals anything else. Empty input becomes {}.
func toJSON(payload any) (json.RawMessage, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return emptyDocument, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("events: encode payload: %w", err)
		}
		return data, nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return emptyDocument, nil
	}
	if !json.Valid(raw) {
		return nil, errNotJSON
	}
	return bytes.Clone(raw), nil
}
