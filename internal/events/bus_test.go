package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/events"
)

type stubStore struct {
	inserted []events.Event
	err      error
}

func (s *stubStore) InsertEvent(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.inserted = append(s.inserted, ev)
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestBusEmitPersistsAndNotifies(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier, nil}, Now: func() time.Time { return fixed }}

	ev, err := bus.Emit(context.Background(), events.TopicCheckoutPaid, "order-1", map[string]any{"order_id": "order-1", "total_cents": 45000})
	require.NoError(t, err)
	require.Equal(t, events.TopicCheckoutPaid, ev.Type)
	require.Equal(t, "order-1", ev.AggregateID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.Len(t, store.inserted, 1)
	require.Len(t, notifier.events, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	require.Equal(t, float64(45000), payload["total_cents"])
}

func TestBusEmitWithoutAggregate(t *testing.T) {
	store := &stubStore{}
	bus := &events.Bus{Store: store}
	ev, err := bus.Emit(context.Background(), events.TopicPageview, "", `{"path":"/"}`)
	require.NoError(t, err)
	require.Empty(t, ev.AggregateID)
	require.JSONEq(t, `{"path":"/"}`, string(ev.Data))
}

func TestBusEmitValidation(t *testing.T) {
	var nilBus *events.Bus
	_, err := nilBus.Emit(context.Background(), "x", "", nil)
	require.Error(t, err)

	bus := &events.Bus{Store: &stubStore{}}
	_, err = bus.Emit(context.Background(), "  ", "", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicPageview, "", "not json")
	require.Error(t, err)
}

func TestBusEmitJoinsNotifierErrors(t *testing.T) {
	store := &stubStore{}
	boom := errors.New("smtp down")
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{&captureNotifier{err: boom}}}
	ev, err := bus.Emit(context.Background(), events.TopicLeadReceived, "lead-1", nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, events.TopicLeadReceived, ev.Type)
	require.Len(t, store.inserted, 1, "event is persisted even when a notifier fails")
}

func TestBusEmitStoreFailure(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{err: errors.New("db down")}}
	_, err := bus.Emit(context.Background(), events.TopicCheckoutStarted, "o", nil)
	require.ErrorContains(t, err, "events: persist "+events.TopicCheckoutStarted)

	_, err = (&events.Bus{Store: &stubStore{}}).Emit(context.Background(), events.TopicPageview, "", []byte("  "))
	require.NoError(t, err)
}
