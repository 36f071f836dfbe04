package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/events"
)

type memStore struct {
	mu    sync.Mutex
	leads []Lead
}

func (m *memStore) Insert(_ context.Context, l Lead) (Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.CreatedAt = time.Now()
	m.leads = append(m.leads, l)
	return l, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Lead, 0, len(m.leads))
	for i := len(m.leads) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.leads[i])
	}
	return out, nil
}

type captured struct {
	topic   string
	payload map[string]any
}

type recorder struct{ events []captured }

func (r *recorder) Emit(_ context.Context, topic, _ string, payload any) (events.Event, error) {
	r.events = append(r.events, captured{topic: topic, payload: payload.(map[string]any)})
	return events.Event{Type: topic}, nil
}

func newHandler(t *testing.T) (*Handler, *memStore, *recorder) {
	t.Helper()
	store := &memStore{}
	rec := &recorder{}
	svc, err := NewService(ServiceConfig{Store: store, Events: rec})
	require.NoError(t, err)
	return &Handler{Svc: svc}, store, rec
}

func do(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestSubmitLead(t *testing.T) {
	h, store, events := newHandler(t)

	rec := do(h.Submit, `{"name":" Ada ","email":"Ada@Example.com","message":"hello","metadata":{"source":"footer"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	require.Len(t, store.leads, 1)
	require.Equal(t, "Ada", store.leads[0].Name)
	require.Equal(t, "ada@example.com", store.leads[0].Email)
	require.Equal(t, "footer", store.leads[0].Metadata["source"])
	require.Len(t, events.events, 1)
	require.Equal(t, "lead.received", events.events[0].topic)
	require.Equal(t, store.leads[0].ID, events.events[0].payload["lead_id"])
}

func TestSubmitLeadValidation(t *testing.T) {
	h, store, _ := newHandler(t)
	cases := map[string]struct {
		body  string
		field string
	}{
		"missing email": {`{"name":"Ada"}`, "email"},
		"bad email":     {`{"email":"nope"}`, "email"},
		"long name":     {`{"email":"a@b.co","name":"` + strings.Repeat("x", 201) + `"}`, "name"},
		"long message":  {`{"email":"a@b.co","message":"` + strings.Repeat("x", 5001) + `"}`, "message"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(h.Submit, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body struct {
				Details map[string]string `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.field, body.Details["field"])
		})
	}
	require.Empty(t, store.leads)
}

func TestPageview(t *testing.T) {
	h, _, events := newHandler(t)

	rec := do(h.Pageview, `{"path":"/pricing","referrer":"https://google.com"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "pageview", events.events[0].topic)
	require.Equal(t, "/pricing", events.events[0].payload["path"])

	rec = do(h.Pageview, `{"path":"pricing"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListNewestFirst(t *testing.T) {
	h, _, _ := newHandler(t)
	for _, email := range []string{"a@x.co", "b@x.co"} {
		require.Equal(t, http.StatusOK, do(h.Submit, `{"email":"`+email+`"}`).Code)
	}
	rec := httptest.NewRecorder()
	h.AdminList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []Lead `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "b@x.co", body.Data[0].Email)
}
