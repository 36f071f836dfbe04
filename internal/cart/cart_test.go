package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
)

type staticCatalog struct{ cat pricing.Catalog }

func (s staticCatalog) PricingCatalog(context.Context) (pricing.Catalog, error) { return s.cat, nil }

func testCatalog() pricing.Catalog {
	return pricing.Catalog{
		Services: []pricing.CatalogItem{
			{Key: "web", Name: "Website", Price: pricing.Price{OneTime: pricing.Cents(100000), Monthly: pricing.Cents(5000)}},
		},
		Addons: []pricing.CatalogItem{
			{Key: "rush", Name: "Rush", Price: pricing.Price{OneTime: pricing.Cents(20000)}, Applicability: []string{"all"}},
			{Key: "qr", Name: "QR", Price: pricing.Price{OneTime: pricing.Cents(5000)}, Applicability: []string{"reviews"}},
		},
	}
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, err := NewService(ServiceConfig{
		Store:   RedisStore{R: client, TTL: time.Hour},
		Catalog: staticCatalog{cat: testCatalog()},
	})
	require.NoError(t, err)
	return svc, mr
}

func TestToggleAddsThenRemovesKeepingOrder(t *testing.T) {
	c := New("id", time.Now())
	require.True(t, c.ToggleService("a"))
	require.True(t, c.ToggleService("b"))
	require.True(t, c.ToggleService("c"))
	require.False(t, c.ToggleService("b"))
	require.Equal(t, []string{"a", "c"}, c.Selection.Services)

	_, ok := c.Toggle(Kind("coupon"), "x")
	require.False(t, ok)

	c.ToggleAddon("rush")
	c.ToggleBundle("local")
	c.SetPlan(pricing.PlanMonthly)
	c.Clear()
	require.True(t, c.Selection.Empty())
	require.Equal(t, pricing.PlanMonthly, c.Selection.Plan)
}

func TestSetContactNormalizes(t *testing.T) {
	c := New("id", time.Now())
	c.SetContact(pricing.Contact{Name: "  Ada ", Email: " ada@example.com "})
	require.Equal(t, "Ada", c.Contact.Name)
	require.Equal(t, "ada@example.com", c.Contact.Email)
}

func TestServicePersistsEveryMutation(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("cart:"+c.ID))
	require.Equal(t, time.Hour, mr.TTL("cart:"+c.ID))

	_, err = svc.Toggle(ctx, c.ID, KindService, "web")
	require.NoError(t, err)
	_, err = svc.Toggle(ctx, c.ID, KindAddon, "rush")
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	_, err = svc.SetPlan(ctx, c.ID, "monthly")
	require.NoError(t, err)
	require.Equal(t, time.Hour, mr.TTL("cart:"+c.ID))

	loaded, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"web"}, loaded.Selection.Services)
	require.Equal(t, []string{"rush"}, loaded.Selection.Addons)
	require.Equal(t, pricing.PlanMonthly, loaded.Selection.Plan)
}

func TestQuoteUsesPlanAndApplicability(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	for _, key := range []string{"rush", "qr"} {
		_, err = svc.Toggle(ctx, c.ID, KindAddon, key)
		require.NoError(t, err)
	}
	_, err = svc.Toggle(ctx, c.ID, KindService, "web")
	require.NoError(t, err)

	q, err := svc.Quote(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.PlanOneTime, q.Plan)
	require.Equal(t, pricing.Money(120000), q.Total)
	require.Len(t, q.LineItems, 2)

	_, err = svc.SetPlan(ctx, c.ID, "monthly")
	require.NoError(t, err)
	q, err = svc.Quote(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(5000), q.Total)
	require.Len(t, q.LineItems, 1)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"rush", "qr"}, stored.Selection.Addons)
}

func TestServiceErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "not-a-uuid")
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	_, err = svc.Get(ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.SetPlan(ctx, c.ID, "weekly")
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "Invalid plan", appErr.Message)

	require.NoError(t, svc.Discard(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestHandlerToggleRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/carts", h.Create)
	r.Post("/carts/{id}/toggle", h.Toggle)
	r.Get("/carts/{id}/quote", h.Quote)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data Cart `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+created.Data.ID+"/toggle", strings.NewReader(`{"kind":"service","key":"web"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+created.Data.ID+"/toggle", strings.NewReader(`{"kind":"coupon","key":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts/"+created.Data.ID+"/quote", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		Data Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, pricing.Money(100000), quote.Data.Total)
}
