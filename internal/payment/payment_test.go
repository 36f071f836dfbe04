package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/order"
	"github.com/noah-isme/coastmedia-api/internal/pricing"
	"github.com/noah-isme/coastmedia-api/internal/resilience"
)

func monthlyPayload(t *testing.T) pricing.CheckoutPayload {
	t.Helper()
	cat := pricing.Catalog{
		Services: []pricing.CatalogItem{{Key: "seo", Name: "SEO", Price: pricing.Price{Monthly: pricing.Cents(120000)}}},
	}
	sel := pricing.Selection{Services: []string{"seo"}, Plan: pricing.PlanMonthly}
	p, err := pricing.ToCheckoutPayload(pricing.BuildLineItems(sel, cat, pricing.PlanMonthly), pricing.PlanMonthly,
		pricing.Contact{Name: "Ada", Email: "ada@example.com", Notes: "call me"})
	require.NoError(t, err)
	return p
}

func TestStripeCreateSessionSendsPriceData(t *testing.T) {
	var (
		form    map[string][]string
		idemKey string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		idemKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	gw, err := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	sess, err := gw.CreateSession(context.Background(), monthlyPayload(t), SessionOptions{
		SuccessURL:          "https://shop.test/?status=success",
		CancelURL:           "https://shop.test/?status=cancelled",
		CustomerEmail:       "ada@example.com",
		ClientReferenceID:   "order-1",
		Metadata:            map[string]string{"order_id": "order-1"},
		AllowPromotionCodes: true,
		IdempotencyKey:      "checkout:order-1",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", sess.ID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)

	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	require.Equal(t, "subscription", get("mode"))
	require.Equal(t, "usd", get("line_items[0][price_data][currency]"))
	require.Equal(t, "120000", get("line_items[0][price_data][unit_amount]"))
	require.Equal(t, "month", get("line_items[0][price_data][recurring][interval]"))
	require.Equal(t, "1", get("line_items[0][quantity]"))
	require.Equal(t, "Notes: call me", get("line_items[0][price_data][product_data][description]"))
	require.Equal(t, "seo", get("line_items[0][price_data][product_data][metadata][key]"))
	require.Equal(t, "order-1", get("metadata[order_id]"))
	require.Equal(t, "Ada", get("metadata[customer_name]"))
	require.Equal(t, "order-1", get("client_reference_id"))
	require.Equal(t, "true", get("allow_promotion_codes"))
	require.Equal(t, "checkout:order-1", idemKey)
}

func TestStripeErrorMapping(t *testing.T) {
	status := http.StatusPaymentRequired
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"nope"}}`))
	}))
	defer srv.Close()

	gw, err := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = gw.CreateSession(context.Background(), monthlyPayload(t), SessionOptions{SuccessURL: "https://x", CancelURL: "https://x"})
	require.ErrorIs(t, err, ErrRejected)

	status = http.StatusServiceUnavailable
	_, err = gw.CreateSession(context.Background(), monthlyPayload(t), SessionOptions{SuccessURL: "https://x", CancelURL: "https://x"})
	require.ErrorIs(t, err, ErrProviderDown)
}

func TestStripeCanceledCallIsNotProviderDown(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	gw, err := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err = gw.CreateSession(ctx, monthlyPayload(t), SessionOptions{SuccessURL: "https://x", CancelURL: "https://x"})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrProviderDown)
	require.False(t, TripsBreaker(err))
}

func TestTripsBreaker(t *testing.T) {
	require.True(t, TripsBreaker(ErrProviderDown))
	require.False(t, TripsBreaker(ErrRejected))
	require.False(t, TripsBreaker(fmt.Errorf("%w: %w", ErrProviderDown, context.Canceled)))
	require.False(t, TripsBreaker(fmt.Errorf("%w: %w", ErrProviderDown, context.DeadlineExceeded)))
}

func TestStripeVerifyWebhook(t *testing.T) {
	gw, err := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_test", Logger: zerolog.Nop()})
	require.NoError(t, err)

	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "order-1",
			"metadata": {"order_id": "order-1"},
			"payment_intent": "pi_123",
			"payment_status": "paid",
			"amount_total": 125000,
			"customer_details": {"email": "Ada@Example.com", "name": "Ada"}
		}}
	}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_test", Timestamp: time.Now()})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Stripe-Signature", signed.Header)
	evt, err := gw.VerifyWebhook(req, payload)
	require.NoError(t, err)
	require.True(t, evt.Paid)
	require.Equal(t, "evt_1", evt.ID)
	require.Equal(t, "order-1", evt.OrderID)
	require.Equal(t, "cs_test_1", evt.SessionID)
	require.Equal(t, "pi_123", evt.PaymentIntent)
	require.Equal(t, int64(125000), evt.AmountTotal)
	require.Equal(t, "Ada@Example.com", evt.CustomerEmail)

	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	_, err = gw.VerifyWebhook(req, payload)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSandboxGateway(t *testing.T) {
	gw := SandboxGateway{Secret: "s3cret"}
	opts := SessionOptions{SuccessURL: "https://shop.test/?status=success", ClientReferenceID: "order-1"}

	a, err := gw.CreateSession(context.Background(), monthlyPayload(t), opts)
	require.NoError(t, err)
	b, err := gw.CreateSession(context.Background(), monthlyPayload(t), opts)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a.URL, "https://shop.test/?status=success&session_id=cs_sandbox_"))

	_, err = gw.CreateSession(context.Background(), pricing.CheckoutPayload{}, opts)
	require.ErrorIs(t, err, ErrRejected)

	body := []byte(`{"id":"evt_sbx","type":"checkout.session.completed","order_id":"order-1","amount_total":5000}`)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(SandboxSignatureHeader, gw.Sign(body))
	evt, err := gw.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.True(t, evt.Paid)
	require.Equal(t, "order-1", evt.OrderID)

	req.Header.Set(SandboxSignatureHeader, SandboxGateway{Secret: "other"}.Sign(body))
	_, err = gw.VerifyWebhook(req, body)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

type stubGateway struct {
	err   error
	calls int
}

func (s *stubGateway) Name() string { return "stub" }

func (s *stubGateway) CreateSession(context.Context, pricing.CheckoutPayload, SessionOptions) (Session, error) {
	s.calls++
	if s.err != nil {
		return Session{}, s.err
	}
	return Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil
}

func (s *stubGateway) VerifyWebhook(*http.Request, []byte) (WebhookEvent, error) {
	return WebhookEvent{}, nil
}

func TestBreakerGatewayOnlyTripsOnProviderDown(t *testing.T) {
	stub := &stubGateway{err: ErrRejected}
	gw := BreakerGateway{Next: stub, Breaker: resilience.New(resilience.Settings{
		MinRequests: 2,
		Cooldown:    time.Minute,
		Tripping:    TripsBreaker,
	})}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gw.CreateSession(ctx, pricing.CheckoutPayload{}, SessionOptions{})
		require.ErrorIs(t, err, ErrRejected)
	}

	stub.err = ErrProviderDown
	for i := 0; i < 4; i++ {
		_, _ = gw.CreateSession(ctx, pricing.CheckoutPayload{}, SessionOptions{})
	}
	calls := stub.calls
	_, err := gw.CreateSession(ctx, pricing.CheckoutPayload{}, SessionOptions{})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, calls, stub.calls)
	require.Equal(t, "unavailable", outcome(err))
}

func TestInstrumentedGatewayPassesThrough(t *testing.T) {
	gw := InstrumentedGateway{Next: &stubGateway{}}
	sess, err := gw.CreateSession(context.Background(), monthlyPayload(t), SessionOptions{})
	require.NoError(t, err)
	require.Equal(t, "cs_1", sess.ID)
	require.Equal(t, "stub", gw.Name())
}

type fakeConfirmer struct {
	mu    sync.Mutex
	paid  map[string]bool
	calls int
}

func (f *fakeConfirmer) MarkPaid(_ context.Context, c order.Confirmation) (order.PaidResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	already, ok := f.paid[c.OrderID]
	if !ok {
		return order.PaidResult{}, order.ErrNotFound
	}
	f.paid[c.OrderID] = true
	return order.PaidResult{OrderID: c.OrderID, Email: c.CustomerEmail, AlreadyPaid: already}, nil
}

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic+":"+aggregateID)
	return events.Event{Type: topic}, nil
}

func TestWebhookHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sandbox := SandboxGateway{Secret: "s3cret"}
	confirmer := &fakeConfirmer{paid: map[string]bool{"order-1": false}}
	emitter := &recordingEmitter{}
	h := Webhook{
		Gateways:  map[string]Gateway{"sandbox": sandbox},
		Replay:    client,
		ReplayTTL: time.Hour,
		Orders:    confirmer,
		Events:    emitter,
		Logger:    zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", h.Handle)

	send := func(body string, sign bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/sandbox", strings.NewReader(body))
		if sign {
			req.Header.Set(SandboxSignatureHeader, sandbox.Sign([]byte(body)))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	paid := `{"id":"evt_1","type":"checkout.session.completed","order_id":"order-1","customer_email":"ada@example.com"}`
	require.Equal(t, http.StatusBadRequest, send(paid, false).Code)

	rec := send(paid, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"checkout.paid:order-1"}, emitter.topics)

	rec = send(paid, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["duplicate"])
	require.Equal(t, 1, confirmer.calls)

	again := `{"id":"evt_2","type":"checkout.session.completed","order_id":"order-1"}`
	require.Equal(t, http.StatusOK, send(again, true).Code)
	require.Len(t, emitter.topics, 1, "already paid orders do not emit again")

	missing := `{"id":"evt_3","type":"checkout.session.completed","order_id":"nope"}`
	require.Equal(t, http.StatusNotFound, send(missing, true).Code)
	require.False(t, mr.Exists("wh:sandbox:evt_3"), "failed deliveries can be retried")

	other := `{"id":"evt_4","type":"customer.created"}`
	require.Equal(t, http.StatusOK, send(other, true).Code)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/paypal", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	sandbox := SandboxGateway{Secret: "s3cret"}
	confirmer := &fakeConfirmer{paid: map[string]bool{}}
	h := Webhook{
		Gateways: map[string]Gateway{"sandbox": sandbox},
		MaxBody:  64,
		Orders:   confirmer,
		Events:   &recordingEmitter{},
		Logger:   zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", h.Handle)

	body := `{"id":"evt_big","type":"checkout.session.completed","order_id":"` + strings.Repeat("x", 128) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/sandbox", strings.NewReader(body))
	req.Header.Set(SandboxSignatureHeader, sandbox.Sign([]byte(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Zero(t, confirmer.calls)
}

func TestOutcomeLabels(t *testing.T) {
	require.Equal(t, "ok", outcome(nil))
	require.Equal(t, "rejected", outcome(ErrRejected))
	require.Equal(t, "provider_down", outcome(ErrProviderDown))
	require.Equal(t, "error", outcome(errors.New("x")))
}
