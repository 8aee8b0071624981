package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/checkoutapi/internal/api/middleware"
	"github.com/jafarshop/checkoutapi/internal/config"
	"github.com/jafarshop/checkoutapi/internal/domain"
	"github.com/jafarshop/checkoutapi/internal/pricing"
	"github.com/jafarshop/checkoutapi/internal/repository"
	"github.com/jafarshop/checkoutapi/internal/repository/memory"
	"github.com/jafarshop/checkoutapi/internal/service"
	"github.com/jafarshop/checkoutapi/internal/storeapi"
	"github.com/jafarshop/checkoutapi/internal/testkit"
)

type staticSettings struct{}

func (staticSettings) TaxSettings(context.Context) pricing.TaxSettings {
	return pricing.DefaultTaxSettings()
}

func (staticSettings) ShippingSettings(context.Context) pricing.ShippingSettings {
	return pricing.DefaultShippingSettings()
}

type apiFixture struct {
	router  *gin.Engine
	repos   *repository.Repositories
	store   *testkit.Store
	gateway *testkit.Gateway
	apiKey  string
}

func newAPIFixture(t *testing.T, opts service.CheckoutOptions) *apiFixture {
	t.Helper()
	return newAPIFixtureWithCarts(t, opts, nil)
}

// newAPIFixtureWithCarts reads carts from carts instead of the fake store
// when it is non-nil
func newAPIFixtureWithCarts(t *testing.T, opts service.CheckoutOptions, carts service.CartStore) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	f := &apiFixture{
		repos:   memory.NewRepositories(),
		store:   testkit.NewStore(),
		gateway: testkit.NewGateway(),
		apiKey:  "sk_web_test_key",
	}
	f.store.SetCart("cart-1", domain.CartLine{ProductID: "p-1", Name: "Mug", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 2})
	f.store.AddCoupon("SAVE10", decimal.RequireFromString("10.00"))
	f.addClient(t, "web", f.apiKey)

	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	if carts == nil {
		carts = f.store
	}
	orders := service.NewRepositoryOrderStore(f.repos, f.gateway, logger)
	submitter := service.NewOrderSubmitter(orders, carts, nil, opts.Currency, logger)
	coupons := service.NewCouponLedger(f.store, service.DefaultCouponTimeout, logger)
	checkout := service.NewCheckoutService(staticSettings{}, coupons, carts, f.gateway, submitter, opts, logger)
	t.Cleanup(checkout.Wait)

	f.router = NewRouter(&config.Config{Environment: "test"}, f.repos, checkout, staticSettings{}, logger)
	return f
}

func (f *apiFixture) addClient(t *testing.T, name, key string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.repos.Client.Create(context.Background(), &domain.StorefrontClient{
		Name:       name,
		APIKeyHash: string(hash),
		IsActive:   true,
	}))
}

func (f *apiFixture) do(t *testing.T, key, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	kind, _ := e["kind"].(string)
	return kind
}

// startToReview creates a guest session and walks it to the review step
func (f *apiFixture) startToReview(t *testing.T) string {
	t.Helper()
	w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions", gin.H{"cart_id": "cart-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)
	base := "/v1/checkout/sessions/" + id

	w = f.do(t, f.apiKey, http.MethodPut, base+"/guest-info", gin.H{"email": "ana@example.com", "advance": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, f.apiKey, http.MethodPut, base+"/shipping-address", gin.H{
		"full_name":     "Ana Garcia",
		"address_line1": "Calle Mayor 1",
		"city":          "Madrid",
		"region":        "Madrid",
		"postal_code":   "28013",
		"country":       "ES",
		"advance":       true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, f.apiKey, http.MethodPut, base+"/shipping-method", gin.H{"method_id": "standard", "advance": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, f.apiKey, http.MethodPost, base+"/payment/intent", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	intent := decode(t, w)
	assert.Equal(t, true, intent["requires_payment"])
	assert.Equal(t, float64(5599), intent["amount_minor"])

	w = f.do(t, f.apiKey, http.MethodPost, base+"/payment/confirm", gin.H{"payment_method_id": "pm_card_visa", "advance": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode(t, w)["state"].(map[string]interface{})
	require.Equal(t, "review", state["current_step"])
	return id
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	w := f.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesRequireAPIKey(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})

	w := f.do(t, "", http.MethodGet, "/v1/shipping-methods", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorKind(t, w))

	w = f.do(t, "wrong", http.MethodGet, "/v1/shipping-methods", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestShippingMethods(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	w := f.do(t, f.apiKey, http.MethodGet, "/v1/shipping-methods", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	methods := body["methods"].([]interface{})
	require.Len(t, methods, 2)
	assert.Equal(t, "5.99", methods[0].(map[string]interface{})["price"])
	assert.NotContains(t, body, "free_shipping_threshold")
}

func TestCheckoutOverHTTP(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	id := f.startToReview(t)
	submit := "/v1/checkout/sessions/" + id + "/submit"

	w := f.do(t, f.apiKey, http.MethodPost, submit, nil, middleware.IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, "55.99", first["total"])
	assert.NotContains(t, first, "replayed")
	orderID := first["order_id"].(string)

	w = f.do(t, f.apiKey, http.MethodPost, submit, nil, middleware.IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	again := decode(t, w)
	assert.Equal(t, orderID, again["order_id"])
	assert.Equal(t, true, again["replayed"])

	w = f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions/other/submit", nil, middleware.IdempotencyHeader, "key-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", errorKind(t, w))

	w = f.do(t, f.apiKey, http.MethodGet, "/v1/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "55.99", order["total"])
	assert.Equal(t, "8.68", order["tax"])
	assert.Len(t, order["items"], 1)

	assert.Equal(t, []string{"cart-1"}, f.store.Cleared())
	assert.Len(t, f.gateway.Captured(), 1)
}

func TestOrdersAreScopedToClient(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	id := f.startToReview(t)

	w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orderID := decode(t, w)["order_id"].(string)

	f.addClient(t, "kiosk", "sk_kiosk_test_key")
	w = f.do(t, "sk_kiosk_test_key", http.MethodGet, "/v1/orders/"+orderID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "sk_kiosk_test_key", http.MethodGet, "/v1/checkout/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, f.apiKey, http.MethodGet, "/v1/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions", gin.H{"cart_id": "cart-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/v1/checkout/sessions/" + decode(t, w)["id"].(string)

	details := func(t *testing.T, w *httptest.ResponseRecorder) []interface{} {
		t.Helper()
		e := decode(t, w)["error"].(map[string]interface{})
		d, ok := e["details"].([]interface{})
		require.True(t, ok, w.Body.String())
		return d
	}

	t.Run("validation", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPut, base+"/guest-info", gin.H{})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "VALIDATION_FAILED", errorKind(t, w))
		assert.Equal(t, []interface{}{map[string]interface{}{"field": "email", "rule": "required"}}, details(t, w))
		assert.NotContains(t, w.Body.String(), "GuestInfoRequest")
	})

	t.Run("unknown step", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPost, base+"/jump", gin.H{"step": "nowhere"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "VALIDATION_FAILED", errorKind(t, w))
		assert.Equal(t, []interface{}{map[string]interface{}{"field": "step", "rule": "oneof"}}, details(t, w))
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, base+"/guest-info", bytes.NewReader([]byte(`{"email":`)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, []interface{}{map[string]interface{}{"rule": "malformed_json"}}, details(t, w))
		assert.NotContains(t, w.Body.String(), "unexpected")
	})

	t.Run("wrong type", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPut, base+"/guest-info", gin.H{"email": 42})
		assert.Equal(t, []interface{}{map[string]interface{}{"field": "email", "rule": "type"}}, details(t, w))
	})

	t.Run("rejected coupon", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPost, base+"/coupon", gin.H{"code": "NOPE"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		e := decode(t, w)["error"].(map[string]interface{})
		assert.Equal(t, "COUPON_REJECTED", e["kind"])
		assert.Equal(t, "correct_input", e["action"])
		assert.Equal(t, false, e["retryable"])
		assert.Contains(t, e["message"], "does not exist")
	})

	t.Run("accepted coupon", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPost, base+"/coupon", gin.H{"code": "save10"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		quote := decode(t, w)["quote"].(map[string]interface{})
		assert.Equal(t, "10.00", quote["discount"])

		w = f.do(t, f.apiKey, http.MethodDelete, base+"/coupon", nil)
		require.Equal(t, http.StatusOK, w.Code)
		quote = decode(t, w)["quote"].(map[string]interface{})
		assert.Equal(t, "0.00", quote["discount"])
	})

	t.Run("advance with missing data", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPost, base+"/advance", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "STEP_INCOMPLETE", errorKind(t, w))
	})

	t.Run("unknown session", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodGet, "/v1/checkout/sessions/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", errorKind(t, w))
	})

	t.Run("unknown cart", func(t *testing.T) {
		w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions", gin.H{"cart_id": "missing"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthRequiredRedirects(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{RequireAuth: true, LoginURL: "https://shop.example/login"})
	w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions", gin.H{"cart_id": "cart-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "AUTH_REQUIRED", e["kind"])
	assert.Equal(t, "login", e["action"])
	assert.Equal(t, "https://shop.example/login", e["redirectTo"])
}

func TestDeclinedCardOverHTTP(t *testing.T) {
	f := newAPIFixture(t, service.CheckoutOptions{})
	w := f.do(t, f.apiKey, http.MethodPost, "/v1/checkout/sessions", gin.H{"cart_id": "cart-1", "customer_id": "cus_1"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/v1/checkout/sessions/" + decode(t, w)["id"].(string)

	w = f.do(t, f.apiKey, http.MethodPut, base+"/shipping-address", gin.H{
		"full_name": "Ana Garcia", "address_line1": "Calle Mayor 1", "city": "Madrid",
		"region": "Madrid", "postal_code": "28013", "country": "ES", "advance": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, f.apiKey, http.MethodPut, base+"/shipping-method", gin.H{"method_id": "express", "advance": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, f.apiKey, http.MethodPost, base+"/payment/intent", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, f.apiKey, http.MethodPost, base+"/payment/confirm", gin.H{"payment_method_id": testkit.DeclinedPaymentMethod})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	e := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "reenter_payment", e["action"])
	assert.Equal(t, true, e["retryable"])
}

func TestSubmitWhileCartServiceIsDown(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"db down"}`))
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"id":"cart-1","items":[{"productId":"p-1","name":"Mug","unitPrice":"25.00","quantity":2}]}`))
	}))
	t.Cleanup(srv.Close)

	carts := storeapi.NewClient(config.StoreAPIConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
	f := newAPIFixtureWithCarts(t, service.CheckoutOptions{}, carts)
	submit := "/v1/checkout/sessions/" + f.startToReview(t) + "/submit"

	down.Store(true)
	w := f.do(t, f.apiKey, http.MethodPost, submit, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	e := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "NETWORK_ERROR", e["kind"])
	assert.Equal(t, true, e["retryable"])
	assert.Equal(t, "retry", e["action"])
	assert.NotContains(t, w.Body.String(), "db down")

	down.Store(false)
	w = f.do(t, f.apiKey, http.MethodPost, submit, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "55.99", decode(t, w)["total"])
}
