package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"munda-checkout/internal/middleware"
	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/internal/services"
	"munda-checkout/pkg/auth"
	"munda-checkout/pkg/marketplace"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeMarketplace serves the two orders endpoints with Harare pricing for a
// single 2kg line at 1.20.
type fakeMarketplace struct {
	mu         sync.Mutex
	submitFail bool
	submits    []models.OrderRequest
	submitAuth []string
}

func (f *fakeMarketplace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	totals := `{"subtotal":2.4,"delivery_fee":5.12,"service_fee":0.048,"total":7.568,"total_kg":2,"currency":"USD"}`

	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/orders/preview":
		w.Write([]byte(totals))
	case "/api/v1/orders/":
		if f.submitFail {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail":"Listing L-001 is sold out"}`))
			return
		}
		f.submits = append(f.submits, req)
		f.submitAuth = append(f.submitAuth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"order_number":"MND-000123","totals":` + totals + `}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testServer struct {
	router   *gin.Engine
	market   *fakeMarketplace
	jwt      *auth.JWTManager
	sessions *services.SessionService
	storage  *repositories.MemoryCartStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	market := &fakeMarketplace{}
	srv := httptest.NewServer(market)
	t.Cleanup(srv.Close)

	storage := repositories.NewMemoryCartStorage()
	client := marketplace.NewClient(srv.URL+"/api/v1", "svc-token", 5*time.Second)
	sessions := services.NewSessionService(storage, client, nil, repositories.NewMemoryReceiptRepository(), services.SessionConfig{
		QuoteDebounce: 10 * time.Millisecond,
		IdleTTL:       time.Minute,
	}, zap.NewNop())
	t.Cleanup(func() { sessions.Close(context.Background()) })

	jwt := auth.NewJWTManager("test-secret")
	am := middleware.NewAuthMiddleware(jwt)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	NewMetaHandler("munda-checkout", map[string]HealthChecker{
		"storage": func(*gin.Context) error { return nil },
	}).RegisterRoutes(router)
	api := router.Group("/api/v1")
	NewCartHandler(sessions).RegisterRoutes(api, am)
	NewCheckoutHandler(sessions).RegisterRoutes(api, am)
	NewReceiptHandler(sessions).RegisterRoutes(api, am)

	return &testServer{router: router, market: market, jwt: jwt, sessions: sessions, storage: storage}
}

func (s *testServer) do(t *testing.T, method, path, buyer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if buyer != "" {
		token, err := s.jwt.GenerateToken(buyer, auth.RoleBuyer, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

var tomatoes = gin.H{"id": "L-001", "name": "Tomatoes", "price": 1.2}

var harare = gin.H{
	"district":      "Harare",
	"address":       "12 Samora Machel Ave",
	"contact_name":  "Tariro",
	"contact_phone": "+263771234567",
}

func TestCartHandler_Flow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes, "qty_kg": 1})
	require.Equal(t, http.StatusOK, w.Code)

	var cart CartResponse
	decode(t, w, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2.0, cart.Items[0].QuantityKg)
	assert.InDelta(t, 2.4, cart.Totals.Subtotal, 1e-9)
	assert.InDelta(t, 2.4, cart.Quote.ProvisionalSubtotal, 1e-9)
	assert.Nil(t, cart.Quote.ServerQuote)

	w = s.do(t, http.MethodPut, "/api/v1/cart/items/L-001", "buyer-1", gin.H{"qty_kg": -5})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cart)
	assert.Equal(t, 1.0, cart.Items[0].QuantityKg)

	w = s.do(t, http.MethodPut, "/api/v1/cart/items/L-001", "buyer-1", gin.H{"qty_kg": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/cart/items/L-001", "buyer-1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes, "qty_kg": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/cart/delivery", "buyer-1", gin.H{"district": "Atlantis"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/cart/delivery", "buyer-1", harare)
	require.Equal(t, http.StatusOK, w.Code)

	token, err := s.jwt.GenerateToken("buyer-1", auth.RoleBuyer, time.Hour)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/quote", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		var quote models.QuoteState
		if err := json.Unmarshal(w.Body.Bytes(), &quote); err != nil {
			return false
		}
		return quote.ServerQuote != nil && quote.ServerQuote.Total == 7.568
	}, 2*time.Second, 10*time.Millisecond)

	// Carts are per buyer.
	w = s.do(t, http.MethodGet, "/api/v1/cart", "buyer-2", nil)
	decode(t, w, &cart)
	assert.Empty(t, cart.Items)

	w = s.do(t, http.MethodDelete, "/api/v1/cart/items/L-001", "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cart)
	assert.Empty(t, cart.Items)
	assert.Nil(t, cart.Quote.ServerQuote)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/cart", "buyer-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCheckoutHandler_HarareEndToEnd(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/checkout", "buyer-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty cart cannot enter checkout")

	w = s.do(t, http.MethodGet, "/api/v1/checkout", "buyer-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes, "qty_kg": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/checkout", "buyer-1", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var state services.CheckoutState
	decode(t, w, &state)
	assert.Equal(t, models.StepDelivery, state.Step)

	w = s.do(t, http.MethodPost, "/api/v1/checkout/proceed", "buyer-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.ElementsMatch(t, []string{"district", "address", "contact_name", "contact_phone"}, errResp.Fields)

	w = s.do(t, http.MethodPut, "/api/v1/checkout/delivery", "buyer-1", harare)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/checkout/submit", "buyer-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "cannot submit from DELIVERY")

	w = s.do(t, http.MethodPost, "/api/v1/checkout/proceed", "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &state)
	assert.Equal(t, models.StepPayment, state.Step)
	require.NotNil(t, state.OrderPreview)
	assert.InDelta(t, 5.12, state.OrderPreview.DeliveryFee, 1e-9)
	assert.InDelta(t, 0.048, state.OrderPreview.ServiceFee, 1e-9)
	assert.InDelta(t, 7.568, state.OrderPreview.Total, 1e-9)

	w = s.do(t, http.MethodPost, "/api/v1/checkout/submit", "buyer-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "payment method required")

	w = s.do(t, http.MethodPut, "/api/v1/checkout/payment-method", "buyer-1", gin.H{"payment_method": "PAYPAL"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, "/api/v1/checkout/payment-method", "buyer-1", gin.H{"payment_method": "ECOCASH"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/checkout/submit", "buyer-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &state)
	assert.Equal(t, models.StepConfirmed, state.Step)
	assert.Equal(t, "MND-000123", state.OrderNumber)

	var cart CartResponse
	decode(t, s.do(t, http.MethodGet, "/api/v1/cart", "buyer-1", nil), &cart)
	assert.Empty(t, cart.Items)

	_, err := s.storage.Load(context.Background(), services.CartKey("buyer-1"))
	assert.True(t, errors.Is(err, repositories.ErrCartNotFound))

	s.market.mu.Lock()
	require.Len(t, s.market.submits, 1)
	assert.Equal(t, models.PaymentEcoCash, s.market.submits[0].PaymentMethod)
	assert.Equal(t, "Harare", s.market.submits[0].DeliveryDistrict)
	assert.NotEqual(t, "Bearer svc-token", s.market.submitAuth[0], "orders are placed with the buyer's token")
	s.market.mu.Unlock()

	w = s.do(t, http.MethodPost, "/api/v1/checkout/back", "buyer-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "confirmed is terminal")

	var receipts ReceiptListResponse
	decode(t, s.do(t, http.MethodGet, "/api/v1/orders/receipts?limit=500", "buyer-1", nil), &receipts)
	require.Len(t, receipts.Receipts, 1)
	assert.Equal(t, "MND-000123", receipts.Receipts[0].OrderNumber)
	assert.Equal(t, defaultReceiptLimit, receipts.Limit)
}

func TestCheckoutHandler_SubmitFailureKeepsCart(t *testing.T) {
	s := newTestServer(t)
	s.market.mu.Lock()
	s.market.submitFail = true
	s.market.mu.Unlock()

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", "buyer-1", gin.H{"listing": tomatoes, "qty_kg": 2}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/cart/delivery", "buyer-1", harare).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/checkout", "buyer-1", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/checkout/proceed", "buyer-1", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/checkout/payment-method", "buyer-1", gin.H{"payment_method": "ZIPIT"}).Code)

	w := s.do(t, http.MethodPost, "/api/v1/checkout/submit", "buyer-1", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "Listing L-001 is sold out", errResp.Message)

	var state services.CheckoutState
	decode(t, s.do(t, http.MethodGet, "/api/v1/checkout", "buyer-1", nil), &state)
	assert.Equal(t, models.StepPayment, state.Step)
	assert.Equal(t, "Listing L-001 is sold out", state.Error)

	var cart CartResponse
	decode(t, s.do(t, http.MethodGet, "/api/v1/cart", "buyer-1", nil), &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2.0, cart.Items[0].QuantityKg)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/checkout/back", "buyer-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/checkout", "buyer-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/checkout", "buyer-1", nil).Code)
}

func TestMetaHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"ok"`)

	var body struct {
		Districts      []string `json:"districts"`
		PaymentMethods []string `json:"payment_methods"`
	}
	decode(t, s.do(t, http.MethodGet, "/districts", "", nil), &body)
	assert.Len(t, body.Districts, 12)
	assert.Equal(t, "Harare", body.Districts[0])
	assert.Equal(t, []string{"ECOCASH", "ZIPIT", "BANK_TRANSFER", "CARD"}, body.PaymentMethods)

	degraded := NewMetaHandler("munda-checkout", map[string]HealthChecker{
		"redis": func(*gin.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	degraded.RegisterRoutes(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &services.ValidationError{Fields: []string{"district"}}, http.StatusBadRequest},
		{"empty cart", services.ErrEmptyCart, http.StatusBadRequest},
		{"stale quote", services.ErrStaleQuote, http.StatusConflict},
		{"no checkout", services.ErrNoCheckout, http.StatusNotFound},
		{"session closed", services.ErrSessionClosed, http.StatusServiceUnavailable},
		{"cart storage down", fmt.Errorf("%w: dial tcp 127.0.0.1:6379: connection refused", services.ErrCartUnavailable), http.StatusServiceUnavailable},
		{"marketplace", &services.GatewayError{Op: "submit order", Err: errors.New("eof")}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
