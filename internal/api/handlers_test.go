package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbourse/exchange/internal/auth"
	"github.com/openbourse/exchange/internal/exchange"
	"github.com/openbourse/exchange/internal/models"
)

const testSecret = "test-secret"

// newTestServer wires the handlers against an in-memory engine: no
// database, tokens minted directly with the test secret.
func newTestServer() (*exchange.Engine, *chi.Mux) {
	engine := exchange.NewEngine(exchange.NopStore{}, nil)
	engine.RegisterInstrument(models.Instrument{
		Symbol:        "BTCUSDT",
		BaseCurrency:  "BTC",
		QuoteCurrency: "USDT",
		LotSize:       decimal.RequireFromString("0.00000001"),
		TickSize:      decimal.RequireFromString("0.01"),
	})

	handler := NewHandler(engine, auth.NewAuthService(nil, testSecret), nil)

	r := chi.NewRouter()
	r.Get("/orderbook/{symbol}", handler.GetOrderBook)
	r.Get("/quotes/{symbol}", handler.GetQuote)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Get("/balances", handler.GetBalances)
		r.Get("/positions", handler.GetPositions)
		r.Get("/trades", handler.GetTrades)
		r.Get("/ledger", handler.GetLedger)
		r.Post("/transfers", handler.Transfer)
	})
	return engine, r
}

func tokenFor(t *testing.T, account uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": account.String(),
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router *chi.Mux, method, path, token string, body interface{}) *httptest.ResponseRecorder {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func depositFor(t *testing.T, engine *exchange.Engine, account uuid.UUID, currency, amount string) {
	t.Helper()
	_, err := engine.Deposit(context.Background(), account, currency, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func TestHandler_PlaceOrder(t *testing.T) {
	engine, router := newTestServer()
	account := uuid.New()
	token := tokenFor(t, account)
	depositFor(t, engine, account, "USDT", "50000")

	w := doJSON(t, router, "POST", "/orders", token, map[string]interface{}{
		"instrument": "BTCUSDT",
		"side":       "BUY",
		"type":       "LIMIT",
		"price":      "29000",
		"quantity":   "1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var response struct {
		Order      models.Order       `json:"order"`
		Executions []models.Execution `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, models.StatusOpen, response.Order.Status)
	assert.Empty(t, response.Executions)
}

func TestHandler_PlaceOrderErrorMapping(t *testing.T) {
	engine, router := newTestServer()
	account := uuid.New()
	token := tokenFor(t, account)
	depositFor(t, engine, account, "USDT", "100")

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
	}{
		{
			name: "validation failure",
			body: map[string]interface{}{
				"instrument": "BTCUSDT", "side": "HOLD", "type": "LIMIT",
				"price": "29000", "quantity": "1",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "insufficient funds",
			body: map[string]interface{}{
				"instrument": "BTCUSDT", "side": "BUY", "type": "LIMIT",
				"price": "29000", "quantity": "1",
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "insufficient holdings",
			body: map[string]interface{}{
				"instrument": "BTCUSDT", "side": "SELL", "type": "LIMIT",
				"price": "29000", "quantity": "1",
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "no liquidity for market order",
			body: map[string]interface{}{
				"instrument": "BTCUSDT", "side": "BUY", "type": "MARKET",
				"quantity": "1",
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown instrument",
			body: map[string]interface{}{
				"instrument": "DOGEUSDT", "side": "BUY", "type": "LIMIT",
				"price": "29000", "quantity": "1",
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/orders", token, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Contains(t, response, "error")
		})
	}
}

func TestHandler_CancelOrder(t *testing.T) {
	engine, router := newTestServer()
	account := uuid.New()
	stranger := uuid.New()
	token := tokenFor(t, account)
	depositFor(t, engine, account, "USDT", "50000")

	order, _, err := engine.Submit(context.Background(), exchange.SubmitRequest{
		AccountID:  account,
		Instrument: "BTCUSDT",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Price:      decimal.RequireFromString("29000"),
		Quantity:   decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	// A stranger cannot cancel someone else's order
	w := doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%s", order.ID), tokenFor(t, stranger), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%s", order.ID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Cancelling again conflicts with the terminal state
	w = doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%s", order.ID), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%s", uuid.New()), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, "DELETE", "/orders/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetOrderBookIsPublic(t *testing.T) {
	engine, router := newTestServer()
	account := uuid.New()
	depositFor(t, engine, account, "USDT", "50000")

	_, _, err := engine.Submit(context.Background(), exchange.SubmitRequest{
		AccountID:  account,
		Instrument: "BTCUSDT",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Price:      decimal.RequireFromString("29000"),
		Quantity:   decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/orderbook/BTCUSDT", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Instrument string           `json:"instrument"`
		Bids       []exchange.Level `json:"bids"`
		Asks       []exchange.Level `json:"asks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "BTCUSDT", response.Instrument)
	require.Len(t, response.Bids, 1)
	assert.Empty(t, response.Asks)

	w = doJSON(t, router, "GET", "/orderbook/DOGEUSDT", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Transfer(t *testing.T) {
	_, router := newTestServer()
	account := uuid.New()
	token := tokenFor(t, account)

	w := doJSON(t, router, "POST", "/transfers", token, map[string]interface{}{
		"direction": "DEPOSIT", "currency": "USDT", "amount": "1000",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var balance models.Balance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("1000")))

	w = doJSON(t, router, "POST", "/transfers", token, map[string]interface{}{
		"direction": "WITHDRAWAL", "currency": "USDT", "amount": "400",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("600")))

	// Overdrawn withdrawal is a business rejection
	w = doJSON(t, router, "POST", "/transfers", token, map[string]interface{}{
		"direction": "WITHDRAWAL", "currency": "USDT", "amount": "601",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Non-positive amounts fail validation
	w = doJSON(t, router, "POST", "/transfers", token, map[string]interface{}{
		"direction": "DEPOSIT", "currency": "USDT", "amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/transfers", token, map[string]interface{}{
		"direction": "SIDEWAYS", "currency": "USDT", "amount": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_AccountViews(t *testing.T) {
	engine, router := newTestServer()
	buyer, seller := uuid.New(), uuid.New()
	buyerToken := tokenFor(t, buyer)
	ctx := context.Background()

	depositFor(t, engine, buyer, "USDT", "50000")
	require.NoError(t, engine.LoadState(nil, []models.Position{{
		AccountID:    seller,
		Instrument:   "BTCUSDT",
		Quantity:     decimal.RequireFromString("1"),
		AveragePrice: decimal.RequireFromString("25000"),
	}}, nil))

	_, _, err := engine.Submit(ctx, exchange.SubmitRequest{
		AccountID:  seller,
		Instrument: "BTCUSDT",
		Side:       models.SideSell,
		Type:       models.TypeLimit,
		Price:      decimal.RequireFromString("30000"),
		Quantity:   decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	_, _, err = engine.Submit(ctx, exchange.SubmitRequest{
		AccountID:  buyer,
		Instrument: "BTCUSDT",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Price:      decimal.RequireFromString("30000"),
		Quantity:   decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/balances", buyerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var balances []models.Balance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balances))
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Available.Equal(decimal.RequireFromString("20000")))

	w = doJSON(t, router, "GET", "/positions", buyerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var positions []models.Position
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(decimal.RequireFromString("1")))

	w = doJSON(t, router, "GET", "/trades", buyerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var trades []models.Execution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(decimal.RequireFromString("30000")))

	w = doJSON(t, router, "GET", "/ledger", buyerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var entries []models.LedgerEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)

	w = doJSON(t, router, "GET", "/orders", buyerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var orders []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusFilled, orders[0].Status)
}

func TestHandler_JWTAuthMiddleware(t *testing.T) {
	_, router := newTestServer()

	w := doJSON(t, router, "GET", "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, "GET", "/orders", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": uuid.New().String(),
		"exp":        time.Now().Add(-time.Hour).Unix(),
	})
	expiredStr, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	w = doJSON(t, router, "GET", "/orders", expiredStr, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_GetQuote(t *testing.T) {
	engine, router := newTestServer()
	account := uuid.New()
	depositFor(t, engine, account, "USDT", "50000")

	_, _, err := engine.Submit(context.Background(), exchange.SubmitRequest{
		AccountID:  account,
		Instrument: "BTCUSDT",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Price:      decimal.RequireFromString("29000"),
		Quantity:   decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/quotes/BTCUSDT", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var quote models.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "BTCUSDT", quote.Instrument)
	assert.True(t, quote.Bid.Equal(decimal.RequireFromString("29000")))
}
