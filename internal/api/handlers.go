package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbourse/exchange/internal/auth"
	"github.com/openbourse/exchange/internal/exchange"
	"github.com/openbourse/exchange/internal/models"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      *exchange.Engine
	AuthService *auth.AuthService
	Log         *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(engine *exchange.Engine, authService *auth.AuthService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, AuthService: authService, Log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Invariant violations are engine bugs: logged loudly, surfaced as 500.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var validation *exchange.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrInsufficientHoldings),
		errors.Is(err, exchange.ErrNoLiquidity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, exchange.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exchange.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "cancel denied")
	case errors.Is(err, exchange.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case exchange.IsInvariantViolation(err):
		h.Log.Error("invariant violation surfaced to API", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal consistency error")
	default:
		h.Log.Warn("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Register handles account registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		BaseCurrency string `json:"base_currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	account, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.BaseCurrency)
	if err != nil {
		h.Log.Warn("registration failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       account.ID,
		"username": account.Username,
	})
}

// Login handles account login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		accountID, err := h.AuthService.AccountFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(accountIDKey).(uuid.UUID)
	return id, ok
}

// PlaceOrder handles order submission and matching
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Instrument  string          `json:"instrument"`
		Side        string          `json:"side"`
		Type        string          `json:"type"`
		TimeInForce string          `json:"time_in_force"`
		Price       decimal.Decimal `json:"price"`
		Quantity    decimal.Decimal `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, executions, err := h.Engine.Submit(r.Context(), exchange.SubmitRequest{
		AccountID:   account,
		Instrument:  req.Instrument,
		Side:        req.Side,
		Type:        req.Type,
		TimeInForce: req.TimeInForce,
		Price:       req.Price,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if executions == nil {
		executions = []models.Execution{}
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order":      order,
		"executions": executions,
	})
}

// CancelOrder cancels an open order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.Engine.Cancel(r.Context(), orderID, account)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}

// GetOrders retrieves the account's orders
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orders := h.Engine.AccountOrders(account)
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderBook retrieves the aggregated book for one instrument
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	bids, asks, err := h.Engine.OrderBook(symbol)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if bids == nil {
		bids = []exchange.Level{}
	}
	if asks == nil {
		asks = []exchange.Level{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instrument": symbol,
		"bids":       bids,
		"asks":       asks,
	})
}

// GetQuote retrieves the instrument's top-of-book snapshot
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	quote, err := h.Engine.Quote(symbol)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// GetBalances retrieves the account's balances, optionally one currency
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if currency := r.URL.Query().Get("currency"); currency != "" {
		writeJSON(w, http.StatusOK, h.Engine.Balance(account, currency))
		return
	}
	balances := h.Engine.Balances(account)
	if balances == nil {
		balances = []models.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// GetPositions retrieves the account's open positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	positions := h.Engine.Positions(account)
	if positions == nil {
		positions = []models.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetTrades retrieves the account's executions
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	trades := h.Engine.AccountExecutions(account)
	if trades == nil {
		trades = []models.Execution{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetLedger retrieves the account's ledger entries
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries := h.Engine.LedgerEntries(account)
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Transfer handles deposits and withdrawals
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	account, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Direction string          `json:"direction"` // "DEPOSIT" or "WITHDRAWAL"
		Currency  string          `json:"currency"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" {
		writeError(w, http.StatusBadRequest, "currency required")
		return
	}

	var balance models.Balance
	var err error
	switch strings.ToUpper(req.Direction) {
	case models.EntryDeposit:
		balance, err = h.Engine.Deposit(r.Context(), account, req.Currency, req.Amount)
	case models.EntryWithdrawal:
		balance, err = h.Engine.Withdraw(r.Context(), account, req.Currency, req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "direction must be DEPOSIT or WITHDRAWAL")
		return
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, balance)
}
