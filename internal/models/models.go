package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types
const (
	TypeLimit  = "LIMIT"
	TypeMarket = "MARKET"
)

// Time in force
const (
	TimeInForceGTC = "GTC" // good till cancelled
	TimeInForceIOC = "IOC" // immediate or cancel
)

// Order statuses
const (
	StatusOpen            = "OPEN"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCancelled       = "CANCELLED"
)

// Ledger entry types
const (
	EntryDeposit     = "DEPOSIT"
	EntryWithdrawal  = "WITHDRAWAL"
	EntryReserve     = "RESERVE"
	EntryRelease     = "RELEASE"
	EntryTradeDebit  = "TRADE_DEBIT"
	EntryTradeCredit = "TRADE_CREDIT"
	EntryRefund      = "REFUND"
)

// Account is a registered trading identity
type Account struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	BaseCurrency string
	CreatedAt    time.Time
}

// Currency is static reference data for a tradable currency
type Currency struct {
	Code      string // e.g. "USDT", "BTC"
	Precision int32  // display precision
}

// Instrument is a tradable symbol, e.g. BTCUSDT
type Instrument struct {
	Symbol        string
	BaseCurrency  string
	QuoteCurrency string
	LotSize       decimal.Decimal
	TickSize      decimal.Decimal
}

// Balance tracks one account's funds in one currency.
// Total is always derived from the parts, never stored.
type Balance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total returns available + reserved.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}

// Position is an account's signed net quantity in one instrument.
// AveragePrice is only meaningful while Quantity != 0; a position that
// returns to exactly zero is deleted, not retained.
type Position struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Instrument   string          `json:"instrument"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order represents a buy or sell order
type Order struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Instrument     string          `json:"instrument"`
	Side           string          `json:"side"` // BUY or SELL
	Type           string          `json:"type"` // LIMIT or MARKET
	TimeInForce    string          `json:"time_in_force"`
	Price          decimal.Decimal `json:"price"` // zero for MARKET orders
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"` // used for time priority
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Remaining returns quantity - filledQuantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsTerminal reports whether the order can no longer change.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled
}

// Execution is an immutable record of one fill. Both sides of the trade
// are queryable through BuyOrderID and SellOrderID.
type Execution struct {
	ID          uuid.UUID       `json:"id"`
	Instrument  string          `json:"instrument"`
	BuyOrderID  uuid.UUID       `json:"buy_order_id"`
	SellOrderID uuid.UUID       `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// LedgerEntry is an append-only audit row for one balance mutation
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"` // signed movement, negative for debits and reservations
	EntryType   string          `json:"entry_type"`
	ReferenceID uuid.UUID       `json:"reference_id"` // causing order or transaction
	CreatedAt   time.Time       `json:"created_at"`
}

// Quote is a top-of-book snapshot for one instrument. Bid/Ask/Last are
// zero when no value exists yet.
type Quote struct {
	Instrument string          `json:"instrument"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
	Volume     decimal.Decimal `json:"volume"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
