package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbourse/exchange/internal/models"
)

// Engine orchestrates order submission and cancellation: it validates,
// reserves funds or holdings, walks the opposite side of the book under
// price-time priority, and applies fills to the ledger and position
// book. Matching for one instrument is serialized by a per-instrument
// mutex; ledger, positions, orders and quotes share one state mutex, so
// submissions for different instruments overlap everywhere except the
// fill application itself.
type Engine struct {
	mu    sync.Mutex // guards books, bookLocks and instruments
	books map[string]*Book
	bookLocks map[string]*sync.Mutex
	instruments map[string]models.Instrument

	stateMu   sync.Mutex // serializes ledger, positions, orders, executions, quotes
	ledger    *Ledger
	positions *PositionBook
	orders    map[uuid.UUID]*models.Order
	execs     []models.Execution
	quotes    map[string]*models.Quote

	store Store
	log   *zap.Logger

	// RejectPartialMarket switches the market-order remainder policy:
	// false cancels the unfilled tail and keeps the fills, true rejects
	// the whole order when any quantity is left unfilled.
	RejectPartialMarket bool

	// AllowShortSelling skips the holdings pre-check on sells, letting
	// positions go negative.
	AllowShortSelling bool
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		books:       make(map[string]*Book),
		bookLocks:   make(map[string]*sync.Mutex),
		instruments: make(map[string]models.Instrument),
		ledger:      NewLedger(),
		positions:   NewPositionBook(),
		orders:      make(map[uuid.UUID]*models.Order),
		quotes:      make(map[string]*models.Quote),
		store:       store,
		log:         log,
	}
}

// RegisterInstrument adds tradable reference data. Orders against
// unregistered instruments are rejected with ErrNotFound.
func (e *Engine) RegisterInstrument(inst models.Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instruments[inst.Symbol] = inst
	if _, ok := e.books[inst.Symbol]; !ok {
		e.books[inst.Symbol] = NewBook(inst.Symbol)
		e.bookLocks[inst.Symbol] = &sync.Mutex{}
	}
}

func (e *Engine) instrument(symbol string) (models.Instrument, *Book, *sync.Mutex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instruments[symbol]
	if !ok {
		return models.Instrument{}, nil, nil, fmt.Errorf("instrument %s: %w", symbol, ErrNotFound)
	}
	return inst, e.books[symbol], e.bookLocks[symbol], nil
}

// SubmitRequest is a new-order request from the caller
type SubmitRequest struct {
	AccountID   uuid.UUID
	Instrument  string
	Side        string
	Type        string
	TimeInForce string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
}

func (r *SubmitRequest) validate() error {
	if r.Side != models.SideBuy && r.Side != models.SideSell {
		return invalid("side", "must be BUY or SELL")
	}
	if r.Type != models.TypeLimit && r.Type != models.TypeMarket {
		return invalid("type", "must be LIMIT or MARKET")
	}
	if !r.Quantity.IsPositive() {
		return invalid("quantity", "must be positive")
	}
	if r.Type == models.TypeLimit && !r.Price.IsPositive() {
		return invalid("price", "limit orders require a positive price")
	}
	if r.TimeInForce == "" {
		r.TimeInForce = models.TimeInForceGTC
	}
	if r.TimeInForce != models.TimeInForceGTC && r.TimeInForce != models.TimeInForceIOC {
		return invalid("time_in_force", "must be GTC or IOC")
	}
	return nil
}

// submitTxn tracks everything one Submit call has mutated so a failure
// partway restores all of it.
type submitTxn struct {
	engine       *Engine
	book         *Book
	order        *models.Order
	inserted     bool // order was rested in the book
	savedCounter map[uuid.UUID]models.Order
	removed      []*models.Order // counter orders removed from the book
	execMark     int
}

func (t *submitTxn) saveCounter(o *models.Order) {
	if _, ok := t.savedCounter[o.ID]; !ok {
		t.savedCounter[o.ID] = *o
	}
}

func (t *submitTxn) rollback() {
	e := t.engine
	e.ledger.rollback()
	e.positions.rollback()
	for _, removed := range t.removed {
		t.book.Insert(removed)
	}
	for id, saved := range t.savedCounter {
		if live, ok := e.orders[id]; ok {
			*live = saved
		}
	}
	if t.inserted {
		t.book.Remove(t.order.ID)
	}
	delete(e.orders, t.order.ID)
	e.execs = e.execs[:t.execMark]
}

// transition moves an order to a new status, guarding terminal states.
func transition(o *models.Order, to string) error {
	if o.Status == to {
		return nil
	}
	if !canTransition(o.Status, to) {
		return &InvariantViolationError{
			Op:     "lifecycle.transition",
			Detail: fmt.Sprintf("order %s: %s -> %s", o.ID, o.Status, to),
		}
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// Submit validates, reserves, matches and settles a new order. On
// success it returns the order and the executions it produced; on any
// failure every mutation of the call is rolled back.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (models.Order, []models.Execution, error) {
	if err := req.validate(); err != nil {
		return models.Order{}, nil, err
	}
	inst, book, bookLock, err := e.instrument(req.Instrument)
	if err != nil {
		return models.Order{}, nil, err
	}

	bookLock.Lock()
	defer bookLock.Unlock()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	now := time.Now()
	order := &models.Order{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		Instrument:     req.Instrument,
		Side:           req.Side,
		Type:           req.Type,
		TimeInForce:    req.TimeInForce,
		Price:          req.Price,
		Quantity:       req.Quantity,
		FilledQuantity: decimal.Zero,
		Status:         models.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.Type == models.TypeMarket {
		order.Price = decimal.Zero
	}

	txn := &submitTxn{
		engine:       e,
		book:         book,
		order:        order,
		savedCounter: make(map[uuid.UUID]models.Order),
		execMark:     len(e.execs),
	}
	e.ledger.begin()
	e.positions.begin()
	ledgerMark := e.ledger.mark

	// Pre-check and reserve resources before the order exists. A
	// rejection here has mutated nothing, so the journals just close.
	switch {
	case order.Side == models.SideBuy && order.Type == models.TypeLimit:
		notional := order.Price.Mul(order.Quantity)
		if err := e.ledger.Reserve(order.AccountID, inst.QuoteCurrency, notional, order.ID); err != nil {
			e.ledger.rollback()
			e.positions.rollback()
			return models.Order{}, nil, err
		}
	case order.Side == models.SideBuy && order.Type == models.TypeMarket:
		bal, _ := e.ledger.Balance(order.AccountID, inst.QuoteCurrency)
		if !bal.Available.IsPositive() {
			e.ledger.rollback()
			e.positions.rollback()
			return models.Order{}, nil, fmt.Errorf("market buy for account %s: %w", order.AccountID, ErrInsufficientFunds)
		}
	default: // SELL, either type
		pos := e.positions.Get(order.AccountID, order.Instrument)
		if !e.AllowShortSelling && pos.Quantity.LessThan(order.Quantity) {
			e.ledger.rollback()
			e.positions.rollback()
			return models.Order{}, nil, fmt.Errorf("sell %s of %s held %s: %w",
				order.Quantity, order.Instrument, pos.Quantity, ErrInsufficientHoldings)
		}
	}

	e.orders[order.ID] = order

	executions, err := e.match(order, book, inst, txn)
	if err == nil {
		err = e.resolveRemainder(order, book, inst, txn, len(executions))
	}
	if err != nil {
		txn.rollback()
		if IsInvariantViolation(err) {
			e.log.Error("submit rolled back on invariant violation",
				zap.String("order_id", order.ID.String()),
				zap.String("account_id", order.AccountID.String()),
				zap.Error(err))
		}
		return models.Order{}, nil, err
	}

	mutation := e.buildMutation(order, txn, ledgerMark)
	if err := e.store.Persist(ctx, mutation); err != nil {
		txn.rollback()
		return models.Order{}, nil, fmt.Errorf("persist order %s: %w", order.ID, err)
	}

	e.ledger.commit()
	e.positions.commit()
	e.refreshQuote(book, executions)
	return *order, executions, nil
}

// match walks the opposite side of the book applying fills until the
// order is done, the book is exhausted, or prices stop crossing.
func (e *Engine) match(order *models.Order, book *Book, inst models.Instrument, txn *submitTxn) ([]models.Execution, error) {
	var executions []models.Execution

	for order.Remaining().IsPositive() {
		counter := book.BestOpposite(order.Side)
		if counter == nil {
			break
		}
		// Resting orders are always LIMIT, so two-sided price test only
		// applies when the incoming order is LIMIT too.
		if order.Type == models.TypeLimit {
			crosses := order.Side == models.SideBuy && order.Price.GreaterThanOrEqual(counter.Price) ||
				order.Side == models.SideSell && order.Price.LessThanOrEqual(counter.Price)
			if !crosses {
				break
			}
		}

		fillPrice := counter.Price
		fillQty := decimal.Min(order.Remaining(), counter.Remaining())

		// A market buy reserves nothing up front, so affordability is
		// re-checked fill by fill and the order truncated when funds
		// run out.
		if order.Side == models.SideBuy && order.Type == models.TypeMarket {
			bal, _ := e.ledger.Balance(order.AccountID, inst.QuoteCurrency)
			if bal.Available.LessThan(fillQty.Mul(fillPrice)) {
				fillQty = bal.Available.Div(fillPrice).Truncate(8)
				if !fillQty.IsPositive() {
					break
				}
			}
		}

		txn.saveCounter(counter)
		exec, err := e.applyFill(order, counter, fillQty, fillPrice, inst)
		if err != nil {
			return executions, err
		}
		executions = append(executions, exec)

		if !counter.Remaining().IsPositive() {
			book.Remove(counter.ID)
			txn.removed = append(txn.removed, counter)
		}
	}
	return executions, nil
}

// applyFill settles one match: ledger movements for both parties,
// position updates at the execution price, one execution record, and
// fill progress on both orders.
func (e *Engine) applyFill(order, counter *models.Order, fillQty, fillPrice decimal.Decimal, inst models.Instrument) (models.Execution, error) {
	notional := fillQty.Mul(fillPrice)

	buyer, seller := order, counter
	if order.Side == models.SideSell {
		buyer, seller = counter, order
	}

	// Buyer pays the notional: from reservation for limit orders, from
	// available for market orders. A limit buy filling under its limit
	// gets the over-reservation refunded.
	if buyer.Type == models.TypeLimit {
		if err := e.ledger.DebitReserved(buyer.AccountID, inst.QuoteCurrency, notional, buyer.ID); err != nil {
			return models.Execution{}, err
		}
		improvement := buyer.Price.Sub(fillPrice).Mul(fillQty)
		if improvement.IsPositive() {
			if err := e.ledger.RefundPriceImprovement(buyer.AccountID, inst.QuoteCurrency, improvement, buyer.ID); err != nil {
				return models.Execution{}, err
			}
		}
	} else {
		if err := e.ledger.DebitAvailable(buyer.AccountID, inst.QuoteCurrency, notional, models.EntryTradeDebit, buyer.ID); err != nil {
			return models.Execution{}, err
		}
	}
	e.ledger.CreditAvailable(seller.AccountID, inst.QuoteCurrency, notional, models.EntryTradeCredit, seller.ID)

	e.positions.ApplyFill(buyer.AccountID, inst.Symbol, fillQty, fillPrice)
	e.positions.ApplyFill(seller.AccountID, inst.Symbol, fillQty.Neg(), fillPrice)

	for _, o := range []*models.Order{order, counter} {
		o.FilledQuantity = o.FilledQuantity.Add(fillQty)
		if o.FilledQuantity.GreaterThan(o.Quantity) {
			return models.Execution{}, &InvariantViolationError{
				Op:     "engine.applyFill",
				Detail: fmt.Sprintf("order %s filled %s > quantity %s", o.ID, o.FilledQuantity, o.Quantity),
			}
		}
		if err := transition(o, statusFor(o.Quantity, o.FilledQuantity)); err != nil {
			return models.Execution{}, err
		}
	}

	exec := models.Execution{
		ID:          uuid.New(),
		Instrument:  inst.Symbol,
		BuyOrderID:  buyer.ID,
		SellOrderID: seller.ID,
		Price:       fillPrice,
		Quantity:    fillQty,
		ExecutedAt:  time.Now(),
	}
	e.execs = append(e.execs, exec)
	return exec, nil
}

// resolveRemainder applies the post-match policy: market remainders are
// cancelled or the whole order rejected, IOC remainders release their
// reservation, GTC remainders rest in the book.
func (e *Engine) resolveRemainder(order *models.Order, book *Book, inst models.Instrument, txn *submitTxn, fills int) error {
	remaining := order.Remaining()
	if !remaining.IsPositive() {
		return nil
	}

	if order.Type == models.TypeMarket {
		// A market order with zero fills never persists.
		if fills == 0 {
			return fmt.Errorf("market %s %s: %w", order.Side, order.Instrument, ErrNoLiquidity)
		}
		if e.RejectPartialMarket {
			return fmt.Errorf("market %s %s filled %s of %s: %w",
				order.Side, order.Instrument, order.FilledQuantity, order.Quantity, ErrNoLiquidity)
		}
		// Keep the fills, cancel the tail. Market orders reserved
		// nothing, so there is nothing to release.
		return transition(order, models.StatusCancelled)
	}

	if order.TimeInForce == models.TimeInForceIOC {
		if order.Side == models.SideBuy {
			if err := e.ledger.Release(order.AccountID, inst.QuoteCurrency, remaining.Mul(order.Price), order.ID); err != nil {
				return err
			}
		}
		return transition(order, models.StatusCancelled)
	}

	book.Insert(order)
	txn.inserted = true
	return nil
}

func (e *Engine) buildMutation(order *models.Order, txn *submitTxn, ledgerMark int) Mutation {
	orders := []models.Order{*order}
	for id := range txn.savedCounter {
		if live, ok := e.orders[id]; ok {
			orders = append(orders, *live)
		}
	}
	return Mutation{
		Orders:        orders,
		Executions:    append([]models.Execution(nil), e.execs[txn.execMark:]...),
		LedgerEntries: append([]models.LedgerEntry(nil), e.ledger.entriesSince(ledgerMark)...),
		Balances:      e.ledger.touchedBalances(),
		Positions:     e.positions.touched(),
	}
}

// Cancel cancels a non-terminal order owned by the requesting account,
// releasing a resting limit buy's remaining reservation.
func (e *Engine) Cancel(ctx context.Context, orderID, accountID uuid.UUID) (models.Order, error) {
	e.stateMu.Lock()
	order, ok := e.orders[orderID]
	if !ok {
		e.stateMu.Unlock()
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	instrument := order.Instrument
	e.stateMu.Unlock()

	inst, book, bookLock, err := e.instrument(instrument)
	if err != nil {
		return models.Order{}, err
	}

	bookLock.Lock()
	defer bookLock.Unlock()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	order, ok = e.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if order.AccountID != accountID {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrUnauthorized)
	}
	if order.IsTerminal() {
		return models.Order{}, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrAlreadyTerminal)
	}

	e.ledger.begin()
	ledgerMark := e.ledger.mark
	saved := *order

	// Resting orders are always LIMIT; only buys carry a reservation.
	if order.Side == models.SideBuy {
		if err := e.ledger.Release(order.AccountID, inst.QuoteCurrency, order.Remaining().Mul(order.Price), order.ID); err != nil {
			e.ledger.rollback()
			e.log.Error("cancel rolled back on invariant violation",
				zap.String("order_id", order.ID.String()),
				zap.Error(err))
			return models.Order{}, err
		}
	}
	removed := book.Remove(order.ID)
	if err := transition(order, models.StatusCancelled); err != nil {
		e.ledger.rollback()
		*order = saved
		if removed {
			book.Insert(order)
		}
		return models.Order{}, err
	}

	mutation := Mutation{
		Orders:        []models.Order{*order},
		LedgerEntries: append([]models.LedgerEntry(nil), e.ledger.entriesSince(ledgerMark)...),
		Balances:      e.ledger.touchedBalances(),
	}
	if err := e.store.Persist(ctx, mutation); err != nil {
		e.ledger.rollback()
		*order = saved
		if removed {
			book.Insert(order)
		}
		return models.Order{}, fmt.Errorf("persist cancel %s: %w", orderID, err)
	}

	e.ledger.commit()
	e.refreshQuote(book, nil)
	return *order, nil
}

// Deposit credits available funds and returns the updated balance.
func (e *Engine) Deposit(ctx context.Context, account uuid.UUID, currency string, amount decimal.Decimal) (models.Balance, error) {
	if !amount.IsPositive() {
		return models.Balance{}, invalid("amount", "must be positive")
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.ledger.begin()
	mark := e.ledger.mark
	e.ledger.CreditAvailable(account, currency, amount, models.EntryDeposit, uuid.New())
	return e.commitTransfer(ctx, account, currency, mark)
}

// Withdraw debits available funds and returns the updated balance.
func (e *Engine) Withdraw(ctx context.Context, account uuid.UUID, currency string, amount decimal.Decimal) (models.Balance, error) {
	if !amount.IsPositive() {
		return models.Balance{}, invalid("amount", "must be positive")
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.ledger.begin()
	mark := e.ledger.mark
	if err := e.ledger.Withdraw(account, currency, amount, uuid.New()); err != nil {
		e.ledger.rollback()
		return models.Balance{}, err
	}
	return e.commitTransfer(ctx, account, currency, mark)
}

func (e *Engine) commitTransfer(ctx context.Context, account uuid.UUID, currency string, mark int) (models.Balance, error) {
	mutation := Mutation{
		LedgerEntries: append([]models.LedgerEntry(nil), e.ledger.entriesSince(mark)...),
		Balances:      e.ledger.touchedBalances(),
	}
	if err := e.store.Persist(ctx, mutation); err != nil {
		e.ledger.rollback()
		return models.Balance{}, fmt.Errorf("persist transfer for account %s: %w", account, err)
	}
	e.ledger.commit()
	bal, _ := e.ledger.Balance(account, currency)
	return bal, nil
}

// refreshQuote recomputes the instrument's top-of-book and rolls the
// latest executions into last price and volume. Called with stateMu and
// the book lock held.
func (e *Engine) refreshQuote(book *Book, executions []models.Execution) {
	q, ok := e.quotes[book.Instrument]
	if !ok {
		q = &models.Quote{Instrument: book.Instrument, Volume: decimal.Zero}
		e.quotes[book.Instrument] = q
	}
	bid, ask, hasBid, hasAsk := book.TopOfBook()
	q.Bid, q.Ask = decimal.Zero, decimal.Zero
	if hasBid {
		q.Bid = bid
	}
	if hasAsk {
		q.Ask = ask
	}
	for _, exec := range executions {
		q.Last = exec.Price
		q.Volume = q.Volume.Add(exec.Quantity)
	}
	q.UpdatedAt = time.Now()
}

// Quote returns the instrument's current top-of-book snapshot.
func (e *Engine) Quote(instrument string) (models.Quote, error) {
	if _, _, _, err := e.instrument(instrument); err != nil {
		return models.Quote{}, err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if q, ok := e.quotes[instrument]; ok {
		return *q, nil
	}
	return models.Quote{Instrument: instrument, Volume: decimal.Zero}, nil
}

// OrderBook returns the aggregated depth snapshot for an instrument.
func (e *Engine) OrderBook(instrument string) (bids, asks []Level, err error) {
	_, book, bookLock, err := e.instrument(instrument)
	if err != nil {
		return nil, nil, err
	}
	bookLock.Lock()
	defer bookLock.Unlock()
	bids, asks = book.Depth()
	return bids, asks, nil
}

// Order returns a copy of the order with the given id.
func (e *Engine) Order(orderID uuid.UUID) (models.Order, error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return *order, nil
}

// AccountOrders returns copies of all the account's orders, newest first.
func (e *Engine) AccountOrders(account uuid.UUID) []models.Order {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	var out []models.Order
	for _, order := range e.orders {
		if order.AccountID == account {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// OrderExecutions returns the executions in which the order took part,
// on either side.
func (e *Engine) OrderExecutions(orderID uuid.UUID) []models.Execution {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	var out []models.Execution
	for _, exec := range e.execs {
		if exec.BuyOrderID == orderID || exec.SellOrderID == orderID {
			out = append(out, exec)
		}
	}
	return out
}

// AccountExecutions returns every execution in which one of the
// account's orders took part.
func (e *Engine) AccountExecutions(account uuid.UUID) []models.Execution {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	var out []models.Execution
	for _, exec := range e.execs {
		if e.orderOwnedBy(exec.BuyOrderID, account) || e.orderOwnedBy(exec.SellOrderID, account) {
			out = append(out, exec)
		}
	}
	return out
}

func (e *Engine) orderOwnedBy(orderID, account uuid.UUID) bool {
	order, ok := e.orders[orderID]
	return ok && order.AccountID == account
}

// Balance returns the account's balance in one currency.
func (e *Engine) Balance(account uuid.UUID, currency string) models.Balance {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	bal, _ := e.ledger.Balance(account, currency)
	return bal
}

// Balances returns all the account's balances.
func (e *Engine) Balances(account uuid.UUID) []models.Balance {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.ledger.Balances(account)
}

// Positions returns all the account's open positions.
func (e *Engine) Positions(account uuid.UUID) []models.Position {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.positions.List(account)
}

// Position returns the account's position in one instrument.
func (e *Engine) Position(account uuid.UUID, instrument string) models.Position {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.positions.Get(account, instrument)
}

// LedgerEntries returns the account's audit trail in append order.
func (e *Engine) LedgerEntries(account uuid.UUID) []models.LedgerEntry {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.ledger.Entries(account)
}

// LoadState seeds the engine from storage at startup: balances,
// positions and the resting open orders rebuilt into their books.
// Must run before the engine starts serving traffic.
func (e *Engine) LoadState(balances []models.Balance, positions []models.Position, openOrders []models.Order) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	for _, b := range balances {
		e.ledger.LoadBalance(b)
	}
	for _, p := range positions {
		e.positions.LoadPosition(p)
	}
	for i := range openOrders {
		order := openOrders[i]
		if order.IsTerminal() || !order.Remaining().IsPositive() {
			continue
		}
		_, book, _, err := e.instrument(order.Instrument)
		if err != nil {
			return fmt.Errorf("load order %s: %w", order.ID, err)
		}
		live := order
		e.orders[live.ID] = &live
		book.Insert(&live)
		e.refreshQuote(book, nil)
	}
	return nil
}
