package exchange

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbourse/exchange/internal/models"
)

type balanceKey struct {
	account  uuid.UUID
	currency string
}

// Ledger owns every account's per-currency funds and the append-only
// audit entries behind them. Balances are mutated only through the
// operations below; each mutation writes exactly one ledger entry.
//
// The ledger is not self-locking: callers (the engine) serialize access.
// A journal can be opened with begin() so that a failed operation
// sequence restores every touched balance and drops its entries.
type Ledger struct {
	balances map[balanceKey]*models.Balance
	entries  []models.LedgerEntry

	journal map[balanceKey]*models.Balance // nil when no journal is open
	mark    int                            // entries length at begin()
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*models.Balance)}
}

func (l *Ledger) balance(account uuid.UUID, currency string) *models.Balance {
	key := balanceKey{account, currency}
	b, ok := l.balances[key]
	if !ok {
		b = &models.Balance{
			AccountID: account,
			Currency:  currency,
			Available: decimal.Zero,
			Reserved:  decimal.Zero,
		}
		l.balances[key] = b
	}
	return b
}

// touch records the balance's pre-mutation state in the open journal
func (l *Ledger) touch(b *models.Balance) {
	if l.journal == nil {
		return
	}
	key := balanceKey{b.AccountID, b.Currency}
	if _, seen := l.journal[key]; !seen {
		copied := *b
		l.journal[key] = &copied
	}
}

// begin opens a rollback journal. Must be paired with commit or rollback.
func (l *Ledger) begin() {
	l.journal = make(map[balanceKey]*models.Balance)
	l.mark = len(l.entries)
}

// commit discards the journal, keeping all mutations.
func (l *Ledger) commit() {
	l.journal = nil
}

// rollback restores every balance touched since begin and drops the
// entries written since then.
func (l *Ledger) rollback() {
	for key, saved := range l.journal {
		if saved.Available.IsZero() && saved.Reserved.IsZero() {
			delete(l.balances, key)
			continue
		}
		restored := *saved
		l.balances[key] = &restored
	}
	l.entries = l.entries[:l.mark]
	l.journal = nil
}

func (l *Ledger) record(account uuid.UUID, currency string, amount decimal.Decimal, entryType string, ref uuid.UUID) {
	l.entries = append(l.entries, models.LedgerEntry{
		ID:          uuid.New(),
		AccountID:   account,
		Currency:    currency,
		Amount:      amount,
		EntryType:   entryType,
		ReferenceID: ref,
		CreatedAt:   time.Now(),
	})
}

// Reserve moves amount from available to reserved, failing with
// ErrInsufficientFunds when available < amount.
func (l *Ledger) Reserve(account uuid.UUID, currency string, amount decimal.Decimal, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Available.LessThan(amount) {
		return fmt.Errorf("reserve %s %s for account %s: %w", amount, currency, account, ErrInsufficientFunds)
	}
	l.touch(b)
	b.Available = b.Available.Sub(amount)
	b.Reserved = b.Reserved.Add(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount.Neg(), models.EntryReserve, ref)
	return nil
}

// Release moves amount from reserved back to available. Reserved going
// short here means a caller bug, reported as an invariant violation.
func (l *Ledger) Release(account uuid.UUID, currency string, amount decimal.Decimal, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Reserved.LessThan(amount) {
		return &InvariantViolationError{
			Op:     "ledger.release",
			Detail: fmt.Sprintf("account %s reserved %s %s < release %s", account, b.Reserved, currency, amount),
		}
	}
	l.touch(b)
	b.Reserved = b.Reserved.Sub(amount)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount, models.EntryRelease, ref)
	return nil
}

// DebitReserved consumes reserved funds permanently (a buy fill).
func (l *Ledger) DebitReserved(account uuid.UUID, currency string, amount decimal.Decimal, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Reserved.LessThan(amount) {
		return &InvariantViolationError{
			Op:     "ledger.debitReserved",
			Detail: fmt.Sprintf("account %s reserved %s %s < debit %s", account, b.Reserved, currency, amount),
		}
	}
	l.touch(b)
	b.Reserved = b.Reserved.Sub(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount.Neg(), models.EntryTradeDebit, ref)
	return nil
}

// CreditAvailable adds funds directly to available (a sell fill, a deposit).
func (l *Ledger) CreditAvailable(account uuid.UUID, currency string, amount decimal.Decimal, entryType string, ref uuid.UUID) {
	b := l.balance(account, currency)
	l.touch(b)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount, entryType, ref)
}

// RefundPriceImprovement releases the over-reservation of a limit buy
// that filled better than its limit: (limitPrice - fillPrice) * fillQty.
func (l *Ledger) RefundPriceImprovement(account uuid.UUID, currency string, amount decimal.Decimal, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Reserved.LessThan(amount) {
		return &InvariantViolationError{
			Op:     "ledger.refundPriceImprovement",
			Detail: fmt.Sprintf("account %s reserved %s %s < refund %s", account, b.Reserved, currency, amount),
		}
	}
	l.touch(b)
	b.Reserved = b.Reserved.Sub(amount)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount, models.EntryRefund, ref)
	return nil
}

// DebitAvailable consumes available funds directly (a market buy fill,
// which reserves nothing up front). Fails with ErrInsufficientFunds.
func (l *Ledger) DebitAvailable(account uuid.UUID, currency string, amount decimal.Decimal, entryType string, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Available.LessThan(amount) {
		return fmt.Errorf("debit %s %s from account %s: %w", amount, currency, account, ErrInsufficientFunds)
	}
	l.touch(b)
	b.Available = b.Available.Sub(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount.Neg(), entryType, ref)
	return nil
}

// Withdraw debits available funds, failing on insufficient funds.
func (l *Ledger) Withdraw(account uuid.UUID, currency string, amount decimal.Decimal, ref uuid.UUID) error {
	b := l.balance(account, currency)
	if b.Available.LessThan(amount) {
		return fmt.Errorf("withdraw %s %s from account %s: %w", amount, currency, account, ErrInsufficientFunds)
	}
	l.touch(b)
	b.Available = b.Available.Sub(amount)
	b.UpdatedAt = time.Now()
	l.record(account, currency, amount.Neg(), models.EntryWithdrawal, ref)
	return nil
}

// Balance returns a copy of the account's balance in one currency.
func (l *Ledger) Balance(account uuid.UUID, currency string) (models.Balance, bool) {
	b, ok := l.balances[balanceKey{account, currency}]
	if !ok {
		return models.Balance{AccountID: account, Currency: currency, Available: decimal.Zero, Reserved: decimal.Zero}, false
	}
	return *b, true
}

// Balances returns copies of all the account's balances, sorted by currency.
func (l *Ledger) Balances(account uuid.UUID) []models.Balance {
	var out []models.Balance
	for key, b := range l.balances {
		if key.account == account {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Entries returns the account's ledger entries in append order.
func (l *Ledger) Entries(account uuid.UUID) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, e := range l.entries {
		if e.AccountID == account {
			out = append(out, e)
		}
	}
	return out
}

// touchedBalances returns current values of every balance touched since
// begin, for persistence.
func (l *Ledger) touchedBalances() []models.Balance {
	var out []models.Balance
	for key := range l.journal {
		if b, ok := l.balances[key]; ok {
			out = append(out, *b)
		}
	}
	return out
}

// entriesSince returns entries written after the given journal mark.
func (l *Ledger) entriesSince(mark int) []models.LedgerEntry {
	return l.entries[mark:]
}

// LoadBalance seeds a balance during engine bootstrap, bypassing entries.
func (l *Ledger) LoadBalance(b models.Balance) {
	copied := b
	l.balances[balanceKey{b.AccountID, b.Currency}] = &copied
}
