package exchange

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbourse/exchange/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_ReserveAndRelease(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("1000"), models.EntryDeposit, ref)

	require.NoError(t, l.Reserve(account, "USDT", dec("600"), ref))
	bal, ok := l.Balance(account, "USDT")
	require.True(t, ok)
	assert.True(t, bal.Available.Equal(dec("400")))
	assert.True(t, bal.Reserved.Equal(dec("600")))
	assert.True(t, bal.Total().Equal(dec("1000")))

	// Reserving more than available is a business rejection
	err := l.Reserve(account, "USDT", dec("500"), ref)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, l.Release(account, "USDT", dec("600"), ref))
	bal, _ = l.Balance(account, "USDT")
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestLedger_OverReleaseIsInvariantViolation(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("100"), models.EntryDeposit, ref)
	require.NoError(t, l.Reserve(account, "USDT", dec("50"), ref))

	err := l.Release(account, "USDT", dec("51"), ref)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))

	err = l.DebitReserved(account, "USDT", dec("51"), ref)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))

	err = l.RefundPriceImprovement(account, "USDT", dec("51"), ref)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))

	// Nothing was mutated by the failed calls
	bal, _ := l.Balance(account, "USDT")
	assert.True(t, bal.Available.Equal(dec("50")))
	assert.True(t, bal.Reserved.Equal(dec("50")))
}

func TestLedger_DebitReservedConsumesFunds(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("1000"), models.EntryDeposit, ref)
	require.NoError(t, l.Reserve(account, "USDT", dec("1000"), ref))
	require.NoError(t, l.DebitReserved(account, "USDT", dec("400"), ref))

	bal, _ := l.Balance(account, "USDT")
	assert.True(t, bal.Available.IsZero())
	assert.True(t, bal.Reserved.Equal(dec("600")))
	assert.True(t, bal.Total().Equal(dec("600")))
}

func TestLedger_Withdraw(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("100"), models.EntryDeposit, ref)
	require.NoError(t, l.Withdraw(account, "USDT", dec("40"), ref))

	err := l.Withdraw(account, "USDT", dec("61"), ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	bal, _ := l.Balance(account, "USDT")
	assert.True(t, bal.Available.Equal(dec("60")))
}

func TestLedger_EveryMutationWritesOneEntry(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("1000"), models.EntryDeposit, ref)
	require.NoError(t, l.Reserve(account, "USDT", dec("500"), ref))
	require.NoError(t, l.DebitReserved(account, "USDT", dec("300"), ref))
	require.NoError(t, l.Release(account, "USDT", dec("200"), ref))
	require.NoError(t, l.Withdraw(account, "USDT", dec("100"), ref))

	entries := l.Entries(account)
	require.Len(t, entries, 5)
	types := []string{
		models.EntryDeposit, models.EntryReserve, models.EntryTradeDebit,
		models.EntryRelease, models.EntryWithdrawal,
	}
	for i, entry := range entries {
		assert.Equal(t, types[i], entry.EntryType)
		assert.Equal(t, ref, entry.ReferenceID)
	}

	// Failed calls write nothing
	_ = l.Reserve(account, "USDT", dec("100000"), ref)
	assert.Len(t, l.Entries(account), 5)
}

func TestLedger_RollbackRestoresBalancesAndEntries(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("1000"), models.EntryDeposit, ref)

	l.begin()
	require.NoError(t, l.Reserve(account, "USDT", dec("600"), ref))
	require.NoError(t, l.DebitReserved(account, "USDT", dec("600"), ref))
	l.CreditAvailable(uuid.New(), "USDT", dec("600"), models.EntryTradeCredit, ref)
	l.rollback()

	bal, _ := l.Balance(account, "USDT")
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
	assert.Len(t, l.Entries(account), 1)
}

func TestLedger_CommitKeepsMutations(t *testing.T) {
	l := NewLedger()
	account := uuid.New()
	ref := uuid.New()

	l.CreditAvailable(account, "USDT", dec("1000"), models.EntryDeposit, ref)
	l.begin()
	require.NoError(t, l.Reserve(account, "USDT", dec("600"), ref))
	l.commit()

	bal, _ := l.Balance(account, "USDT")
	assert.True(t, bal.Reserved.Equal(dec("600")))
	assert.Len(t, l.Entries(account), 2)
}
