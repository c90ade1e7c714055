package exchange

import (
	"context"

	"github.com/openbourse/exchange/internal/models"
)

// Mutation is the full set of state changes produced by one committed
// engine operation. The store must persist it atomically, all rows or
// none: one database transaction per submit, cancel or transfer.
type Mutation struct {
	Orders        []models.Order // created or updated, full rows
	Executions    []models.Execution
	LedgerEntries []models.LedgerEntry
	Balances      []models.Balance  // upserts
	Positions     []models.Position // upsert; zero quantity means delete
}

// Store is the persistence boundary consumed by the engine. A failed
// Persist rolls back the in-memory operation too, so memory and storage
// never diverge.
type Store interface {
	Persist(ctx context.Context, m Mutation) error
}

// NopStore discards all mutations. Used by tests and by callers that
// run the engine purely in memory.
type NopStore struct{}

func (NopStore) Persist(ctx context.Context, m Mutation) error { return nil }
