package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbourse/exchange/internal/exchange"
	"github.com/openbourse/exchange/internal/models"
)

// DB wraps a PostgreSQL connection pool and implements exchange.Store.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Persist writes one committed engine mutation in a single transaction:
// order upserts, executions, ledger entries, balance upserts and
// position upserts/deletes all commit together or not at all.
func (db *DB) Persist(ctx context.Context, m exchange.Mutation) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, order := range m.Orders {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, account_id, instrument, side, type, time_in_force, price, quantity, filled_quantity, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE
			SET filled_quantity = EXCLUDED.filled_quantity, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			order.ID, order.AccountID, order.Instrument, order.Side, order.Type, order.TimeInForce,
			order.Price, order.Quantity, order.FilledQuantity, order.Status, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
		}
	}

	for _, exec := range m.Executions {
		_, err := tx.Exec(ctx, `
			INSERT INTO executions (id, instrument, buy_order_id, sell_order_id, price, quantity, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			exec.ID, exec.Instrument, exec.BuyOrderID, exec.SellOrderID, exec.Price, exec.Quantity, exec.ExecutedAt)
		if err != nil {
			return fmt.Errorf("failed to insert execution %s: %w", exec.ID, err)
		}
	}

	for _, entry := range m.LedgerEntries {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (id, account_id, currency, amount, entry_type, reference_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.ID, entry.AccountID, entry.Currency, entry.Amount, entry.EntryType, entry.ReferenceID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry %s: %w", entry.ID, err)
		}
	}

	for _, bal := range m.Balances {
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (account_id, currency, available, reserved, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (account_id, currency) DO UPDATE
			SET available = EXCLUDED.available, reserved = EXCLUDED.reserved, updated_at = NOW()`,
			bal.AccountID, bal.Currency, bal.Available, bal.Reserved)
		if err != nil {
			return fmt.Errorf("failed to upsert balance %s/%s: %w", bal.AccountID, bal.Currency, err)
		}
	}

	for _, pos := range m.Positions {
		if pos.Quantity.IsZero() {
			_, err := tx.Exec(ctx, "DELETE FROM positions WHERE account_id = $1 AND instrument = $2",
				pos.AccountID, pos.Instrument)
			if err != nil {
				return fmt.Errorf("failed to delete position %s/%s: %w", pos.AccountID, pos.Instrument, err)
			}
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (account_id, instrument, quantity, average_price, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (account_id, instrument) DO UPDATE
			SET quantity = EXCLUDED.quantity, average_price = EXCLUDED.average_price, updated_at = NOW()`,
			pos.AccountID, pos.Instrument, pos.Quantity, pos.AveragePrice)
		if err != nil {
			return fmt.Errorf("failed to upsert position %s/%s: %w", pos.AccountID, pos.Instrument, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateAccount inserts a new account
func (db *DB) CreateAccount(ctx context.Context, username, passwordHash, baseCurrency string) (*models.Account, error) {
	account := &models.Account{}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO accounts (id, username, password_hash, base_currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, password_hash, base_currency, created_at`,
		uuid.New(), username, passwordHash, baseCurrency).Scan(
		&account.ID, &account.Username, &account.PasswordHash, &account.BaseCurrency, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, base_currency, created_at FROM accounts WHERE username = $1",
		username).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.BaseCurrency, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpsertCurrency writes static currency reference data
func (db *DB) UpsertCurrency(ctx context.Context, c models.Currency) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO currencies (code, display_precision) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET display_precision = EXCLUDED.display_precision`,
		c.Code, c.Precision)
	if err != nil {
		return fmt.Errorf("failed to upsert currency %s: %w", c.Code, err)
	}
	return nil
}

// UpsertInstrument writes static instrument reference data
func (db *DB) UpsertInstrument(ctx context.Context, inst models.Instrument) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO instruments (symbol, base_currency, quote_currency, lot_size, tick_size)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE
		SET base_currency = EXCLUDED.base_currency, quote_currency = EXCLUDED.quote_currency,
		    lot_size = EXCLUDED.lot_size, tick_size = EXCLUDED.tick_size`,
		inst.Symbol, inst.BaseCurrency, inst.QuoteCurrency, inst.LotSize, inst.TickSize)
	if err != nil {
		return fmt.Errorf("failed to upsert instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// ListInstruments retrieves all tradable instruments
func (db *DB) ListInstruments(ctx context.Context) ([]models.Instrument, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT symbol, base_currency, quote_currency, lot_size, tick_size FROM instruments ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []models.Instrument
	for rows.Next() {
		var inst models.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.BaseCurrency, &inst.QuoteCurrency, &inst.LotSize, &inst.TickSize); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// LoadBalances retrieves every balance for engine bootstrap
func (db *DB) LoadBalances(ctx context.Context) ([]models.Balance, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT account_id, currency, available, reserved, updated_at FROM balances")
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	defer rows.Close()

	var balances []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.AccountID, &b.Currency, &b.Available, &b.Reserved, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// LoadPositions retrieves every open position for engine bootstrap
func (db *DB) LoadPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT account_id, instrument, quantity, average_price, updated_at FROM positions")
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.AccountID, &p.Instrument, &p.Quantity, &p.AveragePrice, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// LoadOpenOrders retrieves all resting orders ordered by creation time,
// so books rebuilt from them keep time priority.
func (db *DB) LoadOpenOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, account_id, instrument, side, type, time_in_force, price, quantity, filled_quantity, status, created_at, updated_at
		FROM orders
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC`,
		models.StatusOpen, models.StatusPartiallyFilled)
	if err != nil {
		return nil, fmt.Errorf("failed to load open orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.AccountID, &o.Instrument, &o.Side, &o.Type, &o.TimeInForce,
			&o.Price, &o.Quantity, &o.FilledQuantity, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetOrder retrieves one order row. Kept for operational queries
// outside the engine's in-memory state.
func (db *DB) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o := &models.Order{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, account_id, instrument, side, type, time_in_force, price, quantity, filled_quantity, status, created_at, updated_at
		FROM orders WHERE id = $1`, orderID).Scan(
		&o.ID, &o.AccountID, &o.Instrument, &o.Side, &o.Type, &o.TimeInForce,
		&o.Price, &o.Quantity, &o.FilledQuantity, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("order %s: %w", orderID, exchange.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}
