package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/openbourse/exchange/internal/config"
	"github.com/openbourse/exchange/internal/db"
	"github.com/openbourse/exchange/internal/models"
)

// Seed the database with reference data, demo accounts and a small
// resting book so the server starts with usable state.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Skip if reference data already exists
	instruments, err := database.ListInstruments(ctx)
	if err != nil {
		log.Fatalf("Failed to check instruments: %v", err)
	}
	if len(instruments) > 0 {
		fmt.Printf("Database already has %d instruments. No need to seed.\n", len(instruments))
		os.Exit(0)
	}

	for _, c := range []models.Currency{
		{Code: "USDT", Precision: 2},
		{Code: "BTC", Precision: 8},
		{Code: "ETH", Precision: 8},
	} {
		if err := database.UpsertCurrency(ctx, c); err != nil {
			log.Fatalf("Failed to create currency %s: %v", c.Code, err)
		}
	}

	for _, inst := range []models.Instrument{
		{Symbol: "BTCUSDT", BaseCurrency: "BTC", QuoteCurrency: "USDT",
			LotSize: decimal.RequireFromString("0.00000001"), TickSize: decimal.RequireFromString("0.01")},
		{Symbol: "ETHUSDT", BaseCurrency: "ETH", QuoteCurrency: "USDT",
			LotSize: decimal.RequireFromString("0.00000001"), TickSize: decimal.RequireFromString("0.01")},
	} {
		if err := database.UpsertInstrument(ctx, inst); err != nil {
			log.Fatalf("Failed to create instrument %s: %v", inst.Symbol, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	trader1, err := database.CreateAccount(ctx, "trader1", string(hash), "USDT")
	if err != nil {
		log.Fatalf("Failed to create trader1: %v", err)
	}
	trader2, err := database.CreateAccount(ctx, "trader2", string(hash), "USDT")
	if err != nil {
		log.Fatalf("Failed to create trader2: %v", err)
	}

	seedBalance(ctx, database, trader1.ID, "USDT", "100000")
	seedBalance(ctx, database, trader2.ID, "USDT", "100000")
	seedPosition(ctx, database, trader2.ID, "BTCUSDT", "2", "28000")

	// A small resting book: trader1 bidding, trader2 offering
	seedOrder(ctx, database, trader1.ID, "BTCUSDT", models.SideBuy, "29500", "0.5")
	seedOrder(ctx, database, trader1.ID, "BTCUSDT", models.SideBuy, "29000", "1")
	seedOrder(ctx, database, trader2.ID, "BTCUSDT", models.SideSell, "30500", "0.5")
	seedOrder(ctx, database, trader2.ID, "BTCUSDT", models.SideSell, "31000", "1")

	// Reserve trader1's bids: 29500*0.5 + 29000*1
	reserved := decimal.RequireFromString("43750")
	_, err = database.Pool.Exec(ctx, `
		UPDATE balances SET available = available - $1, reserved = reserved + $1
		WHERE account_id = $2 AND currency = 'USDT'`,
		reserved, trader1.ID)
	if err != nil {
		log.Fatalf("Failed to reserve bid funds: %v", err)
	}

	fmt.Println("Successfully seeded the database!")
}

func seedBalance(ctx context.Context, database *db.DB, account uuid.UUID, currency, available string) {
	_, err := database.Pool.Exec(ctx, `
		INSERT INTO balances (account_id, currency, available, reserved)
		VALUES ($1, $2, $3, 0)`,
		account, currency, decimal.RequireFromString(available))
	if err != nil {
		log.Fatalf("Failed to seed balance: %v", err)
	}
}

func seedPosition(ctx context.Context, database *db.DB, account uuid.UUID, instrument, quantity, avgPrice string) {
	_, err := database.Pool.Exec(ctx, `
		INSERT INTO positions (account_id, instrument, quantity, average_price)
		VALUES ($1, $2, $3, $4)`,
		account, instrument, decimal.RequireFromString(quantity), decimal.RequireFromString(avgPrice))
	if err != nil {
		log.Fatalf("Failed to seed position: %v", err)
	}
}

func seedOrder(ctx context.Context, database *db.DB, account uuid.UUID, instrument, side, price, quantity string) {
	_, err := database.Pool.Exec(ctx, `
		INSERT INTO orders (id, account_id, instrument, side, type, time_in_force, price, quantity, filled_quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		uuid.New(), account, instrument, side, models.TypeLimit, models.TimeInForceGTC,
		decimal.RequireFromString(price), decimal.RequireFromString(quantity), models.StatusOpen)
	if err != nil {
		log.Fatalf("Failed to seed order: %v", err)
	}
}
