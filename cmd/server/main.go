package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openbourse/exchange/internal/api"
	"github.com/openbourse/exchange/internal/auth"
	"github.com/openbourse/exchange/internal/config"
	"github.com/openbourse/exchange/internal/db"
	"github.com/openbourse/exchange/internal/exchange"
	"github.com/openbourse/exchange/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type broadcaster struct {
	engine  *exchange.Engine
	log     *zap.Logger
	mu      sync.RWMutex
	clients map[*wsClient]bool
	symbols []string
}

func newBroadcaster(engine *exchange.Engine, symbols []string, log *zap.Logger) *broadcaster {
	return &broadcaster{
		engine:  engine,
		log:     log,
		clients: make(map[*wsClient]bool),
		symbols: symbols,
	}
}

func (b *broadcaster) snapshot() ([]byte, error) {
	quotes := make([]models.Quote, 0, len(b.symbols))
	for _, symbol := range b.symbols {
		quote, err := b.engine.Quote(symbol)
		if err != nil {
			continue
		}
		quotes = append(quotes, quote)
	}
	return json.Marshal(map[string]interface{}{"quotes": quotes})
}

func (b *broadcaster) broadcast() {
	data, err := b.snapshot()
	if err != nil {
		b.log.Warn("failed to marshal quote snapshot", zap.Error(err))
		return
	}

	b.mu.RLock()
	stale := []*wsClient{}
	for client := range b.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	b.mu.RUnlock()

	if len(stale) > 0 {
		b.mu.Lock()
		for _, client := range stale {
			delete(b.clients, client)
		}
		b.mu.Unlock()
	}
}

func (b *broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()

	b.broadcast()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.mu.Lock()
			delete(b.clients, client)
			b.mu.Unlock()
			break
		}
	}
}

// Main entry point: loads config, restores engine state from the
// database, and serves the HTTP API.
func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	engine := exchange.NewEngine(database, log)
	engine.RejectPartialMarket = cfg.RejectPartialMarket
	engine.AllowShortSelling = cfg.AllowShortSelling

	instruments, err := database.ListInstruments(ctx)
	if err != nil {
		log.Fatal("failed to list instruments", zap.Error(err))
	}
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		engine.RegisterInstrument(inst)
		symbols = append(symbols, inst.Symbol)
	}

	balances, err := database.LoadBalances(ctx)
	if err != nil {
		log.Fatal("failed to load balances", zap.Error(err))
	}
	positions, err := database.LoadPositions(ctx)
	if err != nil {
		log.Fatal("failed to load positions", zap.Error(err))
	}
	openOrders, err := database.LoadOpenOrders(ctx)
	if err != nil {
		log.Fatal("failed to load open orders", zap.Error(err))
	}
	if err := engine.LoadState(balances, positions, openOrders); err != nil {
		log.Fatal("failed to restore engine state", zap.Error(err))
	}
	log.Info("engine state restored",
		zap.Int("instruments", len(instruments)),
		zap.Int("balances", len(balances)),
		zap.Int("positions", len(positions)),
		zap.Int("open_orders", len(openOrders)))

	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(engine, authService, log)
	quotes := newBroadcaster(engine, symbols, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", quotes.handleWebSocket)

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/orderbook/{symbol}", handler.GetOrderBook)
	r.Get("/quotes/{symbol}", handler.GetQuote)

	// Protected endpoints (require JWT)
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

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			quotes.broadcast()
		}
	}()

	log.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
