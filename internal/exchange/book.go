package exchange

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbourse/exchange/internal/models"
)

// Book holds the resting orders of one instrument as two priority
// sequences: bids sorted by price descending, asks by price ascending,
// ties broken by earliest creation time. Market orders never rest here.
type Book struct {
	Instrument string
	bids       []*models.Order
	asks       []*models.Order
}

// NewBook creates an empty order book for one instrument
func NewBook(instrument string) *Book {
	return &Book{
		Instrument: instrument,
		bids:       []*models.Order{},
		asks:       []*models.Order{},
	}
}

// Insert adds a resting order to its side of the book. Only called with
// remaining quantity > 0 and status OPEN or PARTIALLY_FILLED.
func (b *Book) Insert(order *models.Order) {
	if order.Side == models.SideBuy {
		b.bids = append(b.bids, order)
		// Highest price first, then earliest time
		sort.Slice(b.bids, func(i, j int) bool {
			if b.bids[i].Price.Equal(b.bids[j].Price) {
				return b.bids[i].CreatedAt.Before(b.bids[j].CreatedAt)
			}
			return b.bids[i].Price.GreaterThan(b.bids[j].Price)
		})
	} else {
		b.asks = append(b.asks, order)
		// Lowest price first, then earliest time
		sort.Slice(b.asks, func(i, j int) bool {
			if b.asks[i].Price.Equal(b.asks[j].Price) {
				return b.asks[i].CreatedAt.Before(b.asks[j].CreatedAt)
			}
			return b.asks[i].Price.LessThan(b.asks[j].Price)
		})
	}
}

// BestOpposite returns the best-priority resting order on the other side
// of the given side, or nil if that side is empty.
func (b *Book) BestOpposite(side string) *models.Order {
	if side == models.SideBuy {
		if len(b.asks) == 0 {
			return nil
		}
		return b.asks[0]
	}
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

// Remove deletes the order with the given id from the book.
// Returns false if the order was not resting.
func (b *Book) Remove(orderID uuid.UUID) bool {
	for i, order := range b.bids {
		if order.ID == orderID {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return true
		}
	}
	for i, order := range b.asks {
		if order.ID == orderID {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return true
		}
	}
	return false
}

// TopOfBook returns the best bid and ask prices for quoting. A zero
// decimal with ok=false means that side is empty.
func (b *Book) TopOfBook() (bestBid, bestAsk decimal.Decimal, hasBid, hasAsk bool) {
	if len(b.bids) > 0 {
		bestBid, hasBid = b.bids[0].Price, true
	}
	if len(b.asks) > 0 {
		bestAsk, hasAsk = b.asks[0].Price, true
	}
	return bestBid, bestAsk, hasBid, hasAsk
}

// Level is one aggregated price level of a depth snapshot
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Depth returns the aggregated book snapshot: remaining quantity summed
// per price level, bids descending and asks ascending.
func (b *Book) Depth() (bids, asks []Level) {
	return aggregate(b.bids), aggregate(b.asks)
}

func aggregate(orders []*models.Order) []Level {
	levels := []Level{}
	for _, order := range orders {
		remaining := order.Remaining()
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(order.Price) {
			levels[len(levels)-1].Quantity = levels[len(levels)-1].Quantity.Add(remaining)
			continue
		}
		levels = append(levels, Level{Price: order.Price, Quantity: remaining})
	}
	return levels
}
