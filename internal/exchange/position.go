package exchange

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbourse/exchange/internal/models"
)

type positionKey struct {
	account    uuid.UUID
	instrument string
}

// PositionBook owns every account's per-instrument net quantity and
// volume-weighted average cost. Like the ledger it is serialized by its
// caller and supports journal rollback.
type PositionBook struct {
	positions map[positionKey]*models.Position
	journal   map[positionKey]*models.Position // nil when no journal is open
}

// NewPositionBook creates an empty position book
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[positionKey]*models.Position)}
}

func (p *PositionBook) begin() {
	p.journal = make(map[positionKey]*models.Position)
}

func (p *PositionBook) commit() {
	p.journal = nil
}

func (p *PositionBook) rollback() {
	for key, saved := range p.journal {
		if saved == nil {
			delete(p.positions, key)
			continue
		}
		restored := *saved
		p.positions[key] = &restored
	}
	p.journal = nil
}

func (p *PositionBook) touch(key positionKey) {
	if p.journal == nil {
		return
	}
	if _, seen := p.journal[key]; seen {
		return
	}
	if existing, ok := p.positions[key]; ok {
		copied := *existing
		p.journal[key] = &copied
	} else {
		p.journal[key] = nil
	}
}

// ApplyFill adjusts the position by the signed quantity delta at the
// fill price. Increasing the position (same sign) updates the average
// price volume-weighted; reducing leaves it unchanged; flipping sign
// resets it to the fill price. A position reaching exactly zero is
// removed, not retained.
func (p *PositionBook) ApplyFill(account uuid.UUID, instrument string, delta, fillPrice decimal.Decimal) {
	key := positionKey{account, instrument}
	p.touch(key)

	pos, ok := p.positions[key]
	if !ok {
		pos = &models.Position{
			AccountID:    account,
			Instrument:   instrument,
			Quantity:     decimal.Zero,
			AveragePrice: decimal.Zero,
		}
		p.positions[key] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty.Add(delta)

	switch {
	case newQty.IsZero():
		delete(p.positions, key)
		return
	case oldQty.IsZero() || oldQty.Sign() == delta.Sign():
		// Same-sign increase: volume-weighted average
		oldNotional := pos.AveragePrice.Mul(oldQty.Abs())
		fillNotional := fillPrice.Mul(delta.Abs())
		pos.AveragePrice = oldNotional.Add(fillNotional).Div(newQty.Abs())
	case oldQty.Sign() != newQty.Sign():
		// Sign flipped: cost basis restarts at the flip-causing fill
		pos.AveragePrice = fillPrice
	}
	// Plain reduction keeps the average price untouched

	pos.Quantity = newQty
	pos.UpdatedAt = time.Now()
}

// touched returns current values of every position touched since begin.
// A zero quantity marks a deleted position for the store.
func (p *PositionBook) touched() []models.Position {
	var out []models.Position
	for key := range p.journal {
		if pos, ok := p.positions[key]; ok {
			out = append(out, *pos)
			continue
		}
		out = append(out, models.Position{
			AccountID:    key.account,
			Instrument:   key.instrument,
			Quantity:     decimal.Zero,
			AveragePrice: decimal.Zero,
		})
	}
	return out
}

// Get returns the current position, or a zero-quantity position when
// the account holds nothing in the instrument. Never an error.
func (p *PositionBook) Get(account uuid.UUID, instrument string) models.Position {
	if pos, ok := p.positions[positionKey{account, instrument}]; ok {
		return *pos
	}
	return models.Position{
		AccountID:    account,
		Instrument:   instrument,
		Quantity:     decimal.Zero,
		AveragePrice: decimal.Zero,
	}
}

// List returns copies of all the account's open positions, sorted by instrument.
func (p *PositionBook) List(account uuid.UUID) []models.Position {
	var out []models.Position
	for key, pos := range p.positions {
		if key.account == account {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// LoadPosition seeds a position during engine bootstrap.
func (p *PositionBook) LoadPosition(pos models.Position) {
	if pos.Quantity.IsZero() {
		return
	}
	copied := pos
	p.positions[positionKey{pos.AccountID, pos.Instrument}] = &copied
}
