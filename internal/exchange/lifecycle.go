package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/openbourse/exchange/internal/models"
)

// statusFor derives an order's status from its fill progress:
// filled >= quantity => FILLED, 0 < filled < quantity => PARTIALLY_FILLED,
// filled == 0 => OPEN. Cancellation overrides a non-terminal status.
func statusFor(quantity, filled decimal.Decimal) string {
	switch {
	case filled.GreaterThanOrEqual(quantity):
		return models.StatusFilled
	case filled.IsPositive():
		return models.StatusPartiallyFilled
	default:
		return models.StatusOpen
	}
}

// canTransition reports whether an order may move from one status to
// another. FILLED and CANCELLED are terminal.
func canTransition(from, to string) bool {
	switch from {
	case models.StatusFilled, models.StatusCancelled:
		return false
	case models.StatusOpen:
		return to == models.StatusPartiallyFilled || to == models.StatusFilled || to == models.StatusCancelled
	case models.StatusPartiallyFilled:
		return to == models.StatusFilled || to == models.StatusCancelled
	}
	return false
}
