package exchange

import (
	"errors"
	"fmt"
)

// Business rejections. No state is mutated when these are returned;
// callers may retry after correcting the condition.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyTerminal      = errors.New("order already terminal")
	ErrNoLiquidity          = errors.New("no liquidity")
)

// ValidationError rejects a malformed request before any state mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvariantViolationError indicates the engine's own bookkeeping would go
// negative. It is a bug in the engine, not a user error: the operation is
// rolled back in full and the violation logged loudly, never clamped.
type InvariantViolationError struct {
	Op     string
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// IsInvariantViolation reports whether err is an engine consistency bug,
// so operators can alert on it separately from business rejections.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
