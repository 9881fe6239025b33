package shared

import (
	"errors"
	"fmt"
)

// Error kinds shared by every module. Services wrap these with a
// human-readable reason so callers can branch with errors.Is while users
// still see what went wrong.
var (
	// ErrNotFound indicates a missing item, material, batch, order or location.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates malformed input such as a zero delta or empty reason.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidOperation indicates an operation that would violate a ledger invariant.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInsufficientInventory indicates a reservation or move exceeding available stock.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrInvalidStatus indicates an illegal state-machine transition.
	ErrInvalidStatus = errors.New("invalid status")
)

// Errorf builds an error carrying the given kind and a formatted reason.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, kind)...)
}
