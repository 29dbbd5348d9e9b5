package domain

import "errors"

// Every rejected entry point wraps exactly one of these.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotFound         = errors.New("not found")
	ErrMarketClosed     = errors.New("market closed")
	ErrTooEarly         = errors.New("too early")
	ErrAlreadyResolved  = errors.New("already resolved")
	ErrNotResolved      = errors.New("not resolved")
	ErrSideConflict     = errors.New("side conflict")
	ErrAmountMismatch   = errors.New("amount mismatch")
	ErrAlreadyClaimed   = errors.New("already claimed")
	ErrNotAWinner       = errors.New("not a winner")
)

var taxonomy = []error{
	ErrInvalidParameter,
	ErrNotFound,
	ErrMarketClosed,
	ErrTooEarly,
	ErrAlreadyResolved,
	ErrNotResolved,
	ErrSideConflict,
	ErrAmountMismatch,
	ErrAlreadyClaimed,
	ErrNotAWinner,
}

// Kind returns the taxonomy error err wraps, or nil for errors outside it
// (storage failures and the like).
func Kind(err error) error {
	for _, k := range taxonomy {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
