package capacity

import "errors"

// Expected ledger outcomes. Callers must branch on these rather than treat
// every failure as "sold out": anything not matching one of them is a
// transient infrastructure error and should be retried with backoff.
var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrHoldExpired      = errors.New("hold expired")
	ErrHoldNotActive    = errors.New("hold is not active")
	ErrHoldNotCommitted = errors.New("hold is not committed")
	ErrUnknownCategory  = errors.New("unknown capacity category")
	ErrInvalidQuantity  = errors.New("invalid quantity")
)
