package payouts

import "errors"

var (
	ErrPayoutNotFound    = errors.New("payout not found")
	ErrPayoutAlreadyPaid = errors.New("payout is already paid")
	ErrNotInitiated      = errors.New("payout transfer has not been initiated")
	ErrAlreadyInitiated  = errors.New("payout transfer already initiated")
	ErrNotPayoutOwner    = errors.New("payout belongs to another organizer")
	ErrTooManyAttempts   = errors.New("too many confirmation attempts, try again later")

	// ErrBadConfirmationCode is deliberately generic: it must not leak
	// whether the payout exists in a confirmable state or how close the
	// supplied code was.
	ErrBadConfirmationCode = errors.New("confirmation rejected")
)
