package orders

import "errors"

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNotOrderOwner  = errors.New("order belongs to another user")

	ErrOrderNotPending   = errors.New("order is not pending")
	ErrOrderNotConfirmed = errors.New("order is not confirmed")

	ErrBookingClosed = errors.New("booking is closed for this event")

	// ErrHoldLost means payment settled after the capacity hold had
	// already expired. The order is cancelled with a refund due; the
	// buyer has to start over.
	ErrHoldLost = errors.New("capacity hold expired before payment settled")

	ErrNotCancellable           = errors.New("event does not allow cancellation")
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")
	ErrRefundNotDue             = errors.New("order has no refund due")
)
