package transitions

import (
	"time"

	"github.com/google/uuid"
)

// Type names the state transition being announced. Downstream consumers
// (mailers, analytics, reconciliation jobs) subscribe to these; this core
// only publishes them.
type Type string

const (
	TypeOrderConfirmed       Type = "order.confirmed"
	TypeOrderCancelled       Type = "order.cancelled"
	TypeOrderRefundProcessed Type = "order.refund_processed"
	TypePayoutPaid           Type = "payout.paid"
)

// Event is one lifecycle transition on the wire
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	EventID    uuid.UUID              `json:"event_id"`
	SubjectID  uuid.UUID              `json:"subject_id"` // order or payout id
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds a transition event with a fresh id and timestamp
func NewEvent(t Type, eventID, subjectID uuid.UUID, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       t,
		EventID:    eventID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
