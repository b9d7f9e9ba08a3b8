package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order is one purchase attempt against an event. It is created PENDING
// together with a capacity hold; payment settlement either confirms it
// (minting tickets) or cancels it. Cancellation after confirmation parks
// the paid amount in the refund columns until finance processes it.
type Order struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrderRef string    `gorm:"size:40;uniqueIndex;not null" json:"order_ref"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID  uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	HoldID   uuid.UUID `gorm:"type:uuid;not null;index" json:"hold_id"`

	Quantity    int     `gorm:"not null;check:quantity > 0" json:"quantity"`
	TotalAmount float64 `gorm:"not null;default:0" json:"total_amount"`

	Status Status `gorm:"type:varchar(20);default:'PENDING';index" json:"status"`

	RefundStage  RefundStage `gorm:"type:varchar(20);default:'NONE';index" json:"refund_stage"`
	RefundAmount float64     `gorm:"not null;default:0" json:"refund_amount"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Tickets []Ticket `json:"tickets,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;"`
}

func (Order) TableName() string {
	return "orders"
}

// Ticket is one admission unit minted when its order is confirmed.
// Category and price are copied from the hold item snapshot so the
// ticket stays stable even if the event's units are edited later.
type Ticket struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	Category  string    `gorm:"size:100;not null" json:"category"`
	PricePaid float64   `gorm:"not null;default:0" json:"price_paid"`

	CheckInStatus CheckInStatus `gorm:"type:varchar(20);default:'NOT_CHECKED_IN'" json:"check_in_status"`
	CheckedInAt   *time.Time    `json:"checked_in_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// TicketScan is the read model a gate scan decides on: the ticket plus
// just enough of its order and event to classify and display the result.
type TicketScan struct {
	TicketID      uuid.UUID     `json:"ticket_id"`
	Category      string        `json:"category"`
	CheckInStatus CheckInStatus `json:"check_in_status"`
	CheckedInAt   *time.Time    `json:"checked_in_at"`
	OrderStatus   Status        `json:"order_status"`
	HolderID      uuid.UUID     `json:"holder_id"`
	EventID       uuid.UUID     `json:"event_id"`
	EventName     string        `json:"event_name"`
	EventStart    time.Time     `json:"event_start"`
}

// CreateOrderRequest opens an order: it places the capacity hold and
// records the pending purchase in one call.
type CreateOrderRequest struct {
	EventID string           `json:"event_id" binding:"required,uuid"`
	Items   []OrderItemInput `json:"items" binding:"required,min=1,dive"`
}

type OrderItemInput struct {
	Category string `json:"category" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// PaymentWebhookRequest is what the payment provider posts back after
// settlement. Authenticated by shared secret, not by JWT.
type PaymentWebhookRequest struct {
	OrderID string  `json:"order_id" binding:"required,uuid"`
	Result  string  `json:"result" binding:"required,oneof=succeeded failed"`
	Amount  float64 `json:"amount"`
}

// CheckInRequest is one scanner read: the credential payload split into
// its two halves.
type CheckInRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	Tag      string `json:"tag" binding:"required"`
}

// ScanResult is the scanner's verdict for one read
type ScanResult struct {
	Valid       bool       `json:"valid"`
	Reason      ScanReason `json:"reason,omitempty"`
	TicketID    string     `json:"ticket_id,omitempty"`
	Category    string     `json:"category,omitempty"`
	EventName   string     `json:"event_name,omitempty"`
	EventStart  *time.Time `json:"event_start,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

// OrderResponse is the API shape of an order
type OrderResponse struct {
	ID           string           `json:"id"`
	OrderRef     string           `json:"order_ref"`
	EventID      string           `json:"event_id"`
	HoldID       string           `json:"hold_id"`
	Quantity     int              `json:"quantity"`
	TotalAmount  float64          `json:"total_amount"`
	Status       string           `json:"status"`
	RefundStage  string           `json:"refund_stage"`
	RefundAmount float64          `json:"refund_amount"`
	HoldExpires  *time.Time       `json:"hold_expires_at,omitempty"`
	Tickets      []TicketResponse `json:"tickets,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type TicketResponse struct {
	ID            string  `json:"id"`
	Category      string  `json:"category"`
	PricePaid     float64 `json:"price_paid"`
	CheckInStatus string  `json:"check_in_status"`
}

func (o *Order) ToResponse() OrderResponse {
	resp := OrderResponse{
		ID:           o.ID.String(),
		OrderRef:     o.OrderRef,
		EventID:      o.EventID.String(),
		HoldID:       o.HoldID.String(),
		Quantity:     o.Quantity,
		TotalAmount:  o.TotalAmount,
		Status:       o.Status.String(),
		RefundStage:  o.RefundStage.String(),
		RefundAmount: o.RefundAmount,
		CreatedAt:    o.CreatedAt,
	}
	for _, t := range o.Tickets {
		resp.Tickets = append(resp.Tickets, TicketResponse{
			ID:            t.ID.String(),
			Category:      t.Category,
			PricePaid:     t.PricePaid,
			CheckInStatus: t.CheckInStatus.String(),
		})
	}
	return resp
}

// RefundWorkItem is one line of the finance worklist
type RefundWorkItem struct {
	OrderID     string    `json:"order_id"`
	OrderRef    string    `json:"order_ref"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	CancelledAt time.Time `json:"cancelled_at"`
}
