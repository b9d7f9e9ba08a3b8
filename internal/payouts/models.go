package payouts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payout is one event's settlement record. Money math uses decimal
// columns; the confirmation code is stored only as a bcrypt hash.
type Payout struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"event_id"`
	OrganizerID uuid.UUID `gorm:"type:uuid;not null;index" json:"organizer_id"`

	TotalRevenue decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_revenue"`
	Deductions   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"deductions"`
	NetPayable   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"net_payable"`

	Status          Status          `gorm:"type:varchar(20);default:'PENDING';index" json:"status"`
	SettlementStage SettlementStage `gorm:"type:varchar(20);default:'NONE'" json:"settlement_stage"`
	AvailableToOrg  bool            `gorm:"default:false" json:"available_to_org"`

	PaymentMethod        string     `gorm:"size:50" json:"payment_method,omitempty"`
	TransactionReference string     `gorm:"size:120" json:"transaction_reference,omitempty"`
	CodeHash             string     `gorm:"size:100" json:"-"`
	InitiatedBy          *uuid.UUID `gorm:"type:uuid" json:"initiated_by,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payout) TableName() string {
	return "payouts"
}

// AggregateRequest names the event to reconcile
type AggregateRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
}

// InitiateRequest records how the transfer was started
type InitiateRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required,oneof=bank_transfer upi cheque other"`
}

// ConfirmRequest carries the organizer's one-time code
type ConfirmRequest struct {
	Code                 string `json:"code" binding:"required,min=4,max=32"`
	TransactionReference string `json:"transaction_reference" binding:"omitempty,max=120"`
}

// PayoutResponse is the API shape of a payout
type PayoutResponse struct {
	ID              string     `json:"id"`
	EventID         string     `json:"event_id"`
	OrganizerID     string     `json:"organizer_id"`
	TotalRevenue    string     `json:"total_revenue"`
	Deductions      string     `json:"deductions"`
	NetPayable      string     `json:"net_payable"`
	Status          string     `json:"status"`
	SettlementStage string     `json:"settlement_stage"`
	AvailableToOrg  bool       `json:"available_to_org"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (p *Payout) ToResponse() PayoutResponse {
	return PayoutResponse{
		ID:              p.ID.String(),
		EventID:         p.EventID.String(),
		OrganizerID:     p.OrganizerID.String(),
		TotalRevenue:    p.TotalRevenue.StringFixed(2),
		Deductions:      p.Deductions.StringFixed(2),
		NetPayable:      p.NetPayable.StringFixed(2),
		Status:          p.Status.String(),
		SettlementStage: p.SettlementStage.String(),
		AvailableToOrg:  p.AvailableToOrg,
		PaymentMethod:   p.PaymentMethod,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt,
	}
}
