package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists orders and tickets. All lifecycle writes are
// conditional on the current status so concurrent webhooks, cancels and
// scans resolve to exactly one winner at the database.
type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// ConfirmOrder flips PENDING -> CONFIRMED and mints the tickets in
	// one transaction. Returns false when the order was not pending.
	ConfirmOrder(ctx context.Context, id uuid.UUID, tickets []Ticket) (bool, error)

	// CancelPending flips PENDING -> CANCELLED. refundDue is non-zero
	// when money was captured for a hold that no longer exists.
	CancelPending(ctx context.Context, id uuid.UUID, refundDue float64, now time.Time) (bool, error)

	// CancelConfirmed flips CONFIRMED -> CANCELLED and records the
	// refund as DUE. Returns false when the order was not confirmed.
	CancelConfirmed(ctx context.Context, id uuid.UUID, refund float64, now time.Time) (bool, error)

	// MarkRefundProcessed flips the refund stage DUE -> PROCESSED.
	MarkRefundProcessed(ctx context.Context, id uuid.UUID) (bool, error)
	ListRefundsDue(ctx context.Context) ([]Order, error)

	GetTicketScan(ctx context.Context, ticketID uuid.UUID) (*TicketScan, error)
	GetTicketWithOrder(ctx context.Context, ticketID uuid.UUID) (*Ticket, *Order, error)

	// CheckInTicket flips NOT_CHECKED_IN -> CHECKED_IN, gated on the
	// owning order still being CONFIRMED in the same statement. Returns
	// false when the ticket was already used or the order left CONFIRMED.
	CheckInTicket(ctx context.Context, ticketID uuid.UUID, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *repository) ConfirmOrder(ctx context.Context, id uuid.UUID, tickets []Ticket) (bool, error) {
	confirmed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Order{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Update("status", StatusConfirmed)
		if result.Error != nil {
			return fmt.Errorf("failed to confirm order: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if len(tickets) > 0 {
			if err := tx.Create(&tickets).Error; err != nil {
				return fmt.Errorf("failed to mint tickets: %w", err)
			}
		}

		confirmed = true
		return nil
	})
	return confirmed, err
}

func (r *repository) CancelPending(ctx context.Context, id uuid.UUID, refundDue float64, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       StatusCancelled,
		"cancelled_at": now,
	}
	if refundDue > 0 {
		updates["refund_stage"] = RefundDue
		updates["refund_amount"] = refundDue
	}

	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to cancel pending order: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CancelConfirmed(ctx context.Context, id uuid.UUID, refund float64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, StatusConfirmed).
		Updates(map[string]interface{}{
			"status":        StatusCancelled,
			"refund_stage":  RefundDue,
			"refund_amount": refund,
			"cancelled_at":  now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to cancel order: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkRefundProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND refund_stage = ?", id, RefundDue).
		Update("refund_stage", RefundProcessed)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark refund processed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListRefundsDue(ctx context.Context) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("refund_stage = ?", RefundDue).
		Order("cancelled_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds due: %w", err)
	}
	return orders, nil
}

func (r *repository) GetTicketScan(ctx context.Context, ticketID uuid.UUID) (*TicketScan, error) {
	var scan TicketScan
	err := r.db.WithContext(ctx).
		Table("tickets").
		Select(`tickets.id AS ticket_id,
			tickets.category,
			tickets.check_in_status,
			tickets.checked_in_at,
			orders.status AS order_status,
			orders.user_id AS holder_id,
			events.id AS event_id,
			events.name AS event_name,
			events.start_time AS event_start`).
		Joins("JOIN orders ON orders.id = tickets.order_id").
		Joins("JOIN events ON events.id = tickets.event_id").
		Where("tickets.id = ?", ticketID).
		Take(&scan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to load ticket for scan: %w", err)
	}
	return &scan, nil
}

func (r *repository) GetTicketWithOrder(ctx context.Context, ticketID uuid.UUID) (*Ticket, *Order, error) {
	var ticket Ticket
	err := r.db.WithContext(ctx).Where("id = ?", ticketID).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTicketNotFound
		}
		return nil, nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	var order Order
	err = r.db.WithContext(ctx).Where("id = ?", ticket.OrderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrOrderNotFound
		}
		return nil, nil, fmt.Errorf("failed to get ticket order: %w", err)
	}

	return &ticket, &order, nil
}

func (r *repository) CheckInTicket(ctx context.Context, ticketID uuid.UUID, now time.Time) (bool, error) {
	confirmedOwner := r.db.Model(&Order{}).
		Select("1").
		Where("orders.id = tickets.order_id AND orders.status = ?", StatusConfirmed)

	result := r.db.WithContext(ctx).Model(&Ticket{}).
		Where("id = ? AND check_in_status = ? AND EXISTS (?)", ticketID, NotCheckedIn, confirmedOwner).
		Updates(map[string]interface{}{
			"check_in_status": CheckedIn,
			"checked_in_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to check in ticket: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
