package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tixgate/internal/orders"
)

// Repository persists payouts and runs the revenue aggregation query.
// Handshake transitions are status-guarded updates, same discipline as
// the order lifecycle.
type Repository interface {
	// SumConfirmedRevenue totals the paid amounts of an event's
	// CONFIRMED orders. Cancelled orders drop out by status.
	SumConfirmedRevenue(ctx context.Context, eventID uuid.UUID) (decimal.Decimal, error)

	// UpsertAggregate writes the computed figures, creating the payout
	// on first aggregation. A PAID payout is never rewritten.
	UpsertAggregate(ctx context.Context, payout *Payout) (*Payout, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)

	// ReleaseReceipt exposes the payout to the organizer.
	ReleaseReceipt(ctx context.Context, id uuid.UUID) (bool, error)

	// Initiate moves NONE -> INITIATED and stores the code hash.
	Initiate(ctx context.Context, id uuid.UUID, method string, adminID uuid.UUID, codeHash string) (bool, error)

	// ConfirmPaid moves INITIATED -> PAID.
	ConfirmPaid(ctx context.Context, id uuid.UUID, txRef string, now time.Time) (bool, error)

	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Payout, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SumConfirmedRevenue(ctx context.Context, eventID uuid.UUID) (decimal.Decimal, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&orders.Order{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("event_id = ? AND status = ?", eventID, orders.StatusConfirmed).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum confirmed revenue: %w", err)
	}
	return decimal.NewFromFloat(total), nil
}

func (r *repository) UpsertAggregate(ctx context.Context, payout *Payout) (*Payout, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Payout
		err := tx.Where("event_id = ?", payout.EventID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(payout).Error
		}
		if err != nil {
			return err
		}

		if existing.Status == StatusPaid {
			return ErrPayoutAlreadyPaid
		}

		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"total_revenue": payout.TotalRevenue,
			"deductions":    payout.Deductions,
			"net_payable":   payout.NetPayable,
		}).Error; err != nil {
			return err
		}

		payout.ID = existing.ID
		payout.Status = existing.Status
		payout.SettlementStage = existing.SettlementStage
		payout.AvailableToOrg = existing.AvailableToOrg
		payout.CreatedAt = existing.CreatedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPayoutAlreadyPaid) {
			return nil, ErrPayoutAlreadyPaid
		}
		return nil, fmt.Errorf("failed to upsert payout: %w", err)
	}
	return payout, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payout, error) {
	var payout Payout
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &payout, nil
}

func (r *repository) ReleaseReceipt(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("available_to_org", true)
	if result.Error != nil {
		return false, fmt.Errorf("failed to release receipt: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Initiate(ctx context.Context, id uuid.UUID, method string, adminID uuid.UUID, codeHash string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ? AND settlement_stage = ?", id, StatusPending, StageNone).
		Updates(map[string]interface{}{
			"settlement_stage": StageInitiated,
			"payment_method":   method,
			"code_hash":        codeHash,
			"initiated_by":     adminID,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to initiate payout: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ConfirmPaid(ctx context.Context, id uuid.UUID, txRef string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":           StatusPaid,
		"settlement_stage": StagePaid,
		"paid_at":          now,
	}
	if txRef != "" {
		updates["transaction_reference"] = txRef
	}

	result := r.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ? AND settlement_stage = ?", id, StatusPending, StageInitiated).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to confirm payout: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Payout, error) {
	var payouts []Payout
	err := r.db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Find(&payouts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}
