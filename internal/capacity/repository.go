package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Unit management
	SeedUnits(ctx context.Context, units []CapacityUnit) error
	GetUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]CapacityUnit, error)
	GetUnitsByCategories(ctx context.Context, eventID uuid.UUID, categories []string) ([]CapacityUnit, error)

	// Hold lifecycle
	CreateHold(ctx context.Context, hold *CapacityHold) error
	GetHold(ctx context.Context, holdID uuid.UUID) (*CapacityHold, error)
	CommitHold(ctx context.Context, holdID uuid.UUID, now time.Time) error
	ReleaseHold(ctx context.Context, holdID uuid.UUID) error
	ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error

	// Expiry sweep
	SweepExpired(ctx context.Context, now time.Time, batch int) (int, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SeedUnits(ctx context.Context, units []CapacityUnit) error {
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *repository) GetUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]CapacityUnit, error) {
	var units []CapacityUnit
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("category ASC").
		Find(&units).Error
	return units, err
}

func (r *repository) GetUnitsByCategories(ctx context.Context, eventID uuid.UUID, categories []string) ([]CapacityUnit, error) {
	var units []CapacityUnit
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND category IN ?", eventID, categories).
		Find(&units).Error
	return units, err
}

// CreateHold persists the hold and increments held on every unit it
// touches. Each increment is a single guarded UPDATE so two concurrent
// holds racing for the last units cannot both pass: the check and the
// increment are one statement. Any refused unit rolls the whole hold back.
func (r *repository) CreateHold(ctx context.Context, hold *CapacityHold) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(hold).Error; err != nil {
			return fmt.Errorf("failed to create hold: %w", err)
		}

		for _, item := range hold.Items {
			res := tx.Model(&CapacityUnit{}).
				Where("id = ? AND (unbounded OR total - held - confirmed >= ?)", item.UnitID, item.Quantity).
				UpdateColumn("held", gorm.Expr("held + ?", item.Quantity))
			if res.Error != nil {
				return fmt.Errorf("failed to increment held for unit %s: %w", item.UnitID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("category %s: %w", item.Category, ErrCapacityExceeded)
			}
		}

		return nil
	})
}

func (r *repository) GetHold(ctx context.Context, holdID uuid.UUID) (*CapacityHold, error) {
	var hold CapacityHold
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", holdID).
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return &hold, nil
}

// CommitHold moves a hold's quantities from held to confirmed. The status
// flip is the gate: only one caller can take ACTIVE -> COMMITTED, and an
// expired hold never commits.
func (r *repository) CommitHold(ctx context.Context, holdID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CapacityHold{}).
			Where("id = ? AND status = ? AND expires_at > ?", holdID, HoldActive, now).
			Updates(map[string]interface{}{"status": HoldCommitted, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to commit hold: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return r.classifyHoldFailure(tx, holdID, now)
		}

		var items []HoldItem
		if err := tx.Where("hold_id = ?", holdID).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load hold items: %w", err)
		}
		for _, item := range items {
			err := tx.Model(&CapacityUnit{}).
				Where("id = ?", item.UnitID).
				UpdateColumns(map[string]interface{}{
					"held":      gorm.Expr("held - ?", item.Quantity),
					"confirmed": gorm.Expr("confirmed + ?", item.Quantity),
				}).Error
			if err != nil {
				return fmt.Errorf("failed to confirm unit %s: %w", item.UnitID, err)
			}
		}

		return nil
	})
}

// classifyHoldFailure turns a refused status flip into the right sentinel
func (r *repository) classifyHoldFailure(tx *gorm.DB, holdID uuid.UUID, now time.Time) error {
	var hold CapacityHold
	if err := tx.Where("id = ?", holdID).First(&hold).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrHoldNotFound
		}
		return err
	}
	if hold.Status == HoldActive && !hold.ExpiresAt.After(now) {
		return ErrHoldExpired
	}
	if hold.Status == HoldExpired {
		return ErrHoldExpired
	}
	return ErrHoldNotActive
}

// ReleaseHold returns an uncommitted hold's quantities to the pool
func (r *repository) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CapacityHold{}).
			Where("id = ? AND status = ?", holdID, HoldActive).
			Update("status", HoldReleased)
		if res.Error != nil {
			return fmt.Errorf("failed to release hold: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var hold CapacityHold
			if err := tx.Where("id = ?", holdID).First(&hold).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrHoldNotFound
				}
				return err
			}
			return ErrHoldNotActive
		}

		return r.decrementHeld(tx, holdID)
	})
}

// ReleaseCommitted returns a committed hold's quantities to the pool
// (post-purchase cancellation). The COMMITTED -> RELEASED gate makes a
// repeated cancellation a no-op at the ledger.
func (r *repository) ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CapacityHold{}).
			Where("id = ? AND status = ?", holdID, HoldCommitted).
			Update("status", HoldReleased)
		if res.Error != nil {
			return fmt.Errorf("failed to release committed hold: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrHoldNotCommitted
		}

		var items []HoldItem
		if err := tx.Where("hold_id = ?", holdID).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load hold items: %w", err)
		}
		for _, item := range items {
			res := tx.Model(&CapacityUnit{}).
				Where("id = ? AND confirmed >= ?", item.UnitID, item.Quantity).
				UpdateColumn("confirmed", gorm.Expr("confirmed - ?", item.Quantity))
			if res.Error != nil {
				return fmt.Errorf("failed to decrement confirmed for unit %s: %w", item.UnitID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("ledger inconsistency releasing unit %s", item.UnitID)
			}
		}

		return nil
	})
}

// SweepExpired reclaims expired, uncommitted holds. SKIP LOCKED plus the
// ACTIVE -> EXPIRED gate keeps concurrent sweep workers from releasing
// the same hold twice.
func (r *repository) SweepExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	swept := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holds []CapacityHold
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND expires_at <= ?", HoldActive, now).
			Order("expires_at ASC").
			Limit(batch).
			Find(&holds).Error
		if err != nil {
			return fmt.Errorf("failed to select expired holds: %w", err)
		}

		for _, hold := range holds {
			res := tx.Model(&CapacityHold{}).
				Where("id = ? AND status = ?", hold.ID, HoldActive).
				Update("status", HoldExpired)
			if res.Error != nil {
				return fmt.Errorf("failed to expire hold %s: %w", hold.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := r.decrementHeld(tx, hold.ID); err != nil {
				return err
			}
			swept++
		}

		return nil
	})
	return swept, err
}

func (r *repository) decrementHeld(tx *gorm.DB, holdID uuid.UUID) error {
	var items []HoldItem
	if err := tx.Where("hold_id = ?", holdID).Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load hold items: %w", err)
	}
	for _, item := range items {
		err := tx.Model(&CapacityUnit{}).
			Where("id = ?", item.UnitID).
			UpdateColumn("held", gorm.Expr("held - ?", item.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to decrement held for unit %s: %w", item.UnitID, err)
		}
	}
	return nil
}
