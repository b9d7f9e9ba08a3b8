package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tixgate/pkg/metrics"

	"github.com/google/uuid"
)

// Service is the capacity ledger contract the rest of the system talks to
type Service interface {
	SeedUnits(ctx context.Context, eventID uuid.UUID, seeds []UnitSeed) error
	Availability(ctx context.Context, eventID uuid.UUID) ([]UnitAvailability, error)

	Hold(ctx context.Context, eventID uuid.UUID, items []HoldRequest, ttl time.Duration) (*CapacityHold, error)
	GetHold(ctx context.Context, holdID uuid.UUID) (*CapacityHold, error)
	Commit(ctx context.Context, holdID uuid.UUID) error
	Release(ctx context.Context, holdID uuid.UUID) error
	ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error

	SweepExpired(ctx context.Context, batch int) (int, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

// SeedUnits creates the capacity units for a freshly created event
func (s *service) SeedUnits(ctx context.Context, eventID uuid.UUID, seeds []UnitSeed) error {
	if len(seeds) == 0 {
		return fmt.Errorf("event needs at least one capacity unit")
	}

	units := make([]CapacityUnit, 0, len(seeds))
	for _, seed := range seeds {
		if seed.Category == "" {
			return fmt.Errorf("capacity unit category must not be empty")
		}
		if !seed.Unbounded && seed.Total < 1 {
			return fmt.Errorf("category %s: total must be at least 1", seed.Category)
		}
		units = append(units, CapacityUnit{
			EventID:   eventID,
			Category:  seed.Category,
			Total:     seed.Total,
			Unbounded: seed.Unbounded,
			PriceEach: seed.PriceEach,
		})
	}

	return s.repo.SeedUnits(ctx, units)
}

func (s *service) Availability(ctx context.Context, eventID uuid.UUID) ([]UnitAvailability, error) {
	units, err := s.repo.GetUnitsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load capacity units: %w", err)
	}

	availability := make([]UnitAvailability, 0, len(units))
	for _, unit := range units {
		availability = append(availability, UnitAvailability{
			Category:  unit.Category,
			Total:     unit.Total,
			Held:      unit.Held,
			Confirmed: unit.Confirmed,
			Available: unit.Available(),
			Unbounded: unit.Unbounded,
			PriceEach: unit.PriceEach,
		})
	}

	return availability, nil
}

// Hold places a time-bounded reservation across one or more units. The
// whole request succeeds or fails together; a sold-out unit surfaces as
// ErrCapacityExceeded, everything else is a store error the caller may
// retry.
func (s *service) Hold(ctx context.Context, eventID uuid.UUID, items []HoldRequest, ttl time.Duration) (*CapacityHold, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("hold needs at least one item: %w", ErrInvalidQuantity)
	}

	categories := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("category %s: %w", item.Category, ErrInvalidQuantity)
		}
		categories = append(categories, item.Category)
	}

	units, err := s.repo.GetUnitsByCategories(ctx, eventID, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve capacity units: %w", err)
	}
	unitsByCategory := make(map[string]CapacityUnit, len(units))
	for _, unit := range units {
		unitsByCategory[unit.Category] = unit
	}

	hold := &CapacityHold{
		EventID:   eventID,
		Status:    HoldActive,
		ExpiresAt: s.now().Add(ttl),
	}
	for _, item := range items {
		unit, ok := unitsByCategory[item.Category]
		if !ok {
			return nil, fmt.Errorf("category %s: %w", item.Category, ErrUnknownCategory)
		}
		// Individual seats are held one at a time
		if !unit.Unbounded && unit.Total == 1 && item.Quantity != 1 {
			return nil, fmt.Errorf("seat %s: %w", item.Category, ErrInvalidQuantity)
		}
		hold.Items = append(hold.Items, HoldItem{
			UnitID:    unit.ID,
			Category:  unit.Category,
			Quantity:  item.Quantity,
			PriceEach: unit.PriceEach,
		})
	}

	if err := s.repo.CreateHold(ctx, hold); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			metrics.HoldRefused()
			return nil, err
		}
		return nil, fmt.Errorf("failed to place hold: %w", err)
	}

	metrics.HoldGranted()
	return hold, nil
}

func (s *service) GetHold(ctx context.Context, holdID uuid.UUID) (*CapacityHold, error) {
	return s.repo.GetHold(ctx, holdID)
}

func (s *service) Commit(ctx context.Context, holdID uuid.UUID) error {
	return s.repo.CommitHold(ctx, holdID, s.now())
}

func (s *service) Release(ctx context.Context, holdID uuid.UUID) error {
	return s.repo.ReleaseHold(ctx, holdID)
}

func (s *service) ReleaseCommitted(ctx context.Context, holdID uuid.UUID) error {
	return s.repo.ReleaseCommitted(ctx, holdID)
}

func (s *service) SweepExpired(ctx context.Context, batch int) (int, error) {
	swept, err := s.repo.SweepExpired(ctx, s.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("expiry sweep failed: %w", err)
	}
	if swept > 0 {
		metrics.HoldsSwept(swept)
	}
	return swept, nil
}
