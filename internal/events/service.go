package events

import (
	"context"
	"fmt"
	"time"

	"tixgate/internal/capacity"

	"github.com/google/uuid"
)

// Service interface defines the contract for event business logic
type Service interface {
	CreateEvent(ctx context.Context, organizerID uuid.UUID, req CreateEventRequest) (*Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	PublishEvent(ctx context.Context, id uuid.UUID, organizerID uuid.UUID) error
	ListOrganizerEvents(ctx context.Context, organizerID uuid.UUID) ([]Event, error)
	Availability(ctx context.Context, eventID uuid.UUID) ([]capacity.UnitAvailability, error)
}

// CapacityService is the slice of the ledger the event module needs
type CapacityService interface {
	SeedUnits(ctx context.Context, eventID uuid.UUID, seeds []capacity.UnitSeed) error
	Availability(ctx context.Context, eventID uuid.UUID) ([]capacity.UnitAvailability, error)
}

type service struct {
	repo     Repository
	capacity CapacityService
}

func NewService(repo Repository, capacitySvc CapacityService) Service {
	return &service{
		repo:     repo,
		capacity: capacitySvc,
	}
}

// CreateEvent validates the definition, persists the event as a draft and
// seeds its capacity units.
func (s *service) CreateEvent(ctx context.Context, organizerID uuid.UUID, req CreateEventRequest) (*Event, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("event end must be after its start")
	}
	if req.StartTime.Before(time.Now()) {
		return nil, fmt.Errorf("event start must be in the future")
	}

	model := CapacityModel(req.CapacityModel)
	if err := validateUnitsForModel(model, req.Units); err != nil {
		return nil, err
	}

	cutoff := CutoffPolicy(req.CutoffPolicy)
	if req.CutoffPolicy == "" {
		cutoff = CutoffNone
	}
	if cutoff == CutoffMinutesBeforeStart && req.CutoffMinutes < 1 {
		return nil, fmt.Errorf("cutoff policy %s requires cutoff_minutes", cutoff)
	}
	if cutoff == CutoffFixedTime {
		if req.CutoffAt == nil {
			return nil, fmt.Errorf("cutoff policy %s requires cutoff_at", cutoff)
		}
		if req.CutoffAt.After(req.StartTime) {
			return nil, fmt.Errorf("booking cutoff must not be after the event start")
		}
	}

	cancellable := true
	if req.Cancellable != nil {
		cancellable = *req.Cancellable
	}
	window := req.WindowMin
	if window <= 0 {
		window = DefaultCancellationWindowMin
	}

	event := &Event{
		Name:                  req.Name,
		Description:           req.Description,
		Venue:                 req.Venue,
		CapacityModel:         model,
		StartTime:             req.StartTime,
		EndTime:               req.EndTime,
		CutoffPolicy:          cutoff,
		CutoffMinutes:         req.CutoffMinutes,
		CutoffAt:              req.CutoffAt,
		Cancellable:           cancellable,
		CancellationWindowMin: window,
		OrganizerID:           organizerID,
		Status:                StatusDraft,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	if err := s.capacity.SeedUnits(ctx, event.ID, req.Units); err != nil {
		return nil, fmt.Errorf("failed to seed capacity units: %w", err)
	}

	return event, nil
}

// validateUnitsForModel keeps the capacity layout consistent with the
// declared allocation shape.
func validateUnitsForModel(model CapacityModel, units []capacity.UnitSeed) error {
	switch model {
	case ModelSeating:
		for _, u := range units {
			if u.Unbounded || u.Total != 1 {
				return fmt.Errorf("seating events need one unit per seat with total 1 (got %s)", u.Category)
			}
		}
	case ModelZone:
		for _, u := range units {
			if u.Unbounded {
				return fmt.Errorf("zone %s must have a bounded total", u.Category)
			}
		}
	case ModelRegistration:
		if len(units) != 1 || units[0].Unbounded {
			return fmt.Errorf("registration events need exactly one bounded slot pool")
		}
	case ModelUnlimited:
		if len(units) != 1 || !units[0].Unbounded {
			return fmt.Errorf("unlimited events need exactly one unbounded pool")
		}
	default:
		return fmt.Errorf("invalid capacity model: %s", model)
	}
	return nil
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

// PublishEvent opens the event for booking
func (s *service) PublishEvent(ctx context.Context, id uuid.UUID, organizerID uuid.UUID) error {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if event.OrganizerID != organizerID {
		return fmt.Errorf("unauthorized: event does not belong to organizer")
	}

	moved, err := s.repo.UpdateStatus(ctx, id, StatusDraft, StatusPublished)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if !moved {
		return fmt.Errorf("event is not in draft state")
	}
	return nil
}

func (s *service) ListOrganizerEvents(ctx context.Context, organizerID uuid.UUID) ([]Event, error) {
	return s.repo.ListByOrganizer(ctx, organizerID)
}

func (s *service) Availability(ctx context.Context, eventID uuid.UUID) ([]capacity.UnitAvailability, error) {
	if _, err := s.repo.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.capacity.Availability(ctx, eventID)
}
