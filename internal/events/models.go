package events

import (
	"time"

	"tixgate/internal/capacity"

	"github.com/google/uuid"
)

// CapacityModel describes how an event's inventory is allocated
type CapacityModel string

const (
	ModelSeating      CapacityModel = "SEATING"      // one unit per seat, total = 1
	ModelZone         CapacityModel = "ZONE"         // pooled units per zone
	ModelRegistration CapacityModel = "REGISTRATION" // one bounded slot pool
	ModelUnlimited    CapacityModel = "UNLIMITED"    // one unbounded pool
)

func (m CapacityModel) IsValid() bool {
	switch m {
	case ModelSeating, ModelZone, ModelRegistration, ModelUnlimited:
		return true
	}
	return false
}

func (m CapacityModel) String() string {
	return string(m)
}

// CutoffPolicy controls when booking closes relative to the event
type CutoffPolicy string

const (
	CutoffNone               CutoffPolicy = "NONE"
	CutoffMinutesBeforeStart CutoffPolicy = "MINUTES_BEFORE_START"
	CutoffFixedTime          CutoffPolicy = "FIXED_TIME"
)

func (p CutoffPolicy) IsValid() bool {
	switch p {
	case CutoffNone, CutoffMinutesBeforeStart, CutoffFixedTime:
		return true
	}
	return false
}

func (p CutoffPolicy) String() string {
	return string(p)
}

// DefaultCancellationWindowMin is the product default: cancellation closes
// 12 hours before the event starts.
const DefaultCancellationWindowMin = 720

type Event struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Name          string        `json:"name" gorm:"not null;size:255"`
	Description   string        `json:"description" gorm:"type:text"`
	Venue         string        `json:"venue" gorm:"not null;size:255"`
	CapacityModel CapacityModel `json:"capacity_model" gorm:"type:varchar(20);not null"`
	StartTime     time.Time     `json:"start_time" gorm:"not null;index"`
	EndTime       time.Time     `json:"end_time" gorm:"not null"`

	// Booking cutoff policy
	CutoffPolicy  CutoffPolicy `json:"cutoff_policy" gorm:"type:varchar(30);default:'NONE'"`
	CutoffMinutes int          `json:"cutoff_minutes" gorm:"default:0"`
	CutoffAt      *time.Time   `json:"cutoff_at,omitempty"`

	// Cancellation policy
	Cancellable           bool `json:"cancellable" gorm:"default:true"`
	CancellationWindowMin int  `json:"cancellation_window_min" gorm:"default:720"`

	OrganizerID uuid.UUID   `json:"organizer_id" gorm:"type:uuid;not null;index"`
	Status      EventStatus `json:"status" gorm:"type:varchar(20);default:'draft'"`
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Event) TableName() string {
	return "events"
}

// BookingOpen reports whether new orders are accepted at the given time
func (e *Event) BookingOpen(now time.Time) bool {
	if !e.Status.IsBookable() {
		return false
	}
	switch e.CutoffPolicy {
	case CutoffMinutesBeforeStart:
		return now.Before(e.StartTime.Add(-time.Duration(e.CutoffMinutes) * time.Minute))
	case CutoffFixedTime:
		return e.CutoffAt == nil || now.Before(*e.CutoffAt)
	default:
		return now.Before(e.StartTime)
	}
}

// CancellationDeadline is the last instant at which cancellation is allowed
func (e *Event) CancellationDeadline() time.Time {
	window := e.CancellationWindowMin
	if window <= 0 {
		window = DefaultCancellationWindowMin
	}
	return e.StartTime.Add(-time.Duration(window) * time.Minute)
}

// CancellableAt checks both the policy flag and the time window
func (e *Event) CancellableAt(now time.Time) bool {
	return e.Cancellable && now.Before(e.CancellationDeadline())
}

// CreateEventRequest carries the event definition plus its capacity layout
type CreateEventRequest struct {
	Name          string              `json:"name" binding:"required,min=3,max=255"`
	Description   string              `json:"description" binding:"max=2000"`
	Venue         string              `json:"venue" binding:"required,min=3,max=255"`
	CapacityModel string              `json:"capacity_model" binding:"required,capacitymodel"`
	StartTime     time.Time           `json:"start_time" binding:"required"`
	EndTime       time.Time           `json:"end_time" binding:"required"`
	CutoffPolicy  string              `json:"cutoff_policy" binding:"omitempty,cutoffpolicy"`
	CutoffMinutes int                 `json:"cutoff_minutes" binding:"omitempty,min=1"`
	CutoffAt      *time.Time          `json:"cutoff_at"`
	Cancellable   *bool               `json:"cancellable"`
	WindowMin     int                 `json:"cancellation_window_min" binding:"omitempty,min=1"`
	Units         []capacity.UnitSeed `json:"units" binding:"required,min=1"`
}

type EventResponse struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Venue         string      `json:"venue"`
	CapacityModel string      `json:"capacity_model"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       time.Time   `json:"end_time"`
	CutoffPolicy  string      `json:"cutoff_policy"`
	Cancellable   bool        `json:"cancellable"`
	Status        EventStatus `json:"status"`
	OrganizerID   string      `json:"organizer_id"`
	CreatedAt     time.Time   `json:"created_at"`
}

func (e *Event) ToResponse() EventResponse {
	return EventResponse{
		ID:            e.ID.String(),
		Name:          e.Name,
		Description:   e.Description,
		Venue:         e.Venue,
		CapacityModel: e.CapacityModel.String(),
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		CutoffPolicy:  e.CutoffPolicy.String(),
		Cancellable:   e.Cancellable,
		Status:        e.Status,
		OrganizerID:   e.OrganizerID.String(),
		CreatedAt:     e.CreatedAt,
	}
}
