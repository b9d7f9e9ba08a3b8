package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEventNotFound = errors.New("event not found")

type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to EventStatus) (bool, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Event, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// UpdateStatus flips the event status only from the expected state; the
// bool reports whether the transition happened.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to EventStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Event{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Event, error) {
	var list []Event
	err := r.db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}
