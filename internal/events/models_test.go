package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tixgate/internal/capacity"
)

func publishedEvent(start time.Time) *Event {
	return &Event{
		Name:                  "Riverside Open Air",
		Status:                StatusPublished,
		StartTime:             start,
		EndTime:               start.Add(3 * time.Hour),
		Cancellable:           true,
		CancellationWindowMin: DefaultCancellationWindowMin,
	}
}

func TestBookingOpenDefaultPolicy(t *testing.T) {
	start := time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	event := publishedEvent(start)

	assert.True(t, event.BookingOpen(start.Add(-time.Hour)))
	assert.False(t, event.BookingOpen(start), "bookings close at start by default")
	assert.False(t, event.BookingOpen(start.Add(time.Minute)))
}

func TestBookingOpenRequiresPublishedStatus(t *testing.T) {
	start := time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	event := publishedEvent(start)
	event.Status = StatusDraft

	assert.False(t, event.BookingOpen(start.Add(-24*time.Hour)))
}

func TestBookingOpenMinutesBeforeStart(t *testing.T) {
	start := time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	event := publishedEvent(start)
	event.CutoffPolicy = CutoffMinutesBeforeStart
	event.CutoffMinutes = 60

	assert.True(t, event.BookingOpen(start.Add(-61*time.Minute)))
	assert.False(t, event.BookingOpen(start.Add(-60*time.Minute)))
	assert.False(t, event.BookingOpen(start.Add(-30*time.Minute)))
}

func TestBookingOpenFixedCutoff(t *testing.T) {
	start := time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	cutoff := start.Add(-6 * time.Hour)
	event := publishedEvent(start)
	event.CutoffPolicy = CutoffFixedTime
	event.CutoffAt = &cutoff

	assert.True(t, event.BookingOpen(cutoff.Add(-time.Minute)))
	assert.False(t, event.BookingOpen(cutoff))
}

func TestCancellableAtWindow(t *testing.T) {
	start := time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC)
	event := publishedEvent(start)

	// Default window is 12 hours before start
	assert.True(t, event.CancellableAt(start.Add(-13*time.Hour)))
	assert.False(t, event.CancellableAt(start.Add(-12*time.Hour)))
	assert.False(t, event.CancellableAt(start.Add(-11*time.Hour)))

	event.Cancellable = false
	assert.False(t, event.CancellableAt(start.Add(-13*time.Hour)))
}

func TestValidateUnitsForModel(t *testing.T) {
	cases := []struct {
		name    string
		model   CapacityModel
		units   []capacity.UnitSeed
		wantErr bool
	}{
		{
			name:  "seating with per-seat units",
			model: ModelSeating,
			units: []capacity.UnitSeed{
				{Category: "A-1", Total: 1, PriceEach: 80},
				{Category: "A-2", Total: 1, PriceEach: 80},
			},
		},
		{
			name:    "seating with pooled unit",
			model:   ModelSeating,
			units:   []capacity.UnitSeed{{Category: "A", Total: 40}},
			wantErr: true,
		},
		{
			name:  "zones with bounded totals",
			model: ModelZone,
			units: []capacity.UnitSeed{
				{Category: "GA", Total: 500, PriceEach: 40},
				{Category: "VIP", Total: 50, PriceEach: 150},
			},
		},
		{
			name:    "zone with unbounded total",
			model:   ModelZone,
			units:   []capacity.UnitSeed{{Category: "GA", Unbounded: true}},
			wantErr: true,
		},
		{
			name:  "registration single pool",
			model: ModelRegistration,
			units: []capacity.UnitSeed{{Category: "SLOT", Total: 200}},
		},
		{
			name:  "registration multiple pools",
			model: ModelRegistration,
			units: []capacity.UnitSeed{
				{Category: "SLOT", Total: 200},
				{Category: "EXTRA", Total: 50},
			},
			wantErr: true,
		},
		{
			name:  "unlimited single unbounded pool",
			model: ModelUnlimited,
			units: []capacity.UnitSeed{{Category: "RSVP", Unbounded: true}},
		},
		{
			name:    "unlimited with bounded pool",
			model:   ModelUnlimited,
			units:   []capacity.UnitSeed{{Category: "RSVP", Total: 100}},
			wantErr: true,
		},
		{
			name:    "unknown model",
			model:   CapacityModel("STADIUM"),
			units:   []capacity.UnitSeed{{Category: "GA", Total: 10}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateUnitsForModel(tc.model, tc.units)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
