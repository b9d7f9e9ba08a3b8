package database

import (
	"tixgate/internal/capacity"
	"tixgate/internal/events"
	"tixgate/internal/orders"
	"tixgate/internal/payouts"
	"tixgate/internal/users"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&events.Event{},
		&capacity.CapacityUnit{},
		&capacity.CapacityHold{},
		&capacity.HoldItem{},
		&orders.Order{},
		&orders.Ticket{},
		&payouts.Payout{},
	)
}
