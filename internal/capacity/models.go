package capacity

import (
	"time"

	"github.com/google/uuid"
)

// CapacityUnit is the smallest allocatable inventory item for an event:
// a single seat (total = 1), a zone pool, or a registration pool.
// Counts mutate only through guarded ledger updates so that
// held + confirmed <= total holds under any interleaving.
type CapacityUnit struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_capacity_units_event_category,priority:1" json:"event_id"`
	Category  string    `gorm:"size:100;not null;uniqueIndex:idx_capacity_units_event_category,priority:2" json:"category"`
	Total     int       `gorm:"not null;check:total >= 0" json:"total"`
	Held      int       `gorm:"not null;default:0;check:held >= 0" json:"held"`
	Confirmed int       `gorm:"not null;default:0;check:confirmed >= 0" json:"confirmed"`
	Unbounded bool      `gorm:"default:false" json:"unbounded"`
	PriceEach float64   `gorm:"not null;default:0" json:"price_each"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CapacityUnit) TableName() string {
	return "capacity_units"
}

// Available returns the remaining sellable quantity
func (u *CapacityUnit) Available() int {
	if u.Unbounded {
		return -1
	}
	return u.Total - u.Held - u.Confirmed
}

type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldCommitted HoldStatus = "COMMITTED"
	HoldReleased  HoldStatus = "RELEASED"
	HoldExpired   HoldStatus = "EXPIRED"
)

func (s HoldStatus) IsValid() bool {
	switch s {
	case HoldActive, HoldCommitted, HoldReleased, HoldExpired:
		return true
	}
	return false
}

func (s HoldStatus) String() string {
	return string(s)
}

// CapacityHold is a time-bounded provisional reservation. Its ID doubles
// as the hold token handed back to the checkout flow. The status column is
// the gate for every lifecycle transition, so commit, explicit release and
// the expiry sweep cannot double-apply.
type CapacityHold struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"event_id"`
	Status    HoldStatus `gorm:"type:varchar(20);default:'ACTIVE';index" json:"status"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Items []HoldItem `json:"items,omitempty" gorm:"foreignKey:HoldID;constraint:OnDelete:CASCADE;"`
}

func (CapacityHold) TableName() string {
	return "capacity_holds"
}

// HoldItem records how much of one unit a hold consumes. Category and
// price are snapshotted here so ticket minting does not depend on later
// unit edits.
type HoldItem struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	HoldID    uuid.UUID `gorm:"type:uuid;index;not null" json:"hold_id"`
	UnitID    uuid.UUID `gorm:"type:uuid;index;not null" json:"unit_id"`
	Category  string    `gorm:"size:100;not null" json:"category"`
	Quantity  int       `gorm:"not null;check:quantity > 0" json:"quantity"`
	PriceEach float64   `gorm:"not null;default:0" json:"price_each"`
	CreatedAt time.Time `json:"created_at"`
}

func (HoldItem) TableName() string {
	return "capacity_hold_items"
}

// TotalQuantity sums the quantities across a hold's items
func (h *CapacityHold) TotalQuantity() int {
	total := 0
	for _, item := range h.Items {
		total += item.Quantity
	}
	return total
}

// TotalAmount sums quantity * snapshot price across a hold's items
func (h *CapacityHold) TotalAmount() float64 {
	total := 0.0
	for _, item := range h.Items {
		total += float64(item.Quantity) * item.PriceEach
	}
	return total
}

// HoldRequest is one (category, quantity) line of a hold attempt
type HoldRequest struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

// UnitSeed describes a capacity unit to create alongside an event
type UnitSeed struct {
	Category  string  `json:"category"`
	Total     int     `json:"total"`
	Unbounded bool    `json:"unbounded"`
	PriceEach float64 `json:"price_each"`
}

// UnitAvailability is the read model for checkout and scanner displays
type UnitAvailability struct {
	Category  string  `json:"category"`
	Total     int     `json:"total"`
	Held      int     `json:"held"`
	Confirmed int     `json:"confirmed"`
	Available int     `json:"available"`
	Unbounded bool    `json:"unbounded"`
	PriceEach float64 `json:"price_each"`
}
