package users

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleOrganizer:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// User is the minimal account record the core needs for ownership and
// authorization checks. Registration and profile management live outside
// this service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"unique;not null;size:255" json:"email"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	Role      Role      `gorm:"type:varchar(20);default:'USER'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
