package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_CLIENT     = "client"
	ROLE_THERAPIST  = "therapist"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the local profile behind an identity the auth gateway resolved.
// Credentials live with the identity provider; this row carries the role,
// status and employer linkage the booking and subsidy flows need.
// The case-sensitive email collation is set in the schema migration.
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email      string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role       string         `gorm:"type:varchar(50);default:'client';index" json:"role" validate:"oneof=client therapist admin"`
	Status     string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	EmployerID *uint          `gorm:"index" json:"employer_id,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IsTherapist reports whether the user holds the therapist role
func (u *User) IsTherapist() bool {
	return u.Role == ROLE_THERAPIST
}
