package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account holder. Users exist independently of
// organizations and are linked to them through Memberships. The email is the
// login identifier and is unique across the system.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	UserKey      string         `gorm:"uniqueIndex;not null" json:"user_key"` // opaque external identifier
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Active       bool           `gorm:"default:true" json:"active"`

	// ActiveOrganizationID points at the organization the user is currently
	// operating within. Nil until the user creates or is added to one.
	ActiveOrganizationID *uint         `json:"active_organization_id,omitempty"`
	ActiveOrganization   *Organization `gorm:"foreignKey:ActiveOrganizationID" json:"active_organization,omitempty"`

	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// BeforeCreate assigns the external user key when one was not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserKey == "" {
		u.UserKey = uuid.NewString()
	}
	return nil
}

// FullName returns the display name built from the name parts.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SplitFullName splits a full name into first and last name on the first
// space. Everything after the first space becomes the last name.
func SplitFullName(fullName string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(fullName), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
