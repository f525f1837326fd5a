package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role represents a user's role within an organization
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleMember:
		return true
	}
	return false
}

// Display returns the human-readable role name.
func (r Role) Display() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleManager:
		return "Manager"
	case RoleMember:
		return "Member"
	}
	return string(r)
}

// Membership represents the many-to-many relationship between users and
// organizations. A user holds at most one membership per organization,
// carrying their role and an activity flag.
type Membership struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	Key            string         `gorm:"uniqueIndex;not null" json:"key"` // opaque external identifier
	OrganizationID uint           `gorm:"not null;uniqueIndex:idx_org_user" json:"organization_id"`
	UserID         uint           `gorm:"not null;uniqueIndex:idx_org_user" json:"user_id"`
	Role           Role           `gorm:"type:varchar(20);default:'member'" json:"role"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`

	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"organization,omitempty"`
	User         User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// BeforeCreate assigns the external membership key when one was not provided.
func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.Key == "" {
		m.Key = uuid.NewString()
	}
	return nil
}
