package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization represents a tenant. Every organization is created by an
// existing user, who becomes its owner through an auto-created Membership.
type Organization struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Key          string         `gorm:"uniqueIndex;not null" json:"key"` // opaque external identifier
	Name         string         `gorm:"not null" json:"name"`
	ContactEmail string         `json:"contact_email,omitempty"`
	TaxID        string         `json:"tax_id,omitempty"` // company/person registration number (e.g. CNPJ/CPF)
	Active       bool           `gorm:"default:true" json:"active"`

	Members []Membership `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
}

// BeforeCreate assigns the external organization key when one was not provided.
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.Key == "" {
		o.Key = uuid.NewString()
	}
	return nil
}
