package access

import (
	"time"

	"github.com/google/uuid"
)

// AccessLevel is a non-hierarchical named set of content-set
// identifiers within an organization.
type AccessLevel struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	IsActive       bool      `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AccessLevel) TableName() string { return "access_level" }

type AccessLevelContentSet struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AccessLevelID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uniq_access_level_set" json:"access_level_id"`
	SetIdentifier string    `gorm:"column:content_set_identifier;not null;uniqueIndex:uniq_access_level_set" json:"content_set_identifier"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (AccessLevelContentSet) TableName() string { return "access_level_content_set" }
