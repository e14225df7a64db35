package documents

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	Title             string     `gorm:"column:title;not null" json:"title"`
	Status            string     `gorm:"column:status;not null;index" json:"status"`
	PreviousVersionID *uuid.UUID `gorm:"type:uuid;column:previous_version_id" json:"previous_version_id,omitempty"`
	LegalHold         bool       `gorm:"column:legal_hold;not null;default:false" json:"legal_hold"`
	RetentionUntil    *time.Time `gorm:"column:retention_until" json:"retention_until,omitempty"`
	DestroyedAt       *time.Time `gorm:"column:destroyed_at" json:"destroyed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "document" }
