package documents

import (
	"time"

	"github.com/google/uuid"
)

const SessionStatusApproved = "approved"

type MarkupSession struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	Status     string     `gorm:"column:status;not null;index" json:"status"`
	ApprovedBy *uuid.UUID `gorm:"type:uuid;column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (MarkupSession) TableName() string { return "markup_session" }
