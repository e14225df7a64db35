package documents

import (
	"time"

	"github.com/google/uuid"
)

// ApprovedAssignment is one extraction decision from an approved markup
// session. Offsets are either both set (character range) or both null
// (whole block).
type ApprovedAssignment struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID     uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	SetIdentifier string    `gorm:"column:content_set_identifier;not null;index" json:"content_set_identifier"`
	BlockID       string    `gorm:"column:block_id;not null" json:"block_id"`
	StartOffset   *int      `gorm:"column:start_offset" json:"start_offset,omitempty"`
	EndOffset     *int      `gorm:"column:end_offset" json:"end_offset,omitempty"`
	SelectedText  string    `gorm:"column:selected_text;type:text" json:"selected_text"`
	PageNumber    int       `gorm:"column:page_number;not null;default:0" json:"page_number"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ApprovedAssignment) TableName() string { return "approved_assignment" }
