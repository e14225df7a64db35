package views

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReconstructionEvent is the append-only record of one reconstruction
// attempt, successful or refused.
type ReconstructionEvent struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	ViewerID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"viewer_id"`
	AccessLevelID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"access_level_id"`
	OrganizationID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	ContentSetsUsed     datatypes.JSON `gorm:"column:content_sets_used;type:jsonb" json:"content_sets_used"`
	ContentSetsRedacted datatypes.JSON `gorm:"column:content_sets_redacted;type:jsonb" json:"content_sets_redacted"`
	MarkerWidth         int            `gorm:"column:marker_width;not null;default:3" json:"marker_width"`
	ReconstructionHash  string         `gorm:"column:reconstruction_hash;not null" json:"reconstruction_hash"`
	IntegrityAllPassed  bool           `gorm:"column:integrity_all_passed;not null;default:false" json:"integrity_all_passed"`
	AnchorTxID          string         `gorm:"column:anchor_tx_id" json:"anchor_tx_id,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ReconstructionEvent) TableName() string { return "reconstruction_event" }
