package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BaseDocument is the post-deconstruction artifact. Content holds the
// opaque marker serialization; Markers keeps the full marker metadata
// (membership, content hashes) and stays server-side.
type BaseDocument struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	Content     []byte         `gorm:"column:content;type:bytea;not null" json:"content"`
	ContentHash string         `gorm:"column:content_hash;not null" json:"content_hash"`
	Markers     datatypes.JSON `gorm:"column:markers;type:jsonb;not null" json:"-"`
	MarkerCount int            `gorm:"column:marker_count;not null;default:0" json:"marker_count"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (BaseDocument) TableName() string { return "base_document" }
