package custody

import (
	"time"

	"github.com/google/uuid"
)

// EncryptionKey is the persisted record of one content-set key. Key
// material never appears here; HSMKeyHandle is the only reference
// across the custody boundary.
type EncryptionKey struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	SetIdentifier     string     `gorm:"column:content_set_identifier;not null;index" json:"content_set_identifier"`
	OrganizationID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	HSMKeyHandle      string     `gorm:"column:hsm_key_handle;not null" json:"-"`
	Algorithm         string     `gorm:"column:algorithm;not null" json:"algorithm"`
	ShamirThreshold   int        `gorm:"column:shamir_threshold;not null" json:"shamir_threshold"`
	ShamirTotalShares int        `gorm:"column:shamir_total_shares;not null" json:"shamir_total_shares"`
	IsActive          bool       `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	RotatedFromKeyID  *uuid.UUID `gorm:"type:uuid;column:rotated_from_key_id" json:"rotated_from_key_id,omitempty"`
	RotatedAt         *time.Time `gorm:"column:rotated_at" json:"rotated_at,omitempty"`
	DestroyedAt       *time.Time `gorm:"column:destroyed_at" json:"destroyed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (EncryptionKey) TableName() string { return "encryption_key" }
