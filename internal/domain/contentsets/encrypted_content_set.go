package contentsets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EncryptedContentSet stores one content set's envelope. CiphertextHash
// and KeyID are denormalized out of the envelope for indexed integrity
// sweeps and key resolution without decoding the blob.
type EncryptedContentSet struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID     uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uniq_content_set_document_set" json:"document_id"`
	SetIdentifier  string         `gorm:"column:content_set_identifier;not null;uniqueIndex:uniq_content_set_document_set" json:"content_set_identifier"`
	Envelope       datatypes.JSON `gorm:"column:envelope;type:jsonb;not null" json:"-"`
	CiphertextHash string         `gorm:"column:ciphertext_hash;not null" json:"ciphertext_hash"`
	KeyID          uuid.UUID      `gorm:"type:uuid;column:key_id;not null;index" json:"key_id"`
	StorageTier    string         `gorm:"column:storage_tier;not null" json:"storage_tier"`
	StorageRef     string         `gorm:"column:storage_ref" json:"storage_ref,omitempty"`
	ReplicatedAt   *time.Time     `gorm:"column:replicated_at" json:"replicated_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (EncryptedContentSet) TableName() string { return "encrypted_content_set" }
