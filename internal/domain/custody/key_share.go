package custody

import (
	"time"

	"github.com/google/uuid"
)

// KeyShare is the metadata record of one Shamir share. ShareData is
// populated only when the tenant profile opts into custody storage;
// production deployments keep metadata only and the share bytes belong
// to their holders.
type KeyShare struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	KeyID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"key_id"`
	ShareIndex    int        `gorm:"column:share_index;not null" json:"share_index"`
	HolderID      string     `gorm:"column:holder_id;not null" json:"holder_id"`
	Distributed   bool       `gorm:"column:distributed;not null;default:false" json:"distributed"`
	DistributedAt *time.Time `gorm:"column:distributed_at" json:"distributed_at,omitempty"`
	ShareData     []byte     `gorm:"column:share_data;type:bytea" json:"-"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (KeyShare) TableName() string { return "key_share" }
