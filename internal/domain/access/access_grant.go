package access

import (
	"time"

	"github.com/google/uuid"
)

type AccessGrant struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	DocumentID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	AccessLevelID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"access_level_id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	GrantedBy      *uuid.UUID `gorm:"type:uuid;column:granted_by" json:"granted_by,omitempty"`
	GrantedAt      time.Time  `gorm:"column:granted_at;not null;default:now()" json:"granted_at"`
	ExpiresAt      *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	RevokedAt      *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (AccessGrant) TableName() string { return "access_grant" }

// Usable reports whether the grant authorizes access at the given
// moment.
func (g *AccessGrant) Usable(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}
