package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit categories: arrangement covers structural lifecycle changes,
// accrual covers cryptographic state, anticipation covers refusals and
// integrity alarms, action covers viewer-facing operations.
const (
	CategoryArrangement  = "arrangement"
	CategoryAccrual      = "accrual"
	CategoryAnticipation = "anticipation"
	CategoryAction       = "action"
)

// AuditEvent rows are append-only; a database trigger rejects UPDATE
// and DELETE.
type AuditEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Category       string         `gorm:"column:category;not null;index" json:"category"`
	EventType      string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Description    string         `gorm:"column:description;type:text" json:"description"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid;column:organization_id;index" json:"organization_id,omitempty"`
	ActorID        *uuid.UUID     `gorm:"type:uuid;column:actor_id;index" json:"actor_id,omitempty"`
	TargetType     string         `gorm:"column:target_type;not null;index" json:"target_type"`
	TargetID       string         `gorm:"column:target_id;not null;index" json:"target_id"`
	Metadata       datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	EventHash      string         `gorm:"column:event_hash;not null" json:"event_hash"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }
