package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AnchorStatusPending   = "pending"
	AnchorStatusSubmitted = "submitted"
	AnchorStatusFailed    = "failed"
)

// AnchorSubmission queues one anchor-sink transaction. Submissions that
// fail stay pending and are retried by the anchor worker; a submission
// that exhausts its attempts is marked failed for operator attention.
type AnchorSubmission struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TransactionID   string         `gorm:"column:transaction_id;not null;uniqueIndex" json:"transaction_id"`
	TransactionType string         `gorm:"column:transaction_type;not null;index" json:"transaction_type"`
	Payload         datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status          string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Attempts        int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError       string         `gorm:"column:last_error" json:"last_error,omitempty"`
	ForwardTxID     string         `gorm:"column:forward_tx_id" json:"forward_tx_id,omitempty"`
	ExternalTxID    string         `gorm:"column:external_tx_id" json:"external_tx_id,omitempty"`
	LockedAt        *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	SubmittedAt     *time.Time     `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnchorSubmission) TableName() string { return "anchor_submission" }
