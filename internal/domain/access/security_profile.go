package access

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TierOne   = "tier_1"
	TierTwo   = "tier_2"
	TierThree = "tier_3"

	PolicyProceed = "proceed"
	PolicyHalt    = "halt"

	ProviderConventional = "conventional"
	ProviderComposed     = "composed_proof"

	DefaultMarkerWidth = 3
	MinMarkerWidth     = 3
	MaxMarkerWidth     = 10
)

// SecurityProfile is the per-tenant deployment contract: Shamir
// parameters, storage tier, redaction width, authorization provider,
// and share-custody policy.
type SecurityProfile struct {
	ID                    uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"organization_id"`
	ShamirThreshold       int            `gorm:"column:shamir_threshold;not null;default:2" json:"shamir_threshold"`
	ShamirTotalShares     int            `gorm:"column:shamir_total_shares;not null;default:3" json:"shamir_total_shares"`
	StorageTier           string         `gorm:"column:storage_tier;not null;default:'tier_1'" json:"storage_tier"`
	MarkerWidth           int            `gorm:"column:marker_width;not null;default:3" json:"marker_width"`
	ExportPermitted       bool           `gorm:"column:export_permitted;not null;default:false" json:"export_permitted"`
	MinRetentionDays      int            `gorm:"column:min_retention_days;not null;default:0" json:"min_retention_days"`
	AuthzProvider         string         `gorm:"column:authz_provider;not null;default:'conventional'" json:"authz_provider"`
	ShareHolderIDs        datatypes.JSON `gorm:"column:share_holder_ids;type:jsonb" json:"share_holder_ids"`
	PersistShareData      bool           `gorm:"column:persist_share_data;not null;default:false" json:"persist_share_data"`
	PartialFailurePolicy  string         `gorm:"column:partial_failure_policy" json:"partial_failure_policy,omitempty"`
	CachedAuthzTTLSeconds int            `gorm:"column:cached_authz_ttl_seconds;not null;default:300" json:"cached_authz_ttl_seconds"`
	CreatedAt             time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (SecurityProfile) TableName() string { return "security_profile" }

// HolderIDs decodes the configured share-holder list. Holder
// identifiers are opaque to the engine and recorded as received.
func (p *SecurityProfile) HolderIDs() []string {
	if len(p.ShareHolderIDs) == 0 {
		return nil
	}
	var holders []string
	if err := json.Unmarshal(p.ShareHolderIDs, &holders); err != nil {
		return nil
	}
	return holders
}

// EffectiveMarkerWidth clamps the configured width into [3, 10].
func (p *SecurityProfile) EffectiveMarkerWidth() int {
	w := p.MarkerWidth
	if w < MinMarkerWidth || w > MaxMarkerWidth {
		return DefaultMarkerWidth
	}
	return w
}

// EffectivePartialFailurePolicy resolves the per-set integrity failure
// policy, defaulting by tier: tier_1 proceeds with the failed sets
// redacted, higher tiers halt.
func (p *SecurityProfile) EffectivePartialFailurePolicy() string {
	switch p.PartialFailurePolicy {
	case PolicyProceed, PolicyHalt:
		return p.PartialFailurePolicy
	}
	if p.StorageTier == TierOne {
		return PolicyProceed
	}
	return PolicyHalt
}
