package access

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type SecurityProfileRepo interface {
	Upsert(dbc dbctx.Context, profile *types.SecurityProfile) error
	GetByOrganizationID(dbc dbctx.Context, organizationID uuid.UUID) (*types.SecurityProfile, error)
}

type securityProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSecurityProfileRepo(db *gorm.DB, baseLog *logger.Logger) SecurityProfileRepo {
	return &securityProfileRepo{
		db:  db,
		log: baseLog.With("repo", "SecurityProfileRepo"),
	}
}

func (r *securityProfileRepo) Upsert(dbc dbctx.Context, profile *types.SecurityProfile) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if profile == nil || profile.OrganizationID == uuid.Nil {
		return nil
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"shamir_threshold",
				"shamir_total_shares",
				"storage_tier",
				"marker_width",
				"export_permitted",
				"min_retention_days",
				"authz_provider",
				"share_holder_ids",
				"persist_share_data",
				"partial_failure_policy",
				"cached_authz_ttl_seconds",
				"updated_at",
			}),
		}).
		Create(profile).Error
}

func (r *securityProfileRepo) GetByOrganizationID(dbc dbctx.Context, organizationID uuid.UUID) (*types.SecurityProfile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if organizationID == uuid.Nil {
		return nil, nil
	}
	var profile types.SecurityProfile
	err := transaction.WithContext(dbc.Ctx).
		Where("organization_id = ?", organizationID).
		Limit(1).
		Find(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == uuid.Nil {
		return nil, nil
	}
	return &profile, nil
}
