package access

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type AccessGrantRepo interface {
	Create(dbc dbctx.Context, grants []*types.AccessGrant) ([]*types.AccessGrant, error)
	GetForDecision(dbc dbctx.Context, userID, documentID, accessLevelID uuid.UUID) ([]*types.AccessGrant, error)
	Revoke(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type accessGrantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessGrantRepo(db *gorm.DB, baseLog *logger.Logger) AccessGrantRepo {
	return &accessGrantRepo{
		db:  db,
		log: baseLog.With("repo", "AccessGrantRepo"),
	}
}

func (r *accessGrantRepo) Create(dbc dbctx.Context, grants []*types.AccessGrant) ([]*types.AccessGrant, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(grants) == 0 {
		return []*types.AccessGrant{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// GetForDecision returns every grant matching the triple, usable or
// not. The caller distinguishes absent, expired, and revoked grants for
// denial reporting.
func (r *accessGrantRepo) GetForDecision(dbc dbctx.Context, userID, documentID, accessLevelID uuid.UUID) ([]*types.AccessGrant, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AccessGrant
	if userID == uuid.Nil || documentID == uuid.Nil || accessLevelID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND document_id = ? AND access_level_id = ?", userID, documentID, accessLevelID).
		Order("granted_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *accessGrantRepo) Revoke(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AccessGrant{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
}
