package custody

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type KeyShareRepo interface {
	Create(dbc dbctx.Context, shares []*types.KeyShare) ([]*types.KeyShare, error)
	GetByKeyID(dbc dbctx.Context, keyID uuid.UUID) ([]*types.KeyShare, error)
	DeleteByKeyIDs(dbc dbctx.Context, keyIDs []uuid.UUID) error
}

type keyShareRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeyShareRepo(db *gorm.DB, baseLog *logger.Logger) KeyShareRepo {
	return &keyShareRepo{
		db:  db,
		log: baseLog.With("repo", "KeyShareRepo"),
	}
}

func (r *keyShareRepo) Create(dbc dbctx.Context, shares []*types.KeyShare) ([]*types.KeyShare, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(shares) == 0 {
		return []*types.KeyShare{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&shares).Error; err != nil {
		return nil, err
	}
	return shares, nil
}

func (r *keyShareRepo) GetByKeyID(dbc dbctx.Context, keyID uuid.UUID) ([]*types.KeyShare, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.KeyShare
	if keyID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("key_id = ?", keyID).
		Order("share_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *keyShareRepo) DeleteByKeyIDs(dbc dbctx.Context, keyIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(keyIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("key_id IN ?", keyIDs).
		Delete(&types.KeyShare{}).Error
}
