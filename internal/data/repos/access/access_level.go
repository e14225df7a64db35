package access

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type AccessLevelRepo interface {
	Create(dbc dbctx.Context, levels []*types.AccessLevel) ([]*types.AccessLevel, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AccessLevel, error)
}

type accessLevelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessLevelRepo(db *gorm.DB, baseLog *logger.Logger) AccessLevelRepo {
	return &accessLevelRepo{
		db:  db,
		log: baseLog.With("repo", "AccessLevelRepo"),
	}
}

func (r *accessLevelRepo) Create(dbc dbctx.Context, levels []*types.AccessLevel) ([]*types.AccessLevel, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(levels) == 0 {
		return []*types.AccessLevel{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *accessLevelRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AccessLevel, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var level types.AccessLevel
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&level).Error
	if err != nil {
		return nil, err
	}
	if level.ID == uuid.Nil {
		return nil, nil
	}
	return &level, nil
}

type AccessLevelContentSetRepo interface {
	Create(dbc dbctx.Context, rows []*types.AccessLevelContentSet) ([]*types.AccessLevelContentSet, error)
	GetByAccessLevelID(dbc dbctx.Context, accessLevelID uuid.UUID) ([]*types.AccessLevelContentSet, error)
}

type accessLevelContentSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessLevelContentSetRepo(db *gorm.DB, baseLog *logger.Logger) AccessLevelContentSetRepo {
	return &accessLevelContentSetRepo{
		db:  db,
		log: baseLog.With("repo", "AccessLevelContentSetRepo"),
	}
}

func (r *accessLevelContentSetRepo) Create(dbc dbctx.Context, rows []*types.AccessLevelContentSet) ([]*types.AccessLevelContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.AccessLevelContentSet{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *accessLevelContentSetRepo) GetByAccessLevelID(dbc dbctx.Context, accessLevelID uuid.UUID) ([]*types.AccessLevelContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AccessLevelContentSet
	if accessLevelID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("access_level_id = ?", accessLevelID).
		Order("content_set_identifier ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
