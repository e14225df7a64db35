package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type ApprovedAssignmentRepo interface {
	Create(dbc dbctx.Context, rows []*types.ApprovedAssignment) ([]*types.ApprovedAssignment, error)
	GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.ApprovedAssignment, error)
}

type approvedAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewApprovedAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) ApprovedAssignmentRepo {
	return &approvedAssignmentRepo{
		db:  db,
		log: baseLog.With("repo", "ApprovedAssignmentRepo"),
	}
}

func (r *approvedAssignmentRepo) Create(dbc dbctx.Context, rows []*types.ApprovedAssignment) ([]*types.ApprovedAssignment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ApprovedAssignment{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *approvedAssignmentRepo) GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.ApprovedAssignment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ApprovedAssignment
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
