package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type MarkupSessionRepo interface {
	Create(dbc dbctx.Context, sessions []*types.MarkupSession) ([]*types.MarkupSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MarkupSession, error)
	GetLatestApprovedByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.MarkupSession, error)
}

type markupSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMarkupSessionRepo(db *gorm.DB, baseLog *logger.Logger) MarkupSessionRepo {
	return &markupSessionRepo{
		db:  db,
		log: baseLog.With("repo", "MarkupSessionRepo"),
	}
}

func (r *markupSessionRepo) Create(dbc dbctx.Context, sessions []*types.MarkupSession) ([]*types.MarkupSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.MarkupSession{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *markupSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MarkupSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var session types.MarkupSession
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}

func (r *markupSessionRepo) GetLatestApprovedByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.MarkupSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil, nil
	}
	var session types.MarkupSession
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND status = ?", documentID, types.SessionStatusApproved).
		Order("approved_at DESC").
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}
