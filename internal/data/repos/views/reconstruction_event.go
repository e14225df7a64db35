package views

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type ReconstructionEventRepo interface {
	Create(dbc dbctx.Context, events []*types.ReconstructionEvent) ([]*types.ReconstructionEvent, error)
	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.ReconstructionEvent, error)
}

type reconstructionEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReconstructionEventRepo(db *gorm.DB, baseLog *logger.Logger) ReconstructionEventRepo {
	return &reconstructionEventRepo{
		db:  db,
		log: baseLog.With("repo", "ReconstructionEventRepo"),
	}
}

func (r *reconstructionEventRepo) Create(dbc dbctx.Context, events []*types.ReconstructionEvent) ([]*types.ReconstructionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.ReconstructionEvent{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *reconstructionEventRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.ReconstructionEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ReconstructionEvent
	if documentID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
