package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type BaseDocumentRepo interface {
	Upsert(dbc dbctx.Context, row *types.BaseDocument) error
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.BaseDocument, error)
	DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error
}

type baseDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBaseDocumentRepo(db *gorm.DB, baseLog *logger.Logger) BaseDocumentRepo {
	return &baseDocumentRepo{
		db:  db,
		log: baseLog.With("repo", "BaseDocumentRepo"),
	}
}

func (r *baseDocumentRepo) Upsert(dbc dbctx.Context, row *types.BaseDocument) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.DocumentID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"content",
				"content_hash",
				"markers",
				"marker_count",
				"updated_at",
			}),
		}).
		Create(row).Error
}

func (r *baseDocumentRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.BaseDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil, nil
	}
	var row types.BaseDocument
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *baseDocumentRepo) DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.BaseDocument{}).Error
}
