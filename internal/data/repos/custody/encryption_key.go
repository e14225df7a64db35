package custody

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type EncryptionKeyRepo interface {
	Create(dbc dbctx.Context, keys []*types.EncryptionKey) ([]*types.EncryptionKey, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.EncryptionKey, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.EncryptionKey, error)
	GetActiveForSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) (*types.EncryptionKey, error)
	GetActiveByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptionKey, error)
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptionKey, error)
	Deactivate(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	MarkDestroyedByDocumentID(dbc dbctx.Context, documentID uuid.UUID, at time.Time) error
	MarkDestroyedForSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string, at time.Time) error
}

type encryptionKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEncryptionKeyRepo(db *gorm.DB, baseLog *logger.Logger) EncryptionKeyRepo {
	return &encryptionKeyRepo{
		db:  db,
		log: baseLog.With("repo", "EncryptionKeyRepo"),
	}
}

func (r *encryptionKeyRepo) Create(dbc dbctx.Context, keys []*types.EncryptionKey) ([]*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(keys) == 0 {
		return []*types.EncryptionKey{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *encryptionKeyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var key types.EncryptionKey
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == uuid.Nil {
		return nil, nil
	}
	return &key, nil
}

func (r *encryptionKeyRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EncryptionKey
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetActiveForSet resolves the single active key for one content set.
// The partial unique index uniq_active_key_per_content_set guarantees
// at most one row qualifies.
func (r *encryptionKeyRepo) GetActiveForSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || setIdentifier == "" {
		return nil, nil
	}
	var key types.EncryptionKey
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND content_set_identifier = ? AND is_active", documentID, setIdentifier).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == uuid.Nil {
		return nil, nil
	}
	return &key, nil
}

func (r *encryptionKeyRepo) GetActiveByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EncryptionKey
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND is_active", documentID).
		Order("content_set_identifier ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *encryptionKeyRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EncryptionKey
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *encryptionKeyRepo) Deactivate(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptionKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"rotated_at": at,
			"updated_at": at,
		}).Error
}

func (r *encryptionKeyRepo) MarkDestroyedByDocumentID(dbc dbctx.Context, documentID uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptionKey{}).
		Where("document_id = ? AND destroyed_at IS NULL", documentID).
		Updates(map[string]interface{}{
			"is_active":    false,
			"destroyed_at": at,
			"updated_at":   at,
		}).Error
}

func (r *encryptionKeyRepo) MarkDestroyedForSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || setIdentifier == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptionKey{}).
		Where("document_id = ? AND content_set_identifier = ? AND destroyed_at IS NULL", documentID, setIdentifier).
		Updates(map[string]interface{}{
			"is_active":    false,
			"destroyed_at": at,
			"updated_at":   at,
		}).Error
}
