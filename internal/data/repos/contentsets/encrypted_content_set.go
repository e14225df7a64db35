package contentsets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type EncryptedContentSetRepo interface {
	Create(dbc dbctx.Context, sets []*types.EncryptedContentSet) ([]*types.EncryptedContentSet, error)
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptedContentSet, error)
	GetByDocumentAndSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) (*types.EncryptedContentSet, error)
	GetByDocumentAndSets(dbc dbctx.Context, documentID uuid.UUID, setIdentifiers []string) ([]*types.EncryptedContentSet, error)
	UpdateEnvelope(dbc dbctx.Context, id uuid.UUID, envelope datatypes.JSON, ciphertextHash string, keyID uuid.UUID) error
	MarkReplicated(dbc dbctx.Context, id uuid.UUID, storageRef string, at time.Time) error
	DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error
	DeleteByDocumentAndSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) error
}

type encryptedContentSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEncryptedContentSetRepo(db *gorm.DB, baseLog *logger.Logger) EncryptedContentSetRepo {
	return &encryptedContentSetRepo{
		db:  db,
		log: baseLog.With("repo", "EncryptedContentSetRepo"),
	}
}

func (r *encryptedContentSetRepo) Create(dbc dbctx.Context, sets []*types.EncryptedContentSet) ([]*types.EncryptedContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sets) == 0 {
		return []*types.EncryptedContentSet{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

func (r *encryptedContentSetRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.EncryptedContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EncryptedContentSet
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("content_set_identifier ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *encryptedContentSetRepo) GetByDocumentAndSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) (*types.EncryptedContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || setIdentifier == "" {
		return nil, nil
	}
	var row types.EncryptedContentSet
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND content_set_identifier = ?", documentID, setIdentifier).
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

func (r *encryptedContentSetRepo) GetByDocumentAndSets(dbc dbctx.Context, documentID uuid.UUID, setIdentifiers []string) ([]*types.EncryptedContentSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EncryptedContentSet
	if documentID == uuid.Nil || len(setIdentifiers) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND content_set_identifier IN ?", documentID, setIdentifiers).
		Order("content_set_identifier ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEnvelope swaps in a resealed envelope during key rotation.
func (r *encryptedContentSetRepo) UpdateEnvelope(dbc dbctx.Context, id uuid.UUID, envelope datatypes.JSON, ciphertextHash string, keyID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptedContentSet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"envelope":        envelope,
			"ciphertext_hash": ciphertextHash,
			"key_id":          keyID,
			"updated_at":      time.Now(),
		}).Error
}

func (r *encryptedContentSetRepo) MarkReplicated(dbc dbctx.Context, id uuid.UUID, storageRef string, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptedContentSet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"storage_ref":   storageRef,
			"replicated_at": at,
			"updated_at":    at,
		}).Error
}

func (r *encryptedContentSetRepo) DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.EncryptedContentSet{}).Error
}

func (r *encryptedContentSetRepo) DeleteByDocumentAndSet(dbc dbctx.Context, documentID uuid.UUID, setIdentifier string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || setIdentifier == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND content_set_identifier = ?", documentID, setIdentifier).
		Delete(&types.EncryptedContentSet{}).Error
}
