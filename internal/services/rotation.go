package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// RotatedKey records one set's key succession.
type RotatedKey struct {
	SetIdentifier string
	OldKeyID      uuid.UUID
	NewKeyID      uuid.UUID
}

// RotationResult is the caller-facing record of a completed rotation.
type RotationResult struct {
	DocumentID uuid.UUID
	Rotated    []RotatedKey
	AnchorTxID string
}

type RotationService interface {
	// RotateKeys reseals every content set of an active document under a
	// fresh key, deactivating the old key rows and re-splitting the new
	// keys to the profile's holders. Visible content and plaintext
	// hashes are unchanged by rotation.
	RotateKeys(ctx context.Context, documentID uuid.UUID) (*RotationResult, error)
}

type rotationService struct {
	db  *gorm.DB
	log *logger.Logger

	documents repos.DocumentRepo
	profiles  repos.SecurityProfileRepo
	keys      repos.EncryptionKeyRepo
	shares    repos.KeyShareRepo
	sets      repos.EncryptedContentSetRepo

	keystore hsm.Provider
	recorder *audit.Recorder
	anchors  *anchor.Queue
	replicas blobstore.Store
}

func NewRotationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	profiles repos.SecurityProfileRepo,
	keys repos.EncryptionKeyRepo,
	shares repos.KeyShareRepo,
	sets repos.EncryptedContentSetRepo,
	keystore hsm.Provider,
	recorder *audit.Recorder,
	anchors *anchor.Queue,
	replicas blobstore.Store,
) RotationService {
	return &rotationService{
		db:        db,
		log:       baseLog.With("service", "RotationService"),
		documents: documents,
		profiles:  profiles,
		keys:      keys,
		shares:    shares,
		sets:      sets,
		keystore:  keystore,
		recorder:  recorder,
		anchors:   anchors,
		replicas:  replicas,
	}
}

// rotatedSet carries the per-set rotation facts out of the work
// transaction: succession ids for the audit trail, handles for the
// post-commit HSM cleanup, and the resealed envelope for replication.
type rotatedSet struct {
	setIdentifier  string
	contentSetID   uuid.UUID
	oldKeyID       uuid.UUID
	newKeyID       uuid.UUID
	oldHandle      string
	newHandle      string
	encoded        []byte
	plaintextHash  string
	ciphertextHash string
}

func (s *rotationService) RotateKeys(ctx context.Context, documentID uuid.UUID) (*RotationResult, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "RotationService.RotateKeys",
		"document_id", documentID.String())
	defer span.End()

	// One transaction over all sets: either every set moves to its new
	// key or none does. The document row lock serializes rotation
	// against destruction claims and other rotations.
	var doc *types.Document
	var profile *types.SecurityProfile
	var rotated []rotatedSet
	var newHandles []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		d, err := s.documents.GetByIDForUpdate(dbc, documentID)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		if d == nil {
			return fmt.Errorf("%w: document %s not found", ErrPrecondition, documentID.String())
		}
		if d.Status != types.StatusActive {
			return fmt.Errorf("%w: document %s is %s, want %s", ErrPrecondition, documentID.String(), d.Status, types.StatusActive)
		}

		p, err := loadProfile(dbc, s.profiles, d.OrganizationID)
		if err != nil {
			return err
		}

		activeKeys, err := s.keys.GetActiveByDocumentID(dbc, documentID)
		if err != nil {
			return fmt.Errorf("load active keys: %w", err)
		}
		if len(activeKeys) == 0 {
			return fmt.Errorf("%w: document %s has no active keys", ErrPrecondition, documentID.String())
		}

		now := time.Now().UTC()
		for _, old := range activeKeys {
			rs, handle, err := s.rotateSet(dbc, d, p, old, now)
			if handle != "" {
				newHandles = append(newHandles, handle)
			}
			if err != nil {
				return fmt.Errorf("content set %s: %w", old.SetIdentifier, err)
			}
			rotated = append(rotated, rs)
		}
		doc, profile = d, p
		return nil
	})
	if err != nil {
		destroyHandles(s.keystore, s.log, newHandles)
		return nil, err
	}

	oldHandles := make([]string, 0, len(rotated))
	for _, rs := range rotated {
		oldHandles = append(oldHandles, rs.oldHandle)
	}
	destroyHandles(s.keystore, s.log, oldHandles)

	if profile.StorageTier != types.TierOne {
		s.replicate(ctx, doc, rotated)
	}

	res := &RotationResult{DocumentID: documentID}
	for _, rs := range rotated {
		res.Rotated = append(res.Rotated, RotatedKey{
			SetIdentifier: rs.setIdentifier,
			OldKeyID:      rs.oldKeyID,
			NewKeyID:      rs.newKeyID,
		})
	}
	s.finalize(ctx, doc, rotated, res)

	s.log.Info("keys rotated",
		"document_id", documentID.String(),
		"sets", len(rotated),
	)
	return res, nil
}

// rotateSet reseals one content set. The returned handle names the
// replacement HSM key as soon as it exists, so a rollback can destroy
// keys that no committed row will reference.
func (s *rotationService) rotateSet(dbc dbctx.Context, doc *types.Document, profile *types.SecurityProfile, old *types.EncryptionKey, now time.Time) (rotatedSet, string, error) {
	out := rotatedSet{setIdentifier: old.SetIdentifier, oldKeyID: old.ID, oldHandle: old.HSMKeyHandle}

	row, err := s.sets.GetByDocumentAndSet(dbc, doc.ID, old.SetIdentifier)
	if err != nil {
		return out, "", fmt.Errorf("load content set: %w", err)
	}
	if row == nil {
		return out, "", fmt.Errorf("active key %s references no stored envelope", old.ID.String())
	}

	env, err := envelope.Decode(row.Envelope)
	if err != nil {
		return out, "", err
	}

	oldMaterial, err := s.keystore.KeyMaterial(dbc.Ctx, old.HSMKeyHandle)
	if err != nil {
		return out, "", fmt.Errorf("fetch old key material: %w", err)
	}
	defer envelope.Wipe(oldMaterial)

	info, err := s.keystore.GenerateKey(dbc.Ctx, doc.OrganizationID.String(), doc.ID.String(), old.SetIdentifier)
	if err != nil {
		return out, "", fmt.Errorf("generate replacement key: %w", err)
	}
	handle := info.Handle

	newKeyID, err := uuid.Parse(info.KeyID)
	if err != nil {
		return out, handle, fmt.Errorf("parse key id %q: %w", info.KeyID, err)
	}

	newMaterial, err := s.keystore.KeyMaterial(dbc.Ctx, handle)
	if err != nil {
		return out, handle, fmt.Errorf("fetch replacement key material: %w", err)
	}
	defer envelope.Wipe(newMaterial)

	resealed, err := envelope.Reseal(env, oldMaterial, newMaterial, info.KeyID)
	if err != nil {
		return out, handle, fmt.Errorf("reseal envelope: %w", err)
	}

	if err := s.keys.Deactivate(dbc, old.ID, now); err != nil {
		return out, handle, fmt.Errorf("deactivate old key: %w", err)
	}

	newRow := &types.EncryptionKey{
		ID:                newKeyID,
		DocumentID:        doc.ID,
		SetIdentifier:     old.SetIdentifier,
		OrganizationID:    doc.OrganizationID,
		HSMKeyHandle:      handle,
		Algorithm:         envelope.Algorithm,
		ShamirThreshold:   old.ShamirThreshold,
		ShamirTotalShares: old.ShamirTotalShares,
		IsActive:          true,
		RotatedFromKeyID:  &old.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.keys.Create(dbc, []*types.EncryptionKey{newRow}); err != nil {
		return out, handle, fmt.Errorf("persist replacement key: %w", err)
	}

	holders, err := resolveHolders(profile, old.ShamirTotalShares)
	if err != nil {
		return out, handle, err
	}
	keyShares, err := s.keystore.SplitKey(dbc.Ctx, handle, old.ShamirThreshold, old.ShamirTotalShares, holders)
	if err != nil {
		return out, handle, fmt.Errorf("split replacement key: %w", err)
	}
	if err := persistShares(dbc, s.shares, newKeyID, keyShares, profile.PersistShareData, now); err != nil {
		return out, handle, err
	}

	encoded, err := resealed.Encode()
	if err != nil {
		return out, handle, fmt.Errorf("encode resealed envelope: %w", err)
	}
	if err := s.sets.UpdateEnvelope(dbc, row.ID, datatypes.JSON(encoded), resealed.CiphertextHash, newKeyID); err != nil {
		return out, handle, fmt.Errorf("update content set: %w", err)
	}

	out.contentSetID = row.ID
	out.newKeyID = newKeyID
	out.newHandle = handle
	out.encoded = encoded
	out.plaintextHash = resealed.PlaintextHash
	out.ciphertextHash = resealed.CiphertextHash
	return out, handle, nil
}

// replicate refreshes the blob replicas with the resealed envelopes so
// the replica never trails the canonical row by more than this
// best-effort pass.
func (s *rotationService) replicate(ctx context.Context, doc *types.Document, rotated []rotatedSet) {
	if s.replicas == nil {
		s.log.Warn("no replica store configured", "document_id", doc.ID.String())
		return
	}
	for _, rs := range rotated {
		key := replicaKey(doc.OrganizationID, doc.ID, rs.setIdentifier)
		if err := s.replicas.Put(ctx, key, rs.encoded); err != nil {
			s.log.Warn("replica refresh failed",
				"document_id", doc.ID.String(),
				"set_identifier", rs.setIdentifier,
				"error", err,
			)
			continue
		}
		if err := s.sets.MarkReplicated(dbctx.Context{Ctx: ctx}, rs.contentSetID, key, time.Now().UTC()); err != nil {
			s.log.Warn("replica confirmation failed",
				"document_id", doc.ID.String(),
				"set_identifier", rs.setIdentifier,
				"error", err,
			)
		}
	}
}

func (s *rotationService) finalize(ctx context.Context, doc *types.Document, rotated []rotatedSet, res *RotationResult) {
	successions := make([]map[string]interface{}, 0, len(rotated))
	setNames := make([]string, 0, len(rotated))
	for _, rs := range rotated {
		setNames = append(setNames, rs.setIdentifier)
		successions = append(successions, map[string]interface{}{
			"set_identifier":  rs.setIdentifier,
			"old_key_id":      rs.oldKeyID.String(),
			"new_key_id":      rs.newKeyID.String(),
			"plaintext_hash":  rs.plaintextHash,
			"ciphertext_hash": rs.ciphertextHash,
		})
	}

	atx := anchor.NewTransaction(EventKeysRotated)
	atx.Arrangement = map[string]interface{}{
		"document_id":     doc.ID.String(),
		"organization_id": doc.OrganizationID.String(),
		"set_count":       len(rotated),
	}
	atx.Accrual = map[string]interface{}{
		"rotations": successions,
	}
	res.AnchorTxID = atx.TransactionID

	entry := audit.Entry{
		Category:       types.CategoryAccrual,
		EventType:      EventKeysRotated,
		Description:    "content-set keys rotated",
		OrganizationID: &doc.OrganizationID,
		TargetType:     auditTargetDocument,
		TargetID:       doc.ID.String(),
		Metadata: map[string]interface{}{
			"content_sets": setNames,
			"rotations":    successions,
			"anchor_tx_id": atx.TransactionID,
		},
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Error("audit record failed", "document_id", doc.ID.String(), "error", err)
	}
	if err := s.anchors.Enqueue(dbctx.Context{Ctx: ctx}, atx); err != nil {
		s.log.Error("anchor enqueue failed", "document_id", doc.ID.String(), "error", err)
	}
}
