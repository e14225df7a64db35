package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// DestructionResult records what a completed document destruction
// removed. The audit trail and anchor record are the only artifacts
// that survive it.
type DestructionResult struct {
	DocumentID    uuid.UUID
	ContentSets   []string
	KeysDestroyed int
	AnchorTxID    string
}

// SetDestructionResult records a targeted content-set erasure.
type SetDestructionResult struct {
	DocumentID    uuid.UUID
	SetIdentifier string
	KeysDestroyed int
	AnchorTxID    string
}

type DestructionService interface {
	// Destroy permanently removes every encrypted content set, the base
	// document, and all key custody rows, destroys the HSM keys, and
	// moves the document to its terminal destroyed status.
	Destroy(ctx context.Context, documentID uuid.UUID, reason string, regulatoryClearance bool) (*DestructionResult, error)

	// DestroyContentSet erases a single content set and its keys. The
	// document stays active; markers that referenced the erased set
	// render redacted from then on.
	DestroyContentSet(ctx context.Context, documentID uuid.UUID, setIdentifier, reason, regulatoryBasis string) (*SetDestructionResult, error)
}

type destructionService struct {
	db  *gorm.DB
	log *logger.Logger

	documents repos.DocumentRepo
	profiles  repos.SecurityProfileRepo
	baseDocs  repos.BaseDocumentRepo
	keys      repos.EncryptionKeyRepo
	shares    repos.KeyShareRepo
	sets      repos.EncryptedContentSetRepo

	keystore hsm.Provider
	recorder *audit.Recorder
	anchors  *anchor.Queue
	replicas blobstore.Store
}

func NewDestructionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	profiles repos.SecurityProfileRepo,
	baseDocs repos.BaseDocumentRepo,
	keys repos.EncryptionKeyRepo,
	shares repos.KeyShareRepo,
	sets repos.EncryptedContentSetRepo,
	keystore hsm.Provider,
	recorder *audit.Recorder,
	anchors *anchor.Queue,
	replicas blobstore.Store,
) DestructionService {
	return &destructionService{
		db:        db,
		log:       baseLog.With("service", "DestructionService"),
		documents: documents,
		profiles:  profiles,
		baseDocs:  baseDocs,
		keys:      keys,
		shares:    shares,
		sets:      sets,
		keystore:  keystore,
		recorder:  recorder,
		anchors:   anchors,
		replicas:  replicas,
	}
}

func (s *destructionService) Destroy(ctx context.Context, documentID uuid.UUID, reason string, regulatoryClearance bool) (*DestructionResult, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", ErrPrecondition)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: missing destruction reason", ErrPrecondition)
	}
	if !regulatoryClearance {
		return nil, fmt.Errorf("%w: regulatory clearance not supplied", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "DestructionService.Destroy",
		"document_id", documentID.String())
	defer span.End()

	now := time.Now().UTC()

	var doc *types.Document
	var profile *types.SecurityProfile
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
		if d.LegalHold {
			return fmt.Errorf("%w: document %s is under legal hold", ErrPrecondition, documentID.String())
		}

		p, err := loadProfile(dbc, s.profiles, d.OrganizationID)
		if err != nil {
			return err
		}
		if until := effectiveRetention(d, p); until != nil && until.After(now) {
			return fmt.Errorf("%w: retention holds until %s", ErrPrecondition, until.Format(time.RFC3339))
		}

		if err := transitionDocument(dbc, s.documents, documentID, types.StatusActive, types.StatusDestroying); err != nil {
			return err
		}
		doc, profile = d, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("destruction claimed",
		"document_id", documentID.String(),
		"reason", reason,
	)

	var removedSets []string
	var handles []string
	workErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		allKeys, err := s.keys.GetByDocumentID(dbc, documentID)
		if err != nil {
			return fmt.Errorf("load keys: %w", err)
		}
		keyIDs := make([]uuid.UUID, 0, len(allKeys))
		for _, k := range allKeys {
			keyIDs = append(keyIDs, k.ID)
			if k.DestroyedAt == nil {
				handles = append(handles, k.HSMKeyHandle)
			}
		}

		rows, err := s.sets.GetByDocumentID(dbc, documentID)
		if err != nil {
			return fmt.Errorf("load content sets: %w", err)
		}
		for _, row := range rows {
			removedSets = append(removedSets, row.SetIdentifier)
		}

		if err := s.sets.DeleteByDocumentID(dbc, documentID); err != nil {
			return fmt.Errorf("delete content sets: %w", err)
		}
		if err := s.baseDocs.DeleteByDocumentID(dbc, documentID); err != nil {
			return fmt.Errorf("delete base document: %w", err)
		}
		if err := s.shares.DeleteByKeyIDs(dbc, keyIDs); err != nil {
			return fmt.Errorf("delete key shares: %w", err)
		}
		if err := s.keys.MarkDestroyedByDocumentID(dbc, documentID, now); err != nil {
			return fmt.Errorf("mark keys destroyed: %w", err)
		}
		if err := s.documents.UpdateFields(dbc, documentID, map[string]interface{}{"destroyed_at": now}); err != nil {
			return fmt.Errorf("stamp destruction time: %w", err)
		}
		return transitionDocument(dbc, s.documents, documentID, types.StatusDestroying, types.StatusDestroyed)
	})
	if workErr != nil {
		rewindDocument(s.documents, s.log, documentID, types.StatusDestroying, types.StatusActive)
		return nil, workErr
	}

	destroyHandles(s.keystore, s.log, handles)

	if profile.StorageTier != types.TierOne && s.replicas != nil {
		if err := s.replicas.DeletePrefix(ctx, replicaPrefix(doc.OrganizationID, documentID)); err != nil {
			s.log.Warn("replica purge failed", "document_id", documentID.String(), "error", err)
		}
	}

	res := &DestructionResult{
		DocumentID:    documentID,
		ContentSets:   removedSets,
		KeysDestroyed: len(handles),
	}
	s.finalizeDestroy(ctx, doc, reason, res)

	s.log.Info("document destroyed",
		"document_id", documentID.String(),
		"sets", len(removedSets),
		"keys", len(handles),
	)
	return res, nil
}

func (s *destructionService) DestroyContentSet(ctx context.Context, documentID uuid.UUID, setIdentifier, reason, regulatoryBasis string) (*SetDestructionResult, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", ErrPrecondition)
	}
	if setIdentifier == "" {
		return nil, fmt.Errorf("%w: missing content set identifier", ErrPrecondition)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: missing destruction reason", ErrPrecondition)
	}
	if regulatoryBasis == "" {
		return nil, fmt.Errorf("%w: missing regulatory basis", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "DestructionService.DestroyContentSet",
		"document_id", documentID.String(),
		"set_identifier", setIdentifier)
	defer span.End()

	now := time.Now().UTC()

	// Erasure requests carry their own legal authority, so the retention
	// window does not gate them. A legal hold still does.
	var doc *types.Document
	var profile *types.SecurityProfile
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
		if d.LegalHold {
			return fmt.Errorf("%w: document %s is under legal hold", ErrPrecondition, documentID.String())
		}

		p, err := loadProfile(dbc, s.profiles, d.OrganizationID)
		if err != nil {
			return err
		}

		row, err := s.sets.GetByDocumentAndSet(dbc, documentID, setIdentifier)
		if err != nil {
			return fmt.Errorf("load content set: %w", err)
		}
		if row == nil {
			return fmt.Errorf("%w: document %s has no content set %q", ErrPrecondition, documentID.String(), setIdentifier)
		}

		if err := transitionDocument(dbc, s.documents, documentID, types.StatusActive, types.StatusDestroying); err != nil {
			return err
		}
		doc, profile = d, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	var handles []string
	workErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		allKeys, err := s.keys.GetByDocumentID(dbc, documentID)
		if err != nil {
			return fmt.Errorf("load keys: %w", err)
		}
		var keyIDs []uuid.UUID
		for _, k := range allKeys {
			if k.SetIdentifier != setIdentifier {
				continue
			}
			keyIDs = append(keyIDs, k.ID)
			if k.DestroyedAt == nil {
				handles = append(handles, k.HSMKeyHandle)
			}
		}

		if err := s.sets.DeleteByDocumentAndSet(dbc, documentID, setIdentifier); err != nil {
			return fmt.Errorf("delete content set: %w", err)
		}
		if err := s.shares.DeleteByKeyIDs(dbc, keyIDs); err != nil {
			return fmt.Errorf("delete key shares: %w", err)
		}
		if err := s.keys.MarkDestroyedForSet(dbc, documentID, setIdentifier, now); err != nil {
			return fmt.Errorf("mark keys destroyed: %w", err)
		}
		// The document returns to service with the surviving sets.
		return transitionDocument(dbc, s.documents, documentID, types.StatusDestroying, types.StatusActive)
	})
	if workErr != nil {
		rewindDocument(s.documents, s.log, documentID, types.StatusDestroying, types.StatusActive)
		return nil, workErr
	}

	destroyHandles(s.keystore, s.log, handles)

	if profile.StorageTier != types.TierOne && s.replicas != nil {
		if err := s.replicas.Delete(ctx, replicaKey(doc.OrganizationID, documentID, setIdentifier)); err != nil {
			s.log.Warn("replica delete failed",
				"document_id", documentID.String(),
				"set_identifier", setIdentifier,
				"error", err,
			)
		}
	}

	res := &SetDestructionResult{
		DocumentID:    documentID,
		SetIdentifier: setIdentifier,
		KeysDestroyed: len(handles),
	}
	s.finalizeDestroySet(ctx, doc, reason, regulatoryBasis, res)

	s.log.Info("content set destroyed",
		"document_id", documentID.String(),
		"set_identifier", setIdentifier,
		"keys", len(handles),
	)
	return res, nil
}

func (s *destructionService) finalizeDestroy(ctx context.Context, doc *types.Document, reason string, res *DestructionResult) {
	atx := anchor.NewTransaction(EventDocumentDestroyed)
	atx.Arrangement = map[string]interface{}{
		"document_id":     doc.ID.String(),
		"organization_id": doc.OrganizationID.String(),
	}
	atx.Action = map[string]interface{}{
		"reason":               reason,
		"regulatory_clearance": true,
		"content_sets":         res.ContentSets,
		"keys_destroyed":       res.KeysDestroyed,
	}
	res.AnchorTxID = atx.TransactionID

	entry := audit.Entry{
		Category:       types.CategoryAction,
		EventType:      EventDocumentDestroyed,
		Description:    "document and all encrypted content destroyed",
		OrganizationID: &doc.OrganizationID,
		TargetType:     auditTargetDocument,
		TargetID:       doc.ID.String(),
		Metadata: map[string]interface{}{
			"reason":               reason,
			"regulatory_clearance": true,
			"content_sets":         res.ContentSets,
			"keys_destroyed":       res.KeysDestroyed,
			"anchor_tx_id":         atx.TransactionID,
		},
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Error("audit record failed", "document_id", doc.ID.String(), "error", err)
	}
	if err := s.anchors.Enqueue(dbctx.Context{Ctx: ctx}, atx); err != nil {
		s.log.Error("anchor enqueue failed", "document_id", doc.ID.String(), "error", err)
	}
}

func (s *destructionService) finalizeDestroySet(ctx context.Context, doc *types.Document, reason, regulatoryBasis string, res *SetDestructionResult) {
	atx := anchor.NewTransaction(EventContentSetDestroyed)
	atx.Arrangement = map[string]interface{}{
		"document_id":     doc.ID.String(),
		"organization_id": doc.OrganizationID.String(),
		"set_identifier":  res.SetIdentifier,
	}
	atx.Action = map[string]interface{}{
		"reason":           reason,
		"regulatory_basis": regulatoryBasis,
		"keys_destroyed":   res.KeysDestroyed,
	}
	res.AnchorTxID = atx.TransactionID

	entry := audit.Entry{
		Category:       types.CategoryAction,
		EventType:      EventContentSetDestroyed,
		Description:    "content set destroyed for regulatory erasure",
		OrganizationID: &doc.OrganizationID,
		TargetType:     auditTargetDocument,
		TargetID:       doc.ID.String(),
		Metadata: map[string]interface{}{
			"set_identifier":   res.SetIdentifier,
			"reason":           reason,
			"regulatory_basis": regulatoryBasis,
			"keys_destroyed":   res.KeysDestroyed,
			"anchor_tx_id":     atx.TransactionID,
		},
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Error("audit record failed", "document_id", doc.ID.String(), "error", err)
	}
	if err := s.anchors.Enqueue(dbctx.Context{Ctx: ctx}, atx); err != nil {
		s.log.Error("anchor enqueue failed", "document_id", doc.ID.String(), "error", err)
	}
}

// effectiveRetention resolves the later of the document's explicit
// retention date and the tenant's minimum retention window. Nil means
// nothing blocks destruction.
func effectiveRetention(doc *types.Document, profile *types.SecurityProfile) *time.Time {
	var until *time.Time
	if doc.RetentionUntil != nil {
		t := *doc.RetentionUntil
		until = &t
	}
	if profile.MinRetentionDays > 0 {
		floor := doc.CreatedAt.AddDate(0, 0, profile.MinRetentionDays)
		if until == nil || floor.After(*until) {
			until = &floor
		}
	}
	return until
}
