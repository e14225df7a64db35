package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/crypto/shamir"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/marker"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// SealedContentSet summarizes one content set produced by a
// deconstruction: identifiers and hashes only, never material.
type SealedContentSet struct {
	SetIdentifier  string
	ContentSetID   uuid.UUID
	KeyID          uuid.UUID
	PlaintextHash  string
	CiphertextHash string
	StorageRef     string
	Replicated     bool
}

// DeconstructionResult is the caller-facing record of a completed
// deconstruction.
type DeconstructionResult struct {
	DocumentID  uuid.UUID
	SessionID   uuid.UUID
	BaseHash    string
	MarkerCount int
	ContentSets []SealedContentSet
	AnchorTxID  string
}

type DeconstructionService interface {
	// Deconstruct splits an approved document into its base document and
	// per-content-set envelopes, one fresh key per set. On success the
	// document is active; on work failure it is rewound to approved.
	Deconstruct(ctx context.Context, documentID, sessionID uuid.UUID) (*DeconstructionResult, error)
}

type deconstructionService struct {
	db  *gorm.DB
	log *logger.Logger

	documents   repos.DocumentRepo
	sessions    repos.MarkupSessionRepo
	assignments repos.ApprovedAssignmentRepo
	baseDocs    repos.BaseDocumentRepo
	profiles    repos.SecurityProfileRepo
	keys        repos.EncryptionKeyRepo
	shares      repos.KeyShareRepo
	sets        repos.EncryptedContentSetRepo

	keystore hsm.Provider
	recorder *audit.Recorder
	anchors  *anchor.Queue
	replicas blobstore.Store
}

func NewDeconstructionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	sessions repos.MarkupSessionRepo,
	assignments repos.ApprovedAssignmentRepo,
	baseDocs repos.BaseDocumentRepo,
	profiles repos.SecurityProfileRepo,
	keys repos.EncryptionKeyRepo,
	shares repos.KeyShareRepo,
	sets repos.EncryptedContentSetRepo,
	keystore hsm.Provider,
	recorder *audit.Recorder,
	anchors *anchor.Queue,
	replicas blobstore.Store,
) DeconstructionService {
	return &deconstructionService{
		db:          db,
		log:         baseLog.With("service", "DeconstructionService"),
		documents:   documents,
		sessions:    sessions,
		assignments: assignments,
		baseDocs:    baseDocs,
		profiles:    profiles,
		keys:        keys,
		shares:      shares,
		sets:        sets,
		keystore:    keystore,
		recorder:    recorder,
		anchors:     anchors,
		replicas:    replicas,
	}
}

func (s *deconstructionService) Deconstruct(ctx context.Context, documentID, sessionID uuid.UUID) (*DeconstructionResult, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", ErrPrecondition)
	}
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing session_id", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "DeconstructionService.Deconstruct",
		"document_id", documentID.String())
	defer span.End()

	// Claim transaction: validate preconditions under a row lock and
	// move the document into deconstructing so concurrent claims lose.
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
		if d.Status != types.StatusApproved {
			return fmt.Errorf("%w: document %s is %s, want %s", ErrPrecondition, documentID.String(), d.Status, types.StatusApproved)
		}

		session, err := s.sessions.GetByID(dbc, sessionID)
		if err != nil {
			return fmt.Errorf("load markup session: %w", err)
		}
		if session == nil || session.DocumentID != documentID || session.Status != types.SessionStatusApproved {
			return fmt.Errorf("%w: no approved markup session %s for document %s", ErrPrecondition, sessionID.String(), documentID.String())
		}

		p, err := loadProfile(dbc, s.profiles, d.OrganizationID)
		if err != nil {
			return err
		}
		if p.ShamirThreshold < shamir.MinThreshold || p.ShamirThreshold > p.ShamirTotalShares || p.ShamirTotalShares > shamir.MaxShares {
			return fmt.Errorf("%w: profile shamir parameters %d-of-%d are invalid", ErrPrecondition, p.ShamirThreshold, p.ShamirTotalShares)
		}
		if _, err := resolveHolders(p, p.ShamirTotalShares); err != nil {
			return err
		}

		if err := transitionDocument(dbc, s.documents, documentID, types.StatusApproved, types.StatusDeconstructing); err != nil {
			return err
		}
		doc, profile = d, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deconstruction claimed",
		"document_id", documentID.String(),
		"session_id", sessionID.String(),
		"storage_tier", profile.StorageTier,
	)

	// Work transaction. Generated HSM handles are tracked so a rollback
	// can destroy keys that no persisted row will ever reference.
	res := &DeconstructionResult{DocumentID: documentID, SessionID: sessionID}
	envelopes := map[string][]byte{}
	var generated []string
	workErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		rows, err := s.assignments.GetBySessionID(dbc, sessionID)
		if err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: session %s", ErrEmptyAssignmentSet, sessionID.String())
		}

		assignments := make([]marker.Assignment, 0, len(rows))
		for _, row := range rows {
			assignments = append(assignments, marker.Assignment{
				SetIdentifier: row.SetIdentifier,
				BlockID:       row.BlockID,
				StartOffset:   row.StartOffset,
				EndOffset:     row.EndOffset,
				SelectedText:  row.SelectedText,
				PageNumber:    row.PageNumber,
			})
		}

		markers, payloads, err := marker.Build(assignments)
		if err != nil {
			if errors.Is(err, marker.ErrNoAssignments) {
				return fmt.Errorf("%w: session %s", ErrEmptyAssignmentSet, sessionID.String())
			}
			return fmt.Errorf("build markers: %w", err)
		}

		base, err := marker.EncodeBase(markers)
		if err != nil {
			return err
		}
		baseHash := envelope.HashHex(base)

		markersJSON, err := json.Marshal(markers)
		if err != nil {
			return fmt.Errorf("encode markers: %w", err)
		}

		setIDs := make([]string, 0, len(payloads))
		for set := range payloads {
			setIDs = append(setIDs, set)
		}
		sort.Strings(setIDs)

		holders, err := resolveHolders(profile, profile.ShamirTotalShares)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, set := range setIDs {
			sealed, handle, err := s.sealSet(dbc, doc, profile, set, payloads[set], holders, envelopes, now)
			if handle != "" {
				generated = append(generated, handle)
			}
			if err != nil {
				return fmt.Errorf("content set %s: %w", set, err)
			}
			res.ContentSets = append(res.ContentSets, sealed)
		}

		if err := s.baseDocs.Upsert(dbc, &types.BaseDocument{
			ID:          uuid.New(),
			DocumentID:  documentID,
			Content:     base,
			ContentHash: baseHash,
			Markers:     datatypes.JSON(markersJSON),
			MarkerCount: len(markers),
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("persist base document: %w", err)
		}
		res.BaseHash = baseHash
		res.MarkerCount = len(markers)

		return transitionDocument(dbc, s.documents, documentID, types.StatusDeconstructing, types.StatusActive)
	})
	if workErr != nil {
		destroyHandles(s.keystore, s.log, generated)
		rewindDocument(s.documents, s.log, documentID, types.StatusDeconstructing, types.StatusApproved)
		return nil, workErr
	}

	if profile.StorageTier != types.TierOne {
		s.replicate(ctx, doc, res, envelopes)
	}
	s.finalize(ctx, doc, profile, res)

	s.log.Info("document deconstructed",
		"document_id", documentID.String(),
		"content_sets", len(res.ContentSets),
		"marker_count", res.MarkerCount,
	)
	return res, nil
}

// sealSet generates a key, seals one payload, splits the key to the
// holder roster, and persists the custody and content-set rows. The
// returned handle is set as soon as the HSM key exists, even on
// failure, so the caller can destroy orphans after a rollback.
func (s *deconstructionService) sealSet(
	dbc dbctx.Context,
	doc *types.Document,
	profile *types.SecurityProfile,
	set string,
	payload []byte,
	holders []string,
	envelopes map[string][]byte,
	now time.Time,
) (SealedContentSet, string, error) {
	info, err := s.keystore.GenerateKey(dbc.Ctx, doc.OrganizationID.String(), doc.ID.String(), set)
	if err != nil {
		return SealedContentSet{}, "", fmt.Errorf("generate key: %w", err)
	}
	handle := info.Handle

	keyID, err := uuid.Parse(info.KeyID)
	if err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("parse key id %q: %w", info.KeyID, err)
	}

	material, err := s.keystore.KeyMaterial(dbc.Ctx, handle)
	if err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("fetch key material: %w", err)
	}
	defer envelope.Wipe(material)

	env, err := envelope.Seal(payload, material, info.KeyID, set)
	if err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("seal payload: %w", err)
	}

	keyShares, err := s.keystore.SplitKey(dbc.Ctx, handle, profile.ShamirThreshold, profile.ShamirTotalShares, holders)
	if err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("split key: %w", err)
	}

	keyRow := &types.EncryptionKey{
		ID:                keyID,
		DocumentID:        doc.ID,
		SetIdentifier:     set,
		OrganizationID:    doc.OrganizationID,
		HSMKeyHandle:      handle,
		Algorithm:         envelope.Algorithm,
		ShamirThreshold:   profile.ShamirThreshold,
		ShamirTotalShares: profile.ShamirTotalShares,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.keys.Create(dbc, []*types.EncryptionKey{keyRow}); err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("persist encryption key: %w", err)
	}

	if err := persistShares(dbc, s.shares, keyID, keyShares, profile.PersistShareData, now); err != nil {
		return SealedContentSet{}, handle, err
	}

	encoded, err := env.Encode()
	if err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("encode envelope: %w", err)
	}
	setRow := &types.EncryptedContentSet{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		SetIdentifier:  set,
		Envelope:       datatypes.JSON(encoded),
		CiphertextHash: env.CiphertextHash,
		KeyID:          keyID,
		StorageTier:    profile.StorageTier,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.sets.Create(dbc, []*types.EncryptedContentSet{setRow}); err != nil {
		return SealedContentSet{}, handle, fmt.Errorf("persist encrypted content set: %w", err)
	}
	envelopes[set] = encoded

	return SealedContentSet{
		SetIdentifier:  set,
		ContentSetID:   setRow.ID,
		KeyID:          keyID,
		PlaintextHash:  env.PlaintextHash,
		CiphertextHash: env.CiphertextHash,
	}, handle, nil
}

// replicate uploads each envelope to the tier-scoped blob store and
// records the confirmation. Failures degrade to unreplicated rows; the
// canonical envelope in Postgres is already durable.
func (s *deconstructionService) replicate(ctx context.Context, doc *types.Document, res *DeconstructionResult, envelopes map[string][]byte) {
	if s.replicas == nil {
		s.log.Warn("no replica store configured", "document_id", doc.ID.String())
		return
	}
	for i := range res.ContentSets {
		cs := &res.ContentSets[i]
		key := replicaKey(doc.OrganizationID, doc.ID, cs.SetIdentifier)
		if err := s.replicas.Put(ctx, key, envelopes[cs.SetIdentifier]); err != nil {
			s.log.Warn("replica upload failed",
				"document_id", doc.ID.String(),
				"set_identifier", cs.SetIdentifier,
				"error", err,
			)
			continue
		}
		if err := s.sets.MarkReplicated(dbctx.Context{Ctx: ctx}, cs.ContentSetID, key, time.Now().UTC()); err != nil {
			s.log.Warn("replica confirmation failed",
				"document_id", doc.ID.String(),
				"set_identifier", cs.SetIdentifier,
				"error", err,
			)
			continue
		}
		cs.StorageRef = key
		cs.Replicated = true
	}
}

// finalize emits the audit event and enqueues the anchor transaction.
// Both are advisory after the work commit: the deconstruction stands
// even when recording fails, and failures are logged loudly.
func (s *deconstructionService) finalize(ctx context.Context, doc *types.Document, profile *types.SecurityProfile, res *DeconstructionResult) {
	setSummaries := make([]map[string]interface{}, 0, len(res.ContentSets))
	setNames := make([]string, 0, len(res.ContentSets))
	keyIDs := make([]string, 0, len(res.ContentSets))
	for _, cs := range res.ContentSets {
		setNames = append(setNames, cs.SetIdentifier)
		keyIDs = append(keyIDs, cs.KeyID.String())
		setSummaries = append(setSummaries, map[string]interface{}{
			"set_identifier":  cs.SetIdentifier,
			"content_set_id":  cs.ContentSetID.String(),
			"key_id":          cs.KeyID.String(),
			"plaintext_hash":  cs.PlaintextHash,
			"ciphertext_hash": cs.CiphertextHash,
			"storage_ref":     cs.StorageRef,
			"replicated":      cs.Replicated,
		})
	}

	tx := anchor.NewTransaction(EventDeconstructed)
	tx.Arrangement = map[string]interface{}{
		"document_id":       doc.ID.String(),
		"organization_id":   doc.OrganizationID.String(),
		"session_id":        res.SessionID.String(),
		"content_set_count": len(res.ContentSets),
		"marker_count":      res.MarkerCount,
		"storage_tier":      profile.StorageTier,
		"shamir_threshold":  profile.ShamirThreshold,
		"shamir_total":      profile.ShamirTotalShares,
	}
	tx.Accrual = map[string]interface{}{
		"base_hash":    res.BaseHash,
		"key_ids":      keyIDs,
		"content_sets": setSummaries,
	}

	entry := audit.Entry{
		Category:       types.CategoryArrangement,
		EventType:      EventDeconstructed,
		Description:    "document deconstructed into base and encrypted content sets",
		OrganizationID: &doc.OrganizationID,
		TargetType:     auditTargetDocument,
		TargetID:       doc.ID.String(),
		Metadata: map[string]interface{}{
			"session_id":       res.SessionID.String(),
			"base_hash":        res.BaseHash,
			"marker_count":     res.MarkerCount,
			"content_sets":     setNames,
			"storage_tier":     profile.StorageTier,
			"shamir_threshold": profile.ShamirThreshold,
			"shamir_total":     profile.ShamirTotalShares,
			"anchor_tx_id":     tx.TransactionID,
		},
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Error("audit record failed", "document_id", doc.ID.String(), "error", err)
	}

	res.AnchorTxID = tx.TransactionID
	if err := s.anchors.Enqueue(dbctx.Context{Ctx: ctx}, tx); err != nil {
		s.log.Error("anchor enqueue failed", "document_id", doc.ID.String(), "error", err)
	}
}
