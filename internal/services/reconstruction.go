package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/marker"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// reconstructionFanout bounds the per-set decrypt goroutines. Sets are
// independent read-only units; no exclusive locks are taken.
const reconstructionFanout = 4

// Block is one rendered marker position: either the recovered content
// or the fixed-width redaction string.
type Block struct {
	MarkerID         uuid.UUID `json:"marker_id"`
	BlockID          string    `json:"block_id"`
	StartOffset      *int      `json:"start_offset,omitempty"`
	EndOffset        *int      `json:"end_offset,omitempty"`
	SequencePosition int       `json:"sequence_position"`
	Content          string    `json:"content"`
	IsRedacted       bool      `json:"is_redacted"`
	AccessedViaSet   string    `json:"accessed_via_set,omitempty"`
	PageNumber       int       `json:"page_number,omitempty"`
}

// ReconstructedView is the assembled document as one viewer at one
// access level is entitled to see it.
type ReconstructedView struct {
	DocumentID          uuid.UUID `json:"document_id"`
	ViewerID            uuid.UUID `json:"viewer_id"`
	AccessLevelID       uuid.UUID `json:"access_level_id"`
	MarkerWidth         int       `json:"marker_width"`
	Blocks              []Block   `json:"blocks"`
	ContentSetsUsed     []string  `json:"content_sets_used"`
	ContentSetsRedacted []string  `json:"content_sets_redacted"`
	ReconstructionHash  string    `json:"reconstruction_hash"`
	IntegrityAllPassed  bool      `json:"integrity_all_passed"`
	AnchorTxID          string    `json:"anchor_tx_id,omitempty"`
	EventID             uuid.UUID `json:"event_id"`
}

type ReconstructionService interface {
	// Reconstruct authorizes the viewer, verifies the base document and
	// every authorized content set, and assembles the visible view.
	// Refusals return *authz.DeniedError after the refusal is audited.
	Reconstruct(ctx context.Context, documentID, viewerID, accessLevelID uuid.UUID) (*ReconstructedView, error)
}

type reconstructionService struct {
	db  *gorm.DB
	log *logger.Logger

	documents repos.DocumentRepo
	baseDocs  repos.BaseDocumentRepo
	profiles  repos.SecurityProfileRepo
	keys      repos.EncryptionKeyRepo
	sets      repos.EncryptedContentSetRepo
	events    repos.ReconstructionEventRepo

	keystore  hsm.Provider
	providers *authz.Registry
	recorder  *audit.Recorder
	anchors   *anchor.Queue
}

func NewReconstructionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	baseDocs repos.BaseDocumentRepo,
	profiles repos.SecurityProfileRepo,
	keys repos.EncryptionKeyRepo,
	sets repos.EncryptedContentSetRepo,
	events repos.ReconstructionEventRepo,
	keystore hsm.Provider,
	providers *authz.Registry,
	recorder *audit.Recorder,
	anchors *anchor.Queue,
) ReconstructionService {
	return &reconstructionService{
		db:        db,
		log:       baseLog.With("service", "ReconstructionService"),
		documents: documents,
		baseDocs:  baseDocs,
		profiles:  profiles,
		keys:      keys,
		sets:      sets,
		events:    events,
		keystore:  keystore,
		providers: providers,
		recorder:  recorder,
		anchors:   anchors,
	}
}

// setOutcome is the result of opening one authorized content set. An
// absent row (destroyed set) is not an integrity failure: its markers
// simply redact. A present row that fails any verification stage is.
type setOutcome struct {
	setIdentifier string
	records       map[uuid.UUID]marker.PayloadRecord
	present       bool
	verified      bool
	stage         string
	err           error
}

func (s *reconstructionService) Reconstruct(ctx context.Context, documentID, viewerID, accessLevelID uuid.UUID) (*ReconstructedView, error) {
	if documentID == uuid.Nil || viewerID == uuid.Nil || accessLevelID == uuid.Nil {
		return nil, fmt.Errorf("%w: document_id, viewer_id and access_level_id are required", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "ReconstructionService.Reconstruct",
		"document_id", documentID.String())
	defer span.End()
	dbc := dbctx.Context{Ctx: ctx}

	doc, err := s.documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s not found", ErrPrecondition, documentID.String())
	}
	if doc.Status != types.StatusActive {
		return nil, fmt.Errorf("%w: document %s is %s, want %s", ErrPrecondition, documentID.String(), doc.Status, types.StatusActive)
	}

	profile, err := loadProfile(dbc, s.profiles, doc.OrganizationID)
	if err != nil {
		return nil, err
	}

	provider := s.providers.Resolve(profile.AuthzProvider)
	decision, err := provider.Authorize(dbc, authz.Request{
		UserID:         viewerID,
		DocumentID:     documentID,
		AccessLevelID:  accessLevelID,
		OrganizationID: doc.OrganizationID,
		AccessType:     authz.AccessTypeReconstruct,
	})
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if !decision.Granted {
		s.recordDenial(ctx, doc, profile, viewerID, accessLevelID, decision)
		return nil, &authz.DeniedError{Reason: decision.DenialReason, Provider: decision.Provider}
	}

	base, err := s.baseDocs.GetByDocumentID(dbc, documentID)
	if err != nil {
		return nil, fmt.Errorf("load base document: %w", err)
	}
	if base == nil {
		s.recordIntegrityFailures(ctx, doc, viewerID, []setOutcome{{stage: "base_document_missing"}})
		return nil, fmt.Errorf("%w: base document missing", ErrBaseDocumentTampered)
	}
	if envelope.HashHex(base.Content) != base.ContentHash {
		s.recordIntegrityFailures(ctx, doc, viewerID, []setOutcome{{stage: "base_document_hash"}})
		return nil, ErrBaseDocumentTampered
	}

	var markers []marker.Marker
	if err := json.Unmarshal(base.Markers, &markers); err != nil {
		return nil, fmt.Errorf("decode markers: %w", err)
	}

	outcomes, err := s.openSets(ctx, doc, decision.ContentSetRefs)
	if err != nil {
		return nil, err
	}

	var failed []setOutcome
	verified := make(map[string]map[uuid.UUID]marker.PayloadRecord)
	used := make([]string, 0, len(outcomes))
	redacted := make([]string, 0)
	for _, out := range outcomes {
		switch {
		case out.verified:
			verified[out.setIdentifier] = out.records
			used = append(used, out.setIdentifier)
		case out.present:
			failed = append(failed, out)
			redacted = append(redacted, out.setIdentifier)
		default:
			redacted = append(redacted, out.setIdentifier)
		}
	}

	if len(failed) > 0 {
		s.recordIntegrityFailures(ctx, doc, viewerID, failed)
		if profile.EffectivePartialFailurePolicy() == types.PolicyHalt {
			first := failed[0]
			if first.err != nil {
				return nil, fmt.Errorf("content set %s failed %s check: %w", first.setIdentifier, first.stage, first.err)
			}
			return nil, fmt.Errorf("content set %s failed %s check", first.setIdentifier, first.stage)
		}
	}

	width := profile.EffectiveMarkerWidth()
	blocks, hashesPassed := assembleBlocks(markers, verified, strings.Repeat("█", width))

	serialized, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("serialize blocks: %w", err)
	}

	view := &ReconstructedView{
		DocumentID:          documentID,
		ViewerID:            viewerID,
		AccessLevelID:       accessLevelID,
		MarkerWidth:         width,
		Blocks:              blocks,
		ContentSetsUsed:     used,
		ContentSetsRedacted: redacted,
		ReconstructionHash:  envelope.HashHex(serialized),
		IntegrityAllPassed:  len(failed) == 0 && hashesPassed,
	}
	if err := s.finalize(ctx, doc, decision, view); err != nil {
		return nil, err
	}

	s.log.Info("document reconstructed",
		"document_id", documentID.String(),
		"viewer_id", viewerID.String(),
		"sets_used", len(used),
		"sets_redacted", len(redacted),
		"integrity_all_passed", view.IntegrityAllPassed,
	)
	return view, nil
}

// openSets verifies and decrypts the authorized sets with bounded
// fan-out. Integrity failures land in the outcome; only infrastructure
// errors (store or custodian unreachable) abort the group.
func (s *reconstructionService) openSets(ctx context.Context, doc *types.Document, refs []string) ([]setOutcome, error) {
	outcomes := make([]setOutcome, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconstructionFanout)
	for i, set := range refs {
		i, set := i, set
		g.Go(func() error {
			out, err := s.openSet(gctx, doc, set)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *reconstructionService) openSet(ctx context.Context, doc *types.Document, set string) (setOutcome, error) {
	dbc := dbctx.Context{Ctx: ctx}
	out := setOutcome{setIdentifier: set}

	row, err := s.sets.GetByDocumentAndSet(dbc, doc.ID, set)
	if err != nil {
		return out, fmt.Errorf("load content set %s: %w", set, err)
	}
	if row == nil {
		return out, nil
	}
	out.present = true

	env, err := envelope.Decode(row.Envelope)
	if err != nil {
		out.stage, out.err = "envelope_decode", err
		return out, nil
	}

	// The denormalized row hash guards the stored blob before any key
	// material is touched.
	if envelope.HashHex(env.Ciphertext) != row.CiphertextHash {
		out.stage, out.err = "ciphertext_hash", envelope.ErrCiphertextIntegrity
		return out, nil
	}

	key, err := s.keys.GetActiveForSet(dbc, doc.ID, set)
	if err != nil {
		return out, fmt.Errorf("resolve active key for %s: %w", set, err)
	}
	if key == nil {
		out.stage, out.err = "key_unavailable", fmt.Errorf("no active key for set %s", set)
		return out, nil
	}

	material, err := s.keystore.KeyMaterial(ctx, key.HSMKeyHandle)
	if err != nil {
		if errors.Is(err, hsm.ErrUnknownHandle) {
			out.stage, out.err = "key_unavailable", err
			return out, nil
		}
		return out, fmt.Errorf("fetch key material for %s: %w", set, err)
	}
	defer envelope.Wipe(material)

	plaintext, err := envelope.Open(env, material)
	if err != nil {
		out.stage, out.err = integrityStage(err), err
		return out, nil
	}
	defer envelope.Wipe(plaintext)

	records, err := marker.ParsePayload(plaintext)
	if err != nil {
		out.stage, out.err = "payload_decode", err
		return out, nil
	}
	out.records = records
	out.verified = true
	return out, nil
}

func integrityStage(err error) string {
	switch {
	case errors.Is(err, envelope.ErrCiphertextIntegrity):
		return "ciphertext_hash"
	case errors.Is(err, envelope.ErrAeadAuthentication):
		return "aead_authentication"
	case errors.Is(err, envelope.ErrPlaintextIntegrity):
		return "plaintext_hash"
	case errors.Is(err, envelope.ErrMalformed):
		return "envelope_decode"
	default:
		return "decrypt"
	}
}

// assembleBlocks renders markers in sequence order. A marker is visible
// through the first of its member sets that verified and carries a
// record whose content still matches the marker's hash; everything else
// redacts. The returned flag reports whether every consulted record
// passed the per-marker hash check.
func assembleBlocks(markers []marker.Marker, verified map[string]map[uuid.UUID]marker.PayloadRecord, redaction string) ([]Block, bool) {
	ordered := make([]marker.Marker, len(markers))
	copy(ordered, markers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequencePosition < ordered[j].SequencePosition
	})

	blocks := make([]Block, 0, len(ordered))
	allPassed := true
	for _, m := range ordered {
		b := Block{
			MarkerID:         m.ID,
			BlockID:          m.BlockID,
			StartOffset:      m.StartOffset,
			EndOffset:        m.EndOffset,
			SequencePosition: m.SequencePosition,
			Content:          redaction,
			IsRedacted:       true,
		}
		for _, set := range m.Membership {
			records, ok := verified[set]
			if !ok {
				continue
			}
			rec, ok := records[m.ID]
			if !ok {
				continue
			}
			if envelope.HashHex([]byte(rec.Content)) != m.ContentHash {
				allPassed = false
				continue
			}
			b.Content = rec.Content
			b.IsRedacted = false
			b.AccessedViaSet = set
			b.PageNumber = rec.PageNumber
			break
		}
		blocks = append(blocks, b)
	}
	return blocks, allPassed
}

// recordDenial persists the refused attempt and its audit entry
// atomically. The caller returns *authz.DeniedError regardless; a
// recording failure is logged, never masked by a different error.
func (s *reconstructionService) recordDenial(ctx context.Context, doc *types.Document, profile *types.SecurityProfile, viewerID, accessLevelID uuid.UUID, decision *authz.Result) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		event := &types.ReconstructionEvent{
			ID:                  uuid.New(),
			DocumentID:          doc.ID,
			ViewerID:            viewerID,
			AccessLevelID:       accessLevelID,
			OrganizationID:      doc.OrganizationID,
			ContentSetsUsed:     datatypes.JSON(`[]`),
			ContentSetsRedacted: datatypes.JSON(`[]`),
			MarkerWidth:         profile.EffectiveMarkerWidth(),
			IntegrityAllPassed:  false,
			CreatedAt:           now,
		}
		if _, err := s.events.Create(dbc, []*types.ReconstructionEvent{event}); err != nil {
			return err
		}

		meta := map[string]interface{}{
			"denial_reason":   decision.DenialReason,
			"provider":        decision.Provider,
			"access_level_id": accessLevelID.String(),
			"access_type":     authz.AccessTypeReconstruct,
		}
		for k, v := range decision.AuditMetadata {
			meta[k] = v
		}
		return s.recorder.Record(dbc, audit.Entry{
			Category:       types.CategoryAnticipation,
			EventType:      EventReconstructionDenied,
			Description:    "reconstruction refused by authorization provider",
			OrganizationID: &doc.OrganizationID,
			ActorID:        &viewerID,
			TargetType:     auditTargetDocument,
			TargetID:       doc.ID.String(),
			Metadata:       meta,
		})
	})
	if err != nil {
		s.log.Error("denial record failed",
			"document_id", doc.ID.String(),
			"viewer_id", viewerID.String(),
			"error", err,
		)
	}
}

// recordIntegrityFailures audits one entry per failed verification
// stage. Emission happens before the partial-failure policy decides
// whether the reconstruction proceeds.
func (s *reconstructionService) recordIntegrityFailures(ctx context.Context, doc *types.Document, viewerID uuid.UUID, failed []setOutcome) {
	entries := make([]audit.Entry, 0, len(failed))
	for _, out := range failed {
		meta := map[string]interface{}{
			"stage": out.stage,
		}
		if out.setIdentifier != "" {
			meta["set_identifier"] = out.setIdentifier
		}
		if out.err != nil {
			meta["error"] = out.err.Error()
		}
		entries = append(entries, audit.Entry{
			Category:       types.CategoryAnticipation,
			EventType:      EventIntegrityFailure,
			Description:    "integrity verification failed during reconstruction",
			OrganizationID: &doc.OrganizationID,
			ActorID:        &viewerID,
			TargetType:     auditTargetDocument,
			TargetID:       doc.ID.String(),
			Metadata:       meta,
		})
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entries...); err != nil {
		s.log.Error("integrity failure record failed", "document_id", doc.ID.String(), "error", err)
	}
}

// finalize persists the reconstruction event and its audit entry in one
// transaction, then enqueues the anchor record.
func (s *reconstructionService) finalize(ctx context.Context, doc *types.Document, decision *authz.Result, view *ReconstructedView) error {
	atx := anchor.NewTransaction(EventReconstructed)
	view.AnchorTxID = atx.TransactionID
	view.EventID = uuid.New()

	usedJSON, _ := json.Marshal(view.ContentSetsUsed)
	redactedJSON, _ := json.Marshal(view.ContentSetsRedacted)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		event := &types.ReconstructionEvent{
			ID:                  view.EventID,
			DocumentID:          doc.ID,
			ViewerID:            view.ViewerID,
			AccessLevelID:       view.AccessLevelID,
			OrganizationID:      doc.OrganizationID,
			ContentSetsUsed:     datatypes.JSON(usedJSON),
			ContentSetsRedacted: datatypes.JSON(redactedJSON),
			MarkerWidth:         view.MarkerWidth,
			ReconstructionHash:  view.ReconstructionHash,
			IntegrityAllPassed:  view.IntegrityAllPassed,
			AnchorTxID:          view.AnchorTxID,
			CreatedAt:           time.Now().UTC(),
		}
		if _, err := s.events.Create(dbc, []*types.ReconstructionEvent{event}); err != nil {
			return fmt.Errorf("persist reconstruction event: %w", err)
		}

		meta := map[string]interface{}{
			"event_id":              view.EventID.String(),
			"access_level_id":       view.AccessLevelID.String(),
			"provider":              decision.Provider,
			"marker_width":          view.MarkerWidth,
			"content_sets_used":     view.ContentSetsUsed,
			"content_sets_redacted": view.ContentSetsRedacted,
			"reconstruction_hash":   view.ReconstructionHash,
			"integrity_all_passed":  view.IntegrityAllPassed,
			"anchor_tx_id":          view.AnchorTxID,
		}
		return s.recorder.Record(dbc, audit.Entry{
			Category:       types.CategoryAction,
			EventType:      EventReconstructed,
			Description:    "document reconstructed for viewer",
			OrganizationID: &doc.OrganizationID,
			ActorID:        &view.ViewerID,
			TargetType:     auditTargetDocument,
			TargetID:       doc.ID.String(),
			Metadata:       meta,
		})
	})
	if err != nil {
		return err
	}

	atx.Action = map[string]interface{}{
		"document_id":          doc.ID.String(),
		"organization_id":      doc.OrganizationID.String(),
		"viewer_id":            view.ViewerID.String(),
		"access_level_id":      view.AccessLevelID.String(),
		"event_id":             view.EventID.String(),
		"reconstruction_hash":  view.ReconstructionHash,
		"integrity_all_passed": view.IntegrityAllPassed,
		"sets_used":            view.ContentSetsUsed,
		"sets_redacted":        view.ContentSetsRedacted,
	}
	if err := s.anchors.Enqueue(dbctx.Context{Ctx: ctx}, atx); err != nil {
		s.log.Error("anchor enqueue failed", "document_id", doc.ID.String(), "error", err)
	}
	return nil
}
