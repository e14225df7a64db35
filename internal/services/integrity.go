package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/observability"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

const integrityFanout = 4

// SetIntegrity reports one content set's verification outcome. Stage
// names the first check that failed and is empty on success.
type SetIntegrity struct {
	SetIdentifier string `json:"set_identifier"`
	OK            bool   `json:"ok"`
	Stage         string `json:"stage,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// IntegrityReport is the result of a read-only verification sweep over
// a document's base content and every stored envelope.
type IntegrityReport struct {
	DocumentID uuid.UUID      `json:"document_id"`
	BaseOK     bool           `json:"base_ok"`
	BaseStage  string         `json:"base_stage,omitempty"`
	Sets       []SetIntegrity `json:"sets"`
	AllPassed  bool           `json:"all_passed"`
	CheckedAt  time.Time      `json:"checked_at"`
}

type IntegrityService interface {
	// VerifyIntegrity re-checks the base document hash and decrypts
	// every stored envelope under its active key without touching any
	// row. Failures are reported, never repaired.
	VerifyIntegrity(ctx context.Context, documentID uuid.UUID) (*IntegrityReport, error)
}

type integrityService struct {
	log *logger.Logger

	documents repos.DocumentRepo
	baseDocs  repos.BaseDocumentRepo
	keys      repos.EncryptionKeyRepo
	sets      repos.EncryptedContentSetRepo

	keystore hsm.Provider
	recorder *audit.Recorder
}

func NewIntegrityService(
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	baseDocs repos.BaseDocumentRepo,
	keys repos.EncryptionKeyRepo,
	sets repos.EncryptedContentSetRepo,
	keystore hsm.Provider,
	recorder *audit.Recorder,
) IntegrityService {
	return &integrityService{
		log:       baseLog.With("service", "IntegrityService"),
		documents: documents,
		baseDocs:  baseDocs,
		keys:      keys,
		sets:      sets,
		keystore:  keystore,
		recorder:  recorder,
	}
}

func (s *integrityService) VerifyIntegrity(ctx context.Context, documentID uuid.UUID) (*IntegrityReport, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", ErrPrecondition)
	}
	ctx, span := observability.StartSpan(ctx, "IntegrityService.VerifyIntegrity",
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

	report := &IntegrityReport{DocumentID: documentID, CheckedAt: time.Now().UTC()}

	base, err := s.baseDocs.GetByDocumentID(dbc, documentID)
	if err != nil {
		return nil, fmt.Errorf("load base document: %w", err)
	}
	switch {
	case base == nil:
		report.BaseStage = "base_document_missing"
	case envelope.HashHex(base.Content) != base.ContentHash:
		report.BaseStage = "base_document_hash"
	default:
		report.BaseOK = true
	}

	rows, err := s.sets.GetByDocumentID(dbc, documentID)
	if err != nil {
		return nil, fmt.Errorf("load content sets: %w", err)
	}

	report.Sets = make([]SetIntegrity, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(integrityFanout)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			si, err := s.checkSet(gctx, doc, row)
			if err != nil {
				return err
			}
			report.Sets[i] = si
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.AllPassed = report.BaseOK
	for _, si := range report.Sets {
		if !si.OK {
			report.AllPassed = false
		}
	}

	s.record(ctx, doc, report)

	s.log.Info("integrity verified",
		"document_id", documentID.String(),
		"sets", len(report.Sets),
		"all_passed", report.AllPassed,
	)
	return report, nil
}

// checkSet runs the stored-row hash check and a full decrypt of one
// envelope. Returned errors are infrastructure failures that abort the
// sweep; verification failures come back inside the SetIntegrity.
func (s *integrityService) checkSet(ctx context.Context, doc *types.Document, row *types.EncryptedContentSet) (SetIntegrity, error) {
	si := SetIntegrity{SetIdentifier: row.SetIdentifier}

	env, err := envelope.Decode(row.Envelope)
	if err != nil {
		si.Stage, si.Detail = "envelope_decode", err.Error()
		return si, nil
	}
	if envelope.HashHex(env.Ciphertext) != row.CiphertextHash {
		si.Stage = "ciphertext_hash"
		return si, nil
	}

	key, err := s.keys.GetActiveForSet(dbctx.Context{Ctx: ctx}, doc.ID, row.SetIdentifier)
	if err != nil {
		return si, fmt.Errorf("content set %s: load active key: %w", row.SetIdentifier, err)
	}
	if key == nil {
		si.Stage = "key_unavailable"
		return si, nil
	}

	material, err := s.keystore.KeyMaterial(ctx, key.HSMKeyHandle)
	if err != nil {
		if errors.Is(err, hsm.ErrUnknownHandle) {
			si.Stage, si.Detail = "key_unavailable", err.Error()
			return si, nil
		}
		return si, fmt.Errorf("content set %s: fetch key material: %w", row.SetIdentifier, err)
	}
	defer envelope.Wipe(material)

	plaintext, err := envelope.Open(env, material)
	if err != nil {
		si.Stage, si.Detail = integrityStage(err), err.Error()
		return si, nil
	}
	envelope.Wipe(plaintext)

	si.OK = true
	return si, nil
}

func (s *integrityService) record(ctx context.Context, doc *types.Document, report *IntegrityReport) {
	failed := make([]string, 0)
	for _, si := range report.Sets {
		if !si.OK {
			failed = append(failed, si.SetIdentifier)
		}
	}

	entry := audit.Entry{
		Category:       types.CategoryAccrual,
		EventType:      EventIntegrityVerified,
		Description:    "integrity verification sweep completed",
		OrganizationID: &doc.OrganizationID,
		TargetType:     auditTargetDocument,
		TargetID:       doc.ID.String(),
		Metadata: map[string]interface{}{
			"base_ok":      report.BaseOK,
			"sets_checked": len(report.Sets),
			"sets_failed":  failed,
			"all_passed":   report.AllPassed,
		},
	}
	if err := s.recorder.Record(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Error("audit record failed", "document_id", doc.ID.String(), "error", err)
	}
}
