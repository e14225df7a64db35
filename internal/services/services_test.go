package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/data/repos"
	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm/softhsm"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

func dbcBackground() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

// engineHarness wires every lifecycle engine against the integration
// database, a soft HSM, and a temp-dir replica store. Each test seeds
// its own organization so committed rows never collide.
type engineHarness struct {
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
	events      repos.ReconstructionEventRepo
	audits      repos.AuditEventRepo
	anchorRepo  repos.AnchorSubmissionRepo

	keystore *softhsm.Provider
	recorder *audit.Recorder
	anchors  *anchor.Queue
	registry *authz.Registry
	replicas blobstore.Store

	deconstruction DeconstructionService
	reconstruction ReconstructionService
	rotation       RotationService
	destruction    DestructionService
	integrity      IntegrityService
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	db := testutil.DB(t)
	log := testutil.Logger(t)

	h := &engineHarness{db: db, log: log}
	h.documents = repos.NewDocumentRepo(db, log)
	h.sessions = repos.NewMarkupSessionRepo(db, log)
	h.assignments = repos.NewApprovedAssignmentRepo(db, log)
	h.baseDocs = repos.NewBaseDocumentRepo(db, log)
	h.profiles = repos.NewSecurityProfileRepo(db, log)
	h.keys = repos.NewEncryptionKeyRepo(db, log)
	h.shares = repos.NewKeyShareRepo(db, log)
	h.sets = repos.NewEncryptedContentSetRepo(db, log)
	h.events = repos.NewReconstructionEventRepo(db, log)
	h.audits = repos.NewAuditEventRepo(db, log)
	h.anchorRepo = repos.NewAnchorSubmissionRepo(db, log)

	h.keystore = softhsm.New(log)
	h.recorder = audit.NewRecorder(h.audits, log)
	h.anchors = anchor.NewQueue(h.anchorRepo, log)

	grants := repos.NewAccessGrantRepo(db, log)
	levels := repos.NewAccessLevelRepo(db, log)
	levelSets := repos.NewAccessLevelContentSetRepo(db, log)
	h.registry = authz.NewRegistry(authz.NewConventionalProvider(grants, levels, levelSets, log))

	store, err := blobstore.NewLocalStore(log, t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	h.replicas = store

	h.deconstruction = NewDeconstructionService(db, log,
		h.documents, h.sessions, h.assignments, h.baseDocs, h.profiles,
		h.keys, h.shares, h.sets,
		h.keystore, h.recorder, h.anchors, h.replicas)
	h.reconstruction = NewReconstructionService(db, log,
		h.documents, h.baseDocs, h.profiles, h.keys, h.sets, h.events,
		h.keystore, h.registry, h.recorder, h.anchors)
	h.rotation = NewRotationService(db, log,
		h.documents, h.profiles, h.keys, h.shares, h.sets,
		h.keystore, h.recorder, h.anchors, h.replicas)
	h.destruction = NewDestructionService(db, log,
		h.documents, h.profiles, h.baseDocs, h.keys, h.shares, h.sets,
		h.keystore, h.recorder, h.anchors, h.replicas)
	h.integrity = NewIntegrityService(log,
		h.documents, h.baseDocs, h.keys, h.sets,
		h.keystore, h.recorder)
	return h
}

// fixtureDoc is an approved document with the standard markup: one
// finance-only range, one finance/legal overlap at the same position,
// and one whole-block legal assignment. Deconstruction turns this into
// three markers over the sets {finance, legal}.
type fixtureDoc struct {
	org     uuid.UUID
	doc     *types.Document
	session *types.MarkupSession
	profile *types.SecurityProfile
}

const (
	setFinance = "finance"
	setLegal   = "legal"

	textFinance = "acquisition terms"
	textShared  = "shared clause"
	textLegal   = "counsel notes"
)

func seedApprovedDocument(t *testing.T, h *engineHarness) fixtureDoc {
	t.Helper()
	ctx := context.Background()

	org := uuid.New()
	profile := testutil.SeedSecurityProfile(t, ctx, h.db, org, 2, 3)
	doc := testutil.SeedDocument(t, ctx, h.db, org, types.StatusApproved)
	session := testutil.SeedApprovedSession(t, ctx, h.db, doc.ID)

	testutil.SeedAssignment(t, ctx, h.db, session.ID, doc.ID, setFinance, "b-body", testutil.PtrInt(10), testutil.PtrInt(24), textFinance)
	testutil.SeedAssignment(t, ctx, h.db, session.ID, doc.ID, setFinance, "b-body", testutil.PtrInt(40), testutil.PtrInt(52), textShared)
	testutil.SeedAssignment(t, ctx, h.db, session.ID, doc.ID, setLegal, "b-body", testutil.PtrInt(40), testutil.PtrInt(52), textShared)
	testutil.SeedAssignment(t, ctx, h.db, session.ID, doc.ID, setLegal, "b-intro", nil, nil, textLegal)

	return fixtureDoc{org: org, doc: doc, session: session, profile: profile}
}

// deconstructFixture runs the standard fixture through deconstruction
// and fails the test on any error.
func deconstructFixture(t *testing.T, h *engineHarness) (fixtureDoc, *DeconstructionResult) {
	t.Helper()
	f := seedApprovedDocument(t, h)
	res, err := h.deconstruction.Deconstruct(context.Background(), f.doc.ID, f.session.ID)
	if err != nil {
		t.Fatalf("Deconstruct: %v", err)
	}
	return f, res
}

// grantAccess provisions an access level covering the given sets and a
// grant for a fresh viewer, returning viewer and level ids.
func grantAccess(t *testing.T, h *engineHarness, f fixtureDoc, levelName string, setIdentifiers ...string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	level := testutil.SeedAccessLevel(t, ctx, h.db, f.org, levelName, setIdentifiers...)
	viewer := uuid.New()
	testutil.SeedGrant(t, ctx, h.db, viewer, f.doc.ID, level.ID, f.org)
	return viewer, level.ID
}

func updateProfile(t *testing.T, h *engineHarness, profileID uuid.UUID, updates map[string]interface{}) {
	t.Helper()
	if err := h.db.Model(&types.SecurityProfile{}).Where("id = ?", profileID).Updates(updates).Error; err != nil {
		t.Fatalf("update security profile: %v", err)
	}
}

func documentStatus(t *testing.T, h *engineHarness, id uuid.UUID) string {
	t.Helper()
	doc, err := h.documents.GetByID(dbcBackground(), id)
	if err != nil || doc == nil {
		t.Fatalf("load document %s: err=%v doc=%v", id, err, doc)
	}
	return doc.Status
}

func hasSet(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// visibleContent maps sequence position to block content for every
// non-redacted block of a view.
func visibleContent(view *ReconstructedView) map[int]string {
	out := make(map[int]string)
	for _, b := range view.Blocks {
		if !b.IsRedacted {
			out[b.SequencePosition] = b.Content
		}
	}
	return out
}
