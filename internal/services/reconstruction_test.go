package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
)

func TestReconstructRedactsByAccessLevel(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "analyst", setLegal)

	view, err := h.reconstruction.Reconstruct(context.Background(), f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if len(view.Blocks) != 3 {
		t.Fatalf("blocks: want=3 got=%d", len(view.Blocks))
	}
	for i, b := range view.Blocks {
		if b.SequencePosition != i+1 {
			t.Fatalf("block %d out of order: seq=%d", i, b.SequencePosition)
		}
	}

	financeOnly := view.Blocks[0]
	if !financeOnly.IsRedacted || financeOnly.Content != "███" || financeOnly.AccessedViaSet != "" {
		t.Fatalf("finance block not redacted: %+v", financeOnly)
	}
	merged := view.Blocks[1]
	if merged.IsRedacted || merged.Content != textShared || merged.AccessedViaSet != setLegal {
		t.Fatalf("overlap block not visible via legal: %+v", merged)
	}
	legalOnly := view.Blocks[2]
	if legalOnly.IsRedacted || legalOnly.Content != textLegal || legalOnly.BlockID != "b-intro" {
		t.Fatalf("legal block wrong: %+v", legalOnly)
	}
	if legalOnly.PageNumber != 1 {
		t.Fatalf("page number: want=1 got=%d", legalOnly.PageNumber)
	}

	if view.MarkerWidth != 3 {
		t.Fatalf("marker width: want=3 got=%d", view.MarkerWidth)
	}
	if !view.IntegrityAllPassed {
		t.Fatal("integrity should pass on a clean document")
	}
	if len(view.ContentSetsUsed) != 1 || !hasSet(view.ContentSetsUsed, setLegal) {
		t.Fatalf("sets used: got=%v", view.ContentSetsUsed)
	}
	if len(view.ContentSetsRedacted) != 0 {
		t.Fatalf("sets redacted: got=%v", view.ContentSetsRedacted)
	}

	serialized, err := json.Marshal(view.Blocks)
	if err != nil {
		t.Fatalf("marshal blocks: %v", err)
	}
	if envelope.HashHex(serialized) != view.ReconstructionHash {
		t.Fatal("reconstruction hash does not cover the returned blocks")
	}

	dbc := dbcBackground()
	eventRows, err := h.events.ListByDocumentID(dbc, f.doc.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var found bool
	for _, ev := range eventRows {
		if ev.ID != view.EventID {
			continue
		}
		found = true
		if ev.ViewerID != viewer || !ev.IntegrityAllPassed {
			t.Fatalf("event row wrong: %+v", ev)
		}
		if ev.AnchorTxID != view.AnchorTxID || ev.ReconstructionHash != view.ReconstructionHash {
			t.Fatalf("event row out of sync with view: %+v", ev)
		}
	}
	if !found {
		t.Fatalf("no reconstruction event %s", view.EventID)
	}

	sub, err := h.anchorRepo.GetByTransactionID(dbc, view.AnchorTxID)
	if err != nil || sub == nil {
		t.Fatalf("anchor submission: err=%v sub=%v", err, sub)
	}

	auditRows, err := h.audits.ListByTarget(dbc, "document", f.doc.ID.String(), 20)
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	var audited bool
	for _, row := range auditRows {
		if row.EventType == EventReconstructed && row.Category == types.CategoryAction {
			audited = true
		}
	}
	if !audited {
		t.Fatal("no action audit row for reconstruction")
	}
}

func TestReconstructFullAccessSeesEverything(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)

	view, err := h.reconstruction.Reconstruct(context.Background(), f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	visible := visibleContent(view)
	if len(visible) != 3 {
		t.Fatalf("visible blocks: want=3 got=%d", len(visible))
	}
	if visible[1] != textFinance || visible[2] != textShared || visible[3] != textLegal {
		t.Fatalf("visible content wrong: %v", visible)
	}
	if !hasSet(view.ContentSetsUsed, setFinance) || !hasSet(view.ContentSetsUsed, setLegal) {
		t.Fatalf("sets used: got=%v", view.ContentSetsUsed)
	}
	if !view.IntegrityAllPassed {
		t.Fatal("integrity should pass")
	}
}

func TestReconstructDeniedWithoutGrant(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)

	ctx := context.Background()
	level := testutil.SeedAccessLevel(t, ctx, h.db, f.org, "analyst", setLegal)
	viewer := uuid.New()

	_, err := h.reconstruction.Reconstruct(ctx, f.doc.ID, viewer, level.ID)
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("want DeniedError, got %v", err)
	}
	if denied.Reason != authz.DenialNoGrant {
		t.Fatalf("denial reason: want=%q got=%q", authz.DenialNoGrant, denied.Reason)
	}
	if denied.Provider != types.ProviderConventional {
		t.Fatalf("denial provider: want=%q got=%q", types.ProviderConventional, denied.Provider)
	}

	dbc := dbcBackground()
	eventRows, err := h.events.ListByDocumentID(dbc, f.doc.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var recorded bool
	for _, ev := range eventRows {
		if ev.ViewerID == viewer && !ev.IntegrityAllPassed {
			recorded = true
		}
	}
	if !recorded {
		t.Fatal("refusal left no reconstruction event")
	}

	auditRows, err := h.audits.ListByTarget(dbc, "document", f.doc.ID.String(), 20)
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	var audited bool
	for _, row := range auditRows {
		if row.EventType == EventReconstructionDenied && row.Category == types.CategoryAnticipation {
			audited = true
		}
	}
	if !audited {
		t.Fatal("no anticipation audit row for the refusal")
	}
}

func TestReconstructBaseTamperFails(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "analyst", setLegal)

	err := h.db.Model(&types.BaseDocument{}).
		Where("document_id = ?", f.doc.ID).
		Update("content_hash", envelope.HashHex([]byte("tampered"))).Error
	if err != nil {
		t.Fatalf("tamper base document: %v", err)
	}

	_, err = h.reconstruction.Reconstruct(context.Background(), f.doc.ID, viewer, levelID)
	if !errors.Is(err, ErrBaseDocumentTampered) {
		t.Fatalf("want ErrBaseDocumentTampered, got %v", err)
	}

	auditRows, err := h.audits.ListByTarget(dbcBackground(), "document", f.doc.ID.String(), 20)
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	var alarmed bool
	for _, row := range auditRows {
		if row.EventType == EventIntegrityFailure {
			alarmed = true
		}
	}
	if !alarmed {
		t.Fatal("no integrity failure audit row")
	}
}

func TestReconstructPartialFailureProceedsOnTierOne(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)

	err := h.db.Model(&types.EncryptedContentSet{}).
		Where("document_id = ? AND content_set_identifier = ?", f.doc.ID, setFinance).
		Update("ciphertext_hash", envelope.HashHex([]byte("corrupted"))).Error
	if err != nil {
		t.Fatalf("corrupt content set row: %v", err)
	}

	view, err := h.reconstruction.Reconstruct(context.Background(), f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct under proceed policy: %v", err)
	}
	if !hasSet(view.ContentSetsRedacted, setFinance) {
		t.Fatalf("finance not redacted: %v", view.ContentSetsRedacted)
	}
	if !hasSet(view.ContentSetsUsed, setLegal) {
		t.Fatalf("legal not used: %v", view.ContentSetsUsed)
	}
	if view.IntegrityAllPassed {
		t.Fatal("integrity flag must drop on a failed set")
	}
	if !view.Blocks[0].IsRedacted {
		t.Fatal("finance-only block must render redacted")
	}
	if view.Blocks[1].IsRedacted || view.Blocks[1].AccessedViaSet != setLegal {
		t.Fatalf("overlap block must stay visible via legal: %+v", view.Blocks[1])
	}
}

func TestReconstructPartialFailureHaltsWhenConfigured(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)
	updateProfile(t, h, f.profile.ID, map[string]interface{}{"partial_failure_policy": types.PolicyHalt})

	err := h.db.Model(&types.EncryptedContentSet{}).
		Where("document_id = ? AND content_set_identifier = ?", f.doc.ID, setFinance).
		Update("ciphertext_hash", envelope.HashHex([]byte("corrupted"))).Error
	if err != nil {
		t.Fatalf("corrupt content set row: %v", err)
	}

	_, err = h.reconstruction.Reconstruct(context.Background(), f.doc.ID, viewer, levelID)
	if !errors.Is(err, envelope.ErrCiphertextIntegrity) {
		t.Fatalf("want ErrCiphertextIntegrity, got %v", err)
	}
}
