package services

import (
	"context"
	"errors"
	"testing"
	"time"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
)

func TestDestroyRemovesAllContent(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)

	ctx := context.Background()
	dbc := dbcBackground()
	keysBefore, err := h.keys.GetByDocumentID(dbc, f.doc.ID)
	if err != nil || len(keysBefore) != 2 {
		t.Fatalf("keys before destroy: err=%v n=%d", err, len(keysBefore))
	}

	res, err := h.destruction.Destroy(ctx, f.doc.ID, "retention window expired", true)
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if res.KeysDestroyed != 2 {
		t.Fatalf("keys destroyed: want=2 got=%d", res.KeysDestroyed)
	}
	if len(res.ContentSets) != 2 || !hasSet(res.ContentSets, setFinance) || !hasSet(res.ContentSets, setLegal) {
		t.Fatalf("content sets: got=%v", res.ContentSets)
	}

	doc, err := h.documents.GetByID(dbc, f.doc.ID)
	if err != nil || doc == nil {
		t.Fatalf("load document: err=%v doc=%v", err, doc)
	}
	if doc.Status != types.StatusDestroyed || doc.DestroyedAt == nil {
		t.Fatalf("document not terminal: status=%s destroyed_at=%v", doc.Status, doc.DestroyedAt)
	}

	rows, err := h.sets.GetByDocumentID(dbc, f.doc.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("content set rows survive: err=%v n=%d", err, len(rows))
	}
	base, err := h.baseDocs.GetByDocumentID(dbc, f.doc.ID)
	if err != nil || base != nil {
		t.Fatalf("base document survives: err=%v base=%v", err, base)
	}

	keysAfter, err := h.keys.GetByDocumentID(dbc, f.doc.ID)
	if err != nil || len(keysAfter) != 2 {
		t.Fatalf("key rows after destroy: err=%v n=%d", err, len(keysAfter))
	}
	for _, k := range keysAfter {
		if k.DestroyedAt == nil || k.IsActive {
			t.Fatalf("key %s not marked destroyed: %+v", k.ID, k)
		}
	}
	for _, k := range keysBefore {
		shareRows, err := h.shares.GetByKeyID(dbc, k.ID)
		if err != nil || len(shareRows) != 0 {
			t.Fatalf("shares survive for key %s: err=%v n=%d", k.ID, err, len(shareRows))
		}
		if _, err := h.keystore.KeyMaterial(ctx, k.HSMKeyHandle); !errors.Is(err, hsm.ErrUnknownHandle) {
			t.Fatalf("handle for key %s still serves material: %v", k.ID, err)
		}
	}

	if sub, err := h.anchorRepo.GetByTransactionID(dbc, res.AnchorTxID); err != nil || sub == nil {
		t.Fatalf("anchor submission: err=%v sub=%v", err, sub)
	}
	auditRows, err := h.audits.ListByTarget(dbc, "document", f.doc.ID.String(), 20)
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	var audited bool
	for _, row := range auditRows {
		if row.EventType == EventDocumentDestroyed && row.Category == types.CategoryAction {
			audited = true
		}
	}
	if !audited {
		t.Fatal("no action audit row for destruction")
	}

	if _, err := h.reconstruction.Reconstruct(ctx, f.doc.ID, viewer, levelID); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("reconstruct after destroy: want ErrPrecondition, got %v", err)
	}
}

func TestDestroyBlockedByLegalHold(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)

	err := h.db.Model(&types.Document{}).Where("id = ?", f.doc.ID).Update("legal_hold", true).Error
	if err != nil {
		t.Fatalf("set legal hold: %v", err)
	}

	if _, err := h.destruction.Destroy(context.Background(), f.doc.ID, "cleanup", true); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
	if got := documentStatus(t, h, f.doc.ID); got != types.StatusActive {
		t.Fatalf("document status: want=%s got=%s", types.StatusActive, got)
	}
	rows, err := h.sets.GetByDocumentID(dbcBackground(), f.doc.ID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("content rows after refused destroy: err=%v n=%d", err, len(rows))
	}
}

func TestDestroyBlockedByRetention(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)

	until := time.Now().UTC().Add(48 * time.Hour)
	err := h.db.Model(&types.Document{}).Where("id = ?", f.doc.ID).Update("retention_until", until).Error
	if err != nil {
		t.Fatalf("set retention window: %v", err)
	}

	if _, err := h.destruction.Destroy(context.Background(), f.doc.ID, "cleanup", true); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
	if got := documentStatus(t, h, f.doc.ID); got != types.StatusActive {
		t.Fatalf("document status: want=%s got=%s", types.StatusActive, got)
	}
}

func TestDestroyRequiresClearance(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)

	if _, err := h.destruction.Destroy(context.Background(), f.doc.ID, "cleanup", false); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("missing clearance: want ErrPrecondition, got %v", err)
	}
	if _, err := h.destruction.Destroy(context.Background(), f.doc.ID, "", true); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("missing reason: want ErrPrecondition, got %v", err)
	}
	if got := documentStatus(t, h, f.doc.ID); got != types.StatusActive {
		t.Fatalf("document status: want=%s got=%s", types.StatusActive, got)
	}
}

func TestDestroyIsTerminal(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)

	ctx := context.Background()
	if _, err := h.destruction.Destroy(ctx, f.doc.ID, "retention window expired", true); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := h.destruction.Destroy(ctx, f.doc.ID, "retention window expired", true); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second destroy: want ErrPrecondition, got %v", err)
	}
}

func TestDestroyContentSetKeepsDocumentReconstructible(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)

	ctx := context.Background()
	dbc := dbcBackground()
	financeKey, err := h.keys.GetActiveForSet(dbc, f.doc.ID, setFinance)
	if err != nil || financeKey == nil {
		t.Fatalf("finance key: err=%v key=%v", err, financeKey)
	}

	res, err := h.destruction.DestroyContentSet(ctx, f.doc.ID, setFinance, "erasure request", "gdpr-article-17")
	if err != nil {
		t.Fatalf("DestroyContentSet: %v", err)
	}
	if res.SetIdentifier != setFinance || res.KeysDestroyed != 1 {
		t.Fatalf("result wrong: %+v", res)
	}
	if got := documentStatus(t, h, f.doc.ID); got != types.StatusActive {
		t.Fatalf("document status: want=%s got=%s", types.StatusActive, got)
	}

	if row, err := h.sets.GetByDocumentAndSet(dbc, f.doc.ID, setFinance); err != nil || row != nil {
		t.Fatalf("finance row survives: err=%v row=%v", err, row)
	}
	if row, err := h.sets.GetByDocumentAndSet(dbc, f.doc.ID, setLegal); err != nil || row == nil {
		t.Fatalf("legal row gone: err=%v row=%v", err, row)
	}

	if k, err := h.keys.GetActiveForSet(dbc, f.doc.ID, setFinance); err != nil || k != nil {
		t.Fatalf("finance key still active: err=%v key=%v", err, k)
	}
	if k, err := h.keys.GetActiveForSet(dbc, f.doc.ID, setLegal); err != nil || k == nil {
		t.Fatalf("legal key lost: err=%v key=%v", err, k)
	}
	if shareRows, err := h.shares.GetByKeyID(dbc, financeKey.ID); err != nil || len(shareRows) != 0 {
		t.Fatalf("finance shares survive: err=%v n=%d", err, len(shareRows))
	}
	if _, err := h.keystore.KeyMaterial(ctx, financeKey.HSMKeyHandle); !errors.Is(err, hsm.ErrUnknownHandle) {
		t.Fatalf("finance handle still serves material: %v", err)
	}

	if sub, err := h.anchorRepo.GetByTransactionID(dbc, res.AnchorTxID); err != nil || sub == nil {
		t.Fatalf("anchor submission: err=%v sub=%v", err, sub)
	}
	auditRows, err := h.audits.ListByTarget(dbc, "document", f.doc.ID.String(), 20)
	if err != nil {
		t.Fatalf("list audit rows: %v", err)
	}
	var audited bool
	for _, row := range auditRows {
		if row.EventType == EventContentSetDestroyed && row.Category == types.CategoryAction {
			audited = true
		}
	}
	if !audited {
		t.Fatal("no action audit row for set erasure")
	}

	view, err := h.reconstruction.Reconstruct(ctx, f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct after erasure: %v", err)
	}
	if !hasSet(view.ContentSetsRedacted, setFinance) || !hasSet(view.ContentSetsUsed, setLegal) {
		t.Fatalf("set outcomes wrong: used=%v redacted=%v", view.ContentSetsUsed, view.ContentSetsRedacted)
	}
	if !view.IntegrityAllPassed {
		t.Fatal("an erased set must not register as an integrity failure")
	}
	if !view.Blocks[0].IsRedacted {
		t.Fatal("finance-only block must redact after erasure")
	}
	if view.Blocks[1].IsRedacted || view.Blocks[1].Content != textShared {
		t.Fatalf("overlap block must survive via legal: %+v", view.Blocks[1])
	}
	if view.Blocks[2].IsRedacted || view.Blocks[2].Content != textLegal {
		t.Fatalf("legal block must survive: %+v", view.Blocks[2])
	}
}
