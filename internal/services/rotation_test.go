package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
)

func TestRotateKeysPreservesVisibleContent(t *testing.T) {
	h := newEngineHarness(t)
	f, _ := deconstructFixture(t, h)
	viewer, levelID := grantAccess(t, h, f, "oversight", setFinance, setLegal)

	ctx := context.Background()
	before, err := h.reconstruction.Reconstruct(ctx, f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct before rotation: %v", err)
	}

	dbc := dbcBackground()
	oldKeys := make(map[string]*types.EncryptionKey)
	oldCipherHashes := make(map[string]string)
	oldPlainHashes := make(map[string]string)
	for _, set := range []string{setFinance, setLegal} {
		key, err := h.keys.GetActiveForSet(dbc, f.doc.ID, set)
		if err != nil || key == nil {
			t.Fatalf("active key for %s: err=%v key=%v", set, err, key)
		}
		oldKeys[set] = key

		row, err := h.sets.GetByDocumentAndSet(dbc, f.doc.ID, set)
		if err != nil || row == nil {
			t.Fatalf("content set %s: err=%v row=%v", set, err, row)
		}
		oldCipherHashes[set] = row.CiphertextHash
		env, err := envelope.Decode(row.Envelope)
		if err != nil {
			t.Fatalf("decode envelope for %s: %v", set, err)
		}
		oldPlainHashes[set] = env.PlaintextHash
	}

	res, err := h.rotation.RotateKeys(ctx, f.doc.ID)
	if err != nil {
		t.Fatalf("RotateKeys: %v", err)
	}
	if len(res.Rotated) != 2 {
		t.Fatalf("rotated sets: want=2 got=%d", len(res.Rotated))
	}

	rotatedBySet := make(map[string]RotatedKey)
	for _, rk := range res.Rotated {
		rotatedBySet[rk.SetIdentifier] = rk
	}
	for _, set := range []string{setFinance, setLegal} {
		rk, ok := rotatedBySet[set]
		if !ok {
			t.Fatalf("set %s missing from rotation result", set)
		}
		old := oldKeys[set]
		if rk.OldKeyID != old.ID || rk.NewKeyID == old.ID {
			t.Fatalf("set %s key ids wrong: %+v", set, rk)
		}

		newKey, err := h.keys.GetActiveForSet(dbc, f.doc.ID, set)
		if err != nil || newKey == nil {
			t.Fatalf("active key for %s after rotation: err=%v key=%v", set, err, newKey)
		}
		if newKey.ID != rk.NewKeyID {
			t.Fatalf("set %s active key: want=%s got=%s", set, rk.NewKeyID, newKey.ID)
		}
		if newKey.RotatedFromKeyID == nil || *newKey.RotatedFromKeyID != old.ID {
			t.Fatalf("set %s lineage not recorded: %+v", set, newKey)
		}
		if newKey.ShamirThreshold != old.ShamirThreshold || newKey.ShamirTotalShares != old.ShamirTotalShares {
			t.Fatalf("set %s custody shape changed: %+v", set, newKey)
		}

		row, err := h.sets.GetByDocumentAndSet(dbc, f.doc.ID, set)
		if err != nil || row == nil {
			t.Fatalf("content set %s after rotation: err=%v row=%v", set, err, row)
		}
		if row.KeyID != rk.NewKeyID {
			t.Fatalf("set %s envelope still references old key", set)
		}
		if row.CiphertextHash == oldCipherHashes[set] {
			t.Fatalf("set %s ciphertext unchanged by rotation", set)
		}
		env, err := envelope.Decode(row.Envelope)
		if err != nil {
			t.Fatalf("decode resealed envelope for %s: %v", set, err)
		}
		if env.PlaintextHash != oldPlainHashes[set] {
			t.Fatalf("set %s plaintext hash changed across reseal", set)
		}
		if env.KeyID != rk.NewKeyID.String() {
			t.Fatalf("set %s envelope key id: want=%s got=%s", set, rk.NewKeyID, env.KeyID)
		}

		shareRows, err := h.shares.GetByKeyID(dbc, rk.NewKeyID)
		if err != nil {
			t.Fatalf("shares for new key %s: %v", set, err)
		}
		if len(shareRows) != 3 {
			t.Fatalf("set %s share rows: want=3 got=%d", set, len(shareRows))
		}

		if _, err := h.keystore.KeyMaterial(ctx, old.HSMKeyHandle); !errors.Is(err, hsm.ErrUnknownHandle) {
			t.Fatalf("old handle for %s still serves material: %v", set, err)
		}
	}

	allKeys, err := h.keys.GetByDocumentID(dbc, f.doc.ID)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	for _, k := range allKeys {
		old, ok := oldKeys[k.SetIdentifier]
		if !ok || k.ID != old.ID {
			continue
		}
		if k.IsActive || k.RotatedAt == nil {
			t.Fatalf("old key %s not deactivated: %+v", k.ID, k)
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
		if row.EventType == EventKeysRotated && row.Category == types.CategoryAccrual {
			audited = true
		}
	}
	if !audited {
		t.Fatal("no accrual audit row for rotation")
	}

	after, err := h.reconstruction.Reconstruct(ctx, f.doc.ID, viewer, levelID)
	if err != nil {
		t.Fatalf("Reconstruct after rotation: %v", err)
	}
	if !after.IntegrityAllPassed {
		t.Fatal("integrity should pass after rotation")
	}
	beforeVisible, afterVisible := visibleContent(before), visibleContent(after)
	if len(beforeVisible) != len(afterVisible) {
		t.Fatalf("visible block counts differ: before=%d after=%d", len(beforeVisible), len(afterVisible))
	}
	for seq, content := range beforeVisible {
		if afterVisible[seq] != content {
			t.Fatalf("block %d changed across rotation: %q != %q", seq, content, afterVisible[seq])
		}
	}
}

func TestRotateKeysRequiresActiveDocument(t *testing.T) {
	h := newEngineHarness(t)
	f := seedApprovedDocument(t, h)

	_, err := h.rotation.RotateKeys(context.Background(), f.doc.ID)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
}

func TestRotateKeysRequiresActiveKeys(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	org := uuid.New()
	testutil.SeedSecurityProfile(t, ctx, h.db, org, 2, 3)
	doc := testutil.SeedDocument(t, ctx, h.db, org, types.StatusActive)

	_, err := h.rotation.RotateKeys(ctx, doc.ID)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
}
