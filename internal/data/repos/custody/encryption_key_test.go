package custody

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

func TestEncryptionKeyRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewEncryptionKeyRepo(db, testutil.Logger(t))

	orgID := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, orgID, types.StatusActive)

	k1 := &types.EncryptionKey{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		SetIdentifier:     "CS-CONFIDENTIAL",
		OrganizationID:    orgID,
		HSMKeyHandle:      "softhsm:k1",
		Algorithm:         "aes-256-gcm",
		ShamirThreshold:   2,
		ShamirTotalShares: 3,
		IsActive:          true,
	}
	k2 := &types.EncryptionKey{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		SetIdentifier:     "CS-SECRET",
		OrganizationID:    orgID,
		HSMKeyHandle:      "softhsm:k2",
		Algorithm:         "aes-256-gcm",
		ShamirThreshold:   2,
		ShamirTotalShares: 3,
		IsActive:          true,
	}
	if _, err := repo.Create(dbc, []*types.EncryptionKey{k1, k2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetActiveForSet(dbc, doc.ID, "CS-CONFIDENTIAL")
	if err != nil || got == nil || got.ID != k1.ID {
		t.Fatalf("GetActiveForSet: err=%v got=%v", err, got)
	}

	active, err := repo.GetActiveByDocumentID(dbc, doc.ID)
	if err != nil || len(active) != 2 {
		t.Fatalf("GetActiveByDocumentID: err=%v len=%d", err, len(active))
	}
	if active[0].SetIdentifier != "CS-CONFIDENTIAL" || active[1].SetIdentifier != "CS-SECRET" {
		t.Fatalf("active keys out of order: %q, %q", active[0].SetIdentifier, active[1].SetIdentifier)
	}

	// Rotation shape: deactivate the old key, then a fresh active key
	// for the same set must not trip the partial unique index.
	now := time.Now().UTC()
	if err := repo.Deactivate(dbc, k1.ID, now); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if got, err := repo.GetActiveForSet(dbc, doc.ID, "CS-CONFIDENTIAL"); err != nil || got != nil {
		t.Fatalf("GetActiveForSet after deactivate: err=%v got=%v", err, got)
	}

	k1b := &types.EncryptionKey{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		SetIdentifier:     "CS-CONFIDENTIAL",
		OrganizationID:    orgID,
		HSMKeyHandle:      "softhsm:k1b",
		Algorithm:         "aes-256-gcm",
		ShamirThreshold:   2,
		ShamirTotalShares: 3,
		IsActive:          true,
		RotatedFromKeyID:  testutil.PtrUUID(k1.ID),
	}
	if _, err := repo.Create(dbc, []*types.EncryptionKey{k1b}); err != nil {
		t.Fatalf("Create rotated key: %v", err)
	}
	got, err = repo.GetActiveForSet(dbc, doc.ID, "CS-CONFIDENTIAL")
	if err != nil || got == nil || got.ID != k1b.ID {
		t.Fatalf("GetActiveForSet rotated: err=%v got=%v", err, got)
	}
	if got.RotatedFromKeyID == nil || *got.RotatedFromKeyID != k1.ID {
		t.Fatalf("rotated_from_key_id = %v, want %v", got.RotatedFromKeyID, k1.ID)
	}

	if err := repo.MarkDestroyedByDocumentID(dbc, doc.ID, now); err != nil {
		t.Fatalf("MarkDestroyedByDocumentID: %v", err)
	}
	active, err = repo.GetActiveByDocumentID(dbc, doc.ID)
	if err != nil || len(active) != 0 {
		t.Fatalf("active after destroy: err=%v len=%d", err, len(active))
	}
	all, err := repo.GetByDocumentID(dbc, doc.ID)
	if err != nil || len(all) != 3 {
		t.Fatalf("GetByDocumentID: err=%v len=%d", err, len(all))
	}
	for _, k := range all {
		if k.DestroyedAt == nil {
			t.Fatalf("key %s missing destroyed_at", k.ID)
		}
	}
}

func TestKeyShareRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewKeyShareRepo(db, testutil.Logger(t))

	orgID := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, orgID, types.StatusActive)
	key := &types.EncryptionKey{
		ID:                uuid.New(),
		DocumentID:        doc.ID,
		SetIdentifier:     "CS-SECRET",
		OrganizationID:    orgID,
		HSMKeyHandle:      "softhsm:k",
		Algorithm:         "aes-256-gcm",
		ShamirThreshold:   2,
		ShamirTotalShares: 3,
		IsActive:          true,
	}
	if err := tx.WithContext(ctx).Create(key).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}

	shares := []*types.KeyShare{
		{ID: uuid.New(), KeyID: key.ID, ShareIndex: 3, HolderID: "custodian-c"},
		{ID: uuid.New(), KeyID: key.ID, ShareIndex: 1, HolderID: "custodian-a"},
		{ID: uuid.New(), KeyID: key.ID, ShareIndex: 2, HolderID: "custodian-b"},
	}
	if _, err := repo.Create(dbc, shares); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows, err := repo.GetByKeyID(dbc, key.ID)
	if err != nil || len(rows) != 3 {
		t.Fatalf("GetByKeyID: err=%v len=%d", err, len(rows))
	}
	for i, row := range rows {
		if row.ShareIndex != i+1 {
			t.Fatalf("share %d has index %d, want %d", i, row.ShareIndex, i+1)
		}
	}

	if err := repo.DeleteByKeyIDs(dbc, []uuid.UUID{key.ID}); err != nil {
		t.Fatalf("DeleteByKeyIDs: %v", err)
	}
	rows, err = repo.GetByKeyID(dbc, key.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("after delete GetByKeyID: err=%v len=%d", err, len(rows))
	}
}
