package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := &types.Document{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Title:          "classified brief",
		Status:         types.StatusApproved,
	}
	if _, err := repo.Create(dbc, []*types.Document{doc}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Status != types.StatusApproved {
		t.Fatalf("status = %q, want %q", got.Status, types.StatusApproved)
	}

	if got, err := repo.GetByID(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetByID miss: err=%v got=%v", err, got)
	}

	locked, err := repo.GetByIDForUpdate(dbc, doc.ID)
	if err != nil || locked == nil {
		t.Fatalf("GetByIDForUpdate: err=%v got=%v", err, locked)
	}

	ok, err := repo.UpdateStatusWhere(dbc, doc.ID, types.StatusApproved, types.StatusDeconstructing)
	if err != nil || !ok {
		t.Fatalf("UpdateStatusWhere: err=%v ok=%v", err, ok)
	}

	// Same expected status again: the row already moved, so the guard
	// reports a lost race.
	ok, err = repo.UpdateStatusWhere(dbc, doc.ID, types.StatusApproved, types.StatusDeconstructing)
	if err != nil {
		t.Fatalf("UpdateStatusWhere second: %v", err)
	}
	if ok {
		t.Fatal("UpdateStatusWhere succeeded against stale expected status")
	}

	now := time.Now().UTC()
	if err := repo.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":       types.StatusDestroyed,
		"destroyed_at": now,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID after destroy: err=%v got=%v", err, got)
	}
	if got.Status != types.StatusDestroyed || got.DestroyedAt == nil {
		t.Fatalf("destroyed fields not set: status=%q destroyedAt=%v", got.Status, got.DestroyedAt)
	}
}
