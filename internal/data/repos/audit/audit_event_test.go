package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

func TestAuditEventRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAuditEventRepo(db, testutil.Logger(t))

	docID := uuid.New().String()
	orgID := uuid.New()
	events := []*types.AuditEvent{
		{
			ID:             uuid.New(),
			Category:       types.CategoryArrangement,
			EventType:      "document.deconstructed",
			Description:    "document deconstructed into 3 content sets",
			OrganizationID: &orgID,
			TargetType:     "document",
			TargetID:       docID,
			Metadata:       datatypes.JSON([]byte(`{"content_set_count":3}`)),
			EventHash:      "deadbeef",
		},
		{
			ID:             uuid.New(),
			Category:       types.CategoryAccrual,
			EventType:      "keys.rotated",
			OrganizationID: &orgID,
			TargetType:     "document",
			TargetID:       docID,
			Metadata:       datatypes.JSON([]byte(`{}`)),
			EventHash:      "cafebabe",
		},
	}
	if _, err := repo.Append(dbc, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows, err := repo.ListByTarget(dbc, "document", docID, 0)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByTarget: err=%v len=%d", err, len(rows))
	}

	rows, err = repo.ListByEventType(dbc, "keys.rotated", 10)
	if err != nil || len(rows) == 0 {
		t.Fatalf("ListByEventType: err=%v len=%d", err, len(rows))
	}

	// Last because the failed statement poisons the enclosing
	// transaction: the table trigger must reject mutation.
	err = tx.WithContext(ctx).
		Model(&types.AuditEvent{}).
		Where("id = ?", events[0].ID).
		Update("description", "rewritten").Error
	if err == nil {
		t.Fatal("expected append-only trigger to reject UPDATE")
	}
}
