package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

type captureRepo struct {
	rows []*types.AuditEvent
}

func (r *captureRepo) Append(_ dbctx.Context, events []*types.AuditEvent) ([]*types.AuditEvent, error) {
	r.rows = append(r.rows, events...)
	return events, nil
}

func (r *captureRepo) ListByTarget(dbctx.Context, string, string, int) ([]*types.AuditEvent, error) {
	return nil, nil
}

func (r *captureRepo) ListByEventType(dbctx.Context, string, int) ([]*types.AuditEvent, error) {
	return nil, nil
}

func TestRecordStampsContentHashes(t *testing.T) {
	repo := &captureRepo{}
	rec := NewRecorder(repo, testutil.Logger(t))

	org := uuid.New()
	err := rec.Record(dbctx.Context{},
		Entry{
			Category:       types.CategoryAction,
			EventType:      "document.reconstructed",
			Description:    "first",
			OrganizationID: &org,
			TargetType:     "document",
			TargetID:       uuid.New().String(),
			Metadata:       map[string]interface{}{"sets": 2},
		},
		Entry{
			Category:    types.CategoryAccrual,
			EventType:   "keys.rotated",
			Description: "second",
			TargetType:  "document",
			TargetID:    uuid.New().String(),
		},
	)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.rows) != 2 {
		t.Fatalf("rows appended: want=2 got=%d", len(repo.rows))
	}
	for i, row := range repo.rows {
		if len(row.EventHash) != 128 {
			t.Fatalf("row %d hash length: want=128 got=%d", i, len(row.EventHash))
		}
		if row.ID == uuid.Nil || row.CreatedAt.IsZero() {
			t.Fatalf("row %d missing identity: %+v", i, row)
		}
	}
	if repo.rows[0].EventHash == repo.rows[1].EventHash {
		t.Fatal("distinct entries must hash differently")
	}
	if repo.rows[0].Category != types.CategoryAction || repo.rows[1].Category != types.CategoryAccrual {
		t.Fatalf("categories not preserved: %s %s", repo.rows[0].Category, repo.rows[1].Category)
	}
	if string(repo.rows[1].Metadata) != "{}" {
		t.Fatalf("nil metadata should persist as {}: %s", repo.rows[1].Metadata)
	}
}

func TestRecordWithoutEntriesIsNoop(t *testing.T) {
	repo := &captureRepo{}
	rec := NewRecorder(repo, testutil.Logger(t))
	if err := rec.Record(dbctx.Context{}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("rows appended: want=0 got=%d", len(repo.rows))
	}
}

func TestEventHashIsDeterministic(t *testing.T) {
	org := uuid.New()
	entry := Entry{
		Category:       types.CategoryAction,
		EventType:      "document.reconstructed",
		Description:    "view assembled",
		OrganizationID: &org,
		TargetType:     "document",
		TargetID:       "d-1",
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := eventHash(entry, []byte(`{"a":1}`), at)
	if err != nil {
		t.Fatalf("eventHash: %v", err)
	}
	second, err := eventHash(entry, []byte(`{"a":1}`), at)
	if err != nil {
		t.Fatalf("eventHash: %v", err)
	}
	if first != second {
		t.Fatal("equal content must hash equally")
	}

	moved, err := eventHash(entry, []byte(`{"a":2}`), at)
	if err != nil {
		t.Fatalf("eventHash: %v", err)
	}
	if moved == first {
		t.Fatal("changed metadata must change the hash")
	}
	later, err := eventHash(entry, []byte(`{"a":1}`), at.Add(time.Second))
	if err != nil {
		t.Fatalf("eventHash: %v", err)
	}
	if later == first {
		t.Fatal("changed timestamp must change the hash")
	}
}
