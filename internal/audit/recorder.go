package audit

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	auditrepo "github.com/yungbote/tessera-backend/internal/data/repos/audit"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// Entry is one audit record before persistence. Metadata must be
// json-marshalable; map keys serialize in sorted order, so the event
// hash is stable for equal content.
type Entry struct {
	Category       string
	EventType      string
	Description    string
	OrganizationID *uuid.UUID
	ActorID        *uuid.UUID
	TargetType     string
	TargetID       string
	Metadata       map[string]interface{}
}

// Recorder appends entries to the audit log. Every entry gets a
// content hash computed over its canonical serialization, so a row
// whose stored fields drift from its hash is detectable after the
// fact.
type Recorder struct {
	repo auditrepo.AuditEventRepo
	log  *logger.Logger
}

func NewRecorder(repo auditrepo.AuditEventRepo, baseLog *logger.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		log:  baseLog.With("component", "AuditRecorder"),
	}
}

func (r *Recorder) Record(dbc dbctx.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*types.AuditEvent, 0, len(entries))
	for _, e := range entries {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		if e.Metadata == nil {
			metaJSON = []byte(`{}`)
		}
		hash, err := eventHash(e, metaJSON, now)
		if err != nil {
			return fmt.Errorf("hash audit entry: %w", err)
		}
		rows = append(rows, &types.AuditEvent{
			ID:             uuid.New(),
			Category:       e.Category,
			EventType:      e.EventType,
			Description:    e.Description,
			OrganizationID: e.OrganizationID,
			ActorID:        e.ActorID,
			TargetType:     e.TargetType,
			TargetID:       e.TargetID,
			Metadata:       datatypes.JSON(metaJSON),
			EventHash:      hash,
			CreatedAt:      now,
		})
	}
	if _, err := r.repo.Append(dbc, rows); err != nil {
		return fmt.Errorf("append audit events: %w", err)
	}
	for _, e := range entries {
		r.log.Info("audit event recorded",
			"category", e.Category,
			"event_type", e.EventType,
			"target_type", e.TargetType,
			"target_id", e.TargetID,
		)
	}
	return nil
}

func eventHash(e Entry, metaJSON []byte, at time.Time) (string, error) {
	canonical := struct {
		Category       string          `json:"category"`
		EventType      string          `json:"event_type"`
		Description    string          `json:"description"`
		OrganizationID *uuid.UUID      `json:"organization_id"`
		ActorID        *uuid.UUID      `json:"actor_id"`
		TargetType     string          `json:"target_type"`
		TargetID       string          `json:"target_id"`
		Metadata       json.RawMessage `json:"metadata"`
		RecordedAt     string          `json:"recorded_at"`
	}{
		Category:       e.Category,
		EventType:      e.EventType,
		Description:    e.Description,
		OrganizationID: e.OrganizationID,
		ActorID:        e.ActorID,
		TargetType:     e.TargetType,
		TargetID:       e.TargetID,
		Metadata:       metaJSON,
		RecordedAt:     at.Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512(raw)
	return hex.EncodeToString(sum[:]), nil
}
