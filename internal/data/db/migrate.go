package db

import (
	"fmt"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Document lifecycle
		// =========================
		&types.Document{},
		&types.MarkupSession{},
		&types.ApprovedAssignment{},
		&types.BaseDocument{},

		// =========================
		// Key custody
		// =========================
		&types.EncryptionKey{},
		&types.KeyShare{},

		// =========================
		// Encrypted content
		// =========================
		&types.EncryptedContentSet{},

		// =========================
		// Access control
		// =========================
		&types.AccessLevel{},
		&types.AccessLevelContentSet{},
		&types.AccessGrant{},
		&types.SecurityProfile{},

		// =========================
		// Audit + anchoring
		// =========================
		&types.AuditEvent{},
		&types.AnchorSubmission{},

		// =========================
		// Reconstruction telemetry
		// =========================
		&types.ReconstructionEvent{},
	)
}

// EnsureCustodyIndexes creates the indexes AutoMigrate cannot express,
// most importantly the partial unique index that pins at most one active
// key per (document, content set) pair.
func EnsureCustodyIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_key_per_content_set
		ON encryption_key (document_id, content_set_identifier)
		WHERE is_active;
	`).Error; err != nil {
		return fmt.Errorf("create uniq_active_key_per_content_set: %w", err)
	}

	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_key_share_index
		ON key_share (key_id, share_index);
	`).Error; err != nil {
		return fmt.Errorf("create uniq_key_share_index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_encryption_key_document_set
		ON encryption_key (document_id, content_set_identifier, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_encryption_key_document_set: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_access_grant_user_level
		ON access_grant (user_id, access_level_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_access_grant_user_level: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audit_event_target_created_at
		ON audit_event (target_type, target_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_audit_event_target_created_at: %w", err)
	}

	// Claim scan for the anchor retry worker.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_anchor_submission_status_created_at
		ON anchor_submission (status, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_anchor_submission_status_created_at: %w", err)
	}

	return nil
}

// EnsureAuditGuards installs the trigger that makes audit_event append-only
// at the database level. UPDATE and DELETE raise instead of mutating history.
func EnsureAuditGuards(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE OR REPLACE FUNCTION audit_event_append_only()
		RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'audit_event is append-only';
		END;
		$$ LANGUAGE plpgsql;
	`).Error; err != nil {
		return fmt.Errorf("create audit_event_append_only function: %w", err)
	}

	if err := db.Exec(`
		DROP TRIGGER IF EXISTS trg_audit_event_append_only ON audit_event;
	`).Error; err != nil {
		return fmt.Errorf("drop trg_audit_event_append_only: %w", err)
	}

	if err := db.Exec(`
		CREATE TRIGGER trg_audit_event_append_only
		BEFORE UPDATE OR DELETE ON audit_event
		FOR EACH ROW EXECUTE FUNCTION audit_event_append_only();
	`).Error; err != nil {
		return fmt.Errorf("create trg_audit_event_append_only: %w", err)
	}

	return nil
}
