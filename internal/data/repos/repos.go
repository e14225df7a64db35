package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/data/repos/access"
	"github.com/yungbote/tessera-backend/internal/data/repos/audit"
	"github.com/yungbote/tessera-backend/internal/data/repos/contentsets"
	"github.com/yungbote/tessera-backend/internal/data/repos/custody"
	"github.com/yungbote/tessera-backend/internal/data/repos/documents"
	"github.com/yungbote/tessera-backend/internal/data/repos/views"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type MarkupSessionRepo = documents.MarkupSessionRepo
type ApprovedAssignmentRepo = documents.ApprovedAssignmentRepo
type BaseDocumentRepo = documents.BaseDocumentRepo

type EncryptionKeyRepo = custody.EncryptionKeyRepo
type KeyShareRepo = custody.KeyShareRepo

type EncryptedContentSetRepo = contentsets.EncryptedContentSetRepo

type AccessLevelRepo = access.AccessLevelRepo
type AccessLevelContentSetRepo = access.AccessLevelContentSetRepo
type AccessGrantRepo = access.AccessGrantRepo
type SecurityProfileRepo = access.SecurityProfileRepo

type AuditEventRepo = audit.AuditEventRepo
type AnchorSubmissionRepo = audit.AnchorSubmissionRepo

type ReconstructionEventRepo = views.ReconstructionEventRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}
func NewMarkupSessionRepo(db *gorm.DB, baseLog *logger.Logger) MarkupSessionRepo {
	return documents.NewMarkupSessionRepo(db, baseLog)
}
func NewApprovedAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) ApprovedAssignmentRepo {
	return documents.NewApprovedAssignmentRepo(db, baseLog)
}
func NewBaseDocumentRepo(db *gorm.DB, baseLog *logger.Logger) BaseDocumentRepo {
	return documents.NewBaseDocumentRepo(db, baseLog)
}

func NewEncryptionKeyRepo(db *gorm.DB, baseLog *logger.Logger) EncryptionKeyRepo {
	return custody.NewEncryptionKeyRepo(db, baseLog)
}
func NewKeyShareRepo(db *gorm.DB, baseLog *logger.Logger) KeyShareRepo {
	return custody.NewKeyShareRepo(db, baseLog)
}

func NewEncryptedContentSetRepo(db *gorm.DB, baseLog *logger.Logger) EncryptedContentSetRepo {
	return contentsets.NewEncryptedContentSetRepo(db, baseLog)
}

func NewAccessLevelRepo(db *gorm.DB, baseLog *logger.Logger) AccessLevelRepo {
	return access.NewAccessLevelRepo(db, baseLog)
}
func NewAccessLevelContentSetRepo(db *gorm.DB, baseLog *logger.Logger) AccessLevelContentSetRepo {
	return access.NewAccessLevelContentSetRepo(db, baseLog)
}
func NewAccessGrantRepo(db *gorm.DB, baseLog *logger.Logger) AccessGrantRepo {
	return access.NewAccessGrantRepo(db, baseLog)
}
func NewSecurityProfileRepo(db *gorm.DB, baseLog *logger.Logger) SecurityProfileRepo {
	return access.NewSecurityProfileRepo(db, baseLog)
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return audit.NewAuditEventRepo(db, baseLog)
}
func NewAnchorSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) AnchorSubmissionRepo {
	return audit.NewAnchorSubmissionRepo(db, baseLog)
}

func NewReconstructionEventRepo(db *gorm.DB, baseLog *logger.Logger) ReconstructionEventRepo {
	return views.NewReconstructionEventRepo(db, baseLog)
}
