package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/data/repos"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type Repos struct {
	Documents   repos.DocumentRepo
	Sessions    repos.MarkupSessionRepo
	Assignments repos.ApprovedAssignmentRepo
	BaseDocs    repos.BaseDocumentRepo

	Profiles  repos.SecurityProfileRepo
	Grants    repos.AccessGrantRepo
	Levels    repos.AccessLevelRepo
	LevelSets repos.AccessLevelContentSetRepo

	Keys   repos.EncryptionKeyRepo
	Shares repos.KeyShareRepo
	Sets   repos.EncryptedContentSetRepo
	Events repos.ReconstructionEventRepo

	Audits  repos.AuditEventRepo
	Anchors repos.AnchorSubmissionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Documents:   repos.NewDocumentRepo(db, log),
		Sessions:    repos.NewMarkupSessionRepo(db, log),
		Assignments: repos.NewApprovedAssignmentRepo(db, log),
		BaseDocs:    repos.NewBaseDocumentRepo(db, log),

		Profiles:  repos.NewSecurityProfileRepo(db, log),
		Grants:    repos.NewAccessGrantRepo(db, log),
		Levels:    repos.NewAccessLevelRepo(db, log),
		LevelSets: repos.NewAccessLevelContentSetRepo(db, log),

		Keys:   repos.NewEncryptionKeyRepo(db, log),
		Shares: repos.NewKeyShareRepo(db, log),
		Sets:   repos.NewEncryptedContentSetRepo(db, log),
		Events: repos.NewReconstructionEventRepo(db, log),

		Audits:  repos.NewAuditEventRepo(db, log),
		Anchors: repos.NewAnchorSubmissionRepo(db, log),
	}
}
