package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
	"github.com/yungbote/tessera-backend/internal/services"
)

// Services bundles the five document-lifecycle engines.
type Services struct {
	Deconstruction services.DeconstructionService
	Reconstruction services.ReconstructionService
	Rotation       services.RotationService
	Destruction    services.DestructionService
	Integrity      services.IntegrityService
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	r Repos,
	keystore hsm.Provider,
	providers *authz.Registry,
	recorder *audit.Recorder,
	anchors *anchor.Queue,
	replicas blobstore.Store,
) Services {
	log.Info("Wiring services...")
	return Services{
		Deconstruction: services.NewDeconstructionService(
			db, log,
			r.Documents, r.Sessions, r.Assignments, r.BaseDocs,
			r.Profiles, r.Keys, r.Shares, r.Sets,
			keystore, recorder, anchors, replicas,
		),
		Reconstruction: services.NewReconstructionService(
			db, log,
			r.Documents, r.BaseDocs, r.Profiles, r.Keys, r.Sets, r.Events,
			keystore, providers, recorder, anchors,
		),
		Rotation: services.NewRotationService(
			db, log,
			r.Documents, r.Profiles, r.Keys, r.Shares, r.Sets,
			keystore, recorder, anchors, replicas,
		),
		Destruction: services.NewDestructionService(
			db, log,
			r.Documents, r.Profiles, r.BaseDocs, r.Keys, r.Shares, r.Sets,
			keystore, recorder, anchors, replicas,
		),
		Integrity: services.NewIntegrityService(
			log,
			r.Documents, r.BaseDocs, r.Keys, r.Sets,
			keystore, recorder,
		),
	}
}
