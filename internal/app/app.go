package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/tessera-backend/internal/anchor"
	"github.com/yungbote/tessera-backend/internal/audit"
	"github.com/yungbote/tessera-backend/internal/authz"
	"github.com/yungbote/tessera-backend/internal/data/db"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/hsm/softhsm"
	"github.com/yungbote/tessera-backend/internal/hsm/vaulthsm"
	"github.com/yungbote/tessera-backend/internal/platform/blobstore"
	"github.com/yungbote/tessera-backend/internal/platform/envutil"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type App struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Cfg       Config
	Repos     Repos
	Services  Services
	Keystore  hsm.Provider
	Providers *authz.Registry
	Recorder  *audit.Recorder
	Anchors   *anchor.Queue
	Replicas  blobstore.Store

	worker *anchor.Worker
	cancel context.CancelFunc
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	keystore, err := wireKeystore(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	replicas, err := wireReplicaStore(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	providers, err := wireAuthz(cfg, reposet, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	recorder := audit.NewRecorder(reposet.Audits, log)
	anchors := anchor.NewQueue(reposet.Anchors, log)

	sink, err := wireAnchorSink(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	worker := anchor.NewWorker(log, reposet.Anchors, sink)

	serviceset := wireServices(theDB, log, reposet, keystore, providers, recorder, anchors, replicas)

	if cfg.ProfileSeedPath != "" {
		if err := SeedSecurityProfiles(context.Background(), reposet.Profiles, log, cfg.ProfileSeedPath); err != nil {
			log.Sync()
			return nil, fmt.Errorf("seed security profiles: %w", err)
		}
	}

	return &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Repos:     reposet,
		Services:  serviceset,
		Keystore:  keystore,
		Providers: providers,
		Recorder:  recorder,
		Anchors:   anchors,
		Replicas:  replicas,
		worker:    worker,
	}, nil
}

func wireKeystore(cfg Config, log *logger.Logger) (hsm.Provider, error) {
	switch cfg.HSMProvider {
	case HSMProviderSoft:
		return softhsm.New(log), nil
	case HSMProviderVault:
		provider, err := vaulthsm.New(vaulthsm.Config{
			Address:  envutil.Get("VAULT_ADDR", ""),
			Token:    envutil.Get("VAULT_TOKEN", ""),
			Mount:    envutil.Get("VAULT_MOUNT", ""),
			BasePath: envutil.Get("VAULT_KEY_PATH", ""),
			Timeout:  envutil.Dur("VAULT_TIMEOUT", 0),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("init vault hsm: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown HSM_PROVIDER %q", cfg.HSMProvider)
	}
}

func wireReplicaStore(cfg Config, log *logger.Logger) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case BlobBackendLocal:
		return blobstore.NewLocalStore(log, cfg.LocalBlobRoot)
	case BlobBackendGCS:
		return blobstore.NewGCSStore(log)
	default:
		return nil, fmt.Errorf("unknown ENVELOPE_BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// wireAuthz always registers the conventional provider as the registry
// fallback; the composed provider joins it only when a proof verifier
// endpoint is configured.
func wireAuthz(cfg Config, r Repos, log *logger.Logger) (*authz.Registry, error) {
	conventional := authz.NewConventionalProvider(r.Grants, r.Levels, r.LevelSets, log)
	registry := authz.NewRegistry(conventional)

	composedCfg := authz.ComposedConfigFromEnv()
	if composedCfg.VerifierEndpoint == "" {
		return registry, nil
	}

	var cache *goredis.Client
	if cfg.RedisAddr != "" {
		cache = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	} else {
		log.Warn("REDIS_ADDR not set; composed provider runs without decision cache")
	}

	composed, err := authz.NewComposedProvider(composedCfg, conventional, r.Profiles, cache, log)
	if err != nil {
		return nil, fmt.Errorf("init composed provider: %w", err)
	}
	registry.Register(composed)
	return registry, nil
}

func wireAnchorSink(cfg Config, log *logger.Logger) (anchor.Sink, error) {
	if cfg.AnchorEndpoint == "" {
		log.Warn("ANCHOR_ENDPOINT not set; anchor submissions stay local")
		return anchor.NewLogSink(log), nil
	}
	return anchor.NewHTTPSink(log, anchor.HTTPSinkConfigFromEnv())
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Cfg.AnchorWorker && a.worker != nil {
		a.worker.Start(ctx)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
