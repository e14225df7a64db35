package app

import (
	"strings"

	"github.com/yungbote/tessera-backend/internal/platform/envutil"
)

const (
	HSMProviderSoft  = "soft"
	HSMProviderVault = "vault"

	BlobBackendLocal = "local"
	BlobBackendGCS   = "gcs"
)

// Config selects which implementations get constructed. Component
// settings with their own defaults (Postgres DSN pieces, Vault
// coordinates, bucket names, anchor endpoints) are read by the
// components themselves; only wiring decisions live here.
type Config struct {
	LogMode     string
	Environment string
	Version     string

	HSMProvider string
	BlobBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AnchorEndpoint string
	AnchorWorker   bool

	LocalBlobRoot string

	ProfileSeedPath string
}

func LoadConfig() Config {
	return Config{
		LogMode:     envutil.Get("LOG_MODE", "dev"),
		Environment: envutil.Get("APP_ENV", "dev"),
		Version:     envutil.Get("APP_VERSION", "dev"),

		HSMProvider: strings.ToLower(envutil.Get("HSM_PROVIDER", HSMProviderSoft)),
		BlobBackend: strings.ToLower(envutil.Get("ENVELOPE_BLOB_BACKEND", BlobBackendLocal)),

		RedisAddr:     envutil.Get("REDIS_ADDR", ""),
		RedisPassword: envutil.Get("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),

		AnchorEndpoint: envutil.Get("ANCHOR_ENDPOINT", ""),
		AnchorWorker:   envutil.Bool("ANCHOR_WORKER_ENABLED", true),

		LocalBlobRoot: envutil.Get("ENVELOPE_BLOB_ROOT", "./data/replicas"),

		ProfileSeedPath: envutil.Get("SECURITY_PROFILE_SEED", ""),
	}
}
