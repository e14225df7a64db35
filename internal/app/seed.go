package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/yungbote/tessera-backend/internal/crypto/shamir"
	accessrepo "github.com/yungbote/tessera-backend/internal/data/repos/access"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type profileSeed struct {
	OrganizationID        string   `yaml:"organization_id"`
	ShamirThreshold       int      `yaml:"shamir_threshold"`
	ShamirTotalShares     int      `yaml:"shamir_total_shares"`
	StorageTier           string   `yaml:"storage_tier"`
	MarkerWidth           int      `yaml:"marker_width"`
	ExportPermitted       bool     `yaml:"export_permitted"`
	MinRetentionDays      int      `yaml:"min_retention_days"`
	AuthzProvider         string   `yaml:"authz_provider"`
	ShareHolderIDs        []string `yaml:"share_holder_ids"`
	PersistShareData      bool     `yaml:"persist_share_data"`
	PartialFailurePolicy  string   `yaml:"partial_failure_policy"`
	CachedAuthzTTLSeconds int      `yaml:"cached_authz_ttl_seconds"`
}

type seedFile struct {
	Profiles []profileSeed `yaml:"profiles"`
}

// SeedSecurityProfiles loads tenant profiles from a YAML file and
// upserts them, so a fresh deployment comes up with its custody
// parameters in place. Runs at startup when SECURITY_PROFILE_SEED is
// set.
func SeedSecurityProfiles(ctx context.Context, profiles accessrepo.SecurityProfileRepo, log *logger.Logger, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile seed %s: %w", path, err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse profile seed %s: %w", path, err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	for i, seed := range file.Profiles {
		orgID, err := uuid.Parse(seed.OrganizationID)
		if err != nil {
			return fmt.Errorf("profile %d: bad organization_id %q: %w", i, seed.OrganizationID, err)
		}
		if seed.ShamirThreshold < shamir.MinThreshold {
			return fmt.Errorf("profile %d: shamir_threshold must be at least %d, got %d", i, shamir.MinThreshold, seed.ShamirThreshold)
		}
		if seed.ShamirTotalShares < seed.ShamirThreshold {
			return fmt.Errorf("profile %d: shamir_total_shares %d below threshold %d", i, seed.ShamirTotalShares, seed.ShamirThreshold)
		}
		if seed.ShamirTotalShares > shamir.MaxShares {
			return fmt.Errorf("profile %d: shamir_total_shares %d exceeds %d", i, seed.ShamirTotalShares, shamir.MaxShares)
		}

		tier := seed.StorageTier
		if tier == "" {
			tier = types.TierOne
		}
		switch tier {
		case types.TierOne, types.TierTwo, types.TierThree:
		default:
			return fmt.Errorf("profile %d: unknown storage_tier %q", i, seed.StorageTier)
		}

		switch seed.PartialFailurePolicy {
		case "", types.PolicyProceed, types.PolicyHalt:
		default:
			return fmt.Errorf("profile %d: unknown partial_failure_policy %q", i, seed.PartialFailurePolicy)
		}

		provider := seed.AuthzProvider
		if provider == "" {
			provider = types.ProviderConventional
		}

		holders := seed.ShareHolderIDs
		if holders == nil {
			holders = []string{}
		}
		holderJSON, err := json.Marshal(holders)
		if err != nil {
			return fmt.Errorf("profile %d: encode share_holder_ids: %w", i, err)
		}

		profile := &types.SecurityProfile{
			OrganizationID:        orgID,
			ShamirThreshold:       seed.ShamirThreshold,
			ShamirTotalShares:     seed.ShamirTotalShares,
			StorageTier:           tier,
			MarkerWidth:           seed.MarkerWidth,
			ExportPermitted:       seed.ExportPermitted,
			MinRetentionDays:      seed.MinRetentionDays,
			AuthzProvider:         provider,
			ShareHolderIDs:        datatypes.JSON(holderJSON),
			PersistShareData:      seed.PersistShareData,
			PartialFailurePolicy:  seed.PartialFailurePolicy,
			CachedAuthzTTLSeconds: seed.CachedAuthzTTLSeconds,
		}
		if err := profiles.Upsert(dbc, profile); err != nil {
			return fmt.Errorf("profile %d: upsert for org %s: %w", i, orgID, err)
		}
		log.Info("security profile seeded",
			"organization_id", orgID,
			"storage_tier", tier,
			"shamir_threshold", seed.ShamirThreshold,
			"shamir_total_shares", seed.ShamirTotalShares,
		)
	}
	return nil
}
